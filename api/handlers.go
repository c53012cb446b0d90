package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/fyerfyer/fyer-lock/distributelock"
	"github.com/fyerfyer/fyer-lock/internal/ferr"
)

// LockService 管理接口依赖的锁操作，*distributelock.Client 实现了该接口
type LockService interface {
	Inspect(ctx context.Context, resource string) (distributelock.LockInfo, error)
	Release(ctx context.Context, resource, token string) error
}

var _ LockService = (*distributelock.Client)(nil)

// HandleInspect 处理 GET /locks?resource=X 请求
func HandleInspect(w http.ResponseWriter, r *http.Request, svc LockService) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resource := r.URL.Query().Get("resource")
	if resource == "" {
		writeJSONResponse(w, http.StatusBadRequest, APIResponse{
			Success: false,
			Message: "Missing resource parameter",
		})
		return
	}

	info, err := svc.Inspect(r.Context(), resource)
	if err != nil {
		writeError(w, "Failed to inspect lock", err)
		return
	}

	writeJSONResponse(w, http.StatusOK, APIResponse{
		Success: true,
		Data: LockResponse{
			Resource:  info.Resource,
			Key:       info.Key,
			Held:      info.Held,
			TTLMillis: ttlMillis(info),
		},
	})
}

// HandleRelease 处理 POST /locks/release?resource=X&token=Y 请求
// 只有提供当前持有者的 token 才能释放
func HandleRelease(w http.ResponseWriter, r *http.Request, svc LockService) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	resource, token := q.Get("resource"), q.Get("token")
	if resource == "" || token == "" {
		writeJSONResponse(w, http.StatusBadRequest, APIResponse{
			Success: false,
			Message: "Missing resource or token parameter",
		})
		return
	}

	if err := svc.Release(r.Context(), resource, token); err != nil {
		writeError(w, "Failed to release lock", err)
		return
	}

	writeJSONResponse(w, http.StatusOK, APIResponse{
		Success: true,
		Message: fmt.Sprintf("Lock '%s' released", resource),
		Data: ReleaseResponse{
			Resource: resource,
		},
	})
}

// HandleHealth 处理 GET /health 请求
func HandleHealth(w http.ResponseWriter, r *http.Request, check func(ctx context.Context) error) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if check != nil {
		if err := check(r.Context()); err != nil {
			writeJSONResponse(w, http.StatusServiceUnavailable, APIResponse{
				Success: false,
				Message: err.Error(),
			})
			return
		}
	}
	writeJSONResponse(w, http.StatusOK, APIResponse{Success: true, Message: "OK"})
}

func ttlMillis(info distributelock.LockInfo) int64 {
	if info.TTL < 0 {
		// -1/-2 哨兵值原样返回
		return int64(info.TTL)
	}
	return info.TTL.Milliseconds()
}

// writeError 按错误类型映射状态码
func writeError(w http.ResponseWriter, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ferr.ErrEmptyResource):
		status = http.StatusBadRequest
	case errors.Is(err, ferr.ErrLeaseExpiredElsewhere):
		status = http.StatusConflict
	case errors.Is(err, ferr.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, APIResponse{
		Success: false,
		Message: msg + ": " + err.Error(),
	})
}

// writeJSONResponse 写入 JSON 响应
func writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
