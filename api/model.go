package api

// APIResponse 通用 API 响应格式
type APIResponse struct {
	// 操作是否成功
	Success bool `json:"success"`

	// 响应消息
	Message string `json:"message,omitempty"`

	// 响应数据
	Data any `json:"data,omitempty"`
}

// LockResponse GET /locks 的响应数据
type LockResponse struct {
	Resource string `json:"resource"`
	Key      string `json:"key"`
	Held     bool   `json:"held"`

	// 剩余时间(毫秒)，-1 表示没有过期时间，-2 表示不存在
	TTLMillis int64 `json:"ttl_ms"`
}

// ReleaseResponse POST /locks/release 的响应数据
type ReleaseResponse struct {
	Resource string `json:"resource"`
}
