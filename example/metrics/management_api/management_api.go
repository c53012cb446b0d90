package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fyerfyer/fyer-lock/api"
	"github.com/fyerfyer/fyer-lock/distributelock"
	"github.com/fyerfyer/fyer-lock/metrics"
	"github.com/fyerfyer/fyer-lock/store/memstore"
)

func main() {
	fmt.Println("Lock Management API Example")
	fmt.Println("===========================")

	ctx := context.Background()

	// 带监控的存储与锁客户端
	collector := metrics.NewPrometheusCollector(nil)
	s := metrics.NewMonitoredStore(memstore.New(), collector)
	client, err := distributelock.NewClient(s,
		distributelock.WithNamespace("example"),
		distributelock.WithRecorder(collector))
	if err != nil {
		log.Fatalf("Failed to create lock client: %v", err)
	}

	metricsServer := metrics.NewServer(metrics.NewPrometheusExporter(collector), &metrics.MetricsConfig{
		Address:     ":8081",
		MetricsPath: "/metrics",
	})
	if err := metricsServer.Start(); err != nil {
		log.Fatalf("Failed to start metrics server: %v", err)
	}
	defer metricsServer.Stop()
	fmt.Printf("Started metrics server on http://localhost:8081/metrics\n")

	apiServer := api.NewAPIServer(client, nil,
		api.WithBindAddress(":8080"),
		api.WithBasePath("/api"),
	)
	if err := apiServer.Start(); err != nil {
		log.Fatalf("Failed to start API server: %v", err)
	}
	defer apiServer.Stop()

	fmt.Printf("Started management API server on http://localhost:8080\n")
	fmt.Println("\nAvailable endpoints:")
	fmt.Println("  GET  /api/locks?resource={resource}                 - Inspect a lock")
	fmt.Println("  POST /api/locks/release?resource={r}&token={token}  - Release a lock by token")

	// 模拟一个崩溃后不再释放的持有者
	held, err := client.TryLock(ctx, "report")
	if err != nil || !held.Locked() {
		log.Fatalf("Failed to acquire lock: %v", err)
	}
	fmt.Printf("\nAcquired 'report' with token %s\n", held.Token())

	fmt.Println("\n1. Inspect the lock:")
	printJSON(get("http://localhost:8080/api/locks?resource=report"))

	fmt.Println("\n2. Release with a wrong token:")
	printJSON(post("http://localhost:8080/api/locks/release?resource=report&token=forged"))

	fmt.Println("\n3. Release with the owner's token:")
	printJSON(post(fmt.Sprintf("http://localhost:8080/api/locks/release?resource=report&token=%s", held.Token())))

	fmt.Println("\n4. Inspect again:")
	printJSON(get("http://localhost:8080/api/locks?resource=report"))

	fmt.Println("\nManagement API example is running.")
	fmt.Println("Press Ctrl+C to exit.")
	waitForSignal()
}

func get(url string) map[string]any {
	resp, err := http.Get(url)
	if err != nil {
		log.Printf("Request failed: %v", err)
		return nil
	}
	return decode(resp)
}

func post(url string) map[string]any {
	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		log.Printf("Request failed: %v", err)
		return nil
	}
	return decode(resp)
}

func decode(resp *http.Response) map[string]any {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("Failed to read response: %v", err)
		return nil
	}
	fmt.Printf("HTTP %d\n", resp.StatusCode)

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		log.Printf("Failed to decode response: %v", err)
		return nil
	}
	return data
}

// printJSON 打印JSON数据
func printJSON(data any) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		log.Printf("Failed to format JSON: %v", err)
		return
	}
	fmt.Println(string(jsonData))
}

// waitForSignal 等待中断信号
func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	fmt.Println("\nShutting down...")
}
