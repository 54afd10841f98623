package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

type LoadTestConfig struct {
	BaseURL       string
	ProductID     string
	PayPalEmail   string
	TotalRequests int
	Concurrency   int
	Duration      time.Duration
}

type Stats struct {
	TotalRequests    int64
	SuccessRequests  int64
	DeclinedPayments int64
	FailedRequests   int64
	TotalLatency     int64
	MinLatency       int64
	MaxLatency       int64
	Errors           sync.Map
}

type client struct {
	baseURL string
	token   string
	http    *http.Client
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Service base URL")
	email := flag.String("email", "", "Login email of the buyer account")
	password := flag.String("password", "", "Login password of the buyer account")
	product := flag.String("product", "", "Product ID to buy")
	requests := flag.Int("requests", 1000, "Total number of requests")
	concurrency := flag.Int("concurrency", 10, "Number of parallel requests")
	duration := flag.Duration("duration", 0, "Test duration (0 = use -requests)")
	operation := flag.String("operation", "buy", "Operation type: create, buy, checkout, get, list, mixed")
	flag.Parse()

	if *email == "" || *password == "" || *product == "" {
		fmt.Println("-email, -password and -product are required")
		os.Exit(2)
	}

	config := LoadTestConfig{
		BaseURL:       *baseURL,
		ProductID:     *product,
		PayPalEmail:   *email,
		TotalRequests: *requests,
		Concurrency:   *concurrency,
		Duration:      *duration,
	}

	c := &client{baseURL: config.BaseURL, http: &http.Client{Timeout: 10 * time.Second}}
	if err := c.login(*email, *password); err != nil {
		fmt.Printf("❌ Login failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("🚀 Starting load test\n")
	fmt.Printf("URL: %s\n", config.BaseURL)
	fmt.Printf("Operation: %s\n", *operation)
	fmt.Printf("Product: %s\n", config.ProductID)
	if config.Duration > 0 {
		fmt.Printf("Duration: %v\n", config.Duration)
	} else {
		fmt.Printf("Requests: %d\n", config.TotalRequests)
	}
	fmt.Printf("Concurrency: %d\n\n", config.Concurrency)

	stats := &Stats{
		MinLatency: int64(^uint64(0) >> 1), // max int64
	}

	var op func(index int64)
	switch *operation {
	case "create":
		op = func(int64) { c.createOrder(config, stats) }
	case "buy":
		op = func(int64) { c.buy(config, stats) }
	case "checkout":
		op = func(int64) { c.checkout(config, stats) }
	case "list":
		op = func(int64) { c.request(http.MethodGet, "/orders", nil, stats) }
	case "get":
		ids := c.seedOrders(config, 100)
		if len(ids) == 0 {
			fmt.Println("❌ Failed to create orders for test")
			return
		}
		fmt.Printf("✅ Created %d orders for testing\n\n", len(ids))
		op = func(index int64) {
			c.request(http.MethodGet, "/orders/"+ids[index%int64(len(ids))], nil, stats)
		}
	case "mixed":
		ids := c.seedOrders(config, 50)
		fmt.Printf("✅ Created %d orders for mixed test\n\n", len(ids))
		op = func(index int64) {
			switch n := index % 10; {
			case n < 3:
				c.buy(config, stats)
			case n < 5:
				c.createOrder(config, stats)
			case n < 8 && len(ids) > 0:
				c.request(http.MethodGet, "/orders/"+ids[index%int64(len(ids))], nil, stats)
			default:
				c.request(http.MethodGet, "/orders", nil, stats)
			}
		}
	default:
		fmt.Printf("Unknown operation: %s\n", *operation)
		return
	}

	startTime := time.Now()
	run(config, op)
	elapsed := time.Since(startTime)

	printResults(stats, elapsed)
}

// run calls op until the request budget or the duration is used up,
// keeping at most config.Concurrency calls in flight.
func run(config LoadTestConfig, op func(index int64)) {
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, config.Concurrency)

	requestCount := int64(0)
	endTime := time.Now().Add(config.Duration)

	for (config.Duration <= 0 || !time.Now().After(endTime)) &&
		(config.Duration != 0 || requestCount < int64(config.TotalRequests)) {
		wg.Add(1)
		semaphore <- struct{}{}
		idx := atomic.AddInt64(&requestCount, 1)

		go func(index int64) {
			defer wg.Done()
			defer func() { <-semaphore }()

			op(index)
		}(idx)
	}

	wg.Wait()
}

func (c *client) login(email, password string) error {
	status, body, err := c.do(http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", status, body)
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return err
	}
	c.token = resp.Token
	return nil
}

func (c *client) createOrder(config LoadTestConfig, stats *Stats) string {
	body := c.request(http.MethodPost, "/orders", map[string]interface{}{
		"product_id": config.ProductID,
		"quantity":   1,
	}, stats)
	return orderID(body)
}

// buy creates an order and pays for it through the simulated PayPal
// processor. Declined payments are counted separately from failures.
func (c *client) buy(config LoadTestConfig, stats *Stats) {
	id := c.createOrder(config, stats)
	if id == "" {
		return
	}
	c.request(http.MethodPost, "/orders/"+id+"/payment", map[string]interface{}{
		"method":       "paypal",
		"paypal_email": config.PayPalEmail,
	}, stats)
}

func (c *client) checkout(config LoadTestConfig, stats *Stats) {
	c.request(http.MethodPost, "/cart/items", map[string]interface{}{
		"product_id": config.ProductID,
		"quantity":   1,
	}, stats)
	c.request(http.MethodPost, "/cart/checkout", nil, stats)
}

func (c *client) seedOrders(config LoadTestConfig, n int) []string {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		status, body, err := c.do(http.MethodPost, "/orders", map[string]interface{}{
			"product_id": config.ProductID,
			"quantity":   1,
		})
		if err != nil || status != http.StatusCreated {
			continue
		}
		if id := orderID(body); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func orderID(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return ""
	}
	if id, ok := result["id"].(string); ok {
		return id
	}
	return ""
}

func (c *client) request(method, path string, payload interface{}, stats *Stats) []byte {
	start := time.Now()
	atomic.AddInt64(&stats.TotalRequests, 1)

	status, body, err := c.do(method, path, payload)
	if err != nil {
		recordError(stats, err)
		return nil
	}

	latency := time.Since(start).Milliseconds()
	recordLatency(stats, latency)

	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&stats.SuccessRequests, 1)
		return body
	case status == http.StatusPaymentRequired:
		atomic.AddInt64(&stats.DeclinedPayments, 1)
		return nil
	default:
		recordError(stats, fmt.Errorf("HTTP %d: %s", status, string(body)))
		return nil
	}
}

func (c *client) do(method, path string, payload interface{}) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func recordLatency(stats *Stats, latency int64) {
	atomic.AddInt64(&stats.TotalLatency, latency)

	for {
		old := atomic.LoadInt64(&stats.MinLatency)
		if latency >= old {
			break
		}
		if atomic.CompareAndSwapInt64(&stats.MinLatency, old, latency) {
			break
		}
	}

	for {
		old := atomic.LoadInt64(&stats.MaxLatency)
		if latency <= old {
			break
		}
		if atomic.CompareAndSwapInt64(&stats.MaxLatency, old, latency) {
			break
		}
	}
}

func recordError(stats *Stats, err error) {
	atomic.AddInt64(&stats.FailedRequests, 1)
	errMsg := err.Error()
	val, _ := stats.Errors.LoadOrStore(errMsg, new(int64))
	atomic.AddInt64(val.(*int64), 1)
}

func printResults(stats *Stats, elapsed time.Duration) {
	total := atomic.LoadInt64(&stats.TotalRequests)
	success := atomic.LoadInt64(&stats.SuccessRequests)
	declined := atomic.LoadInt64(&stats.DeclinedPayments)
	failed := atomic.LoadInt64(&stats.FailedRequests)
	totalLatency := atomic.LoadInt64(&stats.TotalLatency)
	minLatency := atomic.LoadInt64(&stats.MinLatency)
	maxLatency := atomic.LoadInt64(&stats.MaxLatency)

	if total == 0 {
		fmt.Println("No requests were sent")
		return
	}

	fmt.Printf("\n📊 Load Test Results\n")
	fmt.Printf("═══════════════════════════════════════════════════\n")
	fmt.Printf("Total time:           %v\n", elapsed)
	fmt.Printf("Total requests:       %d\n", total)
	fmt.Printf("Successful:           %d (%.2f%%)\n", success, float64(success)/float64(total)*100)
	fmt.Printf("Declined payments:    %d (%.2f%%)\n", declined, float64(declined)/float64(total)*100)
	fmt.Printf("Failed:               %d (%.2f%%)\n", failed, float64(failed)/float64(total)*100)
	fmt.Printf("\n")
	fmt.Printf("Throughput:           %.2f req/sec\n", float64(total)/elapsed.Seconds())
	fmt.Printf("\n")
	fmt.Printf("Latency:\n")
	fmt.Printf("  Average:            %d ms\n", totalLatency/total)
	fmt.Printf("  Minimum:            %d ms\n", minLatency)
	fmt.Printf("  Maximum:            %d ms\n", maxLatency)

	if failed > 0 {
		fmt.Printf("\n❌ Errors:\n")
		stats.Errors.Range(func(key, value interface{}) bool {
			count := atomic.LoadInt64(value.(*int64))
			fmt.Printf("  [%d] %s\n", count, key.(string))
			return true
		})
	}
	fmt.Printf("═══════════════════════════════════════════════════\n")
}
