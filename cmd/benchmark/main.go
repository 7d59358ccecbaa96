package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/punchamoorthee/chatpay/internal/gateway"
)

// Config holds the benchmark settings
var (
	targetURL     string
	concurrency   int
	duration      time.Duration
	workload      string
	webhookSecret string

	verifyUser    string
	verifyPayment string
	verifyOrder   string
)

// Metrics
var (
	totalRequests uint64
	accepted      uint64 // webhook_accepted
	duplicates    uint64 // duplicate_event_skipped replays
	rejected      uint64 // bad signature (400)
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "unique", "Workload type: unique | replay | verify")
	flag.StringVar(&webhookSecret, "secret", os.Getenv("RAZORPAY_WEBHOOK_SECRET"), "Webhook signing secret")
	flag.StringVar(&verifyUser, "user", "demo_user_0000", "User id for the verify workload")
	flag.StringVar(&verifyPayment, "payment", "", "Payment id for the verify workload")
	flag.StringVar(&verifyOrder, "order", "", "Order id for the verify workload")
}

func main() {
	flag.Parse()
	if webhookSecret == "" && workload != "verify" {
		log.Fatal("Webhook secret required (-secret or RAZORPAY_WEBHOOK_SECRET)")
	}
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	signer := gateway.NewSignatureVerifier(webhookSecret)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, signer, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, signer *gateway.SignatureVerifier, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	if workload == "verify" {
		verifyWorker(client, start)
		return
	}

	// In replay mode every worker hammers one event id, so all but the
	// first delivery should come back duplicate_event_skipped.
	replayID := fmt.Sprintf("evt_replay_%d", start.UnixNano())

	for time.Since(start) < duration {
		eventID := fmt.Sprintf("evt_bench_%d_%d", time.Now().UnixNano(), rand.Int63())
		if workload == "replay" {
			eventID = replayID
		}

		body, _ := json.Marshal(map[string]interface{}{
			"event": "payment.failed",
			"payload": map[string]interface{}{
				"payment": map[string]interface{}{
					"entity": map[string]interface{}{
						"id":       fmt.Sprintf("pay_bench%d", rand.Int63()),
						"order_id": fmt.Sprintf("order_bench%d", rand.Int63()),
					},
				},
			},
		})

		req, _ := http.NewRequest("POST", targetURL+"/api/v1/wallet/webhook", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Razorpay-Event-Id", eventID)
		req.Header.Set("X-Razorpay-Signature", signer.Sign(body))

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		var result struct {
			Status string `json:"status"`
		}
		json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusBadRequest:
			atomic.AddUint64(&rejected, 1)
		case result.Status == "duplicate_event_skipped":
			atomic.AddUint64(&duplicates, 1)
		case result.Status == "webhook_accepted":
			atomic.AddUint64(&accepted, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
	}
}

// verifyWorker hammers the synchronous verify-and-credit endpoint with one
// (payment, order) pair. Exactly one response across the whole run should
// report balance_credited=true; the rest count as duplicates.
func verifyWorker(client *http.Client, start time.Time) {
	if verifyPayment == "" || verifyOrder == "" {
		log.Fatal("verify workload requires -payment and -order")
	}

	body, _ := json.Marshal(map[string]string{
		"payment_id": verifyPayment,
		"order_id":   verifyOrder,
	})
	url := fmt.Sprintf("%s/api/v1/wallet/%s/verify-payment", targetURL, verifyUser)

	for time.Since(start) < duration {
		resp, err := client.Post(url, "application/json", bytes.NewReader(body))
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		var result struct {
			Success         bool `json:"success"`
			BalanceCredited bool `json:"balance_credited"`
		}
		json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()

		switch {
		case resp.StatusCode != http.StatusOK:
			atomic.AddUint64(&rejected, 1)
		case result.BalanceCredited:
			atomic.AddUint64(&accepted, 1)
		default:
			atomic.AddUint64(&duplicates, 1)
		}
	}
}

func printResults(elapsed time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	results := map[string]interface{}{
		"workload":         workload,
		"duration_sec":     elapsed.Seconds(),
		"total_requests":   total,
		"accepted":         atomic.LoadUint64(&accepted),
		"duplicates":       atomic.LoadUint64(&duplicates),
		"rejected":         atomic.LoadUint64(&rejected),
		"failures":         atomic.LoadUint64(&failOther),
		"requests_per_sec": float64(total) / elapsed.Seconds(),
	}

	out, _ := json.MarshalIndent(results, "", "  ")
	fmt.Println(string(out))
}
