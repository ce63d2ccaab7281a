// Benchmark tool for load-testing the Falcon decision API.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -key <api-key> -requests 10000
//
// This tool:
//   1. Generates synthetic applicants (random national IDs and income profiles)
//   2. Sends card/loan decision requests to Falcon concurrently
//   3. Tracks the outcome taxonomy (approved / conflict / validation / system error)
//   4. Reports latency, throughput, and card tier distribution
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// DecisionRequest is the Falcon decision API request format.
type DecisionRequest struct {
	NationalID  string  `json:"national_id"`
	Salary      float64 `json:"salary"`
	Liabilities float64 `json:"liabilities"`
	Expenses    float64 `json:"expenses"`
}

// DecisionResponse covers both success and error bodies.
type DecisionResponse struct {
	Decision      string  `json:"decision,omitempty"`
	Status        string  `json:"status,omitempty"`
	Code          string  `json:"code,omitempty"`
	CardType      string  `json:"card_type,omitempty"`
	CreditLimit   float64 `json:"credit_limit,omitempty"`
	FinanceAmount float64 `json:"finance_amount,omitempty"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	Approved        int64
	ActiveConflicts int64
	Validations     int64
	SystemErrors    int64
	TransportErrors int64

	GoldCards   int64
	RewardCards int64

	TotalProcessed   int64
	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	baseURL := flag.String("url", "http://localhost:8080", "Falcon base URL")
	apiKey := flag.String("key", "", "API key for requests")
	requests := flag.Int("requests", 10000, "Number of decision requests to send")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	product := flag.String("product", "mixed", "Product to test: card, loan, or mixed")
	reuseRate := flag.Float64("reuse", 0.1, "Fraction of requests reusing a national ID (0.0-1.0)")
	verbose := flag.Bool("verbose", false, "Print each decision result")
	flag.Parse()

	if *apiKey == "" {
		fmt.Println("Usage: benchmark -key <api-key> [-url http://localhost:8080] [-requests 10000]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("FALCON BENCHMARK - decision API load test")
	fmt.Printf("\nFalcon URL:  %s\n", *baseURL)
	fmt.Printf("Requests:    %d\n", *requests)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Product:     %s\n", *product)
	fmt.Printf("Reuse Rate:  %.2f\n", *reuseRate)
	fmt.Println()

	// Check Falcon is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Falcon not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Falcon is running:")
		fmt.Println("  go run cmd/falcon/main.go")
		os.Exit(1)
	}
	fmt.Println("Falcon is healthy")

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(*baseURL, *apiKey, *product, *requests, *workers, *reuseRate, *verbose)
	duration := time.Since(startTime)

	// Print results
	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// newApplicant generates a synthetic income profile. Salaries straddle
// the 4000 minimum so validation rejections show up in the mix.
func newApplicant(reused []string, reuseRate float64) DecisionRequest {
	var nationalID string
	if len(reused) > 0 && rand.Float64() < reuseRate {
		nationalID = reused[rand.IntN(len(reused))]
	} else {
		nationalID = fmt.Sprintf("1%09d", rand.Int64N(1000000000))
	}

	salary := 3000 + rand.Float64()*27000
	return DecisionRequest{
		NationalID:  nationalID,
		Salary:      salary,
		Liabilities: rand.Float64() * salary * 0.4,
		Expenses:    rand.Float64() * salary * 0.3,
	}
}

func runBenchmark(baseURL, apiKey, product string, requests, numWorkers int, reuseRate float64, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Seed a pool of IDs to reuse so conflict responses get exercised
	reused := make([]string, 100)
	for i := range reused {
		reused[i] = fmt.Sprintf("1%09d", rand.Int64N(1000000000))
	}

	work := make(chan DecisionRequest, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for req := range work {
				path := "/decision/card"
				if product == "loan" || (product == "mixed" && rand.IntN(2) == 0) {
					path = "/decision/loan"
				}

				start := time.Now()
				result, err := sendDecision(client, baseURL, apiKey, path, req)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TransportErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", req.NationalID, err)
					}
					continue
				}

				switch {
				case result.Decision == "approved":
					atomic.AddInt64(&metrics.Approved, 1)
					if result.CardType == "GOLD" {
						atomic.AddInt64(&metrics.GoldCards, 1)
					} else if result.CardType == "REWARD" {
						atomic.AddInt64(&metrics.RewardCards, 1)
					}
				case result.Code == "ACTIVE_APPLICATION_EXISTS":
					atomic.AddInt64(&metrics.ActiveConflicts, 1)
				case result.Code == "VALIDATION_ERROR":
					atomic.AddInt64(&metrics.Validations, 1)
				default:
					atomic.AddInt64(&metrics.SystemErrors, 1)
				}

				if verbose {
					fmt.Printf("%-12s %-8s | salary: %8.0f | outcome: %s%s\n",
						req.NationalID,
						path[len("/decision/"):],
						req.Salary,
						result.Decision+result.Code,
						cardSuffix(result),
					)
				}
			}
		}()
	}

	// Send work
	for i := 0; i < requests; i++ {
		work <- newApplicant(reused, reuseRate)
	}
	close(work)

	wg.Wait()

	return metrics
}

func cardSuffix(r *DecisionResponse) string {
	if r.CardType != "" {
		return fmt.Sprintf(" (%s, limit %.0f)", r.CardType, r.CreditLimit)
	}
	return ""
}

func sendDecision(client *http.Client, baseURL, apiKey, path string, req DecisionRequest) (*DecisionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// 4xx carries the business outcome body, only 5xx/auth are transport-level
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("unauthorized: check -key")
	}

	var result DecisionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")

	fmt.Printf("\nOUTCOMES\n")
	fmt.Printf("   Total Processed:   %d\n", m.TotalProcessed)
	fmt.Printf("   Approved:          %d\n", m.Approved)
	fmt.Printf("   Active Conflicts:  %d\n", m.ActiveConflicts)
	fmt.Printf("   Validation Fails:  %d\n", m.Validations)
	fmt.Printf("   System Errors:     %d\n", m.SystemErrors)
	fmt.Printf("   Transport Errors:  %d\n", m.TransportErrors)

	if m.GoldCards+m.RewardCards > 0 {
		goldRate := 100 * float64(m.GoldCards) / float64(m.GoldCards+m.RewardCards)
		fmt.Printf("\nCARD TIERS\n")
		fmt.Printf("   GOLD:    %d (%.2f%%)\n", m.GoldCards, goldRate)
		fmt.Printf("   REWARD:  %d (%.2f%%)\n", m.RewardCards, 100-goldRate)
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		rps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f req/sec\n", rps)
	}

	fmt.Println()
}
