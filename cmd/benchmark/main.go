package main

import (
	"bytes"
	"context"
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

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/punchamoorthee/handlepay/internal/api"
	"github.com/punchamoorthee/handlepay/internal/domain"
	"github.com/punchamoorthee/handlepay/internal/models"
	"github.com/punchamoorthee/handlepay/internal/store"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	replayRate  float64
)

// Metrics
var (
	totalRequests uint64
	success200    uint64 // Idempotent replays
	success201    uint64 // Created
	fail4xx       uint64
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8787", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.Float64Var(&replayRate, "replay", 0.1, "Fraction of requests that reuse the previous idempotency key")
}

type sender struct {
	account domain.Account
	token   string
}

func main() {
	flag.Parse()

	dbURL := os.Getenv("DB_SOURCE")
	secret := os.Getenv("AUTH_JWT_SECRET")
	if dbURL == "" || secret == "" {
		log.Fatal("DB_SOURCE and AUTH_JWT_SECRET are required")
	}

	senders, err := loadSenders(dbURL, api.NewAuthenticator(secret))
	if err != nil {
		log.Fatal(err)
	}
	if len(senders) < 2 {
		log.Fatal("need at least two seeded accounts, run cmd/seeder first")
	}

	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s | Accounts: %d", workload, concurrency, duration, len(senders))

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, senders)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func loadSenders(dbURL string, auth *api.Authenticator) ([]sender, error) {
	ctx := context.Background()
	st, err := store.NewStore(ctx, dbURL)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	accounts, err := st.ListAccounts(ctx, uuid.Nil, 1000)
	if err != nil {
		return nil, err
	}

	senders := make([]sender, 0, len(accounts))
	for _, acc := range accounts {
		tok, err := auth.Sign(api.Claims{
			Email: acc.Email,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   acc.ID.String(),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(duration + time.Hour)),
			},
		})
		if err != nil {
			return nil, err
		}
		senders = append(senders, sender{account: acc, token: tok})
	}
	return senders, nil
}

func worker(wg *sync.WaitGroup, start time.Time, senders []sender) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	var lastKey string
	var lastBody []byte
	var lastFrom sender

	for time.Since(start) < duration {
		key, body, from := lastKey, lastBody, lastFrom
		if lastKey == "" || rand.Float64() >= replayRate {
			var to sender
			from, to = pick(senders)
			key = fmt.Sprintf("bench-%s-%d", from.account.Handle, time.Now().UnixNano())
			body, _ = json.Marshal(models.TransferRequest{To: "@" + to.account.Handle, Amount: "0.01"})
		}
		lastKey, lastBody, lastFrom = key, body, from

		req, _ := http.NewRequest(http.MethodPost, targetURL+"/api/v1/transfers", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+from.token)
		req.Header.Set(api.IdempotencyKeyHeader, key)

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch {
		case resp.StatusCode == http.StatusCreated:
			atomic.AddUint64(&success201, 1)
		case resp.StatusCode == http.StatusOK:
			atomic.AddUint64(&success200, 1)
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			atomic.AddUint64(&fail4xx, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func pick(senders []sender) (sender, sender) {
	if workload == "hotspot" {
		// Hotspot: 90% of traffic goes between the first two accounts
		if rand.Float32() < 0.90 {
			if rand.Float32() < 0.5 {
				return senders[0], senders[1]
			}
			return senders[1], senders[0]
		}
	}

	a := rand.Intn(len(senders))
	b := rand.Intn(len(senders))
	for a == b {
		b = rand.Intn(len(senders))
	}
	return senders[a], senders[b]
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	s201 := atomic.LoadUint64(&success201)
	s200 := atomic.LoadUint64(&success200)
	f4xx := atomic.LoadUint64(&fail4xx)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()

	results := map[string]any{
		"workload":        workload,
		"duration_sec":    d.Seconds(),
		"total_requests":  total,
		"throughput_tps":  tps,
		"success_created": s201,
		"success_replay":  s200,
		"client_errors":   f4xx,
		"errors":          fErr,
	}

	// Print JSON for the python plotter to consume
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	// Also save to file
	filename := fmt.Sprintf("results_%s.json", workload)
	file, _ := os.Create(filename)
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
