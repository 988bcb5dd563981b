package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/downstream"
	"github.com/vietddude/relay/internal/resilience/backoff"
	"github.com/vietddude/relay/internal/resilience/breaker"
	"github.com/vietddude/relay/internal/resilience/retry"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found")
	}

	TARGET_URL := os.Getenv("TARGET_URL")
	if TARGET_URL == "" {
		log.Fatalf("TARGET_URL is not set")
	}

	ctx := context.Background()

	// 1. Create the downstream caller
	caller := downstream.NewHTTPCaller("demo", TARGET_URL, 10*time.Second)

	// 2. Setup the resilience stack
	registry := breaker.NewRegistry(breaker.Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		ResetTimeout:     10 * time.Second,
		CallTimeout:      30 * time.Second,
	}, nil)

	exec := retry.NewExecutor(backoff.Policy{
		MaxAttempts:     3,
		BaseDelay:       500 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          true,
	}, nil)

	// 3. Wire the dispatcher
	dispatcher := downstream.NewDispatcher(registry, exec, nil)
	dispatcher.Register(caller)

	fmt.Println("=== Testing delivery with retries and circuit breaking ===")

	// 4. Deliver a few envelopes to see retry and breaker behavior
	for i := 0; i < 5; i++ {
		payload, _ := json.Marshal(map[string]any{"attempt": i + 1})
		env := &domain.Envelope{
			EventID:  fmt.Sprintf("demo-%d", i+1),
			EntityID: "demo-entity",
			Target:   "demo",
			Payload:  payload,
		}

		err := dispatcher.Deliver(ctx, env)
		if err != nil {
			log.Printf("Delivery %d failed: %v", i+1, err)
		} else {
			fmt.Printf("Delivery %d: OK\n", i+1)
		}

		time.Sleep(100 * time.Millisecond)
	}

	fmt.Println()

	// 5. Show breaker stats
	fmt.Println("=== Breaker Stats ===")
	for _, s := range registry.Stats() {
		fmt.Printf("%s:\n", s.Service)
		fmt.Printf("  State: %s\n", s.State)
		fmt.Printf("  Failures: %d\n", s.FailureCount)
		if !s.LastFailure.IsZero() {
			fmt.Printf("  Last Failure: %v\n", s.LastFailure.Format(time.RFC3339))
		}
		fmt.Println()
	}
}
