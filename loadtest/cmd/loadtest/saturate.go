package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mridulmehra/CyberGaurd-Backend/loadtest/client"
	"github.com/mridulmehra/CyberGaurd-Backend/loadtest/stats"
)

// runSaturate opens idle connections up to a target count and holds them,
// reporting how many the server drops. Each connection must answer a ping
// before it counts, so connections the server refuses after the upgrade
// (connection cap, per-IP rate limit) show up as errors.
func runSaturate(args []string) {
	fs := flag.NewFlagSet("saturate", flag.ExitOnError)
	url := fs.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	connections := fs.Int("connections", 1000, "Number of connections to open")
	rampUp := fs.Duration("ramp", 10*time.Second, "Ramp-up duration")
	hold := fs.Duration("hold", 30*time.Second, "Hold duration after all connections are open")
	concurrency := fs.Int("concurrency", 50, "Maximum simultaneous connection attempts during ramp-up")
	metricsURL := fs.String("metrics-url", "", "Prometheus metrics endpoint URL (empty to skip)")
	fs.Parse(args)

	fmt.Printf("Saturate test: %d connections to %s (ramp=%s, hold=%s, concurrency=%d)\n",
		*connections, *url, *rampUp, *hold, *concurrency)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()
	if *metricsURL != "" {
		scraper := stats.NewScraper(*metricsURL, 2*time.Second)
		collector.SetScraper(scraper)
		scraper.Start(ctx)
		defer scraper.Stop()
	}

	var mu sync.Mutex
	clients := make([]*client.Client, 0, *connections)

	fmt.Println("\n--- Ramp-up phase ---")
	start := time.Now()
	completed := ramp(ctx, rampConfig{
		label:       "ramp",
		total:       *connections,
		duration:    *rampUp,
		concurrency: *concurrency,
	}, collector, func(ctx context.Context, _ int) {
		c, err := client.New(ctx, *url)
		if err != nil {
			collector.AddError("dial")
			return
		}
		if err := c.Ping(ctx); err != nil {
			collector.AddError("ping")
			c.Close()
			return
		}
		collector.AddConnect(c.GetMetrics().ConnectLatency)

		mu.Lock()
		clients = append(clients, c)
		mu.Unlock()
	})
	fmt.Printf("\nRamp-up complete: %d/%d connections in %s (%d errors)\n",
		len(clients), *connections, time.Since(start).Round(time.Millisecond), collector.ErrorCount())

	dropped := 0
	if completed {
		dropped = holdConnections(ctx, clients, *hold)
	} else {
		fmt.Println("Interrupted during ramp-up, skipping hold phase.")
	}

	fmt.Println("\n--- Cleanup ---")
	fmt.Printf("Closing %d connections...\n", len(clients))
	for _, c := range clients {
		c.Close()
	}

	if dropped > 0 {
		fmt.Printf("\nConnections dropped during hold: %d\n", dropped)
	}
	collector.Report()
}

// holdConnections waits for hold, printing how many connections are still
// alive every five seconds, and returns the number that dropped.
func holdConnections(ctx context.Context, clients []*client.Client, hold time.Duration) int {
	fmt.Println("\n--- Hold phase ---")
	fmt.Printf("Holding %d connections for %s...\n", len(clients), hold)

	alive := func() int {
		n := 0
		for _, c := range clients {
			if c.Alive() {
				n++
			}
		}
		return n
	}

	timer := time.NewTimer(hold)
	defer timer.Stop()
	status := time.NewTicker(5 * time.Second)
	defer status.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted during hold phase.")
			return len(clients) - alive()
		case <-timer.C:
			fmt.Println("\nHold period complete.")
			return len(clients) - alive()
		case <-status.C:
			n := alive()
			fmt.Printf("  [hold] alive: %d/%d  dropped: %d\n", n, len(clients), len(clients)-n)
		}
	}
}
