package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mridulmehra/CyberGaurd-Backend/loadtest/stats"
)

// rampConfig controls how connections are opened.
type rampConfig struct {
	label       string
	total       int
	duration    time.Duration
	concurrency int
}

// ramp calls open for i in [0, total), spreading launches evenly over the
// ramp duration with at most concurrency in flight. Progress is printed
// every second. It returns false when ctx was cancelled before every launch.
func ramp(ctx context.Context, cfg rampConfig, collector *stats.Collector, open func(ctx context.Context, i int)) bool {
	interval := cfg.duration / time.Duration(max(cfg.total, 1))
	if interval <= 0 {
		interval = time.Millisecond
	}
	sem := make(chan struct{}, max(cfg.concurrency, 1))
	var wg sync.WaitGroup

	progressDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		last, lastTime := 0, time.Now()
		for {
			select {
			case now := <-ticker.C:
				conns := collector.ConnectionCount()
				rate := float64(conns-last) / now.Sub(lastTime).Seconds()
				fmt.Printf("  [%s] connections: %d/%d  errors: %d  rate: %.1f conn/s\n",
					cfg.label, conns, cfg.total, collector.ErrorCount(), rate)
				last, lastTime = conns, now
			case <-progressDone:
				return
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	completed := true
launch:
	for i := 0; i < cfg.total; i++ {
		select {
		case <-ctx.Done():
			completed = false
			break launch
		case <-ticker.C:
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			open(connCtx, i)
		}(i)
	}

	wg.Wait()
	close(progressDone)
	return completed
}
