package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/mridulmehra/CyberGaurd-Backend/loadtest/client"
	"github.com/mridulmehra/CyberGaurd-Backend/loadtest/stats"
)

// maxTextChars mirrors the server's per-message character limit.
const maxTextChars = 2000

// runRooms spreads users over a set of rooms, has each one join and then
// send messages at a fixed interval. Message latency is the time between a
// user's send and the moment the server broadcasts that message back to
// them, so it covers validation, moderation and persistence.
func runRooms(args []string) {
	fs := flag.NewFlagSet("rooms", flag.ExitOnError)
	url := fs.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	users := fs.Int("users", 200, "Number of simulated users")
	rooms := fs.Int("rooms", 10, "Number of rooms to spread users over")
	rampUp := fs.Duration("ramp", 10*time.Second, "Ramp-up duration for connection creation")
	duration := fs.Duration("duration", 30*time.Second, "How long users keep chatting")
	msgInterval := fs.Duration("msg-interval", 2*time.Second, "Interval between messages per user")
	msgSize := fs.Int("msg-size", 128, "Size of each message in characters")
	concurrency := fs.Int("concurrency", 50, "Maximum simultaneous connection attempts during ramp-up")
	metricsURL := fs.String("metrics-url", "http://localhost:8080/metrics", "Prometheus metrics endpoint URL")
	scrapeInterval := fs.Duration("scrape-interval", 2*time.Second, "Interval between metrics scrapes")
	fs.Parse(args)

	if *rooms < 1 {
		*rooms = 1
	}
	if *msgSize > maxTextChars {
		*msgSize = maxTextChars
	}

	fmt.Printf("Rooms test: %d users over %d rooms to %s (ramp=%s, duration=%s, interval=%s, msg-size=%d)\n",
		*users, *rooms, *url, *rampUp, *duration, *msgInterval, *msgSize)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()
	scraper := stats.NewScraper(*metricsURL, *scrapeInterval)
	collector.SetScraper(scraper)
	scraper.Start(ctx)

	// Usernames must be unique server-wide, so every run gets its own prefix.
	runID := fmt.Sprintf("%x", time.Now().UnixNano()&0xffffff)

	var mu sync.Mutex
	joined := make([]*roomUser, 0, *users)

	// -----------------------------------------------------------------------
	// Phase 1: connect and join
	// -----------------------------------------------------------------------
	fmt.Println("\n--- Phase 1: Connect and join ---")

	rampStart := time.Now()
	completed := ramp(ctx, rampConfig{
		label:       "join",
		total:       *users,
		duration:    *rampUp,
		concurrency: *concurrency,
	}, collector, func(ctx context.Context, i int) {
		c, err := client.New(ctx, *url)
		if err != nil {
			collector.AddError("dial")
			return
		}
		u := &roomUser{
			c:       c,
			name:    fmt.Sprintf("lt-%s-%d", runID, i),
			room:    fmt.Sprintf("loadtest-%d", i%*rooms),
			pending: make(map[string]time.Time),
		}
		if err := c.Join(ctx, u.name, u.room); err != nil {
			collector.AddError("join")
			c.Close()
			return
		}
		collector.AddConnect(c.GetMetrics().ConnectLatency)

		mu.Lock()
		joined = append(joined, u)
		mu.Unlock()
	})

	fmt.Printf("\nPhase 1 complete: %d/%d users joined in %s (%d errors)\n",
		len(joined), *users, time.Since(rampStart).Round(time.Millisecond), collector.ErrorCount())

	if !completed || len(joined) == 0 {
		cleanupUsers(joined)
		scraper.Stop()
		collector.Report()
		return
	}

	// -----------------------------------------------------------------------
	// Phase 2: chat
	// -----------------------------------------------------------------------
	fmt.Printf("\n--- Phase 2: Chatting for %s ---\n", *duration)

	var sent, echoed, rejected atomic.Int64
	filler := strings.Repeat("abcdefgh", *msgSize/8+1)

	for _, u := range joined {
		u.c.On(client.TypeMessage, func(env client.Envelope) {
			var m client.ChatMessage
			if err := json.Unmarshal(env.Payload, &m); err != nil || m.Username != u.name {
				return
			}
			if start, ok := u.take(m.Text); ok {
				collector.AddMsgLatency(time.Since(start))
				echoed.Add(1)
			}
		})
		u.c.On(client.TypeError, func(env client.Envelope) {
			var p struct {
				Message string `json:"message"`
			}
			_ = json.Unmarshal(env.Payload, &p)
			collector.AddNotice(p.Message)
			rejected.Add(1)
		})
	}

	chatCtx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	progressDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fmt.Printf("  [rooms] sent: %d  echoed: %d  errors: %d\n",
					sent.Load(), echoed.Load(), rejected.Load())
			case <-progressDone:
				return
			}
		}
	}()

	var wg sync.WaitGroup
	chatStart := time.Now()
	for _, u := range joined {
		wg.Add(1)
		go func(u *roomUser) {
			defer wg.Done()
			ticker := time.NewTicker(*msgInterval)
			defer ticker.Stop()
			for seq := 0; ; seq++ {
				select {
				case <-chatCtx.Done():
					return
				case <-ticker.C:
				}
				tag := fmt.Sprintf("%s#%d ", u.name, seq)
				text := tag + filler
				if len(text) > *msgSize && *msgSize > len(tag) {
					text = text[:*msgSize]
				}
				u.track(text)
				if err := u.c.Send(client.TypeMessage, text); err != nil {
					collector.AddError("send")
					return
				}
				sent.Add(1)
			}
		}(u)
	}
	wg.Wait()
	close(progressDone)
	elapsed := time.Since(chatStart)

	// Leave one grace interval for in-flight moderation to finish.
	time.Sleep(*msgInterval)

	fmt.Printf("\n--- Rooms Results ---\n")
	fmt.Printf("Users:             %d in %d rooms\n", len(joined), *rooms)
	fmt.Printf("Messages sent:     %d\n", sent.Load())
	fmt.Printf("Messages echoed:   %d\n", echoed.Load())
	fmt.Printf("Error frames:      %d\n", rejected.Load())
	if elapsed.Seconds() > 0 {
		fmt.Printf("Send throughput:   %.1f msg/s\n", float64(sent.Load())/elapsed.Seconds())
	}

	cleanupUsers(joined)
	scraper.Stop()
	collector.Report()
}

// roomUser is one joined load test client plus the send times of its
// messages that have not been broadcast back yet.
type roomUser struct {
	c    *client.Client
	name string
	room string

	mu      sync.Mutex
	pending map[string]time.Time
}

func (u *roomUser) track(text string) {
	u.mu.Lock()
	u.pending[text] = time.Now()
	u.mu.Unlock()
}

func (u *roomUser) take(text string) (time.Time, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	start, ok := u.pending[text]
	delete(u.pending, text)
	return start, ok
}

func cleanupUsers(users []*roomUser) {
	fmt.Println("\n--- Cleanup ---")
	fmt.Printf("Closing %d connections...\n", len(users))
	for _, u := range users {
		_ = u.c.Send(client.TypeLeave, u.name)
		u.c.Close()
	}
	fmt.Println("All connections closed.")
}
