// Package stats aggregates load test measurements from many client
// goroutines and prints a summary report with percentile distributions.
package stats

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"
	"time"
)

// Collector aggregates measurements from many clients. All methods are
// goroutine-safe.
type Collector struct {
	mu               sync.Mutex
	connectLatencies []time.Duration
	echoLatencies    []time.Duration
	errors           map[string]int
	notices          map[string]int
	connections      int
	startTime        time.Time
	scraper          *Scraper
}

// NewCollector creates a Collector with the start time set to now.
func NewCollector() *Collector {
	return &Collector{
		errors:    make(map[string]int),
		notices:   make(map[string]int),
		startTime: time.Now(),
	}
}

// SetScraper attaches a Prometheus scraper whose report is appended to ours.
func (c *Collector) SetScraper(s *Scraper) {
	c.mu.Lock()
	c.scraper = s
	c.mu.Unlock()
}

// AddConnect records a connection that completed its readiness check.
func (c *Collector) AddConnect(d time.Duration) {
	c.mu.Lock()
	c.connectLatencies = append(c.connectLatencies, d)
	c.connections++
	c.mu.Unlock()
}

// AddMsgLatency records the time between sending a chat message and seeing
// the server broadcast it back.
func (c *Collector) AddMsgLatency(d time.Duration) {
	c.mu.Lock()
	c.echoLatencies = append(c.echoLatencies, d)
	c.mu.Unlock()
}

// AddError counts a client-side failure under stage, e.g. "dial" or "join".
func (c *Collector) AddError(stage string) {
	c.mu.Lock()
	c.errors[stage]++
	c.mu.Unlock()
}

// AddNotice counts an error frame the server sent, keyed by its text.
func (c *Collector) AddNotice(text string) {
	c.mu.Lock()
	c.notices[text]++
	c.mu.Unlock()
}

// ConnectionCount returns the number of recorded connections.
func (c *Collector) ConnectionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connections
}

// ErrorCount returns the number of recorded failures across all stages.
func (c *Collector) ErrorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.errors {
		n += v
	}
	return n
}

// Summary is a latency distribution.
type Summary struct {
	N                       int
	Avg, P50, P95, P99, Max time.Duration
}

// Summarize computes the distribution of durations. It does not modify the
// input. An empty input yields the zero Summary.
func Summarize(durations []time.Duration) Summary {
	n := len(durations)
	if n == 0 {
		return Summary{}
	}
	sorted := slices.Clone(durations)
	slices.Sort(sorted)

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	rank := func(q float64) time.Duration {
		return sorted[int(math.Ceil(float64(n)*q))-1]
	}
	return Summary{
		N:   n,
		Avg: sum / time.Duration(n),
		P50: sorted[n/2],
		P95: rank(0.95),
		P99: rank(0.99),
		Max: sorted[n-1],
	}
}

func (s Summary) String() string {
	r := func(d time.Duration) time.Duration { return d.Round(time.Microsecond) }
	return fmt.Sprintf("avg: %v  p50: %v  p95: %v  p99: %v  max: %v  (n=%d)",
		r(s.Avg), r(s.P50), r(s.P95), r(s.P99), r(s.Max), s.N)
}

// Report prints the collected measurements to stdout.
func (c *Collector) Report() {
	c.mu.Lock()
	defer c.mu.Unlock()

	errs := 0
	for _, v := range c.errors {
		errs += v
	}

	fmt.Println("\n=== Load Test Results ===")
	fmt.Printf("Duration:     %s\n", time.Since(c.startTime).Round(time.Second))
	fmt.Printf("Connections:  %d\n", c.connections)
	fmt.Printf("Errors:       %d\n", errs)
	if attempts := c.connections + c.errors["dial"] + c.errors["join"] + c.errors["ping"]; attempts > 0 {
		fmt.Printf("Error rate:   %.2f%%\n", float64(errs)/float64(attempts)*100)
	}
	printCounts("Errors by stage", c.errors)
	printCounts("Server notices", c.notices)

	if len(c.connectLatencies) > 0 {
		fmt.Println("\n--- Connect Latency ---")
		fmt.Println(" ", Summarize(c.connectLatencies))
	}
	if len(c.echoLatencies) > 0 {
		fmt.Println("\n--- Message Echo Latency ---")
		fmt.Println(" ", Summarize(c.echoLatencies))
	}

	if c.scraper != nil {
		c.scraper.Report()
	}
	fmt.Println()
}

func printCounts(title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return counts[keys[i]] > counts[keys[j]] })

	fmt.Printf("\n--- %s ---\n", title)
	for _, k := range keys {
		fmt.Printf("  %6d  %s\n", counts[k], k)
	}
}
