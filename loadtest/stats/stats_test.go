package stats

import (
	"sync"
	"testing"
	"time"
)

func TestSummarize(t *testing.T) {
	if got := Summarize(nil); got != (Summary{}) {
		t.Errorf("Summarize(nil) = %+v, want zero", got)
	}

	in := make([]time.Duration, 0, 100)
	for i := 100; i >= 1; i-- {
		in = append(in, time.Duration(i)*time.Millisecond)
	}
	s := Summarize(in)

	if s.N != 100 {
		t.Errorf("N = %d", s.N)
	}
	if s.Max != 100*time.Millisecond || s.P99 != 99*time.Millisecond || s.P95 != 95*time.Millisecond {
		t.Errorf("tail = %+v", s)
	}
	if s.P50 != 51*time.Millisecond {
		t.Errorf("P50 = %v, want 51ms", s.P50)
	}
	if s.Avg != 50500*time.Microsecond {
		t.Errorf("Avg = %v, want 50.5ms", s.Avg)
	}
	if in[0] != 100*time.Millisecond {
		t.Error("Summarize reordered its input")
	}
}

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.AddConnect(time.Millisecond)
			if i%10 == 0 {
				c.AddError("join")
			}
			c.AddNotice("Message cannot be empty")
		}(i)
	}
	wg.Wait()

	if got := c.ConnectionCount(); got != 50 {
		t.Errorf("ConnectionCount = %d, want 50", got)
	}
	if got := c.ErrorCount(); got != 5 {
		t.Errorf("ErrorCount = %d, want 5", got)
	}
	if got := c.notices["Message cannot be empty"]; got != 50 {
		t.Errorf("notices = %d, want 50", got)
	}
}
