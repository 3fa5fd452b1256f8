// Package main implements a standalone end-to-end smoke test for the
// CyberGuard chat server. It validates the user journey against a running
// server: health and metrics endpoints, joining a room, moderated messaging,
// reporting, clearing the chat view and leaving.
//
// Usage:
//
//	go run ./cmd/e2etest/ [-url ws://localhost:8080/ws] [-api http://localhost:8080] [-timeout 60s]
//
// Exit code 0 if all required scenarios pass, 1 if any fail.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mridulmehra/CyberGaurd-Backend/loadtest/client"
)

// resultKind categorises a scenario outcome.
type resultKind int

const (
	resultPass resultKind = iota
	resultFail
	resultInfo // optional / non-fatal
)

type scenarioResult struct {
	name   string
	kind   resultKind
	detail string
}

func (r scenarioResult) tag() string {
	switch r.kind {
	case resultPass:
		return "PASS"
	case resultFail:
		return "FAIL"
	default:
		return "INFO"
	}
}

func pass(name, format string, args ...any) scenarioResult {
	return scenarioResult{name, resultPass, fmt.Sprintf(format, args...)}
}

func fail(name, format string, args ...any) scenarioResult {
	return scenarioResult{name, resultFail, fmt.Sprintf(format, args...)}
}

func main() {
	wsURL := flag.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	apiBase := flag.String("api", "http://localhost:8080", "HTTP API base URL")
	timeout := flag.Duration("timeout", 60*time.Second, "Global test timeout")
	flag.Parse()

	fmt.Println("=== CyberGuard E2E Smoke Test ===")
	fmt.Printf("Server: %s\n\n", *wsURL)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	results := []scenarioResult{scenarioHealth(ctx, *apiBase)}
	results = append(results, scenarioRoom(ctx, *wsURL)...)
	results = append(results, scenarioToxic(ctx, *wsURL))

	fmt.Println()
	passed, failed, info := 0, 0, 0
	for _, r := range results {
		fmt.Printf("[%s] %s", r.tag(), r.name)
		if r.detail != "" {
			fmt.Printf(" (%s)", r.detail)
		}
		fmt.Println()

		switch r.kind {
		case resultPass:
			passed++
		case resultFail:
			failed++
		case resultInfo:
			info++
		}
	}

	fmt.Printf("\n=== Results: %d/%d passed", passed, passed+failed)
	if info > 0 {
		fmt.Printf(", %d info", info)
	}
	fmt.Println(" ===")

	if failed > 0 {
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// Scenario: health and metrics
// ---------------------------------------------------------------------------

func scenarioHealth(ctx context.Context, apiBase string) scenarioResult {
	name := "Health and metrics"

	if err := httpGetExpectOK(ctx, apiBase+"/health"); err != nil {
		return fail(name, "/health: %v", err)
	}
	body, err := httpGetBody(ctx, apiBase+"/metrics")
	if err != nil {
		return fail(name, "/metrics: %v", err)
	}
	if !strings.Contains(string(body), "cyberguard_connections_total") {
		return fail(name, "/metrics: missing cyberguard_connections_total")
	}

	// The admin API is optional.
	if err := httpGetExpectOK(ctx, apiBase+"/api/health"); err != nil {
		return pass(name, "admin API off")
	}
	return pass(name, "admin API on")
}

// ---------------------------------------------------------------------------
// Scenario group: join, message, report, clear, leave
// ---------------------------------------------------------------------------

func scenarioRoom(ctx context.Context, wsURL string) []scenarioResult {
	names := []string{"Join", "Message", "Report", "Clear chat", "Leave"}
	failAll := func(from int, format string, args ...any) []scenarioResult {
		out := make([]scenarioResult, 0, len(names))
		for i, n := range names {
			if i < from {
				continue
			}
			out = append(out, fail(n, format, args...))
		}
		return out
	}

	suffix := fmt.Sprintf("%x", time.Now().UnixNano()&0xffffff)
	room := "e2e-" + suffix
	aliceName, bobName := "alice-"+suffix, "bob-"+suffix

	alice, err := connect(ctx, wsURL)
	if err != nil {
		return failAll(0, "alice connect: %v", err)
	}
	defer alice.Close()
	bob, err := connect(ctx, wsURL)
	if err != nil {
		return failAll(0, "bob connect: %v", err)
	}
	defer bob.Close()

	var results []scenarioResult

	// --- Join ---
	if err := alice.c.Join(ctx, aliceName, room); err != nil {
		return failAll(0, "alice join: %v", err)
	}
	if err := bob.c.Join(ctx, bobName, room); err != nil {
		return failAll(0, "bob join: %v", err)
	}
	if _, err := alice.next(ctx, client.TypeUserJoined, func(e client.Envelope) bool {
		return strings.Contains(string(e.Payload), bobName)
	}); err != nil {
		return failAll(0, "alice never saw bob join: %v", err)
	}
	results = append(results, pass("Join", "room=%s", room))

	// --- Message ---
	text := "hello from the smoke test " + suffix
	if err := alice.c.Send(client.TypeMessage, text); err != nil {
		return append(results, failAll(1, "send: %v", err)...)
	}
	score, err := alice.next(ctx, client.TypeUpdateToxicityScore, nil)
	if err != nil {
		return append(results, failAll(1, "no score update: %v", err)...)
	}
	got, err := bob.nextMessage(ctx, func(m client.ChatMessage) bool { return m.Username == aliceName })
	if err != nil {
		return append(results, failAll(1, "bob never received the message: %v", err)...)
	}
	if got.Text != text || got.ID <= 0 {
		return append(results, failAll(1, "unexpected message %+v", got)...)
	}
	results = append(results, pass("Message", "id=%d score=%s", got.ID, string(score.Payload)))

	// --- Report ---
	if err := alice.c.Send(client.TypeReportMessage, map[string]any{"messageId": got.ID}); err != nil {
		return append(results, failAll(2, "self report send: %v", err)...)
	}
	if _, err := alice.next(ctx, client.TypeError, payloadContains("own messages")); err != nil {
		results = append(results, fail("Report", "self report not rejected: %v", err))
	} else if err := bob.c.Send(client.TypeReportMessage, map[string]any{"messageId": got.ID, "reason": "spam"}); err != nil {
		results = append(results, fail("Report", "send: %v", err))
	} else if _, err := bob.next(ctx, client.TypeError, payloadContains("Report submitted")); err != nil {
		results = append(results, fail("Report", "no confirmation: %v", err))
	} else {
		results = append(results, pass("Report", "message %d reported", got.ID))
	}

	// --- Clear chat ---
	if err := alice.c.Send(client.TypeClearChat, room); err != nil {
		return append(results, failAll(3, "send: %v", err)...)
	}
	if _, err := bob.next(ctx, client.TypeChatCleared, nil); err != nil {
		results = append(results, fail("Clear chat", "no chatCleared: %v", err))
	} else if notice, err := bob.nextMessage(ctx, func(m client.ChatMessage) bool { return m.Username == "system" }); err != nil {
		results = append(results, fail("Clear chat", "no system notice: %v", err))
	} else {
		results = append(results, pass("Clear chat", "%q", notice.Text))
	}

	// --- Leave ---
	if err := bob.c.Send(client.TypeLeave, bobName); err != nil {
		return append(results, fail("Leave", "send: %v", err))
	}
	if _, err := alice.next(ctx, client.TypeUserLeft, payloadContains(bobName)); err != nil {
		return append(results, fail("Leave", "alice never saw bob leave: %v", err))
	}
	return append(results, pass("Leave", ""))
}

// ---------------------------------------------------------------------------
// Scenario: toxic message (optional, depends on the moderation backend)
// ---------------------------------------------------------------------------

func scenarioToxic(ctx context.Context, wsURL string) scenarioResult {
	name := "Toxic message rewrite"
	suffix := fmt.Sprintf("%x", time.Now().UnixNano()&0xffffff)

	o, err := connect(ctx, wsURL)
	if err != nil {
		return fail(name, "connect: %v", err)
	}
	defer o.Close()
	user := "tox-" + suffix
	if err := o.c.Join(ctx, user, "e2e-tox-"+suffix); err != nil {
		return fail(name, "join: %v", err)
	}

	if err := o.c.Send(client.TypeMessage, "you are an idiot and I hate you"); err != nil {
		return fail(name, "send: %v", err)
	}
	m, err := o.nextMessage(ctx, func(m client.ChatMessage) bool { return m.Username == user })
	if err != nil {
		return fail(name, "no broadcast: %v", err)
	}
	if !m.IsModified {
		return scenarioResult{name, resultInfo, "message was not rewritten; moderation backend may be off"}
	}
	return pass(name, "rewritten to %q", m.Text)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// observer funnels every server frame a client receives into one channel so
// scenarios can wait for frames in order.
type observer struct {
	c      *client.Client
	frames chan client.Envelope
}

func connect(ctx context.Context, wsURL string) (*observer, error) {
	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	c, err := client.New(connCtx, wsURL)
	if err != nil {
		return nil, err
	}
	o := &observer{c: c, frames: make(chan client.Envelope, 256)}
	o.watch()
	return o, nil
}

func (o *observer) watch() {
	for _, t := range []string{
		client.TypeUserJoined, client.TypeUserLeft, client.TypeMessage,
		client.TypeUpdateToxicityScore, client.TypeChatCleared, client.TypeError,
	} {
		o.c.On(t, o.push)
	}
}

func (o *observer) push(e client.Envelope) {
	select {
	case o.frames <- e:
	default:
	}
}

// next discards frames until one of msgType satisfies match. Join swaps the
// error handler out, so next installs the handlers again.
func (o *observer) next(ctx context.Context, msgType string, match func(client.Envelope) bool) (client.Envelope, error) {
	o.watch()
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for {
		select {
		case e := <-o.frames:
			if e.Type == msgType && (match == nil || match(e)) {
				return e, nil
			}
		case <-waitCtx.Done():
			return client.Envelope{}, fmt.Errorf("waiting for %s: %w", msgType, waitCtx.Err())
		}
	}
}

func (o *observer) nextMessage(ctx context.Context, match func(client.ChatMessage) bool) (client.ChatMessage, error) {
	var m client.ChatMessage
	_, err := o.next(ctx, client.TypeMessage, func(e client.Envelope) bool {
		var got client.ChatMessage
		if json.Unmarshal(e.Payload, &got) != nil || !match(got) {
			return false
		}
		m = got
		return true
	})
	return m, err
}

func (o *observer) Close() { o.c.Close() }

func payloadContains(s string) func(client.Envelope) bool {
	return func(e client.Envelope) bool { return strings.Contains(string(e.Payload), s) }
}

func httpGetExpectOK(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func httpGetBody(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
