package ws

import (
	"time"
)

// HeartbeatConfig holds heartbeat tuning parameters.
type HeartbeatConfig struct {
	Interval time.Duration // how often to ping (default: 30s)
	Timeout  time.Duration // grace period after Interval before eviction (default: 10s)
}

// DefaultHeartbeatConfig returns sensible defaults for heartbeat monitoring.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
	}
}

// startHeartbeat begins a background goroutine that periodically sends
// WebSocket ping frames to all connections and evicts those that have gone
// stale (no frame received within Interval + Timeout). The goroutine exits
// when the server's done channel is closed.
func (s *Server) startHeartbeat(config HeartbeatConfig) {
	if config.Interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				s.checkConnections(config, time.Now())
			}
		}
	}()
}

// checkConnections evicts connections whose last frame is older than
// Interval + Timeout and pings the rest. Browsers answer the ping with a
// pong frame automatically, which refreshes LastSeen.
func (s *Server) checkConnections(config HeartbeatConfig, now time.Time) {
	deadline := config.Interval + config.Timeout

	for _, c := range s.conns.All() {
		if idle := now.Sub(c.LastSeen()); idle > deadline {
			c.Logger().Info().
				Dur("idle", idle.Round(time.Second)).
				Msg("heartbeat timeout, evicting")
			s.RemoveConnection(c)
			continue
		}

		if err := c.WritePing(); err != nil {
			c.Logger().Debug().Err(err).Msg("heartbeat ping failed, evicting")
			s.RemoveConnection(c)
		}
	}
}
