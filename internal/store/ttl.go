package store

import (
	"context"
	"log/slog"
	"time"
)

const ttlWorkerInterval = 5 * time.Minute

// CleanupCallback is called with the session id after the TTL worker removes
// an idle session.
type CleanupCallback func(sessionID string)

// StartTTLWorker runs a background goroutine that periodically sweeps for
// idle sessions and deletes them.
func StartTTLWorker(ctx context.Context, s *SessionStore, ttl time.Duration, onCleanup CleanupCallback) {
	ticker := time.NewTicker(ttlWorkerInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", ttlWorkerInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				cleanupIdleSessions(s, ttl, onCleanup)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func cleanupIdleSessions(s *SessionStore, ttl time.Duration, onCleanup CleanupCallback) {
	expired := s.Expired(ttl)
	if len(expired) == 0 {
		return
	}

	slog.Info("TTL worker found idle sessions", "count", len(expired))

	for _, id := range expired {
		s.Delete(id)
		slog.Info("TTL worker removed idle session", "session_id", id)
		if onCleanup != nil {
			onCleanup(id)
		}
	}

	slog.Info("TTL worker cleanup completed", "cleaned", len(expired))
}
