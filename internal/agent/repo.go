package agent

import (
	"context"
	"errors"
	"log"
	"strings"
)

// Repo persists one agent per session.
type Repo interface {
	Get(ctx context.Context, sessionID string) (Agent, error)
	Save(ctx context.Context, sessionID, name string) (Agent, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// NameOrDefault reads the session's name and falls back to DefaultName
// when the session has none, the stored value is blank or the read fails.
// Failures are logged and never surfaced.
func NameOrDefault(ctx context.Context, repo Repo, sessionID string, logger *log.Logger) string {
	if repo == nil || strings.TrimSpace(sessionID) == "" {
		return DefaultName
	}
	a, err := repo.Get(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) && logger != nil {
			logger.Printf("[agent] read failed, using default name: %v", err)
		}
		return DefaultName
	}
	if name := strings.TrimSpace(a.Name); name != "" {
		return name
	}
	return DefaultName
}
