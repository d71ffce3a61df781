package agent

import (
	"errors"
	"strings"
	"time"
)

// DefaultName is shown whenever no usable name is stored.
const DefaultName = "Agent"

var (
	ErrEmptyName = errors.New("name is required")
	ErrNotFound  = errors.New("agent not found")
)

// Agent is the display name registered by one browser session.
type Agent struct {
	SessionID    string    `json:"-"`
	Name         string    `json:"name"`
	RegisteredAt time.Time `json:"registeredAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CleanName trims the input. Any non-blank name is accepted as typed.
func CleanName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", ErrEmptyName
	}
	return name, nil
}
