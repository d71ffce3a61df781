package agent

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileName is the agents file inside the data directory.
const FileName = "agents.json"

type fileState struct {
	Agents map[string]Agent `json:"agents"`
}

// FileRepo keeps every agent in one JSON file, rewritten on each save.
type FileRepo struct {
	mu   sync.RWMutex
	path string
	s    fileState
	now  func() time.Time
}

func NewFileRepo(dataDir string) (*FileRepo, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	r := &FileRepo{
		path: filepath.Join(dataDir, FileName),
		s:    fileState{Agents: map[string]Agent{}},
		now:  time.Now,
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRepo) load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			r.s = fileState{Agents: map[string]Agent{}}
			return nil
		}
		return err
	}

	var loaded fileState
	if err := json.Unmarshal(b, &loaded); err != nil {
		return err
	}
	if loaded.Agents == nil {
		loaded.Agents = map[string]Agent{}
	}
	for id, a := range loaded.Agents {
		a.SessionID = id
		loaded.Agents[id] = a
	}
	r.s = loaded
	return nil
}

func (r *FileRepo) saveLocked() error {
	b, err := json.MarshalIndent(r.s, "", "  ")
	if err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}

func (r *FileRepo) Get(ctx context.Context, sessionID string) (Agent, error) {
	if err := ctx.Err(); err != nil {
		return Agent{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.s.Agents[strings.TrimSpace(sessionID)]
	if !ok {
		return Agent{}, ErrNotFound
	}
	return a, nil
}

func (r *FileRepo) Save(ctx context.Context, sessionID, name string) (Agent, error) {
	if err := ctx.Err(); err != nil {
		return Agent{}, err
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Agent{}, ErrNotFound
	}
	clean, err := CleanName(name)
	if err != nil {
		return Agent{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	a, ok := r.s.Agents[sessionID]
	if !ok {
		a = Agent{SessionID: sessionID, RegisteredAt: now}
	}
	prev := a
	a.Name = clean
	a.UpdatedAt = now
	r.s.Agents[sessionID] = a
	if err := r.saveLocked(); err != nil {
		if ok {
			r.s.Agents[sessionID] = prev
		} else {
			delete(r.s.Agents, sessionID)
		}
		return Agent{}, err
	}
	return a, nil
}

func (r *FileRepo) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.s.Agents), nil
}

func (r *FileRepo) Close() error { return nil }

var _ Repo = (*FileRepo)(nil)
