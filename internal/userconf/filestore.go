package userconf

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"giftwatch/pkg/types"
)

// FileStore keeps all user rules in a single JSON file, keyed by user ID.
// Saves use atomic file replacement (write to .tmp, then rename) so the
// file is never left in a partial state. Reload re-reads the file and
// emits a change event, which the supervisor turns into a baseline reset.
type FileStore struct {
	path string

	mu    sync.RWMutex
	rules map[int64][]types.Rule

	changes chan struct{}
}

// OpenFile loads the rule file, creating an empty store when the file does
// not exist yet.
func OpenFile(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create rules dir: %w", err)
		}
	}
	s := &FileStore{
		path:    path,
		rules:   make(map[int64][]types.Rule),
		changes: make(chan struct{}, 1),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read rules: %w", err)
	}

	var raw map[string][]types.Rule
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal rules: %w", err)
	}

	rules := make(map[int64][]types.Rule, len(raw))
	for key, rs := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user id %q in rules file", key)
		}
		rules[id] = rs
	}

	s.mu.Lock()
	s.rules = rules
	s.mu.Unlock()
	return nil
}

// save atomically persists the current rules. Caller holds no lock.
func (s *FileStore) save() error {
	s.mu.RLock()
	raw := make(map[string][]types.Rule, len(s.rules))
	for id, rs := range s.rules {
		raw[strconv.FormatInt(id, 10)] = rs
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write rules: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// SetRules replaces a user's rules, persists the file, and signals a
// filter change. An empty slice removes the user.
func (s *FileStore) SetRules(userID int64, rules []types.Rule) error {
	s.mu.Lock()
	if len(rules) == 0 {
		delete(s.rules, userID)
	} else {
		s.rules[userID] = append([]types.Rule(nil), rules...)
	}
	s.mu.Unlock()

	if err := s.save(); err != nil {
		return err
	}
	s.notify()
	return nil
}

// Reload re-reads the rule file (e.g. after an operator edited it) and
// signals a filter change.
func (s *FileStore) Reload() error {
	if err := s.load(); err != nil {
		return err
	}
	s.notify()
	return nil
}

// Changes delivers one signal per filter change. The channel has capacity
// one; coalesced signals are fine since consumers do a full reset anyway.
func (s *FileStore) Changes() <-chan struct{} {
	return s.changes
}

func (s *FileStore) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *FileStore) UsersForMarketplace(_ context.Context, mp types.Marketplace) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var users []int64
	for id, rules := range s.rules {
		for _, r := range rules {
			if r.AllowsMarketplace(mp) {
				users = append(users, id)
				break
			}
		}
	}
	return users, nil
}

func (s *FileStore) RulesForUser(_ context.Context, userID int64) ([]types.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.Rule(nil), s.rules[userID]...), nil
}
