package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// ErrTargetNotFound is returned by Resolve for an unknown alias/IP.
var ErrTargetNotFound = errors.New("target not found")

// index is the immutable lookup structure swapped in whole on each load.
type index struct {
	byAlias map[string]*Target
	byIP    map[string]*Target
	all     []*Target
}

// Registry resolves logical target keys to connection parameters. Load
// replaces the entire index atomically, so concurrent Resolve calls observe
// either the old or the new set, never a partial one.
type Registry struct {
	idx atomic.Pointer[index]
}

func New() *Registry {
	r := &Registry{}
	r.idx.Store(&index{byAlias: map[string]*Target{}, byIP: map[string]*Target{}})
	return r
}

// LoadFile reads a JSON array of target objects and replaces the index.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read targets file %s: %w", path, err)
	}
	return r.Load(data)
}

// Load parses raw JSON target definitions and replaces the index.
func (r *Registry) Load(data []byte) error {
	var targets []*Target
	if err := json.Unmarshal(data, &targets); err != nil {
		return fmt.Errorf("parse targets: %w", err)
	}

	idx := &index{
		byAlias: make(map[string]*Target, len(targets)),
		byIP:    make(map[string]*Target, len(targets)),
		all:     make([]*Target, 0, len(targets)),
	}
	for _, t := range targets {
		if t.IP == "" {
			return fmt.Errorf("target %q: missing ip", t.Name)
		}
		if t.Port == 0 {
			t.Port = 22
		}
		if t.Alias != "" {
			idx.byAlias[strings.ToLower(t.Alias)] = t
		}
		idx.byIP[strings.ToLower(t.IP)] = t
		idx.all = append(idx.all, t)
		if !t.Deployable() {
			log.Warn().Str("target", t.Key()).Msg("target has no remote path, deploy disabled")
		}
	}

	r.idx.Store(idx)
	log.Info().Int("count", len(idx.all)).Msg("target registry loaded")
	return nil
}

// Resolve looks up a target by alias or IP, case-insensitively. Alias wins
// when the same key matches both.
func (r *Registry) Resolve(key string) (*Target, error) {
	idx := r.idx.Load()
	k := strings.ToLower(strings.TrimSpace(key))
	if t, ok := idx.byAlias[k]; ok {
		return t, nil
	}
	if t, ok := idx.byIP[k]; ok {
		return t, nil
	}
	return nil, ErrTargetNotFound
}

// List returns all registered targets in load order.
func (r *Registry) List() []*Target {
	idx := r.idx.Load()
	out := make([]*Target, len(idx.all))
	copy(out, idx.all)
	return out
}
