package logstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// CompletionMarker is the literal a deploy log trailer carries when the job
// has reached a terminal state. The streamer closes a subscription once a
// line containing it has been delivered.
const CompletionMarker = "DEPLOY_DONE"

// Descriptor describes one stored log file.
type Descriptor struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// Store keeps one append-only file per deployment job under a single
// directory. File names embed a sortable timestamp, so "most recent" and
// retention queries need no extra index.
type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Handle is the single writer for one log file. Appends go straight to the
// file descriptor, so concurrent readers always see fully-written bytes.
type Handle struct {
	f    *os.File
	name string
}

func (h *Handle) Name() string { return h.name }

func (h *Handle) Write(p []byte) (int, error) { return h.f.Write(p) }

// WriteLine appends one timestamped line.
func (h *Handle) WriteLine(line string) error {
	_, err := fmt.Fprintf(h.f, "[%s] %s\n", time.Now().Format("2006-01-02 15:04:05"), line)
	return err
}

func (h *Handle) Close() error { return h.f.Close() }

// Create opens a new log file for the given target. The name leads with a
// sortable timestamp for retention and "most recent" queries; the random
// suffix keeps back-to-back jobs for the same target within the same second
// (an immediate retry, an instant preflight failure) from colliding.
func (s *Store) Create(targetKey string) (*Handle, error) {
	name := fmt.Sprintf("deploy_%s_%s_%s.log",
		sanitize(targetKey), time.Now().Format("20060102-150405"), uuid.NewString()[:8])
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create log %s: %w", name, err)
	}
	return &Handle{f: f, name: name}, nil
}

// Open opens an existing log for reading. The name must be a bare file name
// produced by Create.
func (s *Store) Open(name string) (*os.File, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	return os.Open(filepath.Join(s.dir, name))
}

// ReadAll returns the full current content of a log.
func (s *Store) ReadAll(name string) ([]byte, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(s.dir, name))
}

// List returns descriptors for all stored logs, newest first.
func (s *Store) List() ([]Descriptor, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	out := make([]Descriptor, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Descriptor{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name > out[j].Name })
	return out, nil
}

// Sweep removes logs older than maxAge. Files for which skip returns true
// (still-running jobs) survive regardless of age.
func (s *Store) Sweep(maxAge time.Duration, skip func(name string) bool) (int, error) {
	descs, err := s.List()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, d := range descs {
		if !d.ModTime.Before(cutoff) {
			continue
		}
		if skip != nil && skip(d.Name) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, d.Name)); err != nil {
			log.Error().Err(err).Str("file", d.Name).Msg("sweep remove failed")
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Dur("maxAge", maxAge).Msg("log retention sweep")
	}
	return removed, nil
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") || !strings.HasSuffix(name, ".log") {
		return fmt.Errorf("invalid log name %q", name)
	}
	return nil
}

func sanitize(key string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(key) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
