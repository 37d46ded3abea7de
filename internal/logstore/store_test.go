package logstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestCreateAppendRead(t *testing.T) {
	s := newTestStore(t)

	h, err := s.Create("web-1")
	require.NoError(t, err)
	require.NoError(t, h.WriteLine("starting deploy"))
	_, err = h.Write([]byte("raw output\n"))
	require.NoError(t, err)
	require.NoError(t, h.Close())

	data, err := s.ReadAll(h.Name())
	require.NoError(t, err)
	assert.Contains(t, string(data), "starting deploy")
	assert.Contains(t, string(data), "raw output")
}

func TestCreateBackToBackSameTargetDoesNotCollide(t *testing.T) {
	s := newTestStore(t)

	// Sequential jobs for one target can land within the same second, e.g. a
	// retry right after a failure or an instant preflight rejection.
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		h, err := s.Create("web-1")
		require.NoError(t, err)
		require.NoError(t, h.Close())
		assert.False(t, seen[h.Name()], "duplicate log name %s", h.Name())
		seen[h.Name()] = true
	}
}

func TestReadInterleavesWithAppend(t *testing.T) {
	s := newTestStore(t)

	h, err := s.Create("web-1")
	require.NoError(t, err)
	defer h.Close()

	_, err = h.Write([]byte("first\n"))
	require.NoError(t, err)

	data, err := s.ReadAll(h.Name())
	require.NoError(t, err)
	assert.Equal(t, "first\n", string(data))

	_, err = h.Write([]byte("second\n"))
	require.NoError(t, err)

	data, err = s.ReadAll(h.Name())
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(data))
}

func TestOpenRejectsTraversal(t *testing.T) {
	s := newTestStore(t)

	for _, name := range []string{"../etc/passwd", "a/b.log", "", "x.txt", "..\\x.log"} {
		_, err := s.Open(name)
		assert.Error(t, err, "name %q should be rejected", name)
	}
}

func TestListNewestFirst(t *testing.T) {
	s := newTestStore(t)

	// Names embed the timestamp, so lexical order is chronological.
	for _, name := range []string{
		"deploy_web-1_20240101-000000.log",
		"deploy_web-1_20240301-000000.log",
		"deploy_web-1_20240201-000000.log",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(s.dir, name), []byte("x"), 0o644))
	}

	descs, err := s.List()
	require.NoError(t, err)
	require.Len(t, descs, 3)
	assert.Equal(t, "deploy_web-1_20240301-000000.log", descs[0].Name)
	assert.Equal(t, "deploy_web-1_20240101-000000.log", descs[2].Name)
}

func TestSweepRemovesOldSkipsActive(t *testing.T) {
	s := newTestStore(t)

	old := filepath.Join(s.dir, "deploy_old_20230101-000000.log")
	active := filepath.Join(s.dir, "deploy_active_20230101-000000.log")
	fresh := filepath.Join(s.dir, "deploy_fresh_20250101-000000.log")
	for _, p := range []string{old, active, fresh} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	stale := time.Now().Add(-30 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(old, stale, stale))
	require.NoError(t, os.Chtimes(active, stale, stale))

	removed, err := s.Sweep(7*24*time.Hour, func(name string) bool {
		return name == filepath.Base(active)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(active)
	assert.NoError(t, err)
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}
