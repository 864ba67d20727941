package release

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"easydep/internal/apperr"
	"easydep/internal/config"
)

func TestEnumerateSortsDescendingAndSkipsNonNumeric(t *testing.T) {
	base := t.TempDir()
	p := config.Profile{Target: "web"}
	releasesDir := filepath.Join(base, "releases", "web")
	require.NoError(t, os.MkdirAll(filepath.Join(releasesDir, "100"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(releasesDir, "102"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(releasesDir, "101"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(releasesDir, "not-a-number"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(releasesDir, "103"), []byte("file, not dir"), 0o644))

	s := New(base)
	entries, err := s.Enumerate(p)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, []uint64{102, 101, 100}, []uint64{entries[0].ID, entries[1].ID, entries[2].ID})
}

func TestEnumerateMissingDirIsStorageMissing(t *testing.T) {
	base := t.TempDir()
	p := config.Profile{Target: "web"}
	s := New(base)
	_, err := s.Enumerate(p)
	require.Error(t, err)
	require.Equal(t, apperr.CodeStorageMissing, apperr.CodeOf(err))
}

func TestPruneOldestRespectsRetentionFloor(t *testing.T) {
	entries := []Entry{{ID: 100, Path: "/x/100"}, {ID: 101, Path: "/x/101"}}
	_, removed := PruneOldest(entries, 1)
	require.False(t, removed, "retained_releases=1 must never prune")
}

func TestPruneOldestRemovesSmallestID(t *testing.T) {
	base := t.TempDir()
	dirs := []uint64{100, 101, 102}
	entries := make([]Entry, 0, len(dirs))
	for _, id := range dirs {
		p := filepath.Join(base, "releases", "web", itoa(id))
		require.NoError(t, os.MkdirAll(p, 0o755))
		entries = append(entries, Entry{ID: id, Path: p})
	}

	removedID, removed := PruneOldest(entries, 2)
	require.True(t, removed)
	require.Equal(t, uint64(100), removedID)

	for _, e := range entries[1:] {
		_, err := os.Stat(e.Path)
		require.NoError(t, err, "newest two entries must survive")
	}
	_, err := os.Stat(filepath.Join(base, "releases", "web", "100"))
	require.True(t, os.IsNotExist(err))
}

func TestReplaceCurrentSymlinkSwapsAtomically(t *testing.T) {
	base := t.TempDir()
	p := config.Profile{Target: "web"}
	s := New(base)

	first := filepath.Join(base, "releases", "web", "100")
	second := filepath.Join(base, "releases", "web", "101")
	require.NoError(t, os.MkdirAll(first, 0o755))
	require.NoError(t, os.MkdirAll(second, 0o755))

	require.NoError(t, s.ReplaceCurrentSymlink(p, first))
	target, err := os.Readlink(s.CurrentDir(p))
	require.NoError(t, err)
	require.Equal(t, first, target)

	require.NoError(t, s.ReplaceCurrentSymlink(p, second))
	target, err = os.Readlink(s.CurrentDir(p))
	require.NoError(t, err)
	require.Equal(t, second, target)
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
