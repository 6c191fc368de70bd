package storagesvc

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tathmini/core"
	logsvc "github.com/trezcool/tathmini/services/logger"
)

type keySet map[string]bool

func (ks keySet) StorageKeyExists(_ context.Context, key string) (bool, error) {
	if key == "tests/broken/sheet.pdf" {
		return false, errors.New("db down")
	}
	return ks[key], nil
}

func TestReaper_Run(t *testing.T) {
	s, clock := newLocalStorage(t)
	ctx := context.Background()
	conf := core.NewTestConfig()
	conf.Storage.ReaperRetention = 24 * time.Hour
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)

	put := func(key string, age time.Duration) {
		t.Helper()
		require.NoError(t, s.Put(ctx, key, strings.NewReader(key), int64(len(key)), "application/pdf"))
		modTime := clock.Now().Add(-age)
		require.NoError(t, os.Chtimes(filepath.Join(s.root, filepath.FromSlash(key)), modTime, modTime))
	}
	put("tests/t1/referenced.pdf", 48*time.Hour)
	put("tests/t1/orphan.pdf", 48*time.Hour)
	put("tests/t1/recent-orphan.pdf", time.Hour)
	put("exports/old.csv", 48*time.Hour)

	papers := keySet{"tests/t1/referenced.pdf": true}
	reaper := NewReaper(conf, s, papers, clock, logger)

	deleted, err := reaper.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	files, err := s.List(ctx, "")
	require.NoError(t, err)
	keys := make([]string, 0, len(files))
	for _, f := range files {
		keys = append(keys, f.Key)
	}
	assert.ElementsMatch(t, []string{"tests/t1/referenced.pdf", "tests/t1/recent-orphan.pdf", "exports/old.csv"}, keys)

	t.Run("repository error", func(t *testing.T) {
		put("tests/broken/sheet.pdf", 48*time.Hour)
		_, err := reaper.Run(ctx)
		assert.EqualError(t, err, "checking key tests/broken/sheet.pdf: db down")
	})
}
