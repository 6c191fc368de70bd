package storagesvc

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/trezcool/tathmini/core"
)

// ReapPrefix is the key prefix of the objects owned by papers.
const ReapPrefix = "tests/"

var reapedCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "tathmini_storage_reaped_objects_total",
	Help: "Orphan objects deleted from the file storage.",
})

type KeyChecker interface {
	StorageKeyExists(ctx context.Context, key string) (bool, error)
}

// Reaper deletes stored objects left behind by failed uploads or deleted papers.
type Reaper struct {
	storage   core.FileStorage
	papers    KeyChecker
	retention time.Duration
	clock     clockwork.Clock
	logger    core.Logger
}

func NewReaper(conf *core.Config, storage core.FileStorage, papers KeyChecker, clock clockwork.Clock, logger core.Logger) *Reaper {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Reaper{
		storage:   storage,
		papers:    papers,
		retention: conf.Storage.ReaperRetention,
		clock:     clock,
		logger:    logger,
	}
}

// Run deletes the objects under ReapPrefix older than the retention period which no paper references.
// It returns the number of deleted objects.
func (r *Reaper) Run(ctx context.Context) (int, error) {
	threshold := r.clock.Now().Add(-r.retention)
	files, err := r.storage.List(ctx, ReapPrefix)
	if err != nil {
		return 0, err
	}

	var deleted int
	for _, f := range files {
		if f.LastModified.After(threshold) {
			continue
		}
		exists, err := r.papers.StorageKeyExists(ctx, f.Key)
		if err != nil {
			return deleted, errors.Wrapf(err, "checking key %s", f.Key)
		}
		if exists {
			continue
		}
		if err := r.storage.Delete(ctx, f.Key); err != nil && !core.IsNotFound(err) {
			r.logger.Warn(fmt.Sprintf("reaper: deleting %s: %v", f.Key, err), err)
			continue
		}
		deleted++
	}

	reapedCounter.Add(float64(deleted))
	r.logger.Info(fmt.Sprintf("reaper: deleted %d orphan objects (scanned %d under %q)", deleted, len(files), ReapPrefix))
	return deleted, nil
}

// New returns the configured storage driver.
func New(conf *core.Config) (core.FileStorage, error) {
	switch conf.Storage.Driver {
	case "", "local":
		return NewLocalStorage(conf, nil)
	case "oss":
		return NewOSSStorage(conf)
	}
	return nil, errors.Errorf("unknown storage driver %q", conf.Storage.Driver)
}
