package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultInterval = 5 * time.Minute
	copyPattern     = "meetingboard-*.db*"
)

// Janitor removes local database copies that outlived their request, e.g.
// after a crash between clone and cleanup.
type Janitor struct {
	log      *logrus.Entry
	dir      string
	maxAge   time.Duration
	interval time.Duration
	now      func() time.Time
}

func New(log *logrus.Logger, dir string, maxAge time.Duration) *Janitor {
	return &Janitor{
		log:      log.WithField("component", "worker"),
		dir:      dir,
		maxAge:   maxAge,
		interval: defaultInterval,
		now:      time.Now,
	}
}

// Run sweeps the work directory until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		if removed, err := j.Sweep(); err != nil {
			j.log.Warnf("err sweeping %s: %v", j.dir, err)
		} else if removed > 0 {
			j.log.Infof("removed %d stale database copies", removed)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (j *Janitor) Sweep() (int, error) {
	matches, err := filepath.Glob(filepath.Join(j.dir, copyPattern))
	if err != nil {
		return 0, fmt.Errorf("err listing work dir: %w", err)
	}
	removed := 0
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || j.now().Sub(info.ModTime()) < j.maxAge {
			continue
		}
		if err = os.Remove(path); err != nil {
			j.log.Warnf("err removing %s: %v", path, err)
			continue
		}
		removed++
	}
	return removed, nil
}
