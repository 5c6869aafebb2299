// Package filesync round-trips the SQLite database through a blob store:
// every request works on a fresh local copy of the latest remote version and
// writes it back with compare-and-swap.
package filesync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pershin-daniil/MeetingBoard/pkg/blobstore"
	"github.com/pershin-daniil/MeetingBoard/pkg/metrics"
	"github.com/pershin-daniil/MeetingBoard/pkg/models"
	"github.com/pershin-daniil/MeetingBoard/pkg/store"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"
)

const defaultRetries = 3

type Config struct {
	// Path of the database file in the blob store.
	Path string
	// WorkDir receives the per-request local copies.
	WorkDir string
	// Retries is how many times a conflicting Mutate is replayed.
	Retries int
}

type Syncer struct {
	logger  *logrus.Logger
	log     *logrus.Entry
	blobs   blobstore.Store
	path    string
	workDir string
	retries int
}

// Handle is a local working copy and the remote version it was cloned from.
type Handle struct {
	LocalPath string
	Version   string
	checksum  string
}

func New(log *logrus.Logger, blobs blobstore.Store, cfg Config) (*Syncer, error) {
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if cfg.Retries < 0 {
		cfg.Retries = defaultRetries
	}
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("err creating work dir: %w", err)
	}
	return &Syncer{
		logger:  log,
		log:     log.WithField("component", "filesync"),
		blobs:   blobs,
		path:    cfg.Path,
		workDir: cfg.WorkDir,
		retries: cfg.Retries,
	}, nil
}

// Acquire clones the latest remote version into a new local file. A missing
// remote file yields an empty database and an empty version.
func (s *Syncer) Acquire(ctx context.Context) (*Handle, error) {
	blob, err := s.blobs.Get(ctx, s.path)
	switch {
	case errors.Is(err, blobstore.ErrNotFound):
		s.log.Infof("%s not found remotely, starting from an empty database", s.path)
		blob = blobstore.Blob{}
	case err != nil:
		return nil, fmt.Errorf("err fetching %s: %w", s.path, err)
	}
	local := filepath.Join(s.workDir, "meetingboard-"+uuid.NewString()+".db")
	if err = os.WriteFile(local, blob.Content, 0o600); err != nil {
		return nil, fmt.Errorf("err writing local copy: %w", err)
	}
	return &Handle{
		LocalPath: local,
		Version:   blob.Version,
		checksum:  blobstore.Checksum(blob.Content),
	}, nil
}

// Release pushes the local copy back, conditioned on the version it was
// cloned from. Unchanged copies are not pushed.
func (s *Syncer) Release(ctx context.Context, h *Handle) error {
	content, err := os.ReadFile(h.LocalPath)
	if err != nil {
		return fmt.Errorf("err reading local copy: %w", err)
	}
	if blobstore.Checksum(content) == h.checksum {
		s.log.Debugf("%s unchanged, skipping push", s.path)
		return nil
	}
	version, err := s.blobs.Put(ctx, s.path, content, h.Version)
	if err != nil {
		return fmt.Errorf("err pushing %s: %w", s.path, err)
	}
	h.Version = version
	h.checksum = blobstore.Checksum(content)
	return nil
}

// Discard removes the local copy and any journal SQLite left next to it.
func (s *Syncer) Discard(h *Handle) {
	if h == nil {
		return
	}
	for _, p := range []string{h.LocalPath, h.LocalPath + "-journal"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warnf("err removing %s: %v", p, err)
		}
	}
}

// View runs fn against a snapshot of the remote database. Nothing is pushed.
func (s *Syncer) View(ctx context.Context, fn store.TxFunc) error {
	h, err := s.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.Discard(h)
	return s.run(ctx, h, fn)
}

// Mutate runs fn on the latest remote version and pushes the result. When
// another writer got there first the whole sequence is replayed on the newer
// version, up to the configured number of retries.
func (s *Syncer) Mutate(ctx context.Context, fn store.TxFunc) error {
	for attempt := 0; ; attempt++ {
		err := s.mutateOnce(ctx, fn)
		if !errors.Is(err, blobstore.ErrConflict) {
			return err
		}
		metrics.SyncConflicts.Inc()
		if attempt >= s.retries {
			metrics.SyncExhausted.Inc()
			s.log.Warnf("giving up after %d attempts: %v", attempt+1, err)
			return fmt.Errorf("%w: %v", models.ErrConcurrentModification, err)
		}
		s.log.Infof("remote changed during write, retrying (%d/%d)", attempt+1, s.retries)
	}
}

func (s *Syncer) mutateOnce(ctx context.Context, fn store.TxFunc) error {
	h, err := s.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.Discard(h)
	if err = s.run(ctx, h, fn); err != nil {
		return err
	}
	return s.Release(ctx, h)
}

func (s *Syncer) run(ctx context.Context, h *Handle, fn store.TxFunc) error {
	db, err := store.New(ctx, s.logger, store.DriverSQLite, store.SQLiteDSN(h.LocalPath))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			s.log.Warnf("err closing local copy: %v", cerr)
		}
	}()
	if err = db.Migrate(migrate.Up); err != nil {
		return err
	}
	return db.InTx(ctx, fn)
}
