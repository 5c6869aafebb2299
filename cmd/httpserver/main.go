package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pershin-daniil/MeetingBoard/internal/auth"
	"github.com/pershin-daniil/MeetingBoard/internal/config"
	"github.com/pershin-daniil/MeetingBoard/internal/rest"
	"github.com/pershin-daniil/MeetingBoard/pkg/blobstore"
	"github.com/pershin-daniil/MeetingBoard/pkg/filesync"
	"github.com/pershin-daniil/MeetingBoard/pkg/logger"
	"github.com/pershin-daniil/MeetingBoard/pkg/notifier"
	"github.com/pershin-daniil/MeetingBoard/pkg/service"
	"github.com/pershin-daniil/MeetingBoard/pkg/store"
	"github.com/pershin-daniil/MeetingBoard/pkg/worker"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"
)

const (
	version      = "0.1.0"
	staleCopyAge = time.Hour
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info").Fatal(err)
	}
	log := logger.New(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
		<-sigCh
		log.Info("Received signal, shutting down...")
		cancel()
	}()

	var wg sync.WaitGroup
	var sessions service.Sessions
	if cfg.StoreBackend == config.BackendPostgres {
		pg, err := store.New(ctx, log, store.DriverPostgres, cfg.PGDSN)
		if err != nil {
			log.Panic(err)
		}
		defer func() {
			if err := pg.Close(); err != nil {
				log.Warnf("err closing store: %v", err)
			}
		}()
		if err = pg.Migrate(migrate.Up); err != nil {
			log.Panic(err)
		}
		sessions = pg
	} else {
		blobs, path, err := newBlobStore(ctx, log, cfg)
		if err != nil {
			log.Panic(err)
		}
		syncer, err := filesync.New(log, blobstore.Instrument(cfg.StoreBackend, blobs), filesync.Config{
			Path:    path,
			WorkDir: cfg.WorkDir,
			Retries: cfg.SyncRetries,
		})
		if err != nil {
			log.Panic(err)
		}
		sessions = syncer
		janitor := worker.New(log, cfg.WorkDir, staleCopyAge)
		wg.Add(1)
		go func() {
			defer wg.Done()
			janitor.Run(ctx)
		}()
	}

	keys := auth.NewJWKSResolver(log, cfg.JWKSURL, cfg.JWKSCacheTTL, cfg.UpstreamTimeout)
	verifier := auth.NewVerifier(keys, cfg.APIAudience, auth.Issuer(cfg.Auth0Domain))
	gate := auth.NewGate(log, verifier, cfg.Permission)

	app := service.NewDashboard(log, sessions, notifier.New(log), cfg.SecretsAllowlist)
	server := rest.NewServer(log, app, gate, cfg.HTTPAddress, version)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Run(ctx); err != nil {
			log.Panic(err)
		}
	}()
	wg.Wait()
	log.Info("Server stopped")
}

// newBlobStore returns the configured backend and the database path inside it.
func newBlobStore(ctx context.Context, log *logrus.Logger, cfg *config.Config) (blobstore.Store, string, error) {
	switch cfg.StoreBackend {
	case config.BackendS3:
		s3, err := blobstore.NewS3(ctx, log, blobstore.S3Config{
			Bucket:  cfg.S3Bucket,
			Region:  cfg.S3Region,
			Timeout: cfg.UpstreamTimeout,
		})
		return s3, cfg.DatabasePath, err
	case config.BackendLocal:
		local, err := blobstore.NewLocal(filepath.Dir(cfg.DatabasePath))
		return local, filepath.Base(cfg.DatabasePath), err
	default:
		gh, err := blobstore.NewGitHub(log, blobstore.GitHubConfig{
			APIURL:     cfg.GitHubAPIURL,
			Token:      cfg.GitHubToken,
			Repository: cfg.GitHubRepository,
			Branch:     cfg.GitHubBranch,
			Timeout:    cfg.UpstreamTimeout,
		})
		return gh, cfg.DatabasePath, err
	}
}
