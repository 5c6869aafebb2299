package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pershin-daniil/MeetingBoard/pkg/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

type App interface {
	ActiveMeetings(ctx context.Context) ([]models.Meeting, error)
	CreateMeeting(ctx context.Context, req models.MeetingRequest) (models.Meeting, error)
	UpdateMeeting(ctx context.Context, id int, req models.MeetingRequest) (models.Meeting, error)
	DeleteMeeting(ctx context.Context, id int) error
	ListNamed(ctx context.Context, kind models.Kind) ([]models.Named, error)
	CreateNamed(ctx context.Context, kind models.Kind, req models.NamedRequest) (models.Named, error)
	UpdateNamed(ctx context.Context, kind models.Kind, id int, req models.NamedRequest) (models.Named, error)
	DeleteNamed(ctx context.Context, kind models.Kind, id int) error
	Secret(name string) (string, error)
}

type Authorizer interface {
	Authorize(ctx context.Context, header string) (*models.Claims, error)
}

type Server struct {
	log     *logrus.Entry
	app     App
	gate    Authorizer
	address string
	version string
}

func NewServer(log *logrus.Logger, app App, gate Authorizer, address, version string) *Server {
	return &Server{
		log:     log.WithField("component", "rest"),
		app:     app,
		gate:    gate,
		address: address,
		version: version,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequest)
	r.Use(middleware.Recoverer)

	r.Get("/version", s.versionHandler)
	r.Get("/health", s.healthHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.countRequest)
		r.Use(s.authorize)
		r.HandleFunc("/{resource}", s.dispatch)
		r.HandleFunc("/{resource}/{id}", s.dispatch)
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.log.Warnf("err during shutdown: %v", err)
		}
	}()
	s.log.Infof("listening on %s", s.address)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
