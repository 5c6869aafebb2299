package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/pershin-daniil/MeetingBoard/pkg/models"
	"github.com/pershin-daniil/MeetingBoard/pkg/notifier"
	"github.com/pershin-daniil/MeetingBoard/pkg/store"
	"github.com/sirupsen/logrus"
)

var ErrSecretNotFound = errors.New("secret not found")

type Notifier interface {
	Notify(ctx context.Context, event string, meetingID int) error
}

// Sessions hands out per-request transactions. View must not persist
// anything; Mutate persists fn's changes when it succeeds.
type Sessions interface {
	View(ctx context.Context, fn store.TxFunc) error
	Mutate(ctx context.Context, fn store.TxFunc) error
}

type Dashboard struct {
	log      *logrus.Entry
	sessions Sessions
	notifier Notifier
	validate *validator.Validate
	secrets  map[string]struct{}
	lookup   func(string) (string, bool)
	now      func() time.Time
}

// NewDashboard builds the service. Only secrets named in allowed can be read.
func NewDashboard(log *logrus.Logger, sessions Sessions, notifier Notifier, allowed []string) *Dashboard {
	secrets := make(map[string]struct{}, len(allowed))
	for _, name := range allowed {
		if name = strings.ToUpper(strings.TrimSpace(name)); name != "" {
			secrets[name] = struct{}{}
		}
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.RegisterValidation("notblank", validators.NotBlank); err != nil {
		log.Panic(err)
	}
	return &Dashboard{
		log:      log.WithField("component", "service"),
		sessions: sessions,
		notifier: notifier,
		validate: validate,
		secrets:  secrets,
		lookup:   os.LookupEnv,
		now:      time.Now,
	}
}

func (d *Dashboard) ActiveMeetings(ctx context.Context) ([]models.Meeting, error) {
	var meetings []models.Meeting
	err := d.sessions.View(ctx, func(ctx context.Context, tx *store.Tx) error {
		var err error
		meetings, err = tx.ActiveMeetings(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("err getting active meetings: %w", err)
	}
	return meetings, nil
}

func (d *Dashboard) CreateMeeting(ctx context.Context, req models.MeetingRequest) (models.Meeting, error) {
	if err := d.check(req); err != nil {
		return models.Meeting{}, err
	}
	name, _ := req.Name()
	if name == "" {
		return models.Meeting{}, fmt.Errorf("%w: roomName is required", models.ErrBadRequest)
	}
	var created models.Meeting
	err := d.sessions.Mutate(ctx, func(ctx context.Context, tx *store.Tx) error {
		meeting := models.Meeting{Name: name, DateStarted: d.now()}
		if req.Link != nil {
			meeting.Link = strings.TrimSpace(*req.Link)
		}
		meeting, err := tx.CreateMeeting(ctx, meeting)
		if err != nil {
			return err
		}
		if err = tx.AttachNames(ctx, models.KindParticipant, meeting.ID, req.Participants); err != nil {
			return err
		}
		if err = tx.AttachNames(ctx, models.KindLabel, meeting.ID, req.Labels); err != nil {
			return err
		}
		created, err = tx.GetMeeting(ctx, meeting.ID)
		return err
	})
	if err != nil {
		return models.Meeting{}, fmt.Errorf("err creating meeting: %w", persistFailure(err))
	}
	d.notify(ctx, notifier.MeetingStarted, created.ID)
	return created, nil
}

// UpdateMeeting applies the fields present in req. Participant and label
// lists are replaced only when supplied.
func (d *Dashboard) UpdateMeeting(ctx context.Context, id int, req models.MeetingRequest) (models.Meeting, error) {
	if err := d.check(req); err != nil {
		return models.Meeting{}, err
	}
	name, rename := req.Name()
	if rename && name == "" {
		return models.Meeting{}, fmt.Errorf("%w: roomName must not be empty", models.ErrBadRequest)
	}
	var updated models.Meeting
	var ended bool
	err := d.sessions.Mutate(ctx, func(ctx context.Context, tx *store.Tx) error {
		ended = false
		meeting, err := tx.GetMeeting(ctx, id)
		if err != nil {
			return err
		}
		if rename {
			meeting.Name = name
		}
		if req.Link != nil {
			meeting.Link = strings.TrimSpace(*req.Link)
		}
		if req.EndingFlag != nil && *req.EndingFlag && meeting.Active() {
			meeting.End(d.now())
			ended = true
		}
		if err = tx.UpdateMeeting(ctx, meeting); err != nil {
			return err
		}
		if req.Participants != nil {
			if err = tx.ReplaceMeetingNames(ctx, models.KindParticipant, id, req.Participants); err != nil {
				return err
			}
		}
		if req.Labels != nil {
			if err = tx.ReplaceMeetingNames(ctx, models.KindLabel, id, req.Labels); err != nil {
				return err
			}
		}
		updated, err = tx.GetMeeting(ctx, id)
		return err
	})
	if err != nil {
		return models.Meeting{}, fmt.Errorf("err updating meeting %d: %w", id, persistFailure(err))
	}
	if ended {
		d.notify(ctx, notifier.MeetingEnded, id)
	}
	return updated, nil
}

func (d *Dashboard) DeleteMeeting(ctx context.Context, id int) error {
	err := d.sessions.Mutate(ctx, func(ctx context.Context, tx *store.Tx) error {
		return tx.DeleteMeeting(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("err deleting meeting %d: %w", id, err)
	}
	d.notify(ctx, notifier.MeetingDeleted, id)
	return nil
}

func (d *Dashboard) ListNamed(ctx context.Context, kind models.Kind) ([]models.Named, error) {
	var named []models.Named
	err := d.sessions.View(ctx, func(ctx context.Context, tx *store.Tx) error {
		var err error
		named, err = tx.ListNamed(ctx, kind)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("err listing %s: %w", kind, err)
	}
	return named, nil
}

// CreateNamed returns the participant or label with the given name,
// creating it when no name matches case-insensitively.
func (d *Dashboard) CreateNamed(ctx context.Context, kind models.Kind, req models.NamedRequest) (models.Named, error) {
	name, err := d.namedName(req)
	if err != nil {
		return models.Named{}, err
	}
	if name == nil {
		return models.Named{}, fmt.Errorf("%w: name is required", models.ErrBadRequest)
	}
	var named models.Named
	err = d.sessions.Mutate(ctx, func(ctx context.Context, tx *store.Tx) error {
		var err error
		named, err = tx.FindOrCreate(ctx, kind, *name)
		return err
	})
	if err != nil {
		return models.Named{}, fmt.Errorf("err creating %s: %w", kind, persistFailure(err))
	}
	return named, nil
}

func (d *Dashboard) UpdateNamed(ctx context.Context, kind models.Kind, id int, req models.NamedRequest) (models.Named, error) {
	name, err := d.namedName(req)
	if err != nil {
		return models.Named{}, err
	}
	var named models.Named
	err = d.sessions.Mutate(ctx, func(ctx context.Context, tx *store.Tx) error {
		if name != nil {
			if err := tx.RenameNamed(ctx, kind, id, *name); err != nil {
				return err
			}
		}
		var err error
		named, err = tx.GetNamed(ctx, kind, id)
		return err
	})
	if err != nil {
		return models.Named{}, fmt.Errorf("err updating %s %d: %w", kind, id, persistFailure(err))
	}
	return named, nil
}

func (d *Dashboard) DeleteNamed(ctx context.Context, kind models.Kind, id int) error {
	err := d.sessions.Mutate(ctx, func(ctx context.Context, tx *store.Tx) error {
		return tx.DeleteNamed(ctx, kind, id)
	})
	if err != nil {
		return fmt.Errorf("err deleting %s %d: %w", kind, id, err)
	}
	return nil
}

// Secret returns the value of an allow-listed environment variable.
func (d *Dashboard) Secret(name string) (string, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return "", fmt.Errorf("%w: secret type is required", models.ErrBadRequest)
	}
	if _, ok := d.secrets[name]; !ok {
		d.log.Warnf("denied secret %q: not allowed", name)
		return "", ErrSecretNotFound
	}
	value, ok := d.lookup(name)
	if !ok || value == "" {
		return "", ErrSecretNotFound
	}
	return value, nil
}

func (d *Dashboard) check(req any) error {
	if err := d.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", models.ErrBadRequest, err)
	}
	return nil
}

func (d *Dashboard) namedName(req models.NamedRequest) (*string, error) {
	if err := d.check(req); err != nil {
		return nil, err
	}
	if req.Name == nil {
		return nil, nil
	}
	name := strings.TrimSpace(*req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name must not be empty", models.ErrBadRequest)
	}
	return &name, nil
}

// persistFailure marks a failed create or update as a persistence failure
// unless the error already carries its own answer.
func persistFailure(err error) error {
	for _, known := range []error{
		store.ErrNotFound,
		store.ErrConstraint,
		models.ErrBadRequest,
		models.ErrConcurrentModification,
		models.ErrUpstreamUnavailable,
		context.Canceled,
		context.DeadlineExceeded,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", models.ErrPersistence, err)
}

func (d *Dashboard) notify(ctx context.Context, event string, meetingID int) {
	if err := d.notifier.Notify(ctx, event, meetingID); err != nil {
		d.log.Errorf("err notifying %s for meeting %d: %v", event, meetingID, err)
	}
}
