package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pershin-daniil/MeetingBoard/pkg/logger"
	"github.com/pershin-daniil/MeetingBoard/pkg/models"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type StoreTestSuite struct {
	suite.Suite
	ctx   context.Context
	path  string
	store *Store
}

func (s *StoreTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.path = filepath.Join(s.T().TempDir(), "database.db")
	var err error
	s.store, err = New(s.ctx, logger.New("error"), DriverSQLite, SQLiteDSN(s.path))
	s.Require().NoError(err)
	s.Require().NoError(s.store.Migrate(migrate.Up))
}

func (s *StoreTestSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func (s *StoreTestSuite) createMeeting(name string, participants, labels []string) models.Meeting {
	s.T().Helper()
	var created models.Meeting
	err := s.store.InTx(s.ctx, func(ctx context.Context, tx *Tx) error {
		var err error
		created, err = tx.CreateMeeting(ctx, models.Meeting{Name: name, DateStarted: time.Now()})
		if err != nil {
			return err
		}
		if err = tx.AttachNames(ctx, models.KindParticipant, created.ID, participants); err != nil {
			return err
		}
		return tx.AttachNames(ctx, models.KindLabel, created.ID, labels)
	})
	s.Require().NoError(err)
	return created
}

func (s *StoreTestSuite) TestMigrateTwice() {
	s.Require().NoError(s.store.Migrate(migrate.Up))
}

func (s *StoreTestSuite) TestFindOrCreateIsCaseInsensitive() {
	err := s.store.InTx(s.ctx, func(ctx context.Context, tx *Tx) error {
		first, err := tx.FindOrCreate(ctx, models.KindParticipant, "Alice")
		s.Require().NoError(err)
		second, err := tx.FindOrCreate(ctx, models.KindParticipant, "  aLiCe ")
		s.Require().NoError(err)
		s.Require().Equal(first.ID, second.ID)
		s.Require().Equal("Alice", second.Name)

		all, err := tx.ListNamed(ctx, models.KindParticipant)
		s.Require().NoError(err)
		s.Require().Len(all, 1)
		return nil
	})
	s.Require().NoError(err)
}

func (s *StoreTestSuite) TestFindingExistingNameWritesNothing() {
	err := s.store.InTx(s.ctx, func(ctx context.Context, tx *Tx) error {
		_, err := tx.FindOrCreate(ctx, models.KindLabel, "urgent")
		return err
	})
	s.Require().NoError(err)
	before, err := os.ReadFile(s.path)
	s.Require().NoError(err)

	err = s.store.InTx(s.ctx, func(ctx context.Context, tx *Tx) error {
		named, err := tx.FindOrCreate(ctx, models.KindLabel, "URGENT")
		s.Require().Equal("urgent", named.Name)
		return err
	})
	s.Require().NoError(err)
	after, err := os.ReadFile(s.path)
	s.Require().NoError(err)
	s.Require().Equal(before, after)
}

func (s *StoreTestSuite) TestParticipantsSharedBetweenMeetings() {
	first := s.createMeeting("standup", []string{"A", "B"}, []string{"L1"})
	time.Sleep(time.Millisecond)
	second := s.createMeeting("retro", []string{"a"}, nil)

	err := s.store.InTx(s.ctx, func(ctx context.Context, tx *Tx) error {
		all, err := tx.ListNamed(ctx, models.KindParticipant)
		s.Require().NoError(err)
		s.Require().Len(all, 2)

		got, err := tx.GetMeeting(ctx, first.ID)
		s.Require().NoError(err)
		s.Require().Equal([]string{"A", "B"}, got.Participants)
		s.Require().Equal([]string{"L1"}, got.Labels)

		got, err = tx.GetMeeting(ctx, second.ID)
		s.Require().NoError(err)
		s.Require().Equal([]string{"A"}, got.Participants)
		s.Require().Empty(got.Labels)
		return nil
	})
	s.Require().NoError(err)
}

func (s *StoreTestSuite) TestActiveMeetings() {
	active := s.createMeeting("active", []string{"A"}, nil)
	time.Sleep(time.Millisecond)
	ended := s.createMeeting("ended", nil, nil)

	err := s.store.InTx(s.ctx, func(ctx context.Context, tx *Tx) error {
		meeting, err := tx.GetMeeting(ctx, ended.ID)
		s.Require().NoError(err)
		meeting.End(time.Now())
		s.Require().NoError(tx.UpdateMeeting(ctx, meeting))

		meetings, err := tx.ActiveMeetings(ctx)
		s.Require().NoError(err)
		s.Require().Len(meetings, 1)
		s.Require().Equal(active.ID, meetings[0].ID)
		s.Require().Equal([]string{"A"}, meetings[0].Participants)
		return nil
	})
	s.Require().NoError(err)
}

func (s *StoreTestSuite) TestReplaceMeetingNames() {
	meeting := s.createMeeting("planning", []string{"A", "B"}, nil)
	err := s.store.InTx(s.ctx, func(ctx context.Context, tx *Tx) error {
		s.Require().NoError(tx.ReplaceMeetingNames(ctx, models.KindParticipant, meeting.ID, []string{"C", "b"}))
		names, err := tx.MeetingNames(ctx, models.KindParticipant, meeting.ID)
		s.Require().NoError(err)
		s.Require().Equal([]string{"C", "B"}, names)
		return nil
	})
	s.Require().NoError(err)
}

func (s *StoreTestSuite) TestDeleteMeetingKeepsParticipants() {
	meeting := s.createMeeting("demo", []string{"A"}, []string{"L"})
	err := s.store.InTx(s.ctx, func(ctx context.Context, tx *Tx) error {
		s.Require().NoError(tx.DeleteMeeting(ctx, meeting.ID))
		_, err := tx.GetMeeting(ctx, meeting.ID)
		s.Require().ErrorIs(err, ErrNotFound)

		all, err := tx.ListNamed(ctx, models.KindParticipant)
		s.Require().NoError(err)
		s.Require().Len(all, 1)

		var joins int
		s.Require().NoError(tx.tx.GetContext(ctx, &joins, `SELECT count(*) FROM meeting_participants`))
		s.Require().Zero(joins)
		return nil
	})
	s.Require().NoError(err)
}

func (s *StoreTestSuite) TestNotFound() {
	err := s.store.InTx(s.ctx, func(ctx context.Context, tx *Tx) error {
		s.Require().ErrorIs(tx.DeleteMeeting(ctx, 42), ErrNotFound)
		s.Require().ErrorIs(tx.DeleteNamed(ctx, models.KindLabel, 42), ErrNotFound)
		s.Require().ErrorIs(tx.RenameNamed(ctx, models.KindLabel, 42, "x"), ErrNotFound)
		_, err := tx.GetNamed(ctx, models.KindParticipant, 42)
		s.Require().ErrorIs(err, ErrNotFound)
		return nil
	})
	s.Require().NoError(err)
}

func (s *StoreTestSuite) TestRenameOntoExistingNameIsConstraint() {
	err := s.store.InTx(s.ctx, func(ctx context.Context, tx *Tx) error {
		_, err := tx.FindOrCreate(ctx, models.KindLabel, "urgent")
		s.Require().NoError(err)
		other, err := tx.FindOrCreate(ctx, models.KindLabel, "later")
		s.Require().NoError(err)

		err = tx.RenameNamed(ctx, models.KindLabel, other.ID, "URGENT")
		s.Require().ErrorIs(err, ErrConstraint)
		var constraintErr *ConstraintError
		s.Require().ErrorAs(err, &constraintErr)
		s.Require().True(constraintErr.Unique)
		return nil
	})
	s.Require().NoError(err)
}

func (s *StoreTestSuite) TestFailedTransactionRollsBack() {
	err := s.store.InTx(s.ctx, func(ctx context.Context, tx *Tx) error {
		if _, err := tx.FindOrCreate(ctx, models.KindLabel, "temp"); err != nil {
			return err
		}
		return ErrNotFound
	})
	s.Require().ErrorIs(err, ErrNotFound)

	err = s.store.InTx(s.ctx, func(ctx context.Context, tx *Tx) error {
		all, err := tx.ListNamed(ctx, models.KindLabel)
		s.Require().NoError(err)
		s.Require().Empty(all)
		return nil
	})
	s.Require().NoError(err)
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func TestNameKey(t *testing.T) {
	require.Equal(t, NameKey("ÉCOLE"), NameKey("école"))
	require.Equal(t, "alice", NameKey(" Alice "))
}
