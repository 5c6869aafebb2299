package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pershin-daniil/MeetingBoard/pkg/models"
)

func (t *Tx) ActiveMeetings(ctx context.Context) (_ []models.Meeting, err error) {
	defer func(start time.Time) { t.observe("ActiveMeetings", start, err) }(time.Now())
	var meetings []models.Meeting
	query := `
SELECT id, name, link, date_started, date_ended
FROM meetings
WHERE date_ended IS NULL
ORDER BY date_started, id;`
	if err = t.tx.SelectContext(ctx, &meetings, query); err != nil {
		return nil, fmt.Errorf("err getting active meetings: %w", err)
	}
	for i := range meetings {
		if err = t.loadNames(ctx, &meetings[i]); err != nil {
			return nil, err
		}
	}
	return meetings, nil
}

func (t *Tx) GetMeeting(ctx context.Context, id int) (_ models.Meeting, err error) {
	defer func(start time.Time) { t.observe("GetMeeting", start, err) }(time.Now())
	var meeting models.Meeting
	query := t.q(`
SELECT id, name, link, date_started, date_ended
FROM meetings
WHERE id = ?;`)
	err = t.tx.GetContext(ctx, &meeting, query, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return models.Meeting{}, ErrNotFound
	case err != nil:
		return models.Meeting{}, fmt.Errorf("err getting meeting %d: %w", id, err)
	}
	if err = t.loadNames(ctx, &meeting); err != nil {
		return models.Meeting{}, err
	}
	return meeting, nil
}

// CreateMeeting inserts the meeting row only; names are attached separately.
func (t *Tx) CreateMeeting(ctx context.Context, meeting models.Meeting) (_ models.Meeting, err error) {
	defer func(start time.Time) { t.observe("CreateMeeting", start, err) }(time.Now())
	query := t.q(`
INSERT INTO meetings (name, link, date_started, date_ended)
VALUES (?, ?, ?, ?)
RETURNING id;`)
	meeting.DateStarted = meeting.DateStarted.UTC()
	if err = t.tx.QueryRowxContext(ctx, query, meeting.Name, meeting.Link, meeting.DateStarted, meeting.DateEnded).
		Scan(&meeting.ID); err != nil {
		return models.Meeting{}, classify(fmt.Errorf("err creating meeting: %w", err))
	}
	meeting.Participants = []string{}
	meeting.Labels = []string{}
	return meeting, nil
}

func (t *Tx) UpdateMeeting(ctx context.Context, meeting models.Meeting) (err error) {
	defer func(start time.Time) { t.observe("UpdateMeeting", start, err) }(time.Now())
	query := t.q(`
UPDATE meetings
SET name = ?,
    link = ?,
    date_ended = ?
WHERE id = ?;`)
	res, err := t.tx.ExecContext(ctx, query, meeting.Name, meeting.Link, meeting.DateEnded, meeting.ID)
	if err != nil {
		return classify(fmt.Errorf("err updating meeting %d: %w", meeting.ID, err))
	}
	return expectAffected(res, meeting.ID)
}

// DeleteMeeting removes the meeting and its associations. Participants and
// labels stay, they may be referenced by other meetings.
func (t *Tx) DeleteMeeting(ctx context.Context, id int) (err error) {
	defer func(start time.Time) { t.observe("DeleteMeeting", start, err) }(time.Now())
	for _, kind := range []models.Kind{models.KindParticipant, models.KindLabel} {
		tbl := tablesFor(kind)
		if _, err = t.tx.ExecContext(ctx, t.q(`DELETE FROM `+tbl.join+` WHERE meeting_id = ?;`), id); err != nil {
			return fmt.Errorf("err detaching %s from meeting %d: %w", kind, id, err)
		}
	}
	res, err := t.tx.ExecContext(ctx, t.q(`DELETE FROM meetings WHERE id = ?;`), id)
	if err != nil {
		return fmt.Errorf("err deleting meeting %d: %w", id, err)
	}
	return expectAffected(res, id)
}

func (t *Tx) loadNames(ctx context.Context, meeting *models.Meeting) error {
	var err error
	if meeting.Participants, err = t.MeetingNames(ctx, models.KindParticipant, meeting.ID); err != nil {
		return err
	}
	if meeting.Labels, err = t.MeetingNames(ctx, models.KindLabel, meeting.ID); err != nil {
		return err
	}
	return nil
}

func expectAffected(res sql.Result, id int) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("err reading affected rows for %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
