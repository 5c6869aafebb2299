package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pershin-daniil/MeetingBoard/pkg/models"
	"golang.org/x/text/cases"
)

type namedTables struct {
	table string
	join  string
	fk    string
}

// table names come from this fixed map only, so they are safe to splice into queries
var kindTables = map[models.Kind]namedTables{
	models.KindParticipant: {table: "participants", join: "meeting_participants", fk: "participant_id"},
	models.KindLabel:       {table: "labels", join: "meeting_labels", fk: "label_id"},
}

func tablesFor(kind models.Kind) namedTables {
	tbl, ok := kindTables[kind]
	if !ok {
		panic(fmt.Sprintf("unknown resource kind %q", kind))
	}
	return tbl
}

// NameKey is the case-insensitive identity of a participant or label name.
// Uniqueness is enforced on this key, so "Alice" and "alice" are one row.
func NameKey(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// FindOrCreate returns the row whose name matches case-insensitively,
// inserting it first when absent. A match leaves the database untouched.
func (t *Tx) FindOrCreate(ctx context.Context, kind models.Kind, name string) (_ models.Named, err error) {
	defer func(start time.Time) { t.observe("FindOrCreate", start, err) }(time.Now())
	tbl := tablesFor(kind)
	name = strings.TrimSpace(name)
	key := NameKey(name)
	var named models.Named
	query := t.q(fmt.Sprintf(`SELECT id, name FROM %s WHERE name_key = ?;`, tbl.table))
	err = t.tx.GetContext(ctx, &named, query, key)
	switch {
	case err == nil:
		return named, nil
	case !errors.Is(err, sql.ErrNoRows):
		return models.Named{}, fmt.Errorf("err getting %s %q: %w", kind, name, err)
	}
	insert := t.q(fmt.Sprintf(`
INSERT INTO %s (name, name_key)
VALUES (?, ?)
RETURNING id, name;`, tbl.table))
	if err = t.tx.GetContext(ctx, &named, insert, name, key); err != nil {
		return models.Named{}, classify(fmt.Errorf("err inserting %s %q: %w", kind, name, err))
	}
	return named, nil
}

func (t *Tx) GetNamed(ctx context.Context, kind models.Kind, id int) (_ models.Named, err error) {
	defer func(start time.Time) { t.observe("GetNamed", start, err) }(time.Now())
	var named models.Named
	query := t.q(fmt.Sprintf(`SELECT id, name FROM %s WHERE id = ?;`, tablesFor(kind).table))
	err = t.tx.GetContext(ctx, &named, query, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return models.Named{}, ErrNotFound
	case err != nil:
		return models.Named{}, fmt.Errorf("err getting %s %d: %w", kind, id, err)
	}
	return named, nil
}

func (t *Tx) ListNamed(ctx context.Context, kind models.Kind) (_ []models.Named, err error) {
	defer func(start time.Time) { t.observe("ListNamed", start, err) }(time.Now())
	named := make([]models.Named, 0)
	query := fmt.Sprintf(`SELECT id, name FROM %s ORDER BY name_key, id;`, tablesFor(kind).table)
	if err = t.tx.SelectContext(ctx, &named, query); err != nil {
		return nil, fmt.Errorf("err listing %s: %w", kind, err)
	}
	return named, nil
}

// RenameNamed changes the display name; renaming onto another row's name
// fails with a ConstraintError.
func (t *Tx) RenameNamed(ctx context.Context, kind models.Kind, id int, name string) (err error) {
	defer func(start time.Time) { t.observe("RenameNamed", start, err) }(time.Now())
	name = strings.TrimSpace(name)
	query := t.q(fmt.Sprintf(`
UPDATE %s
SET name = ?,
    name_key = ?
WHERE id = ?;`, tablesFor(kind).table))
	res, err := t.tx.ExecContext(ctx, query, name, NameKey(name), id)
	if err != nil {
		return classify(fmt.Errorf("err renaming %s %d: %w", kind, id, err))
	}
	return expectAffected(res, id)
}

func (t *Tx) DeleteNamed(ctx context.Context, kind models.Kind, id int) (err error) {
	defer func(start time.Time) { t.observe("DeleteNamed", start, err) }(time.Now())
	tbl := tablesFor(kind)
	if _, err = t.tx.ExecContext(ctx, t.q(fmt.Sprintf(`DELETE FROM %s WHERE %s = ?;`, tbl.join, tbl.fk)), id); err != nil {
		return fmt.Errorf("err detaching %s %d: %w", kind, id, err)
	}
	res, err := t.tx.ExecContext(ctx, t.q(fmt.Sprintf(`DELETE FROM %s WHERE id = ?;`, tbl.table)), id)
	if err != nil {
		return fmt.Errorf("err deleting %s %d: %w", kind, id, err)
	}
	return expectAffected(res, id)
}

// MeetingNames lists the names attached to a meeting in attach order.
func (t *Tx) MeetingNames(ctx context.Context, kind models.Kind, meetingID int) (_ []string, err error) {
	defer func(start time.Time) { t.observe("MeetingNames", start, err) }(time.Now())
	tbl := tablesFor(kind)
	names := make([]string, 0)
	query := t.q(fmt.Sprintf(`
SELECT n.name
FROM %s n
JOIN %s j ON j.%s = n.id
WHERE j.meeting_id = ?
ORDER BY j.position, n.id;`, tbl.table, tbl.join, tbl.fk))
	if err = t.tx.SelectContext(ctx, &names, query, meetingID); err != nil {
		return nil, fmt.Errorf("err getting %s of meeting %d: %w", kind, meetingID, err)
	}
	return names, nil
}

// ReplaceMeetingNames clears the meeting's association set of the given kind
// and attaches names in order.
func (t *Tx) ReplaceMeetingNames(ctx context.Context, kind models.Kind, meetingID int, names []string) (err error) {
	defer func(start time.Time) { t.observe("ReplaceMeetingNames", start, err) }(time.Now())
	tbl := tablesFor(kind)
	if _, err = t.tx.ExecContext(ctx, t.q(fmt.Sprintf(`DELETE FROM %s WHERE meeting_id = ?;`, tbl.join)), meetingID); err != nil {
		return fmt.Errorf("err clearing %s of meeting %d: %w", kind, meetingID, err)
	}
	return t.AttachNames(ctx, kind, meetingID, names)
}

// AttachNames appends names to the meeting, reusing rows by case-insensitive
// name. Names already attached keep their position.
func (t *Tx) AttachNames(ctx context.Context, kind models.Kind, meetingID int, names []string) (err error) {
	tbl := tablesFor(kind)
	var last int
	query := t.q(fmt.Sprintf(`SELECT COALESCE(MAX(position), -1) FROM %s WHERE meeting_id = ?;`, tbl.join))
	if err = t.tx.GetContext(ctx, &last, query, meetingID); err != nil {
		return fmt.Errorf("err getting %s positions of meeting %d: %w", kind, meetingID, err)
	}
	attach := t.q(fmt.Sprintf(`
INSERT INTO %s (meeting_id, %s, position)
VALUES (?, ?, ?)
ON CONFLICT DO NOTHING;`, tbl.join, tbl.fk))
	for i, name := range names {
		named, err := t.FindOrCreate(ctx, kind, name)
		if err != nil {
			return err
		}
		if _, err = t.tx.ExecContext(ctx, attach, meetingID, named.ID, last+1+i); err != nil {
			return classify(fmt.Errorf("err attaching %s %d to meeting %d: %w", kind, named.ID, meetingID, err))
		}
	}
	return nil
}
