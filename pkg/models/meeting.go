package models

import (
	"strings"
	"time"
)

type MeetingRequest struct {
	RoomName      *string  `json:"roomName" validate:"omitempty,max=80"`
	RoomNameSnake *string  `json:"room_name" validate:"omitempty,max=80"`
	Link          *string  `json:"link" validate:"omitempty,max=500"`
	EndingFlag    *bool    `json:"endingFlag"`
	Participants  []string `json:"participants" validate:"omitempty,dive,notblank,max=80"`
	Labels        []string `json:"labels" validate:"omitempty,dive,notblank,max=80"`
}

// Name returns the room name from either spelling of the key, roomName first.
func (r MeetingRequest) Name() (string, bool) {
	switch {
	case r.RoomName != nil:
		return strings.TrimSpace(*r.RoomName), true
	case r.RoomNameSnake != nil:
		return strings.TrimSpace(*r.RoomNameSnake), true
	}
	return "", false
}

type Meeting struct {
	ID           int        `json:"id" db:"id"`
	Name         string     `json:"name" db:"name"`
	Link         string     `json:"link" db:"link"`
	DateStarted  time.Time  `json:"dateStarted" db:"date_started"`
	DateEnded    *time.Time `json:"dateEnded" db:"date_ended"`
	Participants []string   `json:"participants" db:"-"`
	Labels       []string   `json:"labels" db:"-"`
}

// Active reports whether the meeting has not ended yet.
func (m Meeting) Active() bool {
	return m.DateEnded == nil
}

// End stamps the meeting as ended at t, never earlier than its start.
func (m *Meeting) End(t time.Time) {
	t = t.UTC()
	if t.Before(m.DateStarted) {
		t = m.DateStarted
	}
	m.DateEnded = &t
}
