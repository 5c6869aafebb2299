package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/pershin-daniil/MeetingBoard/internal/auth"
	"github.com/pershin-daniil/MeetingBoard/pkg/models"
	"github.com/pershin-daniil/MeetingBoard/pkg/service"
	"github.com/pershin-daniil/MeetingBoard/pkg/store"
)

const (
	dateLayout = "2006-01-02 15:04:05"

	msgBadRequest          = "Bad request"
	msgNotFound            = "Resource doesn't exist"
	msgSecretNotFound      = "Secret not found"
	msgMethodNotAllowed    = "Method Not Allowed"
	msgNoActiveMeetings    = "There are no active meetings"
	msgDeleted             = "Successfully deleted the resource"
	msgDuplicateName       = "resource with this name already exists"
	msgPersistFailed       = "failed to persist resource"
	msgUpstreamTimeout     = "Upstream service timed out"
	msgUpstreamUnavailable = "Upstream service unavailable"
	msgInternal            = "internal error"
)

type messageResponse struct {
	Message string `json:"message"`
}

type secretResponse struct {
	Secret string `json:"secret"`
}

type activeMeetingsResponse struct {
	ActiveMeetings []meetingResponse `json:"activeMeetings"`
}

type meetingResponse struct {
	ID           int      `json:"id"`
	Name         string   `json:"name"`
	DateStarted  string   `json:"date_started"`
	DateEnded    string   `json:"date_ended"`
	Link         string   `json:"link"`
	Participants []string `json:"participants"`
	Labels       []string `json:"labels"`
}

func formatMeeting(m models.Meeting) meetingResponse {
	res := meetingResponse{
		ID:           m.ID,
		Name:         m.Name,
		DateStarted:  m.DateStarted.UTC().Format(dateLayout),
		Link:         m.Link,
		Participants: m.Participants,
		Labels:       m.Labels,
	}
	if m.DateEnded != nil {
		res.DateEnded = m.DateEnded.UTC().Format(dateLayout)
	}
	if res.Participants == nil {
		res.Participants = []string{}
	}
	if res.Labels == nil {
		res.Labels = []string{}
	}
	return res
}

func formatMeetings(meetings []models.Meeting) []meetingResponse {
	res := make([]meetingResponse, 0, len(meetings))
	for _, m := range meetings {
		res = append(res, formatMeeting(m))
	}
	return res
}

func (s *Server) versionHandler(w http.ResponseWriter, _ *http.Request) {
	_, err := fmt.Fprintf(w, "%s\n", s.version)
	if err != nil {
		s.log.Warnf("err during writing to connection: %v", err)
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeResponse(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) writeResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warnf("err during encoding response: %v", err)
	}
}

// writeError maps err onto a status code and a message that is safe to show.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, message := http.StatusInternalServerError, msgInternal
	var (
		authErr       *auth.Error
		constraintErr *store.ConstraintError
		upstreamErr   *models.UpstreamError
	)
	switch {
	case errors.As(err, &authErr):
		status, message = authErr.Status, authErr.Message
	case errors.Is(err, models.ErrBadRequest):
		status, message = http.StatusBadRequest, msgBadRequest
	case errors.Is(err, store.ErrNotFound):
		status, message = http.StatusNotFound, msgNotFound
	case errors.Is(err, service.ErrSecretNotFound):
		status, message = http.StatusNotFound, msgSecretNotFound
	case errors.Is(err, models.ErrMethodNotAllowed):
		status, message = http.StatusMethodNotAllowed, msgMethodNotAllowed
	case errors.Is(err, models.ErrConcurrentModification):
		status, message = http.StatusConflict, models.ErrConcurrentModification.Error()
	case errors.As(err, &constraintErr):
		status, message = http.StatusUnprocessableEntity, msgPersistFailed
		if constraintErr.Unique {
			message = msgDuplicateName
		}
	case errors.Is(err, models.ErrPersistence):
		status, message = http.StatusUnprocessableEntity, msgPersistFailed
		s.log.Warnf("err persisting resource: %v", err)
	case errors.As(err, &upstreamErr):
		status, message = http.StatusBadGateway, msgUpstreamUnavailable
		if upstreamErr.Timeout {
			status, message = http.StatusGatewayTimeout, msgUpstreamTimeout
		}
	}
	switch {
	case status >= http.StatusInternalServerError:
		s.log.Warnf("request failed: %v", err)
	case status != http.StatusNotFound:
		s.log.Debugf("request rejected: %v", err)
	}
	s.writeResponse(w, status, messageResponse{Message: message})
}
