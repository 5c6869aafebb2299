package rest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pershin-daniil/MeetingBoard/pkg/models"
)

const (
	resourceMeetings     = "meetings"
	resourceParticipants = "participants"
	resourceLabels       = "labels"
	resourceSecrets      = "secrets"
)

var resourceKinds = map[string]models.Kind{
	resourceMeetings:     "",
	resourceParticipants: models.KindParticipant,
	resourceLabels:       models.KindLabel,
	resourceSecrets:      "",
}

// dispatch routes a request on /{resource} or /{resource}/{id} by verb.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	resource := chi.URLParam(r, "resource")
	rawID := chi.URLParam(r, "id")
	if _, ok := resourceKinds[resource]; !ok {
		s.writeError(w, fmt.Errorf("%w: unknown resource %q", models.ErrBadRequest, resource))
		return
	}
	if resource == resourceSecrets {
		s.dispatchSecrets(w, r, rawID)
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.dispatchGet(w, r, resource, rawID)
	case http.MethodPost:
		if rawID != "" {
			s.writeError(w, fmt.Errorf("%w: id not allowed on create", models.ErrBadRequest))
			return
		}
		s.dispatchCreate(w, r, resource)
	case http.MethodPatch:
		id, err := parseID(rawID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.dispatchUpdate(w, r, resource, id)
	case http.MethodDelete:
		id, err := parseID(rawID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.dispatchDelete(w, r, resource, id)
	default:
		s.writeError(w, models.ErrMethodNotAllowed)
	}
}

func (s *Server) dispatchSecrets(w http.ResponseWriter, r *http.Request, rawID string) {
	switch {
	case r.Method != http.MethodGet:
		s.writeError(w, models.ErrMethodNotAllowed)
		return
	case rawID != "":
		s.writeError(w, fmt.Errorf("%w: secrets are addressed by type", models.ErrBadRequest))
		return
	}
	secret, err := s.app.Secret(r.URL.Query().Get("type"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResponse(w, http.StatusOK, secretResponse{Secret: secret})
}

func (s *Server) dispatchGet(w http.ResponseWriter, r *http.Request, resource, rawID string) {
	if rawID != "" {
		s.writeError(w, models.ErrMethodNotAllowed)
		return
	}
	ctx := r.Context()
	if resource == resourceMeetings {
		meetings, err := s.app.ActiveMeetings(ctx)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if len(meetings) == 0 {
			s.writeResponse(w, http.StatusNotFound, messageResponse{Message: msgNoActiveMeetings})
			return
		}
		s.writeResponse(w, http.StatusOK, activeMeetingsResponse{ActiveMeetings: formatMeetings(meetings)})
		return
	}
	named, err := s.app.ListNamed(ctx, resourceKinds[resource])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResponse(w, http.StatusOK, named)
}

func (s *Server) dispatchCreate(w http.ResponseWriter, r *http.Request, resource string) {
	ctx := r.Context()
	if resource == resourceMeetings {
		var req models.MeetingRequest
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
		meeting, err := s.app.CreateMeeting(ctx, req)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeResponse(w, http.StatusCreated, formatMeeting(meeting))
		return
	}
	var req models.NamedRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	named, err := s.app.CreateNamed(ctx, resourceKinds[resource], req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResponse(w, http.StatusCreated, named)
}

func (s *Server) dispatchUpdate(w http.ResponseWriter, r *http.Request, resource string, id int) {
	ctx := r.Context()
	if resource == resourceMeetings {
		var req models.MeetingRequest
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
		meeting, err := s.app.UpdateMeeting(ctx, id, req)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeResponse(w, http.StatusOK, formatMeeting(meeting))
		return
	}
	var req models.NamedRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	named, err := s.app.UpdateNamed(ctx, resourceKinds[resource], id, req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResponse(w, http.StatusOK, named)
}

func (s *Server) dispatchDelete(w http.ResponseWriter, r *http.Request, resource string, id int) {
	var err error
	if resource == resourceMeetings {
		err = s.app.DeleteMeeting(r.Context(), id)
	} else {
		err = s.app.DeleteNamed(r.Context(), resourceKinds[resource], id)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResponse(w, http.StatusOK, messageResponse{Message: msgDeleted})
}

func parseID(raw string) (int, error) {
	if raw == "" {
		return 0, fmt.Errorf("%w: id is required", models.ErrBadRequest)
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", models.ErrBadRequest, raw)
	}
	return id, nil
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid body: %v", models.ErrBadRequest, err)
	}
	return nil
}
