package app

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"parliament/internal/ledger"
	"parliament/internal/motion"
)

type HTTPServer struct {
	service *Service
}

func NewHTTPServer(service *Service) *HTTPServer {
	return &HTTPServer{service: service}
}

func (s *HTTPServer) Handler() http.Handler {
	return http.HandlerFunc(s.handle)
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	path := strings.TrimSuffix(r.URL.Path, "/")

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodPost && path == "/api/motions" {
		s.handleCreateMotion(w, r)
		return
	}

	if r.Method == http.MethodPost && path == "/api/delegations" {
		s.handleDelegate(w, r)
		return
	}

	if strings.HasPrefix(path, "/api/motions/") {
		rest := strings.TrimPrefix(path, "/api/motions/")
		parts := strings.Split(rest, "/")
		id := parts[0]
		switch {
		case len(parts) == 1 && r.Method == http.MethodGet:
			s.handleGetMotion(w, r, id)
			return
		case len(parts) == 2 && r.Method == http.MethodPost && parts[1] == "advance":
			s.handleAdvance(w, r, id)
			return
		case len(parts) == 2 && r.Method == http.MethodPost && parts[1] == "second":
			s.handleSecond(w, r, id)
			return
		case len(parts) == 2 && r.Method == http.MethodPost && parts[1] == "debate":
			s.handleDebate(w, r, id)
			return
		case len(parts) == 2 && r.Method == http.MethodGet && parts[1] == "debate":
			s.handleDebateEntries(w, r, id)
			return
		case len(parts) == 2 && r.Method == http.MethodPost && parts[1] == "votes":
			s.handleCastBallot(w, r, id)
			return
		case len(parts) == 2 && r.Method == http.MethodGet && parts[1] == "tally":
			s.handleTally(w, r, id)
			return
		case len(parts) == 2 && r.Method == http.MethodPost && parts[1] == "decision":
			s.handleDecide(w, r, id)
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleCreateMotion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title  string `json:"title"`
		Body   string `json:"body"`
		Author string `json:"author"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_JSON", err.Error(), nil)
		return
	}
	m, err := s.service.CreateMotion(r.Context(), req.Title, req.Body, req.Author)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *HTTPServer) handleGetMotion(w http.ResponseWriter, r *http.Request, id string) {
	m, err := s.service.GetMotion(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *HTTPServer) handleAdvance(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		State string `json:"state"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_JSON", err.Error(), nil)
		return
	}
	m, err := s.service.AdvanceMotion(r.Context(), id, motion.State(req.State))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *HTTPServer) handleSecond(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Speaker string `json:"speaker"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_JSON", err.Error(), nil)
		return
	}
	entry, err := s.service.SecondMotion(r.Context(), id, req.Speaker)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *HTTPServer) handleDebate(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Speaker  string `json:"speaker"`
		Stance   string `json:"stance"`
		Argument string `json:"argument"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_JSON", err.Error(), nil)
		return
	}
	entry, err := s.service.DebateMotion(r.Context(), id, req.Speaker, req.Stance, req.Argument)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *HTTPServer) handleDebateEntries(w http.ResponseWriter, r *http.Request, id string) {
	entries, err := s.service.DebateEntries(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *HTTPServer) handleCastBallot(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Voter  string   `json:"voter"`
		Value  string   `json:"value"`
		Weight *float64 `json:"weight"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_JSON", err.Error(), nil)
		return
	}
	ballot, err := s.service.CastBallot(r.Context(), id, req.Voter, ledger.BallotValue(req.Value), req.Weight)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"motion_id": ballot.MotionID,
		"voter_id":  ballot.VoterID,
		"value":     ballot.Value,
		"weight":    ballot.Weight,
		"cast_at":   ballot.CastAt,
		"path":      ballot.Path,
	})
}

func (s *HTTPServer) handleDelegate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delegator string `json:"delegator"`
		Delegate  string `json:"delegate"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_JSON", err.Error(), nil)
		return
	}
	edge, err := s.service.Delegate(r.Context(), req.Delegator, req.Delegate)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"delegator": edge.Delegator,
		"delegate":  edge.Delegate,
	})
}

func (s *HTTPServer) handleTally(w http.ResponseWriter, r *http.Request, id string) {
	result, err := s.service.Tally(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleDecide(w http.ResponseWriter, r *http.Request, id string) {
	outcome, err := s.service.Decide(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func writeDomainError(w http.ResponseWriter, err error) {
	de := mapError(err)
	writeError(w, de.Status, de.Code, de.Message, de.Details)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return errors.New("request body required")
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body required")
		}
		return err
	}
	return nil
}
