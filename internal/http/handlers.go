package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"voice-search-assistant/internal/app"
	"voice-search-assistant/internal/assistant"
	"voice-search-assistant/internal/observability/metrics"
	"voice-search-assistant/internal/service/recognition"
	"voice-search-assistant/internal/service/search"
)

const maxBodyBytes = 64 * 1024

type handlers struct {
	app     *app.Application
	metrics *metrics.Metrics
}

type errorResponse struct {
	Error string `json:"error"`
}

type inputRequest struct {
	Value string `json:"value"`
}

type keyRequest struct {
	Key   string `json:"key"`
	Shift bool   `json:"shift"`
}

type keyResponse struct {
	Submitted bool            `json:"submitted"`
	State     assistant.State `json:"state"`
}

type submitRequest struct {
	Query string `json:"query"`
}

type languageRequest struct {
	Language string `json:"language"`
}

type suggestionsResponse struct {
	Suggestions []search.QuerySuggestion `json:"suggestions"`
}

type languagesResponse struct {
	Languages []string `json:"languages"`
	Default   string   `json:"default"`
}

func (h *handlers) listPrompts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Cfg.Prompts)
}

func (h *handlers) listLanguages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, languagesResponse{
		Languages: recognition.Languages,
		Default:   h.app.Cfg.STT.LanguageCode,
	})
}

func (h *handlers) createSession(w http.ResponseWriter, r *http.Request) {
	var opts assistant.CreateOptions
	if !decodeBody(w, r, &opts, true) {
		return
	}
	s, err := h.app.Sessions.Create(opts)
	if err != nil {
		writeError(w, err)
		return
	}
	h.respondState(w, s, http.StatusCreated)
}

func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respondState(w, s, http.StatusOK)
}

func (h *handlers) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Sessions.Close(chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) setInput(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req inputRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	if err := s.SetInput(req.Value); err != nil {
		writeError(w, err)
		return
	}
	h.respondState(w, s, http.StatusOK)
}

func (h *handlers) pressKey(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req keyRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	submitted, err := s.HandleKey(req.Key, req.Shift)
	if err != nil {
		writeError(w, err)
		return
	}
	st, err := s.State()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, keyResponse{Submitted: submitted, State: st})
}

func (h *handlers) submit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req submitRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	if err := s.Submit(req.Query); err != nil {
		writeError(w, err)
		return
	}
	h.respondState(w, s, http.StatusAccepted)
}

func (h *handlers) clear(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Clear(); err != nil {
		writeError(w, err)
		return
	}
	h.respondState(w, s, http.StatusOK)
}

func (h *handlers) toggleMic(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.ToggleMic(); err != nil {
		writeError(w, err)
		return
	}
	h.respondState(w, s, http.StatusOK)
}

func (h *handlers) setLanguage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req languageRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	if err := s.SetLanguage(req.Language); err != nil {
		writeError(w, err)
		return
	}
	h.respondState(w, s, http.StatusOK)
}

func (h *handlers) suggestions(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	hits, err := s.Suggestions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if hits == nil {
		hits = []search.QuerySuggestion{}
	}
	writeJSON(w, http.StatusOK, suggestionsResponse{Suggestions: hits})
}

func (h *handlers) session(w http.ResponseWriter, r *http.Request) (*assistant.Session, bool) {
	s, err := h.app.Sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return s, true
}

func (h *handlers) respondState(w http.ResponseWriter, s *assistant.Session, status int) {
	st, err := s.State()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, st)
}

// decodeBody reads a JSON request body into v. An empty body is accepted
// when optional is set.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, assistant.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, assistant.ErrClosed):
		return http.StatusGone
	case errors.Is(err, recognition.ErrUnsupportedLanguage):
		return http.StatusBadRequest
	case errors.Is(err, recognition.ErrUnsupported), errors.Is(err, recognition.ErrAlreadyListening):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}
