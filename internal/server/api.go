package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/dictaflow/dictaflow/internal/session"
	"github.com/dictaflow/dictaflow/internal/storage"
	"github.com/dictaflow/dictaflow/internal/transcript"
)

var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

type SessionStore interface {
	GetSessionsByDate(date string) ([]storage.Session, error)
	GetSession(id string) (storage.Session, error)
	GetEntries(sessionID string) ([]transcript.Entry, error)
	GetDates() ([]string, error)
}

// SpeakerControls exposes the coordinator's live operations to the API
// layer without coupling routes to the session package's concrete types.
type SpeakerControls struct {
	Start    func(ctx context.Context, slot int) error
	Stop     func(ctx context.Context, slot int) error
	Extend   func(slot int, d time.Duration) error
	States   func() map[int]session.State
	Warnings func() []string
}

func registerAPIRoutes(mux *http.ServeMux, store SessionStore, controls SpeakerControls) {
	mux.HandleFunc("GET /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		date := r.URL.Query().Get("date")
		if date == "" {
			date = time.Now().UTC().Format("2006-01-02")
		}

		sessions, err := store.GetSessionsByDate(date)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list sessions: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, sessions)
	})

	mux.HandleFunc("GET /api/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusForbidden, "invalid session id")
			return
		}

		sessionData, err := store.GetSession(sessionID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, sql.ErrNoRows) {
				status = http.StatusNotFound
			}
			writeJSONError(w, status, fmt.Sprintf("get session: %v", err))
			return
		}

		entries, err := store.GetEntries(sessionID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get session entries: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"session": sessionData,
			"entries": entries,
		})
	})

	mux.HandleFunc("GET /api/dates", func(w http.ResponseWriter, r *http.Request) {
		dates, err := store.GetDates()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get dates: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, dates)
	})

	mux.HandleFunc("POST /api/speakers/{slot}/start", func(w http.ResponseWriter, r *http.Request) {
		slot, ok := parseSlot(w, r)
		if !ok {
			return
		}
		if controls.Start == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "recording not available")
			return
		}
		if err := controls.Start(r.Context(), slot); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, session.ErrSessionActive) || errors.Is(err, session.ErrOtherSpeakerActive) {
				status = http.StatusConflict
			}
			writeJSONError(w, status, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /api/speakers/{slot}/stop", func(w http.ResponseWriter, r *http.Request) {
		slot, ok := parseSlot(w, r)
		if !ok {
			return
		}
		if controls.Stop == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "recording not available")
			return
		}
		if err := controls.Stop(r.Context(), slot); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, session.ErrNoSession) {
				status = http.StatusConflict
			}
			writeJSONError(w, status, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /api/speakers/{slot}/extend", func(w http.ResponseWriter, r *http.Request) {
		slot, ok := parseSlot(w, r)
		if !ok {
			return
		}
		if controls.Extend == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "recording not available")
			return
		}

		var body struct {
			Minutes int `json:"minutes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Minutes <= 0 {
			writeJSONError(w, http.StatusBadRequest, "minutes must be a positive integer")
			return
		}
		if err := controls.Extend(slot, time.Duration(body.Minutes)*time.Minute); err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		states := map[int]session.State{}
		if controls.States != nil {
			states = controls.States()
		}
		var warnings []string
		if controls.Warnings != nil {
			warnings = controls.Warnings()
		}
		if warnings == nil {
			warnings = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"speakers": states, "warnings": warnings})
	})
}

func parseSlot(w http.ResponseWriter, r *http.Request) (int, bool) {
	slot, err := strconv.Atoi(r.PathValue("slot"))
	if err != nil || slot < 1 || slot > 2 {
		writeJSONError(w, http.StatusBadRequest, "slot must be 1 or 2")
		return 0, false
	}
	return slot, true
}

func validSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
