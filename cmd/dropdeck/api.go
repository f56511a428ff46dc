package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dropdeck/dropdeck/internal/config"
	"github.com/dropdeck/dropdeck/internal/library"
	"github.com/dropdeck/dropdeck/internal/score"
	"github.com/dropdeck/dropdeck/internal/session"
	"github.com/dropdeck/dropdeck/internal/stream"
)

type apiDeps struct {
	cfg       config.Config
	lib       *library.Store
	scores    *score.Store
	sessions  *session.Manager
	broadcast *stream.Broadcaster
	webrtc    *stream.WebRTCHandler
}

func newMux(deps apiDeps) *http.ServeMux {
	mux := http.NewServeMux()

	// Audio monitor
	mux.Handle("/stream", stream.NewHTTPHandler(deps.broadcast))
	mux.Handle("/offer", deps.webrtc)

	// API endpoints
	mux.HandleFunc("/api/library/scan", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		n, err := deps.lib.Scan(deps.cfg.MusicDir)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "tracks": n})
	})

	mux.HandleFunc("/api/library", func(w http.ResponseWriter, r *http.Request) {
		tracks := deps.lib.List()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"count":  len(tracks),
			"tracks": tracks,
		})
	})

	mux.HandleFunc("/api/session/start", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		id, err := deps.sessions.Start(deps.cfg.MinTracks)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, session.ErrSessionState) {
				status = http.StatusConflict
			}
			http.Error(w, err.Error(), status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "session_id": id})
	})

	mux.HandleFunc("/api/session/stop", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		if err := deps.sessions.Stop(); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, session.ErrSessionState) {
				status = http.StatusConflict
			}
			http.Error(w, err.Error(), status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})

	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		state := deps.sessions.State()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		json.NewEncoder(w).Encode(map[string]any{
			"session":          state,
			"http_listeners":   deps.broadcast.ListenerCount(),
			"webrtc_listeners": deps.webrtc.PeerCount(),
		})
	})

	mux.HandleFunc("/api/feedback", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Verdict string `json:"verdict"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		verdict, err := score.ParseVerdict(req.Verdict)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		entry, err := deps.sessions.Feedback(verdict)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, score.ErrFeedbackMismatch) {
				status = http.StatusConflict
			}
			http.Error(w, err.Error(), status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "entry": entry})
	})

	mux.HandleFunc("/api/scores", func(w http.ResponseWriter, r *http.Request) {
		entries := deps.scores.Top(50)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"count":  len(entries),
			"scores": entries,
		})
	})

	return mux
}
