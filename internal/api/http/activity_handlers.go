package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/lessonsync/internal/activity"
	"github.com/mind-engage/lessonsync/internal/directory"
	"github.com/mind-engage/lessonsync/internal/resolve"
	"github.com/mind-engage/lessonsync/internal/session"
	"github.com/mind-engage/lessonsync/internal/submit"
)

// Mount wires the resolution/session/submission surface onto a router. This
// API is the boundary the presentation layer talks to; it exposes the core
// verbatim and holds no logic of its own.
func Mount(r chi.Router, mgr *session.Manager, coord *submit.Coordinator) {
	r.Post("/resolve", ResolveHandler(mgr))
	r.Post("/sessions", CommitHandler(mgr))
	r.Get("/sessions/current", CurrentSessionHandler(mgr))
	r.Delete("/sessions/current", EndSessionHandler(mgr))
	r.Post("/submissions", SubmitHandler(mgr, coord))
	r.Post("/submissions/flush", FlushHandler(coord))
}

func ResolveHandler(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Subject string `json:"subject"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		if req.Subject == "" {
			http.Error(w, "subject required", 400)
			return
		}
		d, err := mgr.Resolve(r.Context(), req.Subject)
		if err != nil {
			if errors.Is(err, resolve.ErrSuperseded) {
				// A newer navigation event took over; this caller's answer
				// no longer matters.
				http.Error(w, "superseded by a newer resolution", http.StatusConflict)
				return
			}
			http.Error(w, err.Error(), 500)
			return
		}
		_ = json.NewEncoder(w).Encode(d)
	}
}

func CommitHandler(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var d activity.Decision
		if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		sess, err := mgr.Commit(r.Context(), d)
		if err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		_ = json.NewEncoder(w).Encode(sess)
	}
}

func CurrentSessionHandler(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok, err := mgr.Current(r.Context())
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"state": "idle"})
			return
		}
		_ = json.NewEncoder(w).Encode(sess)
	}
}

func EndSessionHandler(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := mgr.End(r.Context()); err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func SubmitHandler(mgr *session.Manager, coord *submit.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Answers []activity.Answer `json:"answers"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}

		sess, ok, err := mgr.Current(r.Context())
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		if !ok {
			http.Error(w, "no active session", 409)
			return
		}

		if err := mgr.BeginSubmit(); err != nil {
			http.Error(w, err.Error(), 409)
			return
		}
		defer mgr.EndSubmit()

		out, err := coord.Submit(r.Context(), sess, req.Answers)
		if err != nil {
			switch {
			case errors.Is(err, directory.ErrInvalidAssignment):
				http.Error(w, "assignment expired", 410)
			case errors.Is(err, submit.ErrDuplicateAnswer),
				errors.Is(err, submit.ErrIncompleteAnswers):
				http.Error(w, err.Error(), 400)
			default:
				http.Error(w, err.Error(), 500)
			}
			return
		}
		if out.Deferred {
			w.WriteHeader(http.StatusAccepted)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}

func FlushHandler(coord *submit.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := coord.FlushDeferred(r.Context())
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]int{"flushed": n})
	}
}
