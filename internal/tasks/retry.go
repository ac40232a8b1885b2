package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/marcioluisms/hotelly2-sub000/internal/store"
)

// TerminalError marks a failure the queue must not retry: provider 4xx
// (except 429), missing vault entry, invalid template, missing config. The
// task endpoint answers 200 with terminal:true so the queue drops the task.
type TerminalError struct {
	Code string
	Err  error
}

func (e *TerminalError) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Err.Error()
	}
	return e.Code
}

func (e *TerminalError) Unwrap() error { return e.Err }

// Terminal wraps err as a permanent failure with a short stable code.
func Terminal(code string, err error) error {
	return &TerminalError{Code: code, Err: err}
}

// ErrAlreadyDone signals an idempotent no-op: the work was done by an
// earlier delivery. Responds 200 already_sent.
var ErrAlreadyDone = errors.New("already_done")

// taskResponse is the body every task endpoint answers with.
type taskResponse struct {
	OK          bool   `json:"ok"`
	AlreadySent bool   `json:"already_sent,omitempty"`
	Terminal    bool   `json:"terminal,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Respond translates a handler outcome into the queue contract:
//
//	nil             -> 200 {ok:true}
//	ErrAlreadyDone  -> 200 {ok:true, already_sent:true}
//	TerminalError   -> 200 {ok:false, terminal:true, error:code}
//	anything else   -> 500 {error:"transient_failure"}  (queue retries)
func Respond(ctx context.Context, w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(taskResponse{OK: true})
	case errors.Is(err, ErrAlreadyDone):
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(taskResponse{OK: true, AlreadySent: true})
	default:
		var terminal *TerminalError
		if errors.As(err, &terminal) {
			zerolog.Ctx(ctx).Warn().Err(err).Str("code", terminal.Code).Msg("task failed permanently")
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(taskResponse{OK: false, Terminal: true, Error: terminal.Code})
			return
		}
		if store.Classify(err) == store.KindInvariant {
			// An exclusion or check violation surfacing here means the
			// application let a conflicting write through.
			zerolog.Ctx(ctx).Error().Err(err).Msg("SEV0 invariant violation in task handler")
		} else {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("task failed transiently")
		}
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(taskResponse{OK: false, Error: "transient_failure"})
	}
}
