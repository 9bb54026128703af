package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MinnDevelopment/strumbot/notify"
	"github.com/MinnDevelopment/strumbot/telemetry"
	"github.com/MinnDevelopment/strumbot/watcher"
)

// readyTicks is how many poll intervals may pass without a successful tick
// before the service reports not ready.
const readyTicks = 3

// PollState is the view of the poll scheduler the handlers need.
type PollState interface {
	Statuses() []watcher.Status
	LastSuccess() time.Time
	Interval() time.Duration
}

// JournalReader reads the notification journal.
type JournalReader interface {
	Recent(ctx context.Context, channel string, limit int) ([]notify.Record, error)
	Ping(ctx context.Context) error
}

// CircuitState reports whether the notification sink is currently rejecting sends.
type CircuitState interface {
	Open() bool
}

// Handlers holds dependencies for all HTTP handlers. Journal and Circuit may be nil.
type Handlers struct {
	Poller  PollState
	Journal JournalReader
	Circuit CircuitState
	Now     func() time.Time
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// HandleHealthz reports that the process is up.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests with detailed system checks.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"poller", func() error {
			last := h.Poller.LastSuccess()
			if last.IsZero() {
				return errors.New("no successful poll yet")
			}
			if age, limit := h.now().Sub(last), readyTicks*h.Poller.Interval(); age > limit {
				return fmt.Errorf("last successful poll %s ago (limit %s)", age.Truncate(time.Second), limit)
			}
			return nil
		}},
		{"journal", func() error {
			if h.Journal == nil {
				return nil
			}
			return h.Journal.Ping(r.Context())
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type journalEntry struct {
	Channel string    `json:"channel"`
	Event   string    `json:"event"`
	Title   string    `json:"title,omitempty"`
	VideoID string    `json:"video_id,omitempty"`
	SentAt  time.Time `json:"sent_at"`
	Error   string    `json:"error,omitempty"`
}

type statusResponse struct {
	Channels      []watcher.Status `json:"channels"`
	LastPoll      time.Time        `json:"last_poll,omitzero"`
	PollInterval  string           `json:"poll_interval"`
	CircuitOpen   bool             `json:"sink_circuit_open"`
	Notifications []journalEntry   `json:"recent_notifications,omitempty"`
	JournalError  string           `json:"journal_error,omitempty"`
}

// HandleStatus returns the watcher states and, when the journal is enabled,
// the most recent notifications. ?channel= filters the journal and ?limit=
// bounds it.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Channels:     h.Poller.Statuses(),
		LastPoll:     h.Poller.LastSuccess(),
		PollInterval: h.Poller.Interval().String(),
	}
	if h.Circuit != nil {
		resp.CircuitOpen = h.Circuit.Open()
	}
	if h.Journal != nil {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		records, err := h.Journal.Recent(r.Context(), r.URL.Query().Get("channel"), limit)
		if err != nil {
			telemetry.LoggerWithCorr(r.Context()).Warn("journal read failed", slog.Any("err", err))
			resp.JournalError = err.Error()
		}
		for _, rec := range records {
			resp.Notifications = append(resp.Notifications, journalEntry{
				Channel: rec.Channel,
				Event:   string(rec.Event),
				Title:   rec.Title,
				VideoID: rec.VideoID,
				SentAt:  rec.SentAt,
				Error:   rec.Err,
			})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
