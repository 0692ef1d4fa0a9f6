package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/hamed0406/pingstatus/internal/domain"
	"github.com/hamed0406/pingstatus/internal/notify"
	"github.com/hamed0406/pingstatus/internal/repo"
	"github.com/hamed0406/pingstatus/internal/report"
	"github.com/hamed0406/pingstatus/internal/scheduler"
)

// handleEvent takes one front-end event and answers with the message the
// front end should show.
//
// Commands: /start, /help, /jobs, /run <name>.
// Callbacks: menu_jobs, job_run:<name>.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var ev domain.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad payload"})
		return
	}
	if s.Settings.AdminID() != 0 && !s.Settings.IsAdmin(ev.AdminID) {
		s.Logger.Warn("event_rejected", zap.Int64("admin_id", ev.AdminID))
		writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden"})
		return
	}

	var (
		msg notify.Message
		err error
	)
	payload := strings.TrimSpace(ev.Payload)
	switch ev.Type {
	case domain.EventCommand:
		msg, err = s.command(r, payload)
	case domain.EventCallback:
		msg, err = s.callback(r, payload)
	default:
		err = fmt.Errorf("unknown event type %q", ev.Type)
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	s.Logger.Debug("event_handled", zap.String("type", string(ev.Type)), zap.String("payload", payload))
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) command(r *http.Request, payload string) (notify.Message, error) {
	cmd, arg, _ := strings.Cut(payload, " ")
	switch cmd {
	case "/start", "/help":
		return notify.Message{
			Title:   "pingstatus",
			Text:    "Scheduled ping jobs. /jobs lists them, /run <name> starts one now.",
			Actions: []notify.Action{{Label: "Jobs", Data: report.ActionJobsMenu}},
		}, nil
	case "/jobs":
		return s.jobsMenu(r)
	case "/run":
		return s.runFromEvent(r, strings.TrimSpace(arg)), nil
	}
	return notify.Message{}, fmt.Errorf("unknown command %q", cmd)
}

func (s *Server) callback(r *http.Request, payload string) (notify.Message, error) {
	if payload == report.ActionJobsMenu {
		return s.jobsMenu(r)
	}
	if name, ok := report.JobRunTarget(payload); ok {
		return s.runFromEvent(r, name), nil
	}
	return notify.Message{}, fmt.Errorf("unknown callback %q", payload)
}

func (s *Server) jobsMenu(r *http.Request) (notify.Message, error) {
	st, err := s.Engine.Status(r.Context())
	if err != nil {
		return notify.Message{}, err
	}
	msg := notify.Message{Title: "📋 Jobs"}
	if len(st) == 0 {
		msg.Text = "No jobs yet."
		return msg, nil
	}
	var b strings.Builder
	for _, j := range st {
		state := "next " + j.NextRunAt.UTC().Format("15:04 UTC")
		if j.Running {
			state = "running"
		}
		fmt.Fprintf(&b, "• %s → %s every %d min (%s)\n", j.Name, j.Target, j.ScheduleMinutes, state)
		msg.Actions = append(msg.Actions, notify.Action{Label: "▶️ " + j.Name, Data: report.ActionRunPrefix + j.Name})
	}
	msg.Text = strings.TrimRight(b.String(), "\n")
	return msg, nil
}

func (s *Server) runFromEvent(r *http.Request, name string) notify.Message {
	back := []notify.Action{{Label: "Jobs", Data: report.ActionJobsMenu}}
	err := s.Engine.RunNow(r.Context(), name)
	switch {
	case err == nil:
		return notify.Message{Text: fmt.Sprintf("⏳ Running %s, the report follows when it finishes.", name), Actions: back}
	case errors.Is(err, repo.ErrNotFound):
		return notify.Message{Text: fmt.Sprintf("Job %q not found.", name), Actions: back}
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		return notify.Message{Text: fmt.Sprintf("%s is already running.", name), Actions: back}
	default:
		s.Logger.Error("event_run_error", zap.String("job", name), zap.Error(err))
		return notify.Message{Text: "Could not start the job, see the server log.", Actions: back}
	}
}
