// Package notify maps run state changes to the job's notification rules and
// sends templated emails. Delivery is best effort: failures are logged and
// never propagate into the run lifecycle.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/askanna-io/askanna-core/internal/filestore"
	"github.com/askanna-io/askanna-core/internal/logqueue"
	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/rbac"
	"github.com/askanna-io/askanna-core/internal/store"
)

// Level classifies an event for recipient selection.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// EventScheduleMissed is the status name used for missed schedule fires; it
// is not a run lifecycle state.
const EventScheduleMissed = "SCHEDULE_MISSED"

// LevelForStatus maps a run status or event name to a level.
func LevelForStatus(status string) Level {
	switch status {
	case string(models.RunFailed), EventScheduleMissed:
		return LevelError
	default:
		return LevelInfo
	}
}

// logTailLines is how much of the run log the template shows.
const logTailLines = 15

// Dispatcher expands recipients and sends notifications.
type Dispatcher struct {
	store  store.Store
	files  *filestore.Service
	logs   *logqueue.Queue
	mailer Mailer
}

// NewDispatcher wires the dispatcher. logs may be nil when no log tail is
// available.
func NewDispatcher(st store.Store, files *filestore.Service, logs *logqueue.Queue, mailer Mailer) *Dispatcher {
	return &Dispatcher{store: st, files: files, logs: logs, mailer: mailer}
}

// RunStatusChanged notifies the job's recipients about a run state change.
// Errors are swallowed after logging.
func (d *Dispatcher) RunStatusChanged(ctx context.Context, run *models.Run) {
	job, err := d.store.GetJobByUUID(ctx, run.JobUUID)
	if err != nil {
		log.Warn().Err(err).Str("run", run.SUUID).Msg("Notification skipped, job not found")
		return
	}

	level := LevelForStatus(string(run.Status))
	recipients := d.expandRecipients(ctx, job, recipientEntries(job.Notifications, level), d.payloadContext(ctx, run))
	if len(recipients) == 0 {
		return
	}

	subject, body, err := d.renderRunMail(ctx, run, job)
	if err != nil {
		log.Warn().Err(err).Str("run", run.SUUID).Msg("Failed to render notification")
		return
	}
	d.send(ctx, recipients, subject, body)
}

// ScheduleMissed notifies the job's error recipients that a schedule fire was
// detected too late to run. Implements the scheduler's MissedNotifier.
func (d *Dispatcher) ScheduleMissed(ctx context.Context, schedule *models.Schedule, missedAt time.Time) error {
	job, err := d.store.GetJobByUUID(ctx, schedule.JobUUID)
	if err != nil {
		return err
	}

	recipients := d.expandRecipients(ctx, job, recipientEntries(job.Notifications, LevelError), nil)
	if len(recipients) == 0 {
		return nil
	}

	subject, body, err := renderScheduleMissedMail(job, schedule, missedAt)
	if err != nil {
		return err
	}
	d.send(ctx, recipients, subject, body)
	return nil
}

func (d *Dispatcher) send(ctx context.Context, recipients []string, subject, body string) {
	if err := d.mailer.Send(ctx, recipients, subject, body); err != nil {
		log.Warn().Err(err).Int("recipients", len(recipients)).Msg("Failed to send notification mail")
		return
	}
	log.Info().Int("recipients", len(recipients)).Str("subject", subject).Msg("Sent notification mail")
}

// recipientEntries selects the configured lists for a level. Error events go
// to both the error list and the all list.
func recipientEntries(n models.JobNotifications, level Level) []string {
	entries := append([]string{}, n.All.Email...)
	if level == LevelError {
		entries = append(entries, n.Error.Email...)
	}
	return entries
}

// expandRecipients resolves the raw recipient entries of a job into concrete
// email addresses: comma-separated lists are split, ${name} placeholders are
// expanded against project variables plus the extra context, and the group
// literals expand to workspace membership addresses. Invalid addresses are
// skipped.
func (d *Dispatcher) expandRecipients(ctx context.Context, job *models.JobDef, entries []string, extra map[string]string) []string {
	variables := map[string]string{}
	if vars, err := d.store.ProjectVariables(ctx, job.ProjectUUID); err == nil {
		for name, value := range vars {
			variables[name] = value
		}
	}
	for name, value := range extra {
		variables[name] = value
	}

	seen := map[string]struct{}{}
	var out []string
	add := func(addr string) {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			return
		}
		if _, err := mail.ParseAddress(addr); err != nil {
			log.Debug().Str("address", addr).Msg("Skipping invalid notification address")
			return
		}
		if _, dup := seen[addr]; dup {
			return
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}

	for _, entry := range entries {
		entry = expandPlaceholders(entry, variables)
		switch strings.ToLower(strings.TrimSpace(entry)) {
		case "workspace admins":
			for _, addr := range d.workspaceEmails(ctx, job, true) {
				add(addr)
			}
		case "workspace members":
			for _, addr := range d.workspaceEmails(ctx, job, false) {
				add(addr)
			}
		default:
			for _, addr := range strings.Split(entry, ",") {
				add(addr)
			}
		}
	}
	return out
}

// workspaceEmails returns the addresses of active workspace memberships,
// restricted to admins when adminsOnly is set.
func (d *Dispatcher) workspaceEmails(ctx context.Context, job *models.JobDef, adminsOnly bool) []string {
	project, err := d.store.GetProjectByUUID(ctx, job.ProjectUUID)
	if err != nil {
		return nil
	}
	memberships, err := d.store.MembershipsForWorkspace(ctx, project.WorkspaceUUID, false)
	if err != nil {
		return nil
	}

	var out []string
	for _, m := range memberships {
		if adminsOnly && m.RoleCode != rbac.CodeWorkspaceAdmin {
			continue
		}
		if m.UserUUID == nil {
			continue
		}
		user, err := d.store.GetUserByUUID(ctx, *m.UserUUID)
		if err != nil || !user.IsActive {
			continue
		}
		out = append(out, user.Email)
	}
	return out
}

// payloadContext exposes the scalar top-level fields of the run payload for
// placeholder expansion.
func (d *Dispatcher) payloadContext(ctx context.Context, run *models.Run) map[string]string {
	if run.PayloadFile == nil {
		return nil
	}
	f, err := d.store.GetFileByUUID(ctx, *run.PayloadFile)
	if err != nil {
		return nil
	}

	// The payload is small by contract; read it in full.
	r, err := d.files.Open(ctx, f)
	if err != nil {
		return nil
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}

	out := map[string]string{}
	for name, value := range payload {
		switch v := value.(type) {
		case string:
			out[name] = v
		case float64, bool:
			out[name] = fmt.Sprintf("%v", v)
		}
	}
	return out
}

// expandPlaceholders substitutes ${name} references. Unknown names expand to
// the empty string.
func expandPlaceholders(s string, variables map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		return variables[name]
	})
}
