package notify

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/askanna-io/askanna-core/internal/models"
)

var placeholderPattern = regexp.MustCompile(`\$\{[A-Za-z0-9_.-]+\}`)

const timestampFormat = "2006-01-02 15:04:05 MST"

var runMailTemplate = template.Must(template.New("run").Parse(
	`Run {{.RunName}} of job {{.JobName}} is {{.Status}}.

Run:      {{.RunSUUID}}
Trigger:  {{.Trigger}}
{{- if .StartedAt}}
Started:  {{.StartedAt}}
{{- end}}
{{- if .FinishedAt}}
Finished: {{.FinishedAt}}
{{- end}}
{{- if .Duration}}
Duration: {{.Duration}}
{{- end}}
{{- if .LogTail}}

Last log lines:
{{range .LogTail}}  {{.}}
{{end}}
{{- end}}`))

var scheduleMissedTemplate = template.Must(template.New("missed").Parse(
	`The schedule of job {{.JobName}} missed its fire time.

Schedule:   {{.Definition}}
Missed at:  {{.MissedAt}}

The scheduler noticed the fire time too late to still start the run. The
schedule stays active and fires again at its next regular time.`))

type runMailContext struct {
	RunName    string
	RunSUUID   string
	JobName    string
	Status     string
	Trigger    string
	StartedAt  string
	FinishedAt string
	Duration   string
	LogTail    []string
}

// renderRunMail builds the subject and body for a run state notification.
// Timestamps render in the job's timezone.
func (d *Dispatcher) renderRunMail(ctx context.Context, run *models.Run, job *models.JobDef) (string, string, error) {
	loc := jobLocation(job)

	mailCtx := runMailContext{
		RunName:  run.Name,
		RunSUUID: run.SUUID,
		JobName:  job.Name,
		Status:   string(run.Status),
		Trigger:  string(run.Trigger),
	}
	if mailCtx.RunName == "" {
		mailCtx.RunName = run.SUUID
	}
	if run.StartedAt != nil {
		mailCtx.StartedAt = run.StartedAt.In(loc).Format(timestampFormat)
	}
	if run.FinishedAt != nil {
		mailCtx.FinishedAt = run.FinishedAt.In(loc).Format(timestampFormat)
	}
	if run.Duration != nil {
		mailCtx.Duration = HumanizeDuration(time.Duration(*run.Duration) * time.Second)
	}
	mailCtx.LogTail = d.logTail(ctx, run)

	var body strings.Builder
	if err := runMailTemplate.Execute(&body, mailCtx); err != nil {
		return "", "", err
	}
	subject := fmt.Sprintf("[%s] Run %s %s", job.Name, mailCtx.RunName, strings.ToLower(string(run.Status)))
	return subject, body.String(), nil
}

func (d *Dispatcher) logTail(ctx context.Context, run *models.Run) []string {
	if d.logs == nil {
		return nil
	}
	entries, err := d.logs.Tail(ctx, run.SUUID, logTailLines)
	if err != nil {
		return nil
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Text)
	}
	return lines
}

func renderScheduleMissedMail(job *models.JobDef, schedule *models.Schedule, missedAt time.Time) (string, string, error) {
	var body strings.Builder
	err := scheduleMissedTemplate.Execute(&body, map[string]string{
		"JobName":    job.Name,
		"Definition": schedule.RawDefinition,
		"MissedAt":   missedAt.In(jobLocation(job)).Format(timestampFormat),
	})
	if err != nil {
		return "", "", err
	}
	subject := fmt.Sprintf("[%s] Missed schedule", job.Name)
	return subject, body.String(), nil
}

// jobLocation resolves the job's declared timezone, falling back to UTC.
func jobLocation(job *models.JobDef) *time.Location {
	if job.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(job.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// HumanizeDuration renders a duration as "1 hour, 5 minutes, 3 seconds",
// dropping zero components.
func HumanizeDuration(d time.Duration) string {
	if d < time.Second {
		return "0 seconds"
	}
	total := int(d.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	var parts []string
	appendPart := func(n int, unit string) {
		if n == 0 {
			return
		}
		if n == 1 {
			parts = append(parts, fmt.Sprintf("1 %s", unit))
			return
		}
		parts = append(parts, fmt.Sprintf("%d %ss", n, unit))
	}
	appendPart(hours, "hour")
	appendPart(minutes, "minute")
	appendPart(seconds, "second")
	return strings.Join(parts, ", ")
}
