package email

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Report carries the outcome of a finished export job. Senders format it
// into the notification body; the worker pool fills it in.
type Report struct {
	JobID     string
	Kind      string
	Rows      int64
	Submitted time.Time
	Started   time.Time
	Finished  time.Time
	Wait      time.Duration
	Total     time.Duration
	Statement time.Duration
	// Note is an optional trailing remark, e.g. why an attachment was
	// replaced by a download link.
	Note string
}

// rowsLabel names the Rows figure per job kind: batch jobs report rows
// affected by the statement, query and procedure jobs report rows exported.
func (r Report) rowsLabel() string {
	if r.Kind == "batch" {
		return "Affected Rows"
	}
	return "Rows Exported"
}

// Summary renders the report as the plain-text body section shared by all
// senders.
func (r Report) Summary() string {
	var sb strings.Builder
	sb.WriteString("Job Summary:\n----------------\n")
	fmt.Fprintf(&sb, "Job ID: %s\n", r.JobID)
	fmt.Fprintf(&sb, "Kind: %s\n", r.Kind)
	fmt.Fprintf(&sb, "%s: %d\n", r.rowsLabel(), r.Rows)
	fmt.Fprintf(&sb, "Submitted: %s\n", r.Submitted.Format("2006-01-02 03:04:05 PM"))
	fmt.Fprintf(&sb, "Started: %s (Wait: %v)\n", r.Started.Format("2006-01-02 03:04:05 PM"), r.Wait)
	fmt.Fprintf(&sb, "Finished: %s\n", r.Finished.Format("2006-01-02 03:04:05 PM"))
	fmt.Fprintf(&sb, "Total Duration: %v\n", r.Total)
	fmt.Fprintf(&sb, "Statement Execution: %v\n", r.Statement)
	if r.Note != "" {
		fmt.Fprintf(&sb, "\n%s\n", r.Note)
	}
	return sb.String()
}

// Sender delivers job-completion notifications. Implementations must not
// block the worker; delivery failures are logged, not returned.
type Sender interface {
	SendDownloadLink(to, downloadURL string, rep Report)
	SendWithAttachment(to, filename string, content []byte, rep Report)
}

// LogSender writes notifications to the structured log instead of sending
// them. It is the fallback when no SMTP host is configured.
type LogSender struct{}

func NewLogSender() *LogSender {
	return &LogSender{}
}

func (s *LogSender) SendDownloadLink(to, downloadURL string, rep Report) {
	slog.Info("notification (no SMTP host configured)",
		"to", to,
		"job_id", rep.JobID,
		"kind", rep.Kind,
		"rows", rep.Rows,
		"url", downloadURL,
	)
}

func (s *LogSender) SendWithAttachment(to, filename string, content []byte, rep Report) {
	slog.Info("notification with attachment (no SMTP host configured)",
		"to", to,
		"job_id", rep.JobID,
		"kind", rep.Kind,
		"rows", rep.Rows,
		"filename", filename,
		"size", len(content),
	)
}
