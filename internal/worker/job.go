package worker

import (
	"context"
	"time"

	"dbstream/internal/driver"
	"dbstream/internal/exporter"

	"github.com/google/uuid"
)

type JobStatus string

const (
	StatusPending    JobStatus = "PENDING"
	StatusProcessing JobStatus = "PROCESSING"
	StatusCompleted  JobStatus = "COMPLETED"
	StatusFailed     JobStatus = "FAILED"
)

// JobKind selects how a job's statement is driven.
type JobKind string

const (
	// KindQuery streams a SELECT's rows straight into the encoder.
	KindQuery JobKind = "query"
	// KindProcedure collects a CALL's output parameters and result tables.
	KindProcedure JobKind = "procedure"
	// KindBatch executes a DML statement across a list of parameter rows.
	KindBatch JobKind = "batch"
)

// ExportJob represents a single unit of work for the export service.
type ExportJob struct {
	// ID is the unique UUID v4 for the job.
	ID string
	// Kind selects the execution path (query, procedure, batch).
	Kind JobKind
	// Statement is the SQL text: a SELECT for query jobs, a CALL for
	// procedure jobs, or a DML statement for batch jobs.
	Statement string
	// Params are the bound input values for query and procedure jobs.
	Params []any
	// CallParams declare parameter directions for procedure jobs.
	CallParams []driver.ParamInfo
	// Rows is the batch parameter list: one []any per row, or a single
	// scalar row.
	Rows []any
	// Email is the recipient address for notifications.
	Email string
	// Timestamps for job lifecycle tracking.
	Submitted time.Time
	Started   time.Time
	Finished  time.Time
	// Status tracks the current state (PENDING, PROCESSING, COMPLETED, FAILED).
	Status JobStatus
	// Error holds any error encountered during processing.
	Error error
	// Stats contains metrics like rows processed and duration.
	Stats *exporter.ExportResult
	// Key is the path where the output is stored.
	Key string
	// Format is the requested output format (csv, json, excel, pdf).
	Format string

	// Context manages the lifecycle/cancellation of the job.
	Ctx    context.Context
	Cancel context.CancelFunc

	// Done, if set, is invoked once the job reaches a terminal status.
	Done func(*ExportJob)
}

func NewExportJob(kind JobKind, statement, email, format string, timeout time.Duration) *ExportJob {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	if format == "" {
		format = "csv"
	}
	if kind == "" {
		kind = KindQuery
	}
	return &ExportJob{
		ID:        uuid.New().String(),
		Kind:      kind,
		Statement: statement,
		Email:     email,
		Format:    format,
		Submitted: time.Now(),
		Status:    StatusPending,
		Ctx:       ctx,
		Cancel:    cancel,
	}
}
