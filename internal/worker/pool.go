package worker

import (
	"compress/gzip"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"dbstream/internal/batch"
	"dbstream/internal/driver"
	"dbstream/internal/email"
	"dbstream/internal/exporter"
	"dbstream/internal/proc"
	"dbstream/internal/storage"

	"golang.org/x/sync/semaphore"
)

// Pool manages concurrent export jobs and limits database load.
// It implements a worker pool pattern with a separate semaphore for DB connections,
// allowing for fine-grained control over resource usage.
type Pool struct {
	// jobQueue allows for buffering incoming requests before workers pick them up.
	jobQueue chan *ExportJob
	workers  int
	// dbSem restricts the number of concurrent statements against the database.
	dbSem *semaphore.Weighted
	wg    sync.WaitGroup
	quit  chan struct{}

	drv          driver.DB
	storage      storage.Provider
	emailer      email.Sender
	lobChunkSize int64
	useGzip      bool
	attachFile   bool
}

// NewPool initializes a worker pool with the specified configuration.
// It does not start the workers; call Start() to begin processing.
func NewPool(workers int, maxDBConcurrency int64, drv driver.DB, store storage.Provider, emailer email.Sender, lobChunkSize int64, useGzip, attachFile bool) *Pool {
	return &Pool{
		jobQueue:     make(chan *ExportJob, 100), // Bounded buffer to prevent infinite memory growth
		workers:      workers,
		dbSem:        semaphore.NewWeighted(maxDBConcurrency),
		quit:         make(chan struct{}),
		drv:          drv,
		storage:      store,
		emailer:      emailer,
		lobChunkSize: lobChunkSize,
		useGzip:      useGzip,
		attachFile:   attachFile,
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.workerLoop(i)
	}
	slog.Info("Worker pool started", "workers", p.workers)
}

func (p *Pool) Submit(job *ExportJob) bool {
	select {
	case p.jobQueue <- job:
		return true
	case <-p.quit:
		return false
	default:
		// Queue full
		return false
	}
}

// Run processes a job synchronously on the calling goroutine. One-shot
// invocations use it instead of Submit/Start.
func (p *Pool) Run(job *ExportJob) {
	p.processJob(0, job)
}

// Stop initiates graceful shutdown
func (p *Pool) Stop() {
	close(p.quit)
	p.wg.Wait()
	slog.Info("Worker pool stopped")
}

func (p *Pool) workerLoop(id int) {
	defer p.wg.Done()
	slog.Debug("Worker started", "worker_id", id)

	for {
		select {
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			p.processJob(id, job)
		case <-p.quit:
			return
		}
	}
}

func (p *Pool) processJob(workerID int, job *ExportJob) {
	slog.Info("Processing job", "worker_id", workerID, "job_id", job.ID, "kind", job.Kind)

	// Release the job context's timeout timer no matter how the job ends.
	defer job.Cancel()

	job.Started = time.Now()
	job.Status = StatusProcessing
	waitTime := job.Started.Sub(job.Submitted)

	// 1. Acquire DB Semaphore
	if err := p.dbSem.Acquire(job.Ctx, 1); err != nil {
		p.failJob(job, fmt.Errorf("failed to acquire db connection: %w", err))
		return
	}

	err := p.executeExport(job)
	p.dbSem.Release(1)

	if err != nil {
		p.failJob(job, err)
		return
	}

	job.Status = StatusCompleted
	job.Finished = time.Now()
	totalDuration := job.Finished.Sub(job.Started)

	slog.Info("Job completed", "job_id", job.ID, "rows", job.Stats.RowsProcessed)

	rep := email.Report{
		JobID:     job.ID,
		Kind:      string(job.Kind),
		Rows:      job.Stats.RowsProcessed,
		Submitted: job.Submitted,
		Started:   job.Started,
		Finished:  job.Finished,
		Wait:      waitTime,
		Total:     totalDuration,
		Statement: job.Stats.Duration,
	}

	const MaxAttachmentSize = 25 * 1024 * 1024 // 25MB

	if p.attachFile {
		fileContent, err := func() ([]byte, error) {
			reader, err := p.storage.OpenFile(job.Ctx, job.Key)
			if err != nil {
				return nil, err
			}
			defer reader.Close()

			limitedReader := io.LimitReader(reader, MaxAttachmentSize+1)
			content, err := io.ReadAll(limitedReader)
			if err != nil {
				return nil, err
			}

			if len(content) > MaxAttachmentSize {
				return nil, fmt.Errorf("file exceeds max attachment size (%d bytes)", MaxAttachmentSize)
			}
			return content, nil
		}()

		if err != nil {
			slog.Warn("Skipping attachment (too large or error)", "key", job.Key, "error", err)
			rep.Note = fmt.Sprintf("Attachment skipped: %v", err)
			p.emailer.SendDownloadLink(job.Email, p.storage.GetDownloadURL(job.Key), rep)
		} else {
			p.emailer.SendWithAttachment(job.Email, job.Key, fileContent, rep)
		}

	} else {
		p.emailer.SendDownloadLink(job.Email, p.storage.GetDownloadURL(job.Key), rep)
	}

	if job.Done != nil {
		job.Done(job)
	}
}

func (p *Pool) failJob(job *ExportJob, err error) {
	job.Status = StatusFailed
	job.Error = err
	job.Finished = time.Now()
	slog.Error("Job failed", "job_id", job.ID, "error", err)

	if job.Done != nil {
		job.Done(job)
	}
}

func (p *Pool) executeExport(job *ExportJob) error {
	// Setup Pipeline
	ext := job.Format
	if ext == "" {
		ext = "csv"
	}
	if ext == "excel" {
		ext = "xlsx"
	}

	if p.useGzip {
		job.Key = fmt.Sprintf("exports/%s.%s.gz", job.ID, ext)
	} else {
		job.Key = fmt.Sprintf("exports/%s.%s", job.ID, ext)
	}

	// Start Storage Upload in background (it reads from pipe)
	storageWriter, errChan := p.storage.StreamToFile(job.Ctx, job.Key)
	if storageWriter == nil {
		return <-errChan
	}

	// Prepare Output Writer (maybe wrapped in Gzip)
	var finalWriter io.WriteCloser
	if p.useGzip {
		finalWriter = gzip.NewWriter(storageWriter)
	} else {
		finalWriter = storageWriter
	}

	// Choose Encoder
	var encoder exporter.RowEncoder
	switch job.Format {
	case "json":
		encoder = exporter.NewJSONEncoder(finalWriter)
	case "excel":
		encoder = exporter.NewExcelEncoder(finalWriter)
	case "pdf":
		encoder = exporter.NewPDFEncoder(finalWriter)
	default:
		encoder = exporter.NewCSVEncoder(finalWriter)
	}

	// Run the statement (DB -> Encoder -> [Gzip?] -> Pipe -> Storage)
	stats, exportErr := p.runStatement(job, encoder)

	// Close Encoder (some formats need to finish writing/flushing)
	encoderCloseErr := encoder.Close()

	// Close Writers
	// If Gzip, close it first to flush footer
	var outputCloseErr error
	if gw, ok := finalWriter.(*gzip.Writer); ok {
		outputCloseErr = gw.Close()
	}

	// Then close the underlying storage writer (the pipe)
	storageCloseErr := storageWriter.Close()

	// Wait for upload result
	uploadErr := <-errChan

	if exportErr != nil {
		return fmt.Errorf("export failed: %w", exportErr)
	}
	if encoderCloseErr != nil {
		return fmt.Errorf("encoder close failed: %w", encoderCloseErr)
	}
	if outputCloseErr != nil {
		return fmt.Errorf("gzip close failed: %w", outputCloseErr)
	}
	if storageCloseErr != nil {
		return fmt.Errorf("storage close failed: %w", storageCloseErr)
	}
	if uploadErr != nil {
		return fmt.Errorf("upload failed: %w", uploadErr)
	}

	job.Stats = stats
	return nil
}

// runStatement drives the job's statement through the right execution path
// and feeds the encoder.
func (p *Pool) runStatement(job *ExportJob, encoder exporter.RowEncoder) (*exporter.ExportResult, error) {
	switch job.Kind {
	case KindProcedure:
		stmt, err := p.drv.PrepareCall(job.Ctx, job.Statement, job.CallParams)
		if err != nil {
			return nil, err
		}
		defer stmt.Close()

		res, err := proc.New(stmt).Call(job.Ctx, job.Params)
		if err != nil {
			return nil, err
		}
		return exporter.StreamProcedure(job.Ctx, res, encoder)

	case KindBatch:
		stmt, err := p.drv.Prepare(job.Ctx, job.Statement)
		if err != nil {
			return nil, err
		}
		defer stmt.Close()

		start := time.Now()
		affected, err := batch.New(stmt).Execute(job.Ctx, job.Rows)
		if err != nil {
			return nil, err
		}
		// The output artifact for a batch job is a one-row summary.
		if err := encoder.WriteHeader([]string{"affected_rows"}); err != nil {
			return nil, err
		}
		if err := encoder.WriteRow([]any{affected}); err != nil {
			return nil, err
		}
		if err := encoder.Flush(); err != nil {
			return nil, err
		}
		return &exporter.ExportResult{RowsProcessed: affected, Duration: time.Since(start)}, nil

	default: // KindQuery
		stmt, err := p.drv.Prepare(job.Ctx, job.Statement)
		if err != nil {
			return nil, err
		}
		defer stmt.Close()

		cur, err := stmt.Query(job.Ctx, job.Params)
		if err != nil {
			return nil, err
		}
		defer cur.Close()

		return exporter.StreamCursor(job.Ctx, cur, encoder, exporter.Options{LOBChunkSize: p.lobChunkSize})
	}
}
