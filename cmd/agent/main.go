package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"

	"dbstream/internal/config"
	"dbstream/internal/driver"
	"dbstream/internal/email"
	"dbstream/internal/storage"
	"dbstream/internal/worker"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
)

var version = "dev"

// JobCommand is the wire format for jobs pushed by the control plane.
type JobCommand struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Statement  string          `json:"statement"`
	Params     []any           `json:"params,omitempty"`
	CallParams []CallParamSpec `json:"call_params,omitempty"`
	Rows       [][]any         `json:"rows,omitempty"`
	Format     string          `json:"format,omitempty"`
	Email      string          `json:"email,omitempty"`
}

// CallParamSpec declares one procedure parameter by name.
type CallParamSpec struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Direction string `json:"direction"`
}

// JobStatusMessage is pushed back to the control plane when a job finishes.
type JobStatusMessage struct {
	Type  string `json:"type"`
	JobID string `json:"job_id"`
	Rows  int64  `json:"rows,omitempty"`
	Key   string `json:"key,omitempty"`
	Error string `json:"error,omitempty"`
}

func main() {
	// Custom Usage/Help Message
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "DBStream Agent %s\n\n", version)
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  dbstream-agent [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  DATABASE_DSN Database connection string (user:pass@tcp(host:3306)/db)\n")
		fmt.Fprintf(os.Stderr, "  DB_DRIVER    Backend: mysql (default) or postgres\n")
		fmt.Fprintf(os.Stderr, "  CONTROL_URL  WebSocket URL for agent mode (e.g., wss://control.example.com)\n")
		fmt.Fprintf(os.Stderr, "  AGENT_KEY    Agent key for the control endpoint (sk_live_...)\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  dbstream-agent -query \"SELECT * FROM orders\" -format csv -email me@example.com\n")
		fmt.Fprintf(os.Stderr, "  dbstream-agent -call \"CALL monthly_report(?, ?)\" -call-params \"period:INT:IN,summary:CLOB:OUT\"\n")
		fmt.Fprintf(os.Stderr, "  dbstream-agent -batch \"INSERT INTO t (a, b) VALUES (?, ?)\" -rows '[[1,\"x\"],[2,\"y\"]]'\n")
		fmt.Fprintf(os.Stderr, "  CONTROL_URL=wss://control.example.com dbstream-agent\n")
	}

	showVersion := flag.Bool("version", false, "Show version")
	queryStmt := flag.String("query", "", "Run a single query export and exit")
	callStmt := flag.String("call", "", "Run a single procedure export and exit")
	batchStmt := flag.String("batch", "", "Run a single batch statement and exit")
	paramsJSON := flag.String("params", "", "JSON array of input values for -query or -call")
	callParams := flag.String("call-params", "", "Procedure parameters as name:TYPE:DIR[,...] for -call")
	rowsJSON := flag.String("rows", "", "JSON array of parameter rows for -batch")
	format := flag.String("format", "csv", "Output format: csv, json, excel, pdf")
	emailTo := flag.String("email", "", "Notification recipient")
	flag.Parse()

	if *showVersion {
		fmt.Printf("DBStream Agent %s\n", version)
		os.Exit(0)
	}

	_ = godotenv.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()
	if cfg.DatabaseDSN == "" {
		slog.Error("Missing configuration (DATABASE_DSN)")
		os.Exit(1)
	}

	drv, err := driver.Open(cfg.DBDriver, cfg.DatabaseDSN)
	if err != nil {
		slog.Error("Unknown database driver", "driver", cfg.DBDriver, "error", err)
		os.Exit(1)
	}
	if err := drv.Ping(context.Background()); err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer drv.Close()
	slog.Info("Connected to database", "driver", drv.Name())

	store := buildStorage(cfg)

	var emailer email.Sender
	if cfg.SMTPHost != "" {
		emailer = email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom)
	} else {
		emailer = email.NewLogSender()
	}

	pool := worker.NewPool(cfg.WorkerCount, cfg.MaxDBConcurrency, drv, store, emailer,
		cfg.LOBChunkSize, cfg.ConfigCompression, cfg.AttachFile)

	// One-shot mode: the statement comes from the command line and the
	// process exits once the export finishes.
	if *queryStmt != "" || *callStmt != "" || *batchStmt != "" {
		job, err := buildOneShotJob(cfg, *queryStmt, *callStmt, *batchStmt,
			*paramsJSON, *callParams, *rowsJSON, *format, *emailTo)
		if err != nil {
			slog.Error("Invalid arguments", "error", err)
			os.Exit(1)
		}
		pool.Run(job)
		if job.Status != worker.StatusCompleted {
			os.Exit(1)
		}
		slog.Info("Export written", "key", job.Key, "rows", job.Stats.RowsProcessed)
		return
	}

	if cfg.ControlURL == "" {
		flag.Usage()
		os.Exit(1)
	}

	runAgent(cfg, pool)
}

// runAgent connects to the control plane and services pushed jobs until
// interrupted.
func runAgent(cfg *config.Config, pool *worker.Pool) {
	controlURL := cfg.ControlURL + "/agent/control"
	headers := make(map[string][]string)
	headers["X-Agent-Key"] = []string{cfg.AgentKey}

	conn, _, err := websocket.DefaultDialer.Dial(controlURL, headers)
	if err != nil {
		slog.Error("Failed to connect to control plane", "error", err)
		os.Exit(1) // In prod, rely on restart policy or retry loop
	}
	defer conn.Close()
	slog.Info("Connected to control plane", "url", cfg.ControlURL)

	pool.Start()
	defer pool.Stop()

	// Gorilla connections allow one concurrent writer; finished jobs report
	// back from worker goroutines.
	var writeMu sync.Mutex
	notify := func(job *worker.ExportJob) {
		msg := JobStatusMessage{Type: "job_complete", JobID: job.ID, Key: job.Key}
		if job.Status == worker.StatusFailed {
			msg.Type = "job_failed"
			msg.Error = job.Error.Error()
		} else if job.Stats != nil {
			msg.Rows = job.Stats.RowsProcessed
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(msg); err != nil {
			slog.Error("Failed to report job status", "job_id", job.ID, "error", err)
		}
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	go func() {
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				slog.Error("Read error", "error", err)
				return // Reconnect logic would go here
			}

			var cmd JobCommand
			if err := json.Unmarshal(message, &cmd); err != nil {
				slog.Error("Invalid command", "error", err)
				continue
			}

			job, err := commandToJob(cfg, cmd)
			if err != nil {
				slog.Error("Rejected command", "id", cmd.ID, "error", err)
				continue
			}
			job.Done = notify

			slog.Info("Received job", "id", job.ID, "kind", job.Kind)
			if !pool.Submit(job) {
				slog.Warn("Job queue full, dropping job", "id", job.ID)
				job.Cancel()
			}
		}
	}()

	<-interrupt
	slog.Info("Agent shutting down...")
}

func commandToJob(cfg *config.Config, cmd JobCommand) (*worker.ExportJob, error) {
	if cmd.Statement == "" {
		return nil, fmt.Errorf("empty statement")
	}
	job := worker.NewExportJob(worker.JobKind(cmd.Kind), cmd.Statement, cmd.Email, cmd.Format, cfg.DefaultTimeout)
	if cmd.ID != "" {
		job.ID = cmd.ID
	}
	job.Params = cmd.Params
	for _, r := range cmd.Rows {
		job.Rows = append(job.Rows, r)
	}
	for _, p := range cmd.CallParams {
		job.CallParams = append(job.CallParams, driver.ParamInfo{
			Name:      p.Name,
			Type:      driver.ParseTypeCode(p.Type),
			Direction: driver.ParseDirection(p.Direction),
		})
	}
	if job.Kind == worker.KindProcedure && len(job.CallParams) == 0 {
		return nil, fmt.Errorf("procedure job %s declares no parameters", job.ID)
	}
	return job, nil
}

func buildOneShotJob(cfg *config.Config, query, call, batch, paramsJSON, callParams, rowsJSON, format, emailTo string) (*worker.ExportJob, error) {
	cmd := JobCommand{Format: format, Email: emailTo}
	switch {
	case query != "":
		cmd.Kind = string(worker.KindQuery)
		cmd.Statement = query
	case call != "":
		cmd.Kind = string(worker.KindProcedure)
		cmd.Statement = call
		specs, err := parseCallParams(callParams)
		if err != nil {
			return nil, err
		}
		cmd.CallParams = specs
	case batch != "":
		cmd.Kind = string(worker.KindBatch)
		cmd.Statement = batch
		if rowsJSON != "" {
			if err := json.Unmarshal([]byte(rowsJSON), &cmd.Rows); err != nil {
				return nil, fmt.Errorf("parsing -rows: %w", err)
			}
		}
	}
	if paramsJSON != "" {
		if err := json.Unmarshal([]byte(paramsJSON), &cmd.Params); err != nil {
			return nil, fmt.Errorf("parsing -params: %w", err)
		}
	}
	return commandToJob(cfg, cmd)
}

// parseCallParams parses a "name:TYPE:DIR,name:TYPE:DIR" flag value.
func parseCallParams(s string) ([]CallParamSpec, error) {
	if s == "" {
		return nil, fmt.Errorf("-call requires -call-params")
	}
	var specs []CallParamSpec
	for _, part := range strings.Split(s, ",") {
		fields := strings.Split(strings.TrimSpace(part), ":")
		if len(fields) != 3 {
			return nil, fmt.Errorf("malformed parameter %q, want name:TYPE:DIR", part)
		}
		specs = append(specs, CallParamSpec{Name: fields[0], Type: fields[1], Direction: fields[2]})
	}
	return specs, nil
}

func buildStorage(cfg *config.Config) storage.Provider {
	if cfg.StorageType != "s3" {
		return storage.NewLocalProvider(cfg.LocalStoragePath)
	}

	opts := s3.Options{
		Region:       cfg.AWSRegion,
		UsePathStyle: cfg.S3PathStyle,
		Credentials: aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
				SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			}, nil
		}),
	}
	if cfg.S3Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.S3Endpoint)
	}
	return storage.NewS3Provider(s3.New(opts), cfg.S3Bucket)
}
