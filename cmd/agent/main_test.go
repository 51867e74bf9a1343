package main

import (
	"testing"
	"time"

	"dbstream/internal/config"
	"dbstream/internal/driver"
	"dbstream/internal/worker"
)

func testConfig() *config.Config {
	return &config.Config{DefaultTimeout: time.Minute}
}

func TestParseCallParams(t *testing.T) {
	specs, err := parseCallParams("period:INT:IN, summary:CLOB:OUT")
	if err != nil {
		t.Fatalf("parseCallParams failed: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("got %d specs", len(specs))
	}
	if specs[1].Name != "summary" || specs[1].Type != "CLOB" || specs[1].Direction != "OUT" {
		t.Errorf("spec 1 = %+v", specs[1])
	}

	if _, err := parseCallParams(""); err == nil {
		t.Error("empty spec accepted")
	}
	if _, err := parseCallParams("broken"); err == nil {
		t.Error("malformed spec accepted")
	}
}

func TestCommandToJob(t *testing.T) {
	cmd := JobCommand{
		ID:        "job-7",
		Kind:      "procedure",
		Statement: "CALL monthly(?, ?)",
		Params:    []any{float64(202601), nil},
		CallParams: []CallParamSpec{
			{Name: "period", Type: "INT", Direction: "IN"},
			{Name: "summary", Type: "CLOB", Direction: "OUT"},
		},
		Format: "json",
		Email:  "ops@example.com",
	}

	job, err := commandToJob(testConfig(), cmd)
	if err != nil {
		t.Fatalf("commandToJob failed: %v", err)
	}
	defer job.Cancel()

	if job.ID != "job-7" || job.Kind != worker.KindProcedure || job.Format != "json" {
		t.Errorf("job = %+v", job)
	}
	if len(job.CallParams) != 2 {
		t.Fatalf("call params = %v", job.CallParams)
	}
	if job.CallParams[1].Type != driver.TypeClob || job.CallParams[1].Direction != driver.DirOut {
		t.Errorf("call param 1 = %+v", job.CallParams[1])
	}
}

func TestCommandToJobRejectsBadInput(t *testing.T) {
	if _, err := commandToJob(testConfig(), JobCommand{Kind: "query"}); err == nil {
		t.Error("empty statement accepted")
	}
	if _, err := commandToJob(testConfig(), JobCommand{Kind: "procedure", Statement: "CALL p()"}); err == nil {
		t.Error("procedure with no declared parameters accepted")
	}
}

func TestBuildOneShotBatchJob(t *testing.T) {
	job, err := buildOneShotJob(testConfig(), "", "", "INSERT INTO t (a, b) VALUES (?, ?)",
		"", "", `[[1, "x"], [2, "y"]]`, "csv", "")
	if err != nil {
		t.Fatalf("buildOneShotJob failed: %v", err)
	}
	defer job.Cancel()

	if job.Kind != worker.KindBatch {
		t.Errorf("kind = %s", job.Kind)
	}
	if len(job.Rows) != 2 {
		t.Fatalf("rows = %v", job.Rows)
	}
	row, ok := job.Rows[1].([]any)
	if !ok || row[1] != "y" {
		t.Errorf("row 1 = %v", job.Rows[1])
	}
}
