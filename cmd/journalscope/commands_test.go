package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/tinytelemetry/journalscope/internal/duckdb"
	"github.com/tinytelemetry/journalscope/internal/model"
	"github.com/tinytelemetry/journalscope/internal/spool"
)

var samplePath = filepath.Join("..", "..", "internal", "ingest", "testdata", "journal.0001.txt")

// runCmd executes the root command with an isolated HOME.
func runCmd(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestJournalID(t *testing.T) {
	t.Parallel()

	abs, err := filepath.Abs(samplePath)
	if err != nil {
		t.Fatal(err)
	}
	id := journalID(samplePath)
	if id != journalID(abs) {
		t.Errorf("relative and absolute paths give different ids")
	}
	if id == journalID(samplePath+".zst") {
		t.Errorf("different paths share an id")
	}
	if len(id) != 36 {
		t.Errorf("id %q is not a UUID", id)
	}
}

func TestStreamName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"/j/journal.0001.txt":     "journal.0001",
		"/j/journal.0001.txt.zst": "journal.0001",
		"journal.log":             "journal.log",
	}
	for in, want := range tests {
		if got := streamName(in); got != want {
			t.Errorf("streamName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestToYAML(t *testing.T) {
	t.Parallel()

	b, err := toYAML(model.Metadata{MachineName: "WS-0142", Version: 2019})
	if err != nil {
		t.Fatalf("toYAML: %v", err)
	}
	var got map[string]any
	if err := yaml.Unmarshal(b, &got); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if got["machine_name"] != "WS-0142" || got["version"] != 2019 {
		t.Errorf("got %v", got)
	}
}

func TestDecodeAll(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "journal.0002.txt")
	results, err := decodeAll(context.Background(), []string{samplePath, missing}, 2)
	if err != nil {
		t.Fatalf("decodeAll: %v", err)
	}
	if len(results) != 2 || results[0].Path != samplePath || results[1].Path != missing {
		t.Fatalf("results out of order: %+v", results)
	}
	if results[0].Err != nil || results[0].Doc.Meta.BlockCount != 5 {
		t.Errorf("sample: err=%v", results[0].Err)
	}
	if results[1].Err == nil {
		t.Error("expected error for missing file")
	}

	var buf bytes.Buffer
	if err := reportFailures(&buf, results); err == nil || !strings.Contains(buf.String(), missing) {
		t.Errorf("reportFailures err=%v out=%q", err, buf.String())
	}
}

func TestDecodeAll_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := decodeAll(ctx, []string{samplePath}, 1); err == nil {
		t.Fatal("expected context error")
	}
}

func TestDecodeCmd(t *testing.T) {
	out, _, err := runCmd(t, "decode", samplePath)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, want := range []string{"WS-0142", "JournalTimeStamp"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary lacks %q:\n%s", want, out)
		}
	}

	out, _, err = runCmd(t, "decode", "--format", "json", "--records", samplePath)
	if err != nil {
		t.Fatalf("decode json: %v", err)
	}
	var view struct {
		Meta    model.Metadata   `json:"meta"`
		Records []map[string]any `json:"records"`
	}
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("json: %v\n%s", err, out)
	}
	if view.Meta.MachineName != "WS-0142" || len(view.Records) == 0 {
		t.Errorf("meta=%+v records=%d", view.Meta, len(view.Records))
	}

	out, _, err = runCmd(t, "decode", "-f", "yaml", samplePath)
	if err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if !strings.Contains(out, "machine_name: WS-0142") {
		t.Errorf("yaml output:\n%s", out)
	}

	if _, _, err := runCmd(t, "decode", "-f", "xml", samplePath); err == nil {
		t.Error("expected error for unknown format")
	}
	if _, stderr, err := runCmd(t, "decode", samplePath, "nope.txt"); err == nil || !strings.Contains(stderr, "nope.txt") {
		t.Errorf("missing file: err=%v stderr=%q", err, stderr)
	}
}

func TestQueryCmd(t *testing.T) {
	out, _, err := runCmd(t, "query", samplePath, "--jmes", "length(records[?kind=='JournalTimeStamp'])")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if strings.TrimSpace(out) != "5" {
		t.Errorf("got %q", out)
	}

	out, _, err = runCmd(t, "query", samplePath,
		"-q", "length(records[?fields.type=={{t}}])", "--var", "t=RegisteredExternalService")
	if err != nil {
		t.Fatalf("query with var: %v", err)
	}
	if strings.TrimSpace(out) != "1" {
		t.Errorf("got %q", out)
	}

	if _, _, err := runCmd(t, "query", samplePath, "--jmes", "meta", "--var", "bad"); err == nil {
		t.Error("expected error for malformed --var")
	}
	if _, _, err := runCmd(t, "query", samplePath); err == nil {
		t.Error("expected error without --jmes")
	}
}

func TestIngestAndSnapshotCmds(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "j.duckdb")

	out, _, err := runCmd(t, "ingest", "--db-path", dbPath, samplePath)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !strings.Contains(out, journalID(samplePath)) || !strings.Contains(out, "records") {
		t.Errorf("ingest output: %q", out)
	}

	dst := filepath.Join(dir, "snap.duckdb.zst")
	if _, _, err := runCmd(t, "snapshot", "--db-path", dbPath, dst); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if info, err := os.Stat(dst); err != nil || info.Size() == 0 {
		t.Fatalf("snapshot file: %v", err)
	}

	store, err := duckdb.NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()
	j, ok, err := store.GetJournal(journalID(samplePath))
	if err != nil || !ok {
		t.Fatalf("GetJournal ok=%v err=%v", ok, err)
	}
	if j.MachineName != "WS-0142" {
		t.Errorf("MachineName = %q", j.MachineName)
	}
}

func TestExportCmd_RequiresGroup(t *testing.T) {
	_, _, err := runCmd(t, "export", samplePath)
	if err == nil || !strings.Contains(err.Error(), "log-group") {
		t.Fatalf("err = %v", err)
	}
}

func TestVersionCmd(t *testing.T) {
	out, _, err := runCmd(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "Version:    dev") {
		t.Errorf("got %q", out)
	}
}

func TestReplayUncommittedSpool(t *testing.T) {
	t.Parallel()

	sp, err := spool.Open(filepath.Join(t.TempDir(), "ingest.spool"))
	if err != nil {
		t.Fatalf("spool.Open: %v", err)
	}
	defer sp.Close()
	for i := 1; i <= 3; i++ {
		if _, err := sp.Append(&model.RecordRow{JournalID: "j", Line: i, Kind: "Command", Raw: "Jrn.Command"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	store, err := duckdb.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	if err := replayUncommittedSpool(sp, store, 2); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if sp.Committed() != 3 {
		t.Errorf("Committed = %d, want 3", sp.Committed())
	}
	n, err := store.TotalRecordCount(model.QueryOpts{JournalID: "j"})
	if err != nil || n != 3 {
		t.Errorf("records = %d, err = %v", n, err)
	}
	if err := replayUncommittedSpool(nil, store, 0); err != nil {
		t.Errorf("nil spool: %v", err)
	}
}

func TestPrintStartupBanner(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printStartupBanner(&buf, appConfig{APIEnabled: true, APIAddr: "127.0.0.1:3000", DBPath: "/tmp/j.duckdb"})
	if !strings.Contains(buf.String(), "127.0.0.1:3000") {
		t.Errorf("banner lacks API address:\n%s", buf.String())
	}
}
