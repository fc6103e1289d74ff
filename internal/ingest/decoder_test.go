package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/tinytelemetry/journalscope/internal/model"
)

const sampleJournal = "testdata/journal.0001.txt"

func decodeSample(t *testing.T) *model.Document {
	t.Helper()
	doc, err := DecodeFile(sampleJournal)
	if err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}
	return doc
}

func TestDecodeFile_Metadata(t *testing.T) {
	t.Parallel()
	doc := decodeSample(t)

	want := model.Metadata{
		Version:     2019,
		Release:     "2019.2",
		Build:       "20190227_1515(x64)",
		Branch:      "RELEASE_2019.2",
		Username:    "someone",
		MachineName: "WS-0142",
		OSVersion:   "Microsoft Windows 10 Enterprise",
		Path:        `C:\Users\someone\AppData\Local\Autodesk\Revit\Journals\journal.0001.txt`,
		SessionID:   "7f0c2a7e-3b1d-4a55-9a51-7c4ba2e8d001",
		Source:      sampleJournal,
		BlockCount:  5,
	}
	if doc.Meta != want {
		t.Fatalf("meta =\n%+v\nwant\n%+v", doc.Meta, want)
	}
}

func TestDecodeFile_Records(t *testing.T) {
	t.Parallel()
	doc := decodeSample(t)

	counts := doc.KindCounts()
	wantCounts := map[model.Kind]int{
		model.KindTimestamp:         5,
		model.KindDirective:         3,
		model.KindCommand:           2,
		model.KindSystemInformation: 6,
		model.KindAPIMessage:        2,
		model.KindMemoryMetrics:     1,
		model.KindGUIResourceUsage:  1,
		model.KindUIEvent:           1,
		model.KindMouseEvent:        1,
		model.KindKeyboardEvent:     1,
		model.KindBasicFileInfo:     1,
		model.KindData:              1,
		model.KindWorksharingEvent:  1,
		model.KindAddinEvent:        1,
		model.KindMiscCommand:       2,
	}
	for k, n := range wantCounts {
		if counts[k] != n {
			t.Errorf("count(%v) = %d, want %d", k, counts[k], n)
		}
	}

	version := doc.ByKind(model.KindDirective)[0]
	if version.Line != 9 || version.Raw != `Jrn.Directive "Version"  , "2019.000", "2.090"` {
		t.Fatalf("merged directive = %d %q", version.Line, version.Raw)
	}

	api := doc.ByKind(model.KindAPIMessage)[0]
	if !strings.HasSuffix(api.Raw, " Description: Foo tools }") {
		t.Fatalf("API continuation not merged: %q", api.Raw)
	}
	if m, _ := api.APIMessage(); m.Type != "StartingExternalApp" {
		t.Fatalf("API type = %q", m.Type)
	}

	procs := 0
	for _, r := range doc.ByKind(model.KindSystemInformation) {
		si := r.Fields.(*model.SystemInformation)
		if si.Type == "Processor" {
			procs = max(procs, si.Item)
		}
	}
	if procs != 2 {
		t.Fatalf("processor items = %d, want 2", procs)
	}

	// The delta reading rides on a block stamp; only the initial reading is
	// a memory record.
	mem := doc.ByKind(model.KindMemoryMetrics)[0].Fields.(*model.MemoryMetrics)
	if mem.VMPeak != 17 || mem.RAMPeak != 60 {
		t.Fatalf("memory = %+v", mem)
	}
}

func TestDecodeFile_Queries(t *testing.T) {
	t.Parallel()
	doc := decodeSample(t)

	if got := doc.SessionDuration(); got != 5*time.Second {
		t.Fatalf("SessionDuration = %v", got)
	}
	if !doc.TerminatedCleanly() {
		t.Fatal("TerminatedCleanly = false")
	}
	if doc.HasAPIErrors() || doc.HasExceptions() {
		t.Fatal("unexpected error flags")
	}
	if lic, ok := doc.LicenseInfo(); !ok || lic != "Network:Single:Valid" {
		t.Fatalf("LicenseInfo = %q, %v", lic, ok)
	}
	// 2019.2 opens the model browser; the journal falls back to nothing.
	if _, ok := doc.StartupTime(); ok {
		t.Fatal("StartupTime found without a model browser command")
	}
	doc.Meta.Version = 2018
	got, ok := doc.StartupTime()
	if !ok || !got.Equal(time.Date(2019, 6, 20, 14, 25, 39, 120e6, time.UTC)) {
		t.Fatalf("StartupTime = %v, %v", got, ok)
	}
}

func TestDecode_BlockInvariants(t *testing.T) {
	t.Parallel()
	doc := decodeSample(t)

	seen := map[int]int{}
	prevBlock, prevLine := 0, 0
	for _, r := range doc.Records {
		if r.Block < prevBlock {
			t.Fatalf("block decreased at line %d", r.Line)
		}
		if r.Line <= prevLine {
			t.Fatalf("line numbers not increasing at %d", r.Line)
		}
		if r.Kind == model.KindTimestamp {
			if r.Block == 0 {
				t.Fatal("timestamp in block 0")
			}
			seen[r.Block]++
			if first := doc.ByBlock(r.Block)[0]; first != r {
				t.Fatalf("block %d does not start with its timestamp", r.Block)
			}
		}
		if strings.HasSuffix(r.Raw, "_") {
			t.Fatalf("dangling continuation at line %d", r.Line)
		}
		prevBlock, prevLine = r.Block, r.Line
	}
	for b := 1; b <= doc.Meta.BlockCount; b++ {
		if seen[b] != 1 {
			t.Fatalf("block %d has %d timestamps", b, seen[b])
		}
	}
}

func TestDecode_ReextractIsIdempotent(t *testing.T) {
	t.Parallel()
	doc := decodeSample(t)
	for _, r := range doc.Records {
		again, err := DecodeLines([]string{r.Raw})
		if err != nil {
			t.Fatalf("re-decode line %d: %v", r.Line, err)
		}
		if len(again.Records) != 1 {
			t.Fatalf("re-decode line %d yielded %d records", r.Line, len(again.Records))
		}
		if r.Kind == model.KindSystemInformation {
			continue // depends on the surrounding command count
		}
		got, err := Extract(r.Kind, again.Records[0].Raw)
		if err != nil {
			t.Fatalf("Extract: %v", err)
		}
		a, _ := json.Marshal(got)
		b, _ := json.Marshal(r.Fields)
		if !bytes.Equal(a, b) {
			t.Errorf("line %d: %s != %s", r.Line, a, b)
		}
	}
}

func TestDecode_Deterministic(t *testing.T) {
	t.Parallel()
	clock := func() time.Time { return time.Unix(0, 0) }
	a, err := DecodeFile(sampleJournal, WithClock(clock))
	if err != nil {
		t.Fatal(err)
	}
	b, err := DecodeFile(sampleJournal, WithClock(clock))
	if err != nil {
		t.Fatal(err)
	}
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if !bytes.Equal(ja, jb) {
		t.Fatal("decoding the same input twice differs")
	}
	if a.ProcessingTime != 0 {
		t.Fatalf("ProcessingTime = %v with a frozen clock", a.ProcessingTime)
	}
}

func TestDecode_Continuations(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		lines  []string
		raws   []string
		blocks []int
	}{
		{
			name:  "underscore joins next line",
			lines: []string{`Jrn.Data "X"  _`, `  , "a" _`, `  , "b"`},
			raws:  []string{`Jrn.Data "X"  , "a" , "b"`},
		},
		{
			name:  "leading comma collapses underscore",
			lines: []string{`Jrn.Data "X"`, `, "a"_, "b"`},
			raws:  []string{`Jrn.Data "X", "a", "b"`},
		},
		{
			name:  "short lines are skipped",
			lines: []string{"Dim Jrn", "", " ", "x", "Set Jrn"},
			raws:  []string{"Dim Jrn", "Set Jrn"},
		},
		{
			name:  "api quote continuation",
			lines: []string{"' 0:< API_SUCCESS { Starting External Application: A", "'Vendor: B }", "'next comment"},
			raws:  []string{"' 0:< API_SUCCESS { Starting External Application: A Vendor: B }", "'next comment"},
		},
		{
			name:  "stamp never continues an api message",
			lines: []string{"' 0:< API_SUCCESS { open", "'H 20-Jun-2019 14:25:38.001;   0:< "},
			raws:  []string{"' 0:< API_SUCCESS { open", "'H 20-Jun-2019 14:25:38.001;   0:<"},
		},
		{
			name:  "spaced comment after open api message",
			lines: []string{"' 0:< API_SUCCESS { open", "' plain"},
			raws:  []string{"' 0:< API_SUCCESS { open", "' plain"},
		},
		{
			name: "stamp after trailing marker opens a block",
			lines: []string{
				"'C 20-Jun-2019 14:25:36.442;   started recording journal file",
				"' 0:< opened ID_FILE_",
				"'H 20-Jun-2019 14:25:38.001;   0:<",
				`Jrn.Command "Ribbon" , "Open" , "ID_OPEN"`,
			},
			raws: []string{
				"'C 20-Jun-2019 14:25:36.442;   started recording journal file",
				"' 0:< opened ID_FILE",
				"'H 20-Jun-2019 14:25:38.001;   0:<",
				`Jrn.Command "Ribbon" , "Open" , "ID_OPEN"`,
			},
			blocks: []int{1, 1, 2, 2},
		},
		{
			name:   "kinded line after trailing marker is not merged",
			lines:  []string{"Dim Jrn _", `Jrn.Directive "Version"  , "2019.1"`},
			raws:   []string{"Dim Jrn ", `Jrn.Directive "Version"  , "2019.1"`},
			blocks: []int{0, 0},
		},
		{
			name:  "trailing marker at end of input",
			lines: []string{"Dim Jrn _"},
			raws:  []string{"Dim Jrn "},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := DecodeLines(tt.lines)
			if err != nil {
				t.Fatalf("DecodeLines: %v", err)
			}
			if len(doc.Records) != len(tt.raws) {
				t.Fatalf("records = %d, want %d", len(doc.Records), len(tt.raws))
			}
			for i, r := range doc.Records {
				if r.Raw != tt.raws[i] {
					t.Errorf("raw[%d] = %q, want %q", i, r.Raw, tt.raws[i])
				}
				if tt.blocks != nil && r.Block != tt.blocks[i] {
					t.Errorf("block[%d] = %d, want %d", i, r.Block, tt.blocks[i])
				}
			}
		})
	}
}

func TestDecode_MalformedFieldsDoNotAbort(t *testing.T) {
	t.Parallel()
	const stamp = "'C 20-Jun-2019 14:25:36.442;   started recording journal file"

	tests := []struct {
		name string
		line string
		kind model.Kind
		want model.Payload
	}{
		{
			name: "memory with odd token count",
			line: "' 0:< ::0:: Delta VM: Avail 1 2 3 MB",
			kind: model.KindMemoryMetrics,
			want: &model.MemoryMetrics{},
		},
		{
			name: "mouse with non-integer data",
			line: "Jrn.MouseMove 0 , a , b",
			kind: model.KindMouseEvent,
			want: &model.MouseEvent{Type: "MouseMove"},
		},
		{
			name: "command without quotes",
			line: "Jrn.Command Ribbon Open",
			kind: model.KindCommand,
			want: &model.Command{},
		},
		{
			name: "gui usage without integers",
			line: "' 0:< GUI Resource Usage GDI: Avail many, Used some, User z",
			kind: model.KindGUIResourceUsage,
			want: &model.GUIResourceUsage{User: "z"},
		},
		{
			name: "worksharing without a timestamp",
			line: "' 0:< SLOG $abc not-a-date here",
			kind: model.KindWorksharingEvent,
			want: &model.WorksharingEvent{SessionID: "$abc"},
		},
		{
			name: "directive without separator",
			line: `Jrn.Directive "CategoryDisciplineFilter" , 3`,
			kind: model.KindDirective,
			want: &model.Directive{Key: "CategoryDisciplineFilter"},
		},
		{
			name: "keyboard without quotes",
			line: "Jrn.Key 13",
			kind: model.KindKeyboardEvent,
			want: &model.KeyboardEvent{},
		},
		{
			name: "ui event without arguments",
			line: "Jrn.ComboBox",
			kind: model.KindUIEvent,
			want: &model.UIEvent{Type: "ComboBox"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			doc, err := DecodeLines([]string{stamp, tt.line})
			if err != nil {
				t.Fatalf("DecodeLines: %v", err)
			}
			if len(doc.Records) != 2 || doc.Meta.BlockCount != 1 {
				t.Fatalf("records = %d, blocks = %d", len(doc.Records), doc.Meta.BlockCount)
			}
			r := doc.Records[1]
			if r.Kind != tt.kind {
				t.Fatalf("kind = %v, want %v", r.Kind, tt.kind)
			}
			if !reflect.DeepEqual(r.Fields, tt.want) {
				t.Errorf("fields = %#v, want %#v", r.Fields, tt.want)
			}
			if r.Raw != tt.line {
				t.Errorf("raw = %q", r.Raw)
			}
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	_, err := DecodeLines([]string{"", `, "orphan"`})
	var de *DecodeError
	if !errors.As(err, &de) || de.Line != 2 || !errors.Is(err, ErrOrphanContinuation) {
		t.Fatalf("orphan continuation err = %v", err)
	}

	_, err = DecodeLines([]string{"Dim Jrn", "'C bogus date;   started recording journal file"})
	if !errors.As(err, &de) || de.Line != 2 || !errors.Is(err, ErrTimestamp) {
		t.Fatalf("timestamp err = %v", err)
	}

	long := strings.Repeat("x", 128)
	_, err = DecodeLines([]string{long}, WithMaxLineSize(16))
	if !errors.Is(err, ErrRead) {
		t.Fatalf("long line err = %v", err)
	}

	if _, err := DecodeFile(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDecode_EmptyInput(t *testing.T) {
	t.Parallel()
	doc, err := Decode(strings.NewReader(""), WithSource("empty"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(doc.Records) != 0 || doc.Meta.BlockCount != 0 || doc.Meta.Source != "empty" {
		t.Fatalf("doc = %+v", doc)
	}
	if doc.SessionDuration() != 0 || doc.TerminatedCleanly() {
		t.Fatal("empty document queries")
	}
}

func TestDecode_ByteOrderMarkAndCRLF(t *testing.T) {
	t.Parallel()
	input := "\ufeff'C 20-Jun-2019 14:25:36.442;   started recording journal file\r\nDim Jrn\r\n"
	doc, err := Decode(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(doc.Records) != 2 || doc.Records[0].Kind != model.KindTimestamp || doc.Records[1].Raw != "Dim Jrn" {
		t.Fatalf("records = %+v", doc.Records)
	}
}

func TestDecodeFile_Zstd(t *testing.T) {
	t.Parallel()
	plain, err := os.ReadFile(sampleJournal)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := enc.Write(plain); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "journal.0001.txt.zst")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := DecodeFile(path)
	if err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}
	if doc.Meta.Source != path || doc.Meta.BlockCount != 5 {
		t.Fatalf("meta = %+v", doc.Meta)
	}
}

func TestDecode_Concurrent(t *testing.T) {
	t.Parallel()
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc, err := DecodeFile(sampleJournal)
			if err == nil && doc.Meta.BlockCount != 5 {
				err = errors.New("wrong block count")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
}
