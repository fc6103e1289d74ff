package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/tinytelemetry/journalscope/internal/model"
)

type fakeJournals struct {
	rows []model.JournalRow
	err  error
}

func (f *fakeJournals) UpsertJournal(j model.JournalRow) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, j)
	return nil
}

type fakeRecords struct {
	rows []*model.RecordRow
}

func (f *fakeRecords) Add(row *model.RecordRow) { f.rows = append(f.rows, row) }

func TestPublish(t *testing.T) {
	t.Parallel()
	doc := decodeSample(t)
	decodedAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	js := &fakeJournals{}
	rs := &fakeRecords{}
	n, err := Publish(doc, "j-1", decodedAt, js, rs)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if n != len(doc.Records) || len(rs.rows) != n {
		t.Fatalf("published %d rows, sink has %d, doc has %d", n, len(rs.rows), len(doc.Records))
	}
	if len(js.rows) != 1 {
		t.Fatalf("journal rows = %d", len(js.rows))
	}
	j := js.rows[0]
	if j.ID != "j-1" || j.Version != 2019 || j.BlockCount != 5 || !j.TerminatedCleanly || j.SessionSeconds != 5 {
		t.Fatalf("journal row = %+v", j)
	}
	if rs.rows[0].JournalID != "j-1" || rs.rows[0].Kind != "JournalTimeStamp" {
		t.Fatalf("first row = %+v", rs.rows[0])
	}
	for _, row := range rs.rows {
		if row.Severity == "" {
			t.Fatalf("row at line %d has no severity", row.Line)
		}
	}
}

func TestPublish_JournalError(t *testing.T) {
	t.Parallel()
	doc := decodeSample(t)
	rs := &fakeRecords{}
	_, err := Publish(doc, "j-1", time.Now(), &fakeJournals{err: errors.New("boom")}, rs)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(rs.rows) != 0 {
		t.Fatal("records published after journal failure")
	}
}
