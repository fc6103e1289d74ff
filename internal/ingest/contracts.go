package ingest

import (
	"fmt"
	"time"

	"github.com/tinytelemetry/journalscope/internal/logparse"
	"github.com/tinytelemetry/journalscope/internal/model"
)

// RecordSink accepts flattened records for asynchronous storage.
type RecordSink interface {
	Add(row *model.RecordRow)
}

// JournalSink stores the summary row of a decoded journal.
type JournalSink interface {
	UpsertJournal(j model.JournalRow) error
}

// Publish stores the journal summary, then hands every record to records
// graded by severity.
// It returns the number of records handed off.
func Publish(doc *model.Document, id string, decodedAt time.Time, journals JournalSink, records RecordSink) (int, error) {
	if err := journals.UpsertJournal(doc.JournalRow(id, decodedAt)); err != nil {
		return 0, fmt.Errorf("ingest: store journal %s: %w", id, err)
	}
	rows, err := doc.Rows(id)
	if err != nil {
		return 0, err
	}
	for i, row := range rows {
		row.Severity = logparse.Severity(doc.Records[i])
		records.Add(row)
	}
	return len(rows), nil
}
