package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// RecordRow is the flattened shape of one record used by storage, the spool
// and the read APIs.
type RecordRow struct {
	JournalID string          `json:"journal_id"`
	Line      int             `json:"line"`
	Block     int             `json:"block"`
	Kind      string          `json:"kind"`
	Severity  string          `json:"severity,omitempty"`
	Raw       string          `json:"raw"`
	BlockTime time.Time       `json:"block_time"` // zero for block 0
	Fields    json.RawMessage `json:"fields,omitempty"`
}

// JournalRow is the stored summary of one decoded journal.
type JournalRow struct {
	ID                string
	Source            string
	Path              string
	Version           int
	Release           string
	Build             string
	Branch            string
	Username          string
	MachineName       string
	OSVersion         string
	SessionID         string
	BlockCount        int
	RecordCount       int
	SessionSeconds    float64
	TerminatedCleanly bool
	HasAPIErrors      bool
	HasExceptions     bool
	ProcessingMillis  int64
	DecodedAt         time.Time
}

// KindCount is the number of records of one kind.
type KindCount struct {
	Kind  string
	Count int64
}

// RecordFilter narrows stored record reads. Zero values disable a filter.
type RecordFilter struct {
	JournalID    string
	Kinds        []string
	Severity     string
	Blocks       []int
	From, To     time.Time
	MatchPattern string // regular expression over the raw text
	Limit        int
}

// Rows flattens the document's records for storage. Records of block 0
// carry a zero block time.
func (d *Document) Rows(journalID string) ([]*RecordRow, error) {
	times := make(map[int]time.Time, d.Meta.BlockCount)
	for _, r := range d.Timestamps() {
		ts, _ := r.Timestamp()
		times[r.Block] = ts.Time
	}
	out := make([]*RecordRow, 0, len(d.Records))
	for _, r := range d.Records {
		row := &RecordRow{
			JournalID: journalID,
			Line:      r.Line,
			Block:     r.Block,
			Kind:      r.Kind.String(),
			Raw:       r.Raw,
			BlockTime: times[r.Block],
		}
		if r.Fields != nil {
			b, err := json.Marshal(r.Fields)
			if err != nil {
				return nil, fmt.Errorf("model: marshal fields of line %d: %w", r.Line, err)
			}
			row.Fields = b
		}
		out = append(out, row)
	}
	return out, nil
}

// JournalRow summarizes the document for storage.
func (d *Document) JournalRow(id string, decodedAt time.Time) JournalRow {
	return JournalRow{
		ID:                id,
		Source:            d.Meta.Source,
		Path:              d.Meta.Path,
		Version:           d.Meta.Version,
		Release:           d.Meta.Release,
		Build:             d.Meta.Build,
		Branch:            d.Meta.Branch,
		Username:          d.Meta.Username,
		MachineName:       d.Meta.MachineName,
		OSVersion:         d.Meta.OSVersion,
		SessionID:         d.Meta.SessionID,
		BlockCount:        d.Meta.BlockCount,
		RecordCount:       len(d.Records),
		SessionSeconds:    d.SessionDuration().Seconds(),
		TerminatedCleanly: d.TerminatedCleanly(),
		HasAPIErrors:      d.HasAPIErrors(),
		HasExceptions:     d.HasExceptions(),
		ProcessingMillis:  d.ProcessingTime.Milliseconds(),
		DecodedAt:         decodedAt,
	}
}
