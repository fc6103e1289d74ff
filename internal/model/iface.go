package model

// QueryOpts holds optional filters applied to aggregate queries.
type QueryOpts struct {
	JournalID string // empty = all journals
}

// JournalQuerier provides read-only queries over stored journals.
type JournalQuerier interface {
	ListJournals(limit int) ([]JournalRow, error)
	GetJournal(id string) (JournalRow, bool, error)
	KindCounts(opts QueryOpts) ([]KindCount, error)
	TotalRecordCount(opts QueryOpts) (int64, error)
	RecordsFiltered(filter RecordFilter) ([]RecordRow, error)
}

// SchemaQuerier provides schema introspection and arbitrary read-only queries.
type SchemaQuerier interface {
	ExecuteQuery(query string) ([]map[string]interface{}, error)
	GetSchemaDescription() string
	TableRowCounts() (map[string]int64, error)
}

// JournalWriter provides write operations for decoded journals.
type JournalWriter interface {
	UpsertJournal(j JournalRow) error
	InsertRecordBatch(rows []*RecordRow) error
}

// ReadAPI is the unified read contract for the HTTP surface.
type ReadAPI interface {
	JournalQuerier
	SchemaQuerier
}
