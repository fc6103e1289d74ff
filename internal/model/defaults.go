package model

import "time"

// Shared defaults used by the CLI and the server.
const (
	DefaultMaxLineSize    = 1024 * 1024
	DefaultRecordLimit    = 1000
	DefaultJournalLimit   = 100
	DefaultDecodeWorkers  = 4
	DefaultWatchDebounce  = 2 * time.Second
	DefaultWatchPattern   = "journal.*.txt"
	DefaultRetentionDays  = 30
	DefaultQueryTimeout   = 30 * time.Second
	DefaultFlushInterval  = 100 * time.Millisecond
	DefaultInsertBatch    = 2000
	DefaultFlushQueueSize = 64
)
