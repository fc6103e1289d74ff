package model

import "time"

// Metadata is the document-level information gathered while decoding.
type Metadata struct {
	Version     int    `json:"version"`
	Release     string `json:"release"`
	Build       string `json:"build"`
	Branch      string `json:"branch"`
	Username    string `json:"username"`
	MachineName string `json:"machine_name"`
	OSVersion   string `json:"os_version"`
	Path        string `json:"path"`       // journal path reported inside the journal
	SessionID   string `json:"session_id"` // correlation id
	Source      string `json:"source"`     // name the caller decoded from
	BlockCount  int    `json:"block_count"`
}

// Document is a fully decoded journal. It is immutable once returned by the
// decoder; query methods never modify it.
type Document struct {
	Records        []*Record
	Meta           Metadata
	ProcessingTime time.Duration
}

// Block is a computed view over the records sharing one block index.
type Block struct {
	Index   int
	Time    time.Time // zero for block 0
	Records []*Record
}

// Summary condenses the query API into a single value for reports.
type Summary struct {
	Records           int            `json:"records"`
	Blocks            int            `json:"blocks"`
	SessionDuration   time.Duration  `json:"session_duration_ns"`
	Started           time.Time      `json:"started"`
	Finished          time.Time      `json:"finished"`
	StartupTime       *time.Time     `json:"startup_time,omitempty"`
	License           string         `json:"license,omitempty"`
	HasAPIErrors      bool           `json:"has_api_errors"`
	HasExceptions     bool           `json:"has_exceptions"`
	TerminatedCleanly bool           `json:"terminated_cleanly"`
	Kinds             map[string]int `json:"kinds"`
	ProcessingTime    time.Duration  `json:"processing_time_ns"`
}

// Summarize evaluates the document-level queries.
func (d *Document) Summarize() Summary {
	s := Summary{
		Records:           len(d.Records),
		Blocks:            d.Meta.BlockCount,
		SessionDuration:   d.SessionDuration(),
		HasAPIErrors:      d.HasAPIErrors(),
		HasExceptions:     d.HasExceptions(),
		TerminatedCleanly: d.TerminatedCleanly(),
		Kinds:             make(map[string]int),
		ProcessingTime:    d.ProcessingTime,
	}
	if stamps := d.Timestamps(); len(stamps) > 0 {
		first, _ := stamps[0].Timestamp()
		last, _ := stamps[len(stamps)-1].Timestamp()
		s.Started = first.Time
		s.Finished = last.Time
	}
	if t, ok := d.StartupTime(); ok {
		s.StartupTime = &t
	}
	if lic, ok := d.LicenseInfo(); ok {
		s.License = lic
	}
	for k, n := range d.KindCounts() {
		s.Kinds[k.String()] = n
	}
	return s
}

// View is the serializable form of a document used by the CLI output and
// JMESPath queries.
type View struct {
	Meta    Metadata  `json:"meta"`
	Summary Summary   `json:"summary"`
	Records []*Record `json:"records,omitempty"`
}

// View returns the document's serializable form, with or without records.
func (d *Document) View(withRecords bool) View {
	v := View{Meta: d.Meta, Summary: d.Summarize()}
	if withRecords {
		v.Records = d.Records
	}
	return v
}
