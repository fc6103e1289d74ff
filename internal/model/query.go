package model

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Command identifiers used to locate the end of application startup.
const (
	StartupModelBrowserID = "ID_REVIT_MODEL_BROWSER_OPEN"
	StartupPageID         = "ID_STARTUP_PAGE"
	StartupPlaybackID     = "ID_FILE_MRU_FIRST"

	// StartupModelBrowserVersion is the first release (with a non-zero fix
	// number) that ends startup by opening the model browser.
	StartupModelBrowserVersion = 2019

	FinishedRecordingDescription = "finished recording journal file"
	ExceptionDescriptionPrefix   = "ExceptionCode"
	LicenseModeMarker            = "License mode:"
)

// ByKind returns the records of kind k in document order.
func (d *Document) ByKind(k Kind) []*Record {
	var out []*Record
	for _, r := range d.Records {
		if r.Kind == k {
			out = append(out, r)
		}
	}
	return out
}

// ByKinds returns the records matching any of kinds in document order.
func (d *Document) ByKinds(kinds ...Kind) []*Record {
	want := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	var out []*Record
	for _, r := range d.Records {
		if want[r.Kind] {
			out = append(out, r)
		}
	}
	return out
}

// ByBlock returns the records of block b.
func (d *Document) ByBlock(b int) []*Record {
	return d.ByBlocks(b)
}

// ByBlocks returns the records belonging to any of blocks in document
// order. Repeated block indices do not duplicate records.
func (d *Document) ByBlocks(blocks ...int) []*Record {
	want := make(map[int]bool, len(blocks))
	for _, b := range blocks {
		want[b] = true
	}
	var out []*Record
	for _, r := range d.Records {
		if want[r.Block] {
			out = append(out, r)
		}
	}
	return out
}

// ByTimeRange returns every record of the blocks whose timestamp lies in
// [from, to]. A zero bound leaves that side of the range open.
func (d *Document) ByTimeRange(from, to time.Time) []*Record {
	var blocks []int
	for _, r := range d.Timestamps() {
		ts, _ := r.Timestamp()
		if !from.IsZero() && ts.Time.Before(from) {
			continue
		}
		if !to.IsZero() && ts.Time.After(to) {
			continue
		}
		blocks = append(blocks, r.Block)
	}
	if len(blocks) == 0 {
		return nil
	}
	return d.ByBlocks(blocks...)
}

// Timestamps returns the block-opening records.
func (d *Document) Timestamps() []*Record {
	return d.ByKind(KindTimestamp)
}

// BlockTime returns the timestamp of block b. Block 0 has none.
func (d *Document) BlockTime(b int) (time.Time, bool) {
	if b <= 0 {
		return time.Time{}, false
	}
	for _, r := range d.Records {
		if r.Block > b {
			break
		}
		if r.Block == b {
			if ts, ok := r.Timestamp(); ok {
				return ts.Time, true
			}
			return time.Time{}, false
		}
	}
	return time.Time{}, false
}

// Blocks groups the records by block index.
func (d *Document) Blocks() []Block {
	var out []Block
	for _, r := range d.Records {
		if len(out) == 0 || out[len(out)-1].Index != r.Block {
			b := Block{Index: r.Block}
			if ts, ok := r.Timestamp(); ok {
				b.Time = ts.Time
			}
			out = append(out, b)
		}
		last := &out[len(out)-1]
		last.Records = append(last.Records, r)
	}
	return out
}

// KindCounts counts records per kind.
func (d *Document) KindCounts() map[Kind]int {
	out := make(map[Kind]int)
	for _, r := range d.Records {
		out[r.Kind]++
	}
	return out
}

// SessionDuration is the span between the first and last timestamps.
func (d *Document) SessionDuration() time.Duration {
	stamps := d.Timestamps()
	if len(stamps) < 2 {
		return 0
	}
	first, _ := stamps[0].Timestamp()
	last, _ := stamps[len(stamps)-1].Timestamp()
	return last.Time.Sub(first.Time)
}

// StartupTime returns the time of the block holding the command that ends
// application startup.
func (d *Document) StartupTime() (time.Time, bool) {
	id := StartupPageID
	if d.opensModelBrowser() {
		id = StartupModelBrowserID
	}
	r, ok := d.firstCommand(id)
	if !ok {
		r, ok = d.firstCommand(StartupPlaybackID)
	}
	if !ok {
		return time.Time{}, false
	}
	return d.BlockTime(r.Block)
}

func (d *Document) opensModelBrowser() bool {
	v := d.Meta.Version
	if v > StartupModelBrowserVersion {
		return true
	}
	if v < StartupModelBrowserVersion {
		return false
	}
	_, minor, ok := strings.Cut(d.Meta.Release, ".")
	if !ok {
		return false
	}
	fix, err := strconv.Atoi(strings.TrimSpace(minor))
	return err == nil && fix >= 1
}

func (d *Document) firstCommand(id string) (*Record, bool) {
	for _, r := range d.Records {
		if c, ok := r.Command(); ok && c.ID == id {
			return r, true
		}
	}
	return nil, false
}

// LicenseInfo reports the licensing mode and status, joined by ':'.
// Network licenses also carry the license server type.
func (d *Document) LicenseInfo() (string, bool) {
	for _, r := range d.Records {
		if r.Kind != KindComment || !strings.Contains(r.Raw, LicenseModeMarker) {
			continue
		}
		mode, ok := field(r.Raw, ':', 2)
		if !ok {
			return "", false
		}
		next, ok := d.Next(r)
		if !ok {
			return "", false
		}
		if mode != "Network" {
			status, ok := field(next.Raw, ':', 2)
			if !ok {
				return "", false
			}
			return mode + ":" + status, true
		}
		server, ok := field(next.Raw, ':', 2)
		if !ok {
			return "", false
		}
		after, ok := d.Next(next)
		if !ok {
			return "", false
		}
		status, ok := field(after.Raw, ':', 2)
		if !ok {
			return "", false
		}
		return mode + ":" + server + ":" + status, true
	}
	return "", false
}

// field returns the trimmed i-th sep-separated segment of s.
func field(s string, sep byte, i int) (string, bool) {
	parts := strings.Split(s, string(sep))
	if i >= len(parts) {
		return "", false
	}
	return strings.TrimSpace(parts[i]), true
}

// HasAPIErrors reports whether any API message is flagged as an error.
func (d *Document) HasAPIErrors() bool {
	for _, r := range d.Records {
		if m, ok := r.APIMessage(); ok && m.IsError {
			return true
		}
	}
	return false
}

// HasExceptions reports whether any timestamp records an exception.
func (d *Document) HasExceptions() bool {
	for _, r := range d.Records {
		if ts, ok := r.Timestamp(); ok && strings.HasPrefix(ts.Description, ExceptionDescriptionPrefix) {
			return true
		}
	}
	return false
}

// TerminatedCleanly reports whether the final timestamp closes the journal.
func (d *Document) TerminatedCleanly() bool {
	stamps := d.Timestamps()
	if len(stamps) == 0 {
		return false
	}
	ts, _ := stamps[len(stamps)-1].Timestamp()
	return ts.Description == FinishedRecordingDescription
}

// Next returns the record following r.
func (d *Document) Next(r *Record) (*Record, bool) {
	i, ok := d.index(r)
	if !ok || i+1 >= len(d.Records) {
		return nil, false
	}
	return d.Records[i+1], true
}

// Prev returns the record preceding r.
func (d *Document) Prev(r *Record) (*Record, bool) {
	i, ok := d.index(r)
	if !ok || i == 0 {
		return nil, false
	}
	return d.Records[i-1], true
}

func (d *Document) index(r *Record) (int, bool) {
	if r == nil {
		return 0, false
	}
	i := sort.Search(len(d.Records), func(i int) bool {
		return d.Records[i].Line >= r.Line
	})
	if i < len(d.Records) && d.Records[i].Line == r.Line {
		return i, true
	}
	return 0, false
}
