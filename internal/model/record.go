package model

import (
	"encoding/json"
	"time"
)

// Record is one logical journal record: the envelope shared by every kind
// plus the kind-specific Fields. Fields is nil for comments, miscellaneous
// commands and generic lines.
type Record struct {
	Line   int // 1-based physical line that opened the record
	Raw    string
	Block  int
	Kind   Kind
	Fields Payload
}

// Payload is implemented by the kind-specific field sets of a Record.
type Payload interface {
	Kind() Kind
}

// TimeStamp opens a block. Type is the marker character: 'C', 'H' or 'E'.
type TimeStamp struct {
	Type        byte      `json:"-"`
	Time        time.Time `json:"time"`
	Description string    `json:"description"`
}

// APIMessage is an add-in API success or failure notice.
type APIMessage struct {
	IsError bool   `json:"is_error"`
	Text    string `json:"text"`
	Type    string `json:"type"`
}

// Command is a user or internal command invocation.
type Command struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	ID          string `json:"id"`
}

// Directive is a journal playback directive.
type Directive struct {
	Key    string   `json:"key"`
	Values []string `json:"values"`
}

// Data is a journal data entry.
type Data struct {
	Key    string   `json:"key"`
	Values []string `json:"values"`
}

// WorksharingEvent is a collaboration session log entry.
type WorksharingEvent struct {
	SessionID string    `json:"session_id"`
	Time      time.Time `json:"time"`
	Text      string    `json:"text"`
}

// SystemInformation is one key/value pair of the host system dump. Item
// counts repeated entities (processors, printers) within a section.
type SystemInformation struct {
	Type  string `json:"type"`
	Item  int    `json:"item"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// MouseEvent carries the mouse action and its integer arguments.
type MouseEvent struct {
	Type string `json:"type"`
	Data []int  `json:"data"`
}

// UIEvent carries the widget action and its string arguments.
type UIEvent struct {
	Type string   `json:"type"`
	Data []string `json:"data"`
}

type KeyboardEvent struct {
	Key string `json:"key"`
}

type AddinEvent struct {
	Text string `json:"text"`
}

// MemoryMetrics holds virtual and physical memory readings in MB.
type MemoryMetrics struct {
	VMAvailable  int `json:"vm_available"`
	VMUsed       int `json:"vm_used"`
	VMPeak       int `json:"vm_peak"`
	RAMAvailable int `json:"ram_available"`
	RAMUsed      int `json:"ram_used"`
	RAMPeak      int `json:"ram_peak"`
}

// GUIResourceUsage holds GDI handle usage.
type GUIResourceUsage struct {
	Available int    `json:"available"`
	Used      int    `json:"used"`
	User      string `json:"user"`
}

// BasicFileInfo describes the model file opened in the session.
type BasicFileInfo struct {
	Worksharing      string            `json:"worksharing"`
	CentralModelPath string            `json:"central_model_path"`
	LastSavePath     string            `json:"last_save_path"`
	FileName         string            `json:"file_name"`
	Locale           string            `json:"locale"`
	Attributes       map[string]string `json:"attributes"`
}

func (*TimeStamp) Kind() Kind         { return KindTimestamp }
func (*APIMessage) Kind() Kind        { return KindAPIMessage }
func (*Command) Kind() Kind           { return KindCommand }
func (*Directive) Kind() Kind         { return KindDirective }
func (*Data) Kind() Kind              { return KindData }
func (*WorksharingEvent) Kind() Kind  { return KindWorksharingEvent }
func (*SystemInformation) Kind() Kind { return KindSystemInformation }
func (*MouseEvent) Kind() Kind        { return KindMouseEvent }
func (*UIEvent) Kind() Kind           { return KindUIEvent }
func (*KeyboardEvent) Kind() Kind     { return KindKeyboardEvent }
func (*AddinEvent) Kind() Kind        { return KindAddinEvent }
func (*MemoryMetrics) Kind() Kind     { return KindMemoryMetrics }
func (*GUIResourceUsage) Kind() Kind  { return KindGUIResourceUsage }
func (*BasicFileInfo) Kind() Kind     { return KindBasicFileInfo }

// MarshalJSON renders the stamp type as a one-character string.
func (t *TimeStamp) MarshalJSON() ([]byte, error) {
	type alias TimeStamp
	return json.Marshal(struct {
		StampType string `json:"stamp_type"`
		*alias
	}{
		StampType: string(t.Type),
		alias:     (*alias)(t),
	})
}

type recordJSON struct {
	Line   int     `json:"line"`
	Block  int     `json:"block"`
	Kind   Kind    `json:"kind"`
	Raw    string  `json:"raw"`
	Fields Payload `json:"fields,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		Line:   r.Line,
		Block:  r.Block,
		Kind:   r.Kind,
		Raw:    r.Raw,
		Fields: r.Fields,
	})
}

// Timestamp returns the timestamp fields when r opens a block.
func (r *Record) Timestamp() (*TimeStamp, bool) {
	ts, ok := r.Fields.(*TimeStamp)
	return ts, ok
}

// Command returns the command fields when r is a command record.
func (r *Record) Command() (*Command, bool) {
	c, ok := r.Fields.(*Command)
	return c, ok
}

// APIMessage returns the API message fields when r is an API record.
func (r *Record) APIMessage() (*APIMessage, bool) {
	m, ok := r.Fields.(*APIMessage)
	return m, ok
}
