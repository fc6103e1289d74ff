package model

// Kind identifies the category of a decoded journal record.
type Kind int

const (
	KindGeneric Kind = iota
	KindAddinEvent
	KindAPIMessage
	KindBasicFileInfo
	KindCommand
	KindComment
	KindData
	KindDirective
	KindGUIResourceUsage
	KindKeyboardEvent
	KindMemoryMetrics
	KindMiscCommand
	KindMouseEvent
	KindSystemInformation
	KindTimestamp
	KindUIEvent
	KindWorksharingEvent
)

var kindNames = [...]string{
	KindGeneric:           "JournalLine",
	KindAddinEvent:        "JournalAddinEvent",
	KindAPIMessage:        "JournalAPIMessage",
	KindBasicFileInfo:     "JournalBasicFileInfo",
	KindCommand:           "JournalCommand",
	KindComment:           "JournalComment",
	KindData:              "JournalData",
	KindDirective:         "JournalDirective",
	KindGUIResourceUsage:  "JournalGUIResourceUsage",
	KindKeyboardEvent:     "JournalKeyboardEvent",
	KindMemoryMetrics:     "JournalMemoryMetrics",
	KindMiscCommand:       "JournalMiscCommand",
	KindMouseEvent:        "JournalMouseEvent",
	KindSystemInformation: "JournalSystemInformation",
	KindTimestamp:         "JournalTimeStamp",
	KindUIEvent:           "JournalUIEvent",
	KindWorksharingEvent:  "JournalWorksharingEvent",
}

// String returns the stable external name of the kind.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindGeneric]
	}
	return kindNames[k]
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, ok := ParseKind(string(b))
	if !ok {
		*k = KindGeneric
		return nil
	}
	*k = parsed
	return nil
}

// ParseKind resolves an external kind name. The short form without the
// "Journal" prefix ("Command", "TimeStamp") is accepted as well.
func ParseKind(name string) (Kind, bool) {
	for i, n := range kindNames {
		if n == name || n[len("Journal"):] == name {
			return Kind(i), true
		}
	}
	return KindGeneric, false
}

// Kinds returns every kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, len(kindNames))
	for i := range kindNames {
		out[i] = Kind(i)
	}
	return out
}
