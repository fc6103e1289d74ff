package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tinytelemetry/journalscope/internal/logparse"
	"github.com/tinytelemetry/journalscope/internal/model"
	"github.com/tinytelemetry/journalscope/internal/timestamp"
)

// API message types, by text prefix. Order matters: the first match wins.
var apiMessageTypes = []struct {
	prefix string
	typ    string
}{
	{"Registered an external service", "RegisteredExternalService"},
	{"Registered an external server", "RegisteredExternalServer"},
	{"An external server has been registered", "RegisteredExternalServer"},
	{"Starting External DB Application", "StartingExternalDBApp"},
	{"Starting External Application", "StartingExternalApp"},
	{"Registering", "RegisteringEvent"},
	{"Replacing command id", "ReplacingCommandID"},
	{"API registering command", "RegisteringCommandEvent"},
	{"Added pushbutton", "AddedPushbutton"},
	{"Unregistering", "UnregisteringEvent"},
	{"Restoring command id", "RestoringCommandID"},
	{"API unregistering command", "UnregisteringCommandEvent"},
	{"System.", "Exception"},
}

// APIMessageUnknown is the type of API messages matching no known prefix.
const APIMessageUnknown = "Unknown"

var (
	apiMessageRegex = regexp.MustCompile(`\{ (.*?) \}`)
	commandRegex    = regexp.MustCompile(`"(.*?)" , "(.*?)"`)
	stampMarker     = regexp.MustCompile(`^\d+:<\s*`)

	// Immutable once built; shared by concurrent decodes.
	stampParser = timestamp.NewParser()
)

const (
	directiveKeyOffset = len(`Jrn.Directive "`)
	dataKeyOffset      = len(`Jrn.Data "`)
	keyValueSeparator  = `"  , `
	worksharingPrefix  = ":< SLOG "
)

// UI event types that carry no arguments.
var uiNoData = map[string]bool{"Maximize": true, "Minimize": true, "Restore": true}

// Extract derives the kind-specific fields of a record from its merged raw
// text. It returns a nil payload for comments, miscellaneous commands and
// generic lines. Only block stamps can fail; other kinds leave fields that
// do not match at their zero values.
func Extract(kind model.Kind, raw string) (model.Payload, error) {
	switch kind {
	case model.KindTimestamp:
		return extractTimestamp(raw)
	case model.KindAPIMessage:
		return extractAPIMessage(raw), nil
	case model.KindDirective:
		key, values := extractKeyValues(raw, directiveKeyOffset)
		return &model.Directive{Key: key, Values: values}, nil
	case model.KindData:
		key, values := extractKeyValues(raw, dataKeyOffset)
		return &model.Data{Key: key, Values: values}, nil
	case model.KindWorksharingEvent:
		return extractWorksharing(raw), nil
	case model.KindSystemInformation:
		return extractSystemInformation(raw), nil
	case model.KindCommand:
		return extractCommand(raw), nil
	case model.KindMouseEvent:
		return extractMouse(raw), nil
	case model.KindUIEvent:
		return extractUI(raw), nil
	case model.KindKeyboardEvent:
		return &model.KeyboardEvent{Key: quoted(raw, 1)}, nil
	case model.KindAddinEvent:
		return &model.AddinEvent{Text: quoted(raw, 3)}, nil
	case model.KindMemoryMetrics:
		return extractMemory(raw), nil
	case model.KindGUIResourceUsage:
		return extractGUIResources(raw), nil
	case model.KindBasicFileInfo:
		return extractBasicFileInfo(raw), nil
	}
	return nil, nil
}

func extractTimestamp(raw string) (*model.TimeStamp, error) {
	if len(raw) < 3 {
		return nil, fmt.Errorf("%w: %q", ErrTimestamp, raw)
	}
	// The description is the second ';' segment only; later segments
	// belong to inline metrics.
	segments := strings.Split(raw, ";")
	head := segments[0]
	res := stampParser.ParseFromText(head[min(3, len(head)):])
	if !res.Found {
		return nil, fmt.Errorf("%w: %q", ErrTimestamp, head)
	}
	var desc string
	if len(segments) > 1 {
		desc = strings.TrimSpace(segments[1])
	}
	desc = strings.TrimSpace(stampMarker.ReplaceAllString(desc, ""))
	return &model.TimeStamp{
		Type:        raw[1],
		Time:        res.Timestamp,
		Description: desc,
	}, nil
}

func extractAPIMessage(raw string) *model.APIMessage {
	m := &model.APIMessage{
		IsError: strings.Contains(raw, logparse.APIErrorMarker),
		Type:    APIMessageUnknown,
	}
	if match := apiMessageRegex.FindStringSubmatch(raw); match != nil {
		m.Text = match[1]
	} else if _, after, ok := strings.Cut(raw, "{"); ok {
		inner, _, _ := strings.Cut(after, "}")
		m.Text = strings.TrimSpace(inner)
	}
	for _, t := range apiMessageTypes {
		if strings.HasPrefix(m.Text, t.prefix) {
			m.Type = t.typ
			break
		}
	}
	return m
}

// extractKeyValues splits `Jrn.X "Key"  , "v1", "v2"` into its key and
// unquoted values.
func extractKeyValues(raw string, offset int) (string, []string) {
	head, rest, ok := strings.Cut(raw, keyValueSeparator)
	var key string
	if len(head) > offset {
		key, _, _ = strings.Cut(head[offset:], `"`)
		key = strings.TrimSpace(key)
	}
	if !ok {
		return key, nil
	}
	parts := strings.Split(rest, ",")
	values := make([]string, 0, len(parts))
	for _, v := range parts {
		values = append(values, unquote(v))
	}
	return key, values
}

func extractWorksharing(raw string) *model.WorksharingEvent {
	ev := &model.WorksharingEvent{}
	i := strings.LastIndex(raw, worksharingPrefix)
	if i < 0 {
		return ev
	}
	fields := strings.Fields(raw[i+len(worksharingPrefix):])
	if len(fields) > 0 {
		ev.SessionID = fields[0]
	}
	if len(fields) > 2 {
		if ts, ok := stampParser.ParseTimestamp(fields[1] + " " + fields[2]); ok {
			ev.Time = ts
		}
	}
	if len(fields) > 3 {
		ev.Text = strings.Join(fields[3:], " ")
	}
	return ev
}

func extractSystemInformation(raw string) *model.SystemInformation {
	si := &model.SystemInformation{Value: "None"}
	i := strings.LastIndex(raw, logparse.SysInfoDelimiter)
	if i < 0 {
		return si
	}
	key, value, ok := strings.Cut(raw[i+len(logparse.SysInfoDelimiter):], " : ")
	si.Key = strings.TrimSpace(key)
	if ok && len(si.Key) > 1 {
		si.Value = strings.TrimSpace(value)
	}
	return si
}

func extractCommand(raw string) *model.Command {
	c := &model.Command{}
	match := commandRegex.FindStringSubmatch(raw)
	if match == nil {
		return c
	}
	c.Type = match[1]
	desc, id, _ := strings.Cut(match[2], ",")
	c.Description = strings.TrimSpace(desc)
	c.ID = strings.TrimSpace(id)
	return c
}

func extractMouse(raw string) *model.MouseEvent {
	head, rest, _ := strings.Cut(raw, " ")
	ev := &model.MouseEvent{Type: eventType(head)}
	if strings.TrimSpace(rest) == "" {
		return ev
	}
	var data []int
	for _, tok := range strings.Split(rest, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(tok))
		if err != nil {
			return ev
		}
		data = append(data, n)
	}
	ev.Data = data
	return ev
}

func extractUI(raw string) *model.UIEvent {
	head, rest, _ := strings.Cut(raw, " ")
	ev := &model.UIEvent{Type: eventType(head)}
	if uiNoData[ev.Type] || strings.TrimSpace(rest) == "" {
		return ev
	}
	for _, seg := range strings.Split(rest, ",") {
		v := unquote(seg)
		switch ev.Type {
		case "RibbonEvent", "SBTrayAction":
			ev.Data = appendNonEmpty(ev.Data, strings.Split(v, ":"))
		case "Browser":
			ev.Data = appendNonEmpty(ev.Data, strings.Split(v, ">>"))
		default:
			if v != "" {
				ev.Data = append(ev.Data, v)
			}
		}
	}
	return ev
}

func extractMemory(raw string) *model.MemoryMetrics {
	m := &model.MemoryMetrics{}
	_, body, ok := strings.Cut(raw, "Delta VM:")
	if !ok {
		if _, body, ok = strings.Cut(raw, "Initial VM:"); !ok {
			return m
		}
	}
	body = strings.NewReplacer(";", " ", ",", " ").Replace(body)

	var nums []int
	var labels []string
	for _, tok := range strings.Fields(body) {
		if tok == "->" {
			// The preceding number is a delta; the absolute value follows.
			if len(nums) > 0 {
				nums = nums[:len(nums)-1]
			}
			continue
		}
		if n, err := strconv.Atoi(tok); err == nil {
			nums = append(nums, n)
			continue
		}
		switch tok {
		case "Avail", "Used", "Peak":
			labels = append(labels, tok)
		}
	}

	switch len(nums) {
	case 6:
		m.VMAvailable, m.VMUsed, m.VMPeak = nums[0], nums[1], nums[2]
		m.RAMAvailable, m.RAMUsed, m.RAMPeak = nums[3], nums[4], nums[5]
	case 5:
		m.VMAvailable, m.VMUsed = nums[0], nums[1]
		if len(labels) < 3 {
			break
		}
		switch labels[2] {
		case "Avail":
			m.RAMAvailable, m.RAMUsed, m.RAMPeak = nums[2], nums[3], nums[4]
		case "Peak":
			m.VMPeak = nums[2]
			m.RAMAvailable, m.RAMUsed = nums[3], nums[4]
		}
	case 4:
		m.VMAvailable, m.VMUsed = nums[0], nums[1]
		m.RAMAvailable, m.RAMUsed = nums[2], nums[3]
	}
	return m
}

func extractGUIResources(raw string) *model.GUIResourceUsage {
	g := &model.GUIResourceUsage{}
	segs := strings.Split(raw, ",")
	if len(segs) > 0 {
		g.Available, _ = strconv.Atoi(lastToken(segs[0]))
	}
	if len(segs) > 1 {
		g.Used, _ = strconv.Atoi(lastToken(segs[1]))
	}
	if len(segs) > 2 {
		g.User = lastToken(segs[2])
	}
	return g
}

func extractBasicFileInfo(raw string) *model.BasicFileInfo {
	info := &model.BasicFileInfo{Attributes: map[string]string{}}
	body := strings.TrimPrefix(raw, logparse.BasicFileInfoPrefix)
	parts := strings.Split(body, "Rvt.Attr.")
	for _, part := range parts[1:] {
		key, value, _ := strings.Cut(part, ":")
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		info.Attributes[key] = strings.TrimSpace(value)
	}
	info.Worksharing = info.Attributes["Worksharing"]
	info.CentralModelPath = info.Attributes["CentralModelPath"]
	info.LastSavePath = info.Attributes["LastSavePath"]
	info.Locale = info.Attributes["LocaleWhenSaved"]
	if p := info.LastSavePath; p != "" {
		info.FileName = p[strings.LastIndexAny(p, `\/`)+1:]
	}
	return info
}

// eventType strips the "Jrn." prefix from the first token of an event line.
func eventType(head string) string {
	return strings.TrimSpace(strings.TrimPrefix(head, "Jrn."))
}

func quoted(raw string, i int) string {
	parts := strings.Split(raw, `"`)
	if i >= len(parts) {
		return ""
	}
	return parts[i]
}

func unquote(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(strings.TrimSpace(s), `"`, " "))
}

func lastToken(s string) string {
	f := strings.Fields(s)
	if len(f) == 0 {
		return ""
	}
	return f[len(f)-1]
}

func appendNonEmpty(dst, parts []string) []string {
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			dst = append(dst, p)
		}
	}
	return dst
}
