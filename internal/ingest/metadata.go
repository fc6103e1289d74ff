package ingest

import (
	"strconv"
	"strings"

	"github.com/tinytelemetry/journalscope/internal/logparse"
	"github.com/tinytelemetry/journalscope/internal/model"
)

// Comment markers carrying document metadata.
const (
	journalPathMarker = "this journal ="
	sessionIDMarker   = "BIMBunny"
	machineNameMarker = "Additional IP address/name found for host"
	osCaptionMarker   = "Caption :"
)

// Section keys that start a new item in the system information dump.
var sysInfoItemKeys = map[string]string{
	logparse.SectionProcessor:            "AddressWidth",
	logparse.SectionVideoController:      "AdapterCompatibility",
	logparse.SectionPrinter:              "Caption",
	logparse.SectionPrinterConfiguration: "Color",
}

// metaCollector accumulates document metadata during the second pass.
type metaCollector struct {
	meta  model.Metadata
	items map[string]int
}

func newMetaCollector() *metaCollector {
	return &metaCollector{items: make(map[string]int)}
}

func (c *metaCollector) observe(r *model.Record) {
	switch f := r.Fields.(type) {
	case *model.Directive:
		c.observeDirective(f)
	case *model.SystemInformation:
		c.observeSystemInformation(r.Raw, f)
	case nil:
		if r.Kind == model.KindComment {
			c.observeComment(r.Raw)
		}
	}
}

func (c *metaCollector) observeDirective(d *model.Directive) {
	if len(d.Values) == 0 {
		return
	}
	switch d.Key {
	case "Version":
		v := d.Values[0]
		if len(v) >= 4 {
			if n, err := strconv.Atoi(v[:4]); err == nil {
				c.meta.Version = n
			}
		}
	case "Username":
		c.meta.Username = d.Values[0]
	}
}

func (c *metaCollector) observeSystemInformation(raw string, si *model.SystemInformation) {
	if key, ok := sysInfoItemKeys[si.Type]; ok && si.Key == key {
		c.items[si.Type]++
	}
	si.Item = c.items[si.Type]

	if c.meta.OSVersion == "" && si.Type == logparse.SectionOperatingSystem && strings.Contains(raw, osCaptionMarker) {
		c.meta.OSVersion = strings.TrimSpace(raw[strings.LastIndex(raw, ":")+1:])
	}
}

func (c *metaCollector) observeComment(raw string) {
	if _, after, ok := strings.Cut(raw, journalPathMarker); ok {
		c.meta.Path = strings.TrimSpace(after)
		return
	}

	body := strings.TrimSpace(strings.TrimPrefix(raw, "'"))
	switch {
	case strings.HasPrefix(body, "Build:"):
		c.meta.Build = afterColon(body)
		return
	case strings.HasPrefix(body, "Branch:"):
		c.meta.Branch = afterColon(body)
		return
	case strings.HasPrefix(body, "Release:"):
		c.meta.Release = afterColon(body)
		return
	}

	if strings.Contains(raw, sessionIDMarker) {
		if _, after, ok := strings.Cut(raw, "{"); ok {
			c.meta.SessionID = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(after), "}"))
		}
		return
	}

	if c.meta.MachineName == "" && strings.Contains(raw, machineNameMarker) {
		parts := strings.Split(raw, ":")
		if len(parts) > 1 {
			c.meta.MachineName = lastToken(parts[1])
		}
	}
}

func afterColon(s string) string {
	_, after, _ := strings.Cut(s, ":")
	return strings.TrimSpace(after)
}
