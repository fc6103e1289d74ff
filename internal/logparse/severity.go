package logparse

import (
	"strings"

	"github.com/tinytelemetry/journalscope/internal/model"
)

// Severity levels assigned to decoded records.
const (
	SeverityInfo  = "INFO"
	SeverityWarn  = "WARN"
	SeverityError = "ERROR"
)

// Severity grades a decoded record. API failures, exception stamps and
// exception API messages are errors; reused or replaced command ids and
// saturated GDI handles are warnings.
func Severity(r *model.Record) string {
	switch f := r.Fields.(type) {
	case *model.APIMessage:
		if f.IsError || f.Type == "Exception" {
			return SeverityError
		}
		if f.Type == "ReplacingCommandID" {
			return SeverityWarn
		}
	case *model.TimeStamp:
		if strings.HasPrefix(f.Description, model.ExceptionDescriptionPrefix) {
			return SeverityError
		}
		if f.Type == 'E' {
			return SeverityWarn
		}
	case *model.GUIResourceUsage:
		if f.Available > 0 && f.Used*10 >= f.Available*9 {
			return SeverityWarn
		}
	}
	return SeverityInfo
}
