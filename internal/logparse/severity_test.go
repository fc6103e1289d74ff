package logparse

import (
	"testing"

	"github.com/tinytelemetry/journalscope/internal/model"
)

func TestSeverity(t *testing.T) {
	tests := []struct {
		name     string
		fields   model.Payload
		expected string
	}{
		{"plain comment", nil, SeverityInfo},
		{"api success", &model.APIMessage{Type: "RegisteringEvent"}, SeverityInfo},
		{"api error", &model.APIMessage{IsError: true}, SeverityError},
		{"api exception", &model.APIMessage{Type: "Exception"}, SeverityError},
		{"replaced command", &model.APIMessage{Type: "ReplacingCommandID"}, SeverityWarn},
		{"exception stamp", &model.TimeStamp{Type: 'E', Description: "ExceptionCode=0xc0000005"}, SeverityError},
		{"error stamp", &model.TimeStamp{Type: 'E'}, SeverityWarn},
		{"regular stamp", &model.TimeStamp{Type: 'H'}, SeverityInfo},
		{"gdi saturated", &model.GUIResourceUsage{Available: 100, Used: 95}, SeverityWarn},
		{"gdi fine", &model.GUIResourceUsage{Available: 10000, Used: 107}, SeverityInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Severity(&model.Record{Fields: tt.fields})
			if got != tt.expected {
				t.Errorf("Severity(%s) = %q, want %q", tt.name, got, tt.expected)
			}
		})
	}
}
