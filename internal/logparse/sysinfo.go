package logparse

import (
	"strings"

	"github.com/tinytelemetry/journalscope/internal/model"
)

// System information sections.
const (
	SectionOperatingSystem      = "OperatingSystem"
	SectionProcessor            = "Processor"
	SectionVideoController      = "VideoController"
	SectionPrinter              = "Printer"
	SectionPrinterConfiguration = "PrinterConfiguration"
	SectionUnknown              = "Unknown"
)

// SysInfoDelimiter separates the comment marker from an indented key/value
// pair of the system information dump.
const SysInfoDelimiter = ":<    "

// SysInfoCommandThreshold is the number of commands after which indented
// comments are read as system information.
const SysInfoCommandThreshold = 2

const osHeader = ":< OPERATING SYSTEM INFORMATION:"

var sectionHeaders = []struct {
	marker  string
	section string
}{
	{":< PROCESSOR INFORMATION:", SectionProcessor},
	{":< VIDEO CONTROLLER INFORMATION:", SectionVideoController},
	{":< PRINTER INFORMATION:", SectionPrinter},
	{":< PRINTER CONFIGURATION INFORMATION:", SectionPrinterConfiguration},
}

// SysInfoTracker carries the comment sub-classification state of a single
// decoding pass. The zero value is ready to use.
type SysInfoTracker struct {
	commands int
	started  bool
	section  string
}

// ObserveCommand counts a command record. The count saturates at the
// threshold.
func (t *SysInfoTracker) ObserveCommand() {
	if t.commands < SysInfoCommandThreshold {
		t.commands++
	}
}

// Started reports whether the operating system header has been seen.
func (t *SysInfoTracker) Started() bool { return t.started }

// Section returns the current system information section.
func (t *SysInfoTracker) Section() string { return t.section }

// ClassifyComment refines a comment line. It returns KindSystemInformation
// and the section name for key/value lines of the system dump, and
// KindComment otherwise.
func (t *SysInfoTracker) ClassifyComment(line string) (model.Kind, string) {
	if t.commands == SysInfoCommandThreshold && t.started {
		for _, h := range sectionHeaders {
			if strings.Contains(line, h.marker) {
				t.section = h.section
				return model.KindComment, ""
			}
		}
		if strings.Contains(line, " INFORMATION:") {
			t.section = SectionUnknown
			return model.KindComment, ""
		}
		i := strings.LastIndex(line, SysInfoDelimiter)
		if i < 0 {
			return model.KindComment, ""
		}
		if strings.HasPrefix(line[i+len(SysInfoDelimiter):], " ") {
			return model.KindComment, ""
		}
		return model.KindSystemInformation, t.section
	}

	if !t.started && strings.Contains(line, osHeader) {
		t.started = true
		t.section = SectionOperatingSystem
	}
	return model.KindComment, ""
}
