package logparse

import (
	"testing"

	"github.com/tinytelemetry/journalscope/internal/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		input      string
		kind       model.Kind
		opensBlock bool
	}{
		// Block stamps
		{"'C 20-Jun-2019 14:25:36.442;   started recording journal file", model.KindTimestamp, true},
		{"'H 20-Jun-2019 14:25:38.001;   0:< ", model.KindTimestamp, true},
		{"'E 20-Jun-2019 14:25:39.000;   0:< ExceptionCode=0xc0000005", model.KindTimestamp, true},
		// Inline markers
		{`' 0:< API_SUCCESS { Registered an external service "Foo" }`, model.KindAPIMessage, false},
		{`' 0:< API_ERROR { Starting External Application failed }`, model.KindAPIMessage, false},
		{"' 0:< ::0:: Delta VM: Avail -1 -> 10 MB, Used +1 -> 2 MB", model.KindMemoryMetrics, false},
		{"' 0:< Initial VM: Avail 134213236 MB, Used 17 MB", model.KindMemoryMetrics, false},
		{"' 0:< GUI Resource Usage GDI: Avail 9893, Used 107, User: Used 72", model.KindGUIResourceUsage, false},
		{"' 1:< SLOG $1b2a 2019-06-20 14:25:36.442 >Open", model.KindWorksharingEvent, false},
		// Prefixes
		{"' [Jrn.BasicFileInfo] Rvt.Attr.Worksharing: Not enabled", model.KindBasicFileInfo, false},
		{`Jrn.Data "File Name"  , "IDOK", "C:\a.rvt"`, model.KindData, false},
		{`Jrn.Directive "Version"  , "2019.000", "2.090"`, model.KindDirective, false},
		{`Jrn.Command "Ribbon" , "Open a project , ID_REVIT_FILE_OPEN"`, model.KindCommand, false},
		{`Jrn.Key 0 , "VK_ESCAPE" , 0`, model.KindKeyboardEvent, false},
		{`Jrn.AddInEvent "AddInJournaling"  , "WpfWindow(Foo,'Bar').Close()"`, model.KindAddinEvent, false},
		{"Jrn.Wheel -120 ,  0 ,  1234 ,  567", model.KindMouseEvent, false},
		{"Jrn.MouseMove    0 ,   1234 ,    567", model.KindMouseEvent, false},
		{"Jrn.LButtonDblClk    0 ,   1 ,    2", model.KindMouseEvent, false},
		{"Jrn.Scroll 1", model.KindMouseEvent, false},
		{`Jrn.RibbonEvent "TabActivated:Modify"`, model.KindUIEvent, false},
		{`Jrn.PushButton "Modal , Options , Dialog" , "OK, IDOK"`, model.KindUIEvent, false},
		{"Jrn.Maximize", model.KindUIEvent, false},
		// Comments and fallback
		{"' Build: 20190227_1515(x64)", model.KindComment, false},
		{"'Continuation of something", model.KindComment, false},
		{"Dim Jrn", model.KindMiscCommand, false},
		{"Set Jrn = CrsJournalScript", model.KindMiscCommand, false},
		{"'X 20-Jun-2019", model.KindComment, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			kind, opens := Classify(tt.input)
			if kind != tt.kind || opens != tt.opensBlock {
				t.Errorf("Classify(%q) = %v, %v; want %v, %v", tt.input, kind, opens, tt.kind, tt.opensBlock)
			}
		})
	}
}

func TestSysInfoTracker(t *testing.T) {
	var tr SysInfoTracker

	// Before the threshold the dump stays commentary but the header arms it.
	if k, _ := tr.ClassifyComment("' 0:<    Caption : Windows"); k != model.KindComment {
		t.Fatalf("pre-start = %v", k)
	}
	if k, _ := tr.ClassifyComment("' 0:< OPERATING SYSTEM INFORMATION:"); k != model.KindComment {
		t.Fatalf("header = %v", k)
	}
	if !tr.Started() || tr.Section() != SectionOperatingSystem {
		t.Fatalf("started = %v, section = %q", tr.Started(), tr.Section())
	}
	tr.ObserveCommand()
	if k, _ := tr.ClassifyComment("' 0:<    Caption : Windows"); k != model.KindComment {
		t.Fatalf("one command = %v", k)
	}
	tr.ObserveCommand()
	tr.ObserveCommand()

	tests := []struct {
		line    string
		kind    model.Kind
		section string
	}{
		{"' 0:<    Caption : Microsoft Windows 10 Pro", model.KindSystemInformation, SectionOperatingSystem},
		{"' 0:<     indented further", model.KindComment, ""},
		{"' 0:< PROCESSOR INFORMATION:", model.KindComment, ""},
		{"' 0:<    AddressWidth : 64", model.KindSystemInformation, SectionProcessor},
		{"' 0:< VIDEO CONTROLLER INFORMATION:", model.KindComment, ""},
		{"' 0:<    AdapterCompatibility : NVIDIA", model.KindSystemInformation, SectionVideoController},
		{"' 0:< PRINTER CONFIGURATION INFORMATION:", model.KindComment, ""},
		{"' 0:<    Color : 2", model.KindSystemInformation, SectionPrinterConfiguration},
		{"' 0:< PRINTER INFORMATION:", model.KindComment, ""},
		{"' 0:<    Caption : PDF", model.KindSystemInformation, SectionPrinter},
		{"' 0:< DISK INFORMATION:", model.KindComment, ""},
		{"' 0:<    Size : 512", model.KindSystemInformation, SectionUnknown},
		{"' 0:< plain remark", model.KindComment, ""},
	}
	for _, tt := range tests {
		kind, section := tr.ClassifyComment(tt.line)
		if kind != tt.kind || section != tt.section {
			t.Errorf("ClassifyComment(%q) = %v, %q; want %v, %q", tt.line, kind, section, tt.kind, tt.section)
		}
	}
}
