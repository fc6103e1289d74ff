// Package logparse classifies journal lines into record kinds.
package logparse

import (
	"strings"

	"github.com/tinytelemetry/journalscope/internal/model"
)

// Inline markers recognized anywhere in a line.
const (
	APISuccessMarker  = ":< API_SUCCESS { "
	APIErrorMarker    = ":< API_ERROR { "
	DeltaVMMarker     = ":: Delta VM: "
	InitialVMPrefix   = "' 0:< Initial VM: "
	GUIResourceMarker = ":< GUI Resource Usage GDI: "
	WorksharingMarker = ":< SLOG $"
)

// Line prefixes.
const (
	BasicFileInfoPrefix = "' [Jrn.BasicFileInfo]"
	DataPrefix          = "Jrn.Data "
	DirectivePrefix     = "Jrn.Directive "
	CommandPrefix       = "Jrn.Command "
	KeyboardPrefix      = "Jrn.Key "
	AddinPrefix         = "Jrn.AddInEvent "
	CommentPrefix       = "'"
)

var timestampPrefixes = []string{"'C ", "'H ", "'E "}

var mousePrefixes = []string{
	"Jrn.Wheel ",
	"Jrn.MouseMove",
	"Jrn.LButtonUp", "Jrn.LButtonDown", "Jrn.LButtonDblClk",
	"Jrn.MButtonUp", "Jrn.MButtonDown", "Jrn.MButtonDblClk",
	"Jrn.RButtonUp", "Jrn.RButtonDown", "Jrn.RButtonDblClk",
	"Jrn.Scroll",
}

var uiPrefixes = []string{
	"Jrn.Activate",
	"Jrn.AppButtonEvent",
	"Jrn.Browser",
	"Jrn.CheckBox",
	"Jrn.Close",
	"Jrn.ComboBox",
	"Jrn.DropFiles",
	"Jrn.Edit",
	"Jrn.Grid",
	"Jrn.ListBox",
	"Jrn.Maximize",
	"Jrn.Minimize",
	"Jrn.PropertiesPalette",
	"Jrn.PushButton",
	"Jrn.RadioButton",
	"Jrn.RibbonEvent",
	"Jrn.SBTrayAction",
	"Jrn.Size",
	"Jrn.SliderCtrl",
	"Jrn.TabCtrl",
	"Jrn.TreeCtrl",
	"Jrn.WidgetEvent",
}

// IsBlockStamp reports whether line opens a new block.
func IsBlockStamp(line string) bool {
	return hasAnyPrefix(line, timestampPrefixes)
}

// Classify returns the kind of a trimmed journal line and whether it opens a
// block. Comment lines are reported as KindComment; SysInfoTracker refines
// them. Unrecognized lines are KindMiscCommand.
func Classify(line string) (model.Kind, bool) {
	if IsBlockStamp(line) {
		return model.KindTimestamp, true
	}

	switch {
	case strings.Contains(line, APISuccessMarker), strings.Contains(line, APIErrorMarker):
		return model.KindAPIMessage, false
	case strings.Contains(line, DeltaVMMarker), strings.HasPrefix(line, InitialVMPrefix):
		return model.KindMemoryMetrics, false
	case strings.Contains(line, GUIResourceMarker):
		return model.KindGUIResourceUsage, false
	case strings.Contains(line, WorksharingMarker):
		return model.KindWorksharingEvent, false
	}

	switch {
	case strings.HasPrefix(line, BasicFileInfoPrefix):
		return model.KindBasicFileInfo, false
	case strings.HasPrefix(line, DataPrefix):
		return model.KindData, false
	case strings.HasPrefix(line, DirectivePrefix):
		return model.KindDirective, false
	case strings.HasPrefix(line, CommandPrefix):
		return model.KindCommand, false
	case strings.HasPrefix(line, KeyboardPrefix):
		return model.KindKeyboardEvent, false
	case strings.HasPrefix(line, AddinPrefix):
		return model.KindAddinEvent, false
	case hasAnyPrefix(line, mousePrefixes):
		return model.KindMouseEvent, false
	case hasAnyPrefix(line, uiPrefixes):
		return model.KindUIEvent, false
	case strings.HasPrefix(line, CommentPrefix):
		return model.KindComment, false
	}
	return model.KindMiscCommand, false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
