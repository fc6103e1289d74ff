package ingest

import (
	"strings"

	"github.com/tinytelemetry/journalscope/internal/logparse"
	"github.com/tinytelemetry/journalscope/internal/model"
)

// Processor runs the first decoding pass: it classifies lines, folds
// continuation lines into the record they extend and assigns blocks.
// A Processor decodes exactly one journal and is not safe for concurrent use.
type Processor struct {
	records []*model.Record
	last    *model.Record
	block   int
	sysinfo logparse.SysInfoTracker
}

// NewProcessor creates a first-pass processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// ProcessLine consumes one physical line. lineNo is its 1-based position in
// the input.
func (p *Processor) ProcessLine(lineNo int, line string) error {
	line = strings.TrimSpace(line)
	if len(line) < 2 {
		return nil
	}

	kind, opensBlock := logparse.Classify(line)
	if opensBlock {
		p.block++
		p.emit(lineNo, line, kind, nil)
		return nil
	}

	// Only lines without a kind marker can continue the previous record.
	if kind == model.KindComment || kind == model.KindMiscCommand {
		merged, err := p.continueLast(lineNo, line)
		if err != nil || merged {
			return err
		}
	}

	var fields model.Payload
	switch kind {
	case model.KindCommand:
		p.sysinfo.ObserveCommand()
	case model.KindComment:
		var section string
		kind, section = p.sysinfo.ClassifyComment(line)
		if kind == model.KindSystemInformation {
			fields = &model.SystemInformation{Type: section}
		}
	}
	p.emit(lineNo, line, kind, fields)
	return nil
}

// continueLast folds line into the previous record when the record ends in
// a line-continuation marker, the line starts with a comma, or the line
// extends an open API message.
func (p *Processor) continueLast(lineNo int, line string) (bool, error) {
	if p.last != nil && strings.HasSuffix(p.last.Raw, "_") {
		p.last.Raw = strings.TrimRight(p.last.Raw, "_") + line
		return true, nil
	}
	if strings.HasPrefix(line, ",") {
		if p.last == nil {
			return false, &DecodeError{Line: lineNo, Err: ErrOrphanContinuation}
		}
		p.last.Raw = strings.ReplaceAll(p.last.Raw+line, "_,", ",")
		return true, nil
	}
	if p.continuesAPIMessage(line) {
		p.last.Raw += " " + line[1:]
		return true, nil
	}
	return false, nil
}

// continuesAPIMessage reports whether a quote-prefixed line extends an API
// message whose braces are still open.
func (p *Processor) continuesAPIMessage(line string) bool {
	if p.last == nil || p.last.Kind != model.KindAPIMessage {
		return false
	}
	if line[0] != '\'' || line[1] == ' ' {
		return false
	}
	return !strings.HasSuffix(p.last.Raw, "}")
}

// emit appends a new record. A continuation marker left on the previous
// record by an interrupting kinded line is dropped.
func (p *Processor) emit(lineNo int, line string, kind model.Kind, fields model.Payload) {
	if p.last != nil {
		p.last.Raw = strings.TrimRight(p.last.Raw, "_")
	}
	r := &model.Record{
		Line:   lineNo,
		Raw:    line,
		Block:  p.block,
		Kind:   kind,
		Fields: fields,
	}
	p.records = append(p.records, r)
	p.last = r
}

// Blocks returns the number of blocks opened so far.
func (p *Processor) Blocks() int {
	return p.block
}

// Finish returns the raw records. A continuation marker left dangling at the
// end of the input is dropped.
func (p *Processor) Finish() []*model.Record {
	if p.last != nil {
		p.last.Raw = strings.TrimRight(p.last.Raw, "_")
	}
	return p.records
}
