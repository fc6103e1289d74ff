// Package ingest decodes journal files into documents.
//
// Decoding runs in two passes. The first pass (Processor) classifies every
// line, folds continuation lines and assigns blocks; the second pass
// (Extract) derives kind-specific fields and document metadata. Each call
// owns all of its state, so independent journals can be decoded
// concurrently.
package ingest

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tinytelemetry/journalscope/internal/model"
)

const byteOrderMark = "\ufeff"

type options struct {
	source      string
	maxLineSize int
	now         func() time.Time
}

// Option configures a decode call.
type Option func(*options)

// WithSource records the name the journal was read from.
func WithSource(name string) Option {
	return func(o *options) { o.source = name }
}

// WithMaxLineSize bounds the length of a single physical line.
func WithMaxLineSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxLineSize = n
		}
	}
}

// WithClock replaces the clock used to measure processing time.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		maxLineSize: model.DefaultMaxLineSize,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Decode reads a whole journal from r.
func Decode(r io.Reader, opts ...Option) (doc *model.Document, err error) {
	o := newOptions(opts)
	start := o.now()

	defer func() {
		if rec := recover(); rec != nil {
			doc = nil
			err = &DecodeError{Err: fmt.Errorf("%w: %v", ErrDecode, rec)}
		}
	}()

	p := NewProcessor()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(64*1024, o.maxLineSize)), o.maxLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if lineNo == 1 {
			line = strings.TrimPrefix(line, byteOrderMark)
		}
		if err := p.ProcessLine(lineNo, line); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &DecodeError{Line: lineNo + 1, Err: fmt.Errorf("%w: %w", ErrRead, err)}
	}

	doc, err = assemble(p, o.source)
	if err != nil {
		return nil, err
	}
	doc.ProcessingTime = o.now().Sub(start)
	return doc, nil
}

// DecodeLines decodes a journal already split into lines.
func DecodeLines(lines []string, opts ...Option) (*model.Document, error) {
	return Decode(strings.NewReader(strings.Join(lines, "\n")), opts...)
}

// assemble runs the second pass over the first pass output and builds the
// document.
func assemble(p *Processor, source string) (*model.Document, error) {
	records := p.Finish()
	meta := newMetaCollector()
	for _, r := range records {
		fields, err := Extract(r.Kind, r.Raw)
		if err != nil {
			return nil, &DecodeError{Line: r.Line, Err: err}
		}
		if si, ok := fields.(*model.SystemInformation); ok {
			if stub, ok := r.Fields.(*model.SystemInformation); ok {
				si.Type = stub.Type
			}
		}
		r.Fields = fields
		meta.observe(r)
	}

	meta.meta.BlockCount = p.Blocks()
	meta.meta.Source = source
	return &model.Document{
		Records: records,
		Meta:    meta.meta,
	}, nil
}
