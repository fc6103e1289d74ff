// Package jmes evaluates JMESPath expressions against decoded journals.
package jmes

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/jmespath/go-jmespath"

	"github.com/tinytelemetry/journalscope/internal/model"
)

// Input converts a document into the generic JSON value expressions run
// against: {"meta": {...}, "summary": {...}, "records": [...]}.
func Input(doc *model.Document) (any, error) {
	b, err := json.Marshal(doc.View(true))
	if err != nil {
		return nil, fmt.Errorf("jmes: marshal document: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("jmes: decode document view: %w", err)
	}
	return v, nil
}

// Search evaluates expr against the document.
func Search(doc *model.Document, expr string) (any, error) {
	compiled, err := jmespath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("jmes: compile %q: %w", expr, err)
	}
	input, err := Input(doc)
	if err != nil {
		return nil, err
	}
	res, err := compiled.Search(input)
	if err != nil {
		return nil, fmt.Errorf("jmespath search failed: %w", err)
	}
	return res, nil
}

// First evaluates expr and returns the first non-empty result as a string.
// Array results yield their first non-empty element.
func First(doc *model.Document, expr string) (string, bool, error) {
	res, err := Search(doc, expr)
	if err != nil {
		return "", false, err
	}
	if rv := reflect.ValueOf(res); rv.IsValid() && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) {
		res = nil
		for i := 0; i < rv.Len(); i++ {
			if el := rv.Index(i).Interface(); !isEmpty(el) {
				res = el
				break
			}
		}
	}
	if isEmpty(res) {
		return "", false, nil
	}
	s, err := Format(res, false)
	if err != nil {
		return "", false, err
	}
	return s, true, nil
}

// Format renders a search result: strings verbatim, everything else as
// JSON, indented when pretty is set.
func Format(res any, pretty bool) (string, error) {
	if s, ok := res.(string); ok {
		return s, nil
	}
	var b []byte
	var err error
	if pretty {
		b, err = json.MarshalIndent(res, "", "  ")
	} else {
		b, err = json.Marshal(res)
	}
	if err != nil {
		return "", fmt.Errorf("marshal result failed: %w", err)
	}
	return string(b), nil
}

// ReplacePlaceholder replaces every {{name}} in expr with value as a
// JMESPath JSON literal (`"value"`), so it compares as a string rather
// than naming a field.
func ReplacePlaceholder(expr, name, value string) string {
	if name == "" {
		return expr
	}
	qb, _ := json.Marshal(value)
	literal := "`" + strings.ReplaceAll(string(qb), "`", "\\`") + "`"
	return strings.ReplaceAll(expr, "{{"+name+"}}", literal)
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	}
	return false
}
