package timestamp

import (
	"testing"
	"time"
)

func TestParseFromText_BlockStamp(t *testing.T) {
	p := NewParser()

	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"millis", "20-Jun-2019 14:25:36.442;   0:< ", time.Date(2019, 6, 20, 14, 25, 36, 442e6, time.UTC)},
		{"no millis", "20-Jun-2019 14:25:36 rest", time.Date(2019, 6, 20, 14, 25, 36, 0, time.UTC)},
		{"single digit day", "3-Feb-2021 08:00:01.5", time.Date(2021, 2, 3, 8, 0, 1, 500e6, time.UTC)},
		{"leading space", "  13-Feb-2019 08:42:03.658;", time.Date(2019, 2, 13, 8, 42, 3, 658e6, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := p.ParseFromText(tt.input)
			if !result.Found {
				t.Fatalf("ParseFromText(%q) did not find timestamp", tt.input)
			}
			if !result.Timestamp.Equal(tt.want) {
				t.Errorf("ParseFromText(%q) = %v, want %v", tt.input, result.Timestamp, tt.want)
			}
		})
	}
}

func TestParseFromText_ISO(t *testing.T) {
	p := NewParser()

	tests := []struct {
		name  string
		input string
	}{
		{"millis", "2019-06-20 14:25:36.442 >Open"},
		{"seconds", "2019-06-20 14:25:36 >Open"},
		{"comma decimal", "2019-06-20 14:25:36,442 >Open"},
		{"T separator", "2019-06-20T14:25:36.123456 >Open"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := p.ParseFromText(tt.input)
			if !result.Found {
				t.Fatalf("ParseFromText(%q) did not find timestamp", tt.input)
			}
			if result.Remaining != ">Open" {
				t.Errorf("remaining = %q, want %q", result.Remaining, ">Open")
			}
		})
	}
}

func TestParseFromText_NoTimestamp(t *testing.T) {
	p := NewParser()

	result := p.ParseFromText("just a regular journal line")
	if result.Found {
		t.Error("should not find timestamp in plain text")
	}
	if result.Remaining != "just a regular journal line" {
		t.Errorf("remaining = %q, want original text", result.Remaining)
	}
}

func TestParseFromText_InvalidDate(t *testing.T) {
	p := NewParser()

	if r := p.ParseFromText("32-Foo-2019 14:25:36.442"); r.Found {
		t.Errorf("unexpected timestamp %v", r.Timestamp)
	}
}

func TestParseTimestamp(t *testing.T) {
	p := NewParser()

	ts, ok := p.ParseTimestamp("20-Jun-2019 14:25:36.442")
	if !ok {
		t.Fatal("ParseTimestamp failed")
	}
	if ts.Year() != 2019 || ts.Month() != time.June || ts.Day() != 20 {
		t.Errorf("ParseTimestamp date = %v, want 2019-06-20", ts)
	}

	for _, in := range []string{"", "   ", "20-Jun-2019 14:25:36.442 trailing", "yesterday"} {
		if _, ok := p.ParseTimestamp(in); ok {
			t.Errorf("ParseTimestamp(%q) should fail", in)
		}
	}
}
