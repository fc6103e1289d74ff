// Package cloudwatch ships decoded journal records to CloudWatch Logs.
package cloudwatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/tinytelemetry/journalscope/internal/logparse"
	"github.com/tinytelemetry/journalscope/internal/model"
)

// PutLogEvents limits.
const (
	MaxBatchEvents = 10000
	MaxBatchBytes  = 1048576
	MaxBatchSpan   = 24 * time.Hour
	eventOverhead  = 26
	maxEventBytes  = 256*1024 - eventOverhead
)

// LogsClient is the subset of the CloudWatch Logs API the exporter uses.
type LogsClient interface {
	CreateLogStream(ctx context.Context, params *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
	PutLogEvents(ctx context.Context, params *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
}

// NewClient loads AWS configuration for region and the shared profile and
// returns a CloudWatch Logs client. Empty values use default resolution.
func NewClient(ctx context.Context, region, profile string) (*cloudwatchlogs.Client, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("cloudwatch: load aws config: %w", err)
	}
	return cloudwatchlogs.NewFromConfig(cfg), nil
}

// Exporter writes the records of one journal to a log stream.
type Exporter struct {
	Client    LogsClient
	Group     string
	Stream    string
	BatchSize int              // events per call, capped at MaxBatchEvents
	Now       func() time.Time // clock for journals without timestamps
}

type message struct {
	Line     int             `json:"line"`
	Block    int             `json:"block"`
	Kind     string          `json:"kind"`
	Severity string          `json:"severity"`
	Raw      string          `json:"raw"`
	Fields   json.RawMessage `json:"fields,omitempty"`
}

// Export creates the stream if needed and sends every record of doc. It
// returns the number of events accepted.
func (e *Exporter) Export(ctx context.Context, doc *model.Document) (int, error) {
	if e.Client == nil {
		return 0, errors.New("cloudwatch: client is nil")
	}
	if e.Group == "" || e.Stream == "" {
		return 0, errors.New("cloudwatch: log group and stream are required")
	}

	events, err := e.events(doc)
	if err != nil {
		return 0, err
	}
	if err := e.ensureStream(ctx); err != nil {
		return 0, err
	}

	sent := 0
	for _, batch := range e.batches(events) {
		_, err := e.Client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
			LogGroupName:  aws.String(e.Group),
			LogStreamName: aws.String(e.Stream),
			LogEvents:     batch,
		})
		if err != nil {
			return sent, fmt.Errorf("cloudwatch: put %d events: %w", len(batch), err)
		}
		sent += len(batch)
	}
	return sent, nil
}

func (e *Exporter) ensureStream(ctx context.Context) error {
	_, err := e.Client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(e.Group),
		LogStreamName: aws.String(e.Stream),
	})
	var exists *types.ResourceAlreadyExistsException
	if err != nil && !errors.As(err, &exists) {
		return fmt.Errorf("cloudwatch: create stream %s/%s: %w", e.Group, e.Stream, err)
	}
	return nil
}

// events converts records into log events ordered by time. Records of
// block 0 take the first block time, or the clock when there is none.
func (e *Exporter) events(doc *model.Document) ([]types.InputLogEvent, error) {
	rows, err := doc.Rows(e.Stream)
	if err != nil {
		return nil, err
	}

	fallback := time.Time{}
	if stamps := doc.Timestamps(); len(stamps) > 0 {
		ts, _ := stamps[0].Timestamp()
		fallback = ts.Time
	}
	if fallback.IsZero() {
		now := time.Now
		if e.Now != nil {
			now = e.Now
		}
		fallback = now()
	}

	out := make([]types.InputLogEvent, 0, len(rows))
	for i, row := range rows {
		at := row.BlockTime
		if at.IsZero() {
			at = fallback
		}
		b, err := json.Marshal(message{
			Line:     row.Line,
			Block:    row.Block,
			Kind:     row.Kind,
			Severity: logparse.Severity(doc.Records[i]),
			Raw:      row.Raw,
			Fields:   row.Fields,
		})
		if err != nil {
			return nil, fmt.Errorf("cloudwatch: marshal line %d: %w", row.Line, err)
		}
		msg := string(b)
		if len(msg) > maxEventBytes {
			msg = msg[:maxEventBytes]
		}
		out = append(out, types.InputLogEvent{
			Message:   aws.String(msg),
			Timestamp: aws.Int64(at.UnixMilli()),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].Timestamp < *out[j].Timestamp
	})
	return out, nil
}

// batches splits time-ordered events by count, payload size and time span.
func (e *Exporter) batches(events []types.InputLogEvent) [][]types.InputLogEvent {
	limit := e.BatchSize
	if limit <= 0 || limit > MaxBatchEvents {
		limit = MaxBatchEvents
	}

	var out [][]types.InputLogEvent
	start, size := 0, 0
	for i, ev := range events {
		evSize := len(*ev.Message) + eventOverhead
		span := time.Duration(*ev.Timestamp-*events[start].Timestamp) * time.Millisecond
		if i > start && (i-start >= limit || size+evSize > MaxBatchBytes || span >= MaxBatchSpan) {
			out = append(out, events[start:i])
			start, size = i, 0
		}
		size += evSize
	}
	if start < len(events) {
		out = append(out, events[start:])
	}
	return out
}
