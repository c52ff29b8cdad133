package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Terminal3D/DLMS-Parser/internal/dlms"
	"github.com/Terminal3D/DLMS-Parser/internal/history"
	"github.com/Terminal3D/DLMS-Parser/internal/infrastructure/influxdb"
)

// WebSocket channels used for broadcasts.
const (
	ChannelDecoded = "dlms.decoded"
	ChannelError   = "dlms.error"
)

// Error kinds reported in metrics and events.
const (
	KindValidation  = "validation"
	KindUnsupported = "unsupported"
	KindDecode      = "decode"
	KindBatch       = "batch"
	KindOther       = "other"
)

// Parser is the decoding surface the pipeline needs from dlms.Parser.
type Parser interface {
	Parse(hexData string) (dlms.Message, error)
	ParseBatch(ctx context.Context, items []string) ([]dlms.Message, error)
}

// Recorder persists decode outcomes.
type Recorder interface {
	Record(ctx context.Context, entry *history.Entry) error
}

// MetricsWriter receives decode metrics.
type MetricsWriter interface {
	WriteDecodeMetric(m influxdb.DecodeMetric)
	WriteBatchMetric(m influxdb.BatchMetric)
}

// WSHub is the interface for broadcasting WebSocket events.
type WSHub interface {
	// Broadcast sends an event to all clients subscribed to the given channel.
	Broadcast(channel string, payload any)
}

// Logger is the logging interface used by Pipeline.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DecodedEvent is broadcast on ChannelDecoded.
type DecodedEvent struct {
	Source   string         `json:"source"`
	Meter    string         `json:"meter,omitempty"`
	EntryID  string         `json:"entryId,omitempty"`
	Messages []dlms.Message `json:"messages"`
}

// ErrorEvent is broadcast on ChannelError.
type ErrorEvent struct {
	Source  string       `json:"source"`
	Meter   string       `json:"meter,omitempty"`
	EntryID string       `json:"entryId,omitempty"`
	Kind    string       `json:"kind"`
	Input   string       `json:"input"`
	Error   dlms.Problem `json:"error"`
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Decoded      uint64    `json:"decoded"`
	Failed       uint64    `json:"failed"`
	Batches      uint64    `json:"batches"`
	LastDecodeAt time.Time `json:"lastDecodeAt,omitempty"`
}

// Pipeline decodes frames and fans the outcome out to history, metrics
// and WebSocket subscribers.
//
// Thread Safety: all methods are safe for concurrent use.
type Pipeline struct {
	parser  Parser
	history Recorder
	metrics MetricsWriter
	logger  Logger

	hubMu sync.RWMutex
	hub   WSHub

	decoded    atomic.Uint64
	failed     atomic.Uint64
	batches    atomic.Uint64
	lastDecode atomic.Int64
}

// New creates a Pipeline.
//
// Parameters:
//   - parser: Frame decoder (required)
//   - recorder: Parse history (may be nil to disable history)
//   - metrics: Decode metrics sink (may be nil)
//   - hub: WebSocket hub for live events (may be nil)
//   - logger: Logger instance (may be nil)
func New(parser Parser, recorder Recorder, metrics MetricsWriter, hub WSHub, logger Logger) *Pipeline {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Pipeline{
		parser:  parser,
		history: recorder,
		metrics: metrics,
		hub:     hub,
		logger:  logger,
	}
}

// SetHub attaches the WebSocket hub. The API server owns the hub and is
// built after the pipeline, so it is wired late.
func (p *Pipeline) SetHub(hub WSHub) {
	p.hubMu.Lock()
	p.hub = hub
	p.hubMu.Unlock()
}

func (p *Pipeline) currentHub() WSHub {
	p.hubMu.RLock()
	defer p.hubMu.RUnlock()
	return p.hub
}

type meterKey struct{}

// WithMeter tags ctx with the meter a frame came from. The meter is carried
// into metrics and broadcast events.
func WithMeter(ctx context.Context, meter string) context.Context {
	return context.WithValue(ctx, meterKey{}, meter)
}

// MeterFrom returns the meter set by WithMeter, or "".
func MeterFrom(ctx context.Context) string {
	meter, _ := ctx.Value(meterKey{}).(string)
	return meter
}

// Decode parses a single hex frame.
//
// Parameters:
//   - ctx: Context for history writes
//   - source: Where the input came from (history.SourceAPI, SourceCLI, SourceMQTT)
//   - input: Hex frame as submitted
//
// Returns:
//   - dlms.Message: the decoded message
//   - error: history.ErrInvalidSource for an unknown source, or the dlms error
func (p *Pipeline) Decode(ctx context.Context, source, input string) (dlms.Message, error) {
	if !history.ValidSource(source) {
		return nil, fmt.Errorf("%w: %q", history.ErrInvalidSource, source)
	}

	start := time.Now()
	msg, err := p.parser.Parse(input)
	elapsed := time.Since(start)

	var messages []dlms.Message
	if err == nil {
		messages = []dlms.Message{msg}
	}
	entryID := p.record(ctx, source, input, messages, err)

	if p.metrics != nil {
		m := influxdb.DecodeMetric{
			Source:     source,
			Success:    err == nil,
			ErrorKind:  ErrorKind(err),
			FrameBytes: len(dlms.Normalize(input)) / 2,
			Duration:   elapsed,
			Meter:      MeterFrom(ctx),
		}
		if msg != nil {
			m.MessageType = string(msg.Head().Type)
		}
		p.metrics.WriteDecodeMetric(m)
	}

	p.finish(ctx, source, input, entryID, messages, err)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// DecodeBatch parses every input or none.
//
// On failure the returned error is a *dlms.BatchError (or a validation
// error for an oversize batch) and no messages are returned.
func (p *Pipeline) DecodeBatch(ctx context.Context, source string, inputs []string) ([]dlms.Message, error) {
	if !history.ValidSource(source) {
		return nil, fmt.Errorf("%w: %q", history.ErrInvalidSource, source)
	}
	p.batches.Add(1)

	start := time.Now()
	messages, err := p.parser.ParseBatch(ctx, inputs)
	elapsed := time.Since(start)

	// A cancelled batch was never decoded; there is nothing to record.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	input := strings.Join(inputs, "\n")
	entryID := p.record(ctx, source, input, messages, err)

	if p.metrics != nil {
		failures := 0
		var berr *dlms.BatchError
		if errors.As(err, &berr) {
			failures = len(berr.Failures)
		} else if err != nil {
			failures = len(inputs)
		}
		p.metrics.WriteBatchMetric(influxdb.BatchMetric{
			Source:   source,
			Items:    len(inputs),
			Failures: failures,
			Success:  err == nil,
			Duration: elapsed,
		})
	}

	p.finish(ctx, source, input, entryID, messages, err)
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// DecodeText splits text into trimmed, non-empty lines and decodes them as
// a batch.
func (p *Pipeline) DecodeText(ctx context.Context, source, text string) ([]dlms.Message, error) {
	return p.DecodeBatch(ctx, source, dlms.SplitLines(text))
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	s := Stats{
		Decoded: p.decoded.Load(),
		Failed:  p.failed.Load(),
		Batches: p.batches.Load(),
	}
	if ns := p.lastDecode.Load(); ns != 0 {
		s.LastDecodeAt = time.Unix(0, ns).UTC()
	}
	return s
}

// record writes a history entry and returns its ID, or "" when history is
// disabled or the write failed.
func (p *Pipeline) record(ctx context.Context, source, input string, messages []dlms.Message, err error) string {
	if p.history == nil {
		return ""
	}
	entry := &history.Entry{
		Source:   source,
		Input:    input,
		Messages: messages,
		Success:  err == nil,
	}
	if err != nil {
		entry.ErrorMessage = err.Error()
	}
	if recErr := p.history.Record(ctx, entry); recErr != nil {
		p.logger.Error("failed to record parse history", "source", source, "error", recErr)
		return ""
	}
	return entry.ID
}

// finish updates counters and broadcasts the outcome.
func (p *Pipeline) finish(ctx context.Context, source, input, entryID string, messages []dlms.Message, err error) {
	p.lastDecode.Store(time.Now().UnixNano())
	meter := MeterFrom(ctx)
	hub := p.currentHub()

	if err != nil {
		p.failed.Add(1)
		p.logger.Debug("decode failed", "source", source, "meter", meter, "error", err)
		if hub != nil {
			hub.Broadcast(ChannelError, ErrorEvent{
				Source:  source,
				Meter:   meter,
				EntryID: entryID,
				Kind:    ErrorKind(err),
				Input:   input,
				Error:   dlms.ProblemFrom(err),
			})
		}
		return
	}

	p.decoded.Add(uint64(len(messages)))
	if hub != nil {
		hub.Broadcast(ChannelDecoded, DecodedEvent{
			Source:   source,
			Meter:    meter,
			EntryID:  entryID,
			Messages: messages,
		})
	}
}

// ErrorKind classifies a decode error for metrics and events. It returns
// "" for a nil error.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, dlms.ErrBatch):
		return KindBatch
	case errors.Is(err, dlms.ErrValidation):
		return KindValidation
	case errors.Is(err, dlms.ErrUnsupportedCommand):
		return KindUnsupported
	case errors.Is(err, dlms.ErrDecode):
		return KindDecode
	default:
		return KindOther
	}
}
