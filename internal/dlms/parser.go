package dlms

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Terminal3D/DLMS-Parser/internal/xmlconv"
	"github.com/Terminal3D/DLMS-Parser/internal/xmlfield"
)

// Decoder renders a raw PDU as XML. Implementations must be safe for
// concurrent use when batch concurrency is enabled.
type Decoder interface {
	PDUToXML(pdu []byte) (string, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(pdu []byte) (string, error)

// PDUToXML implements Decoder.
func (f DecoderFunc) PDUToXML(pdu []byte) (string, error) {
	return f(pdu)
}

// Converter produces display JSON from normalized XML. It must always
// return a JSON document; the error only reports that a fallback envelope
// was produced.
type Converter interface {
	TryConvert(xml string) (string, error)
}

// Logger is the logging interface used by Parser.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// ParserOptions configures a Parser.
type ParserOptions struct {
	// Decoder renders PDUs as XML. Required.
	Decoder Decoder

	// Converter produces display JSON. Defaults to xmlconv.NewConverter().
	Converter Converter

	// BatchConcurrency is the number of batch items decoded in parallel.
	// Values below 2 decode sequentially.
	BatchConcurrency int

	// MaxBatchSize rejects batches with more items. Zero means unlimited.
	MaxBatchSize int

	// MaxFrameBytes rejects frames longer than this. Zero means unlimited.
	MaxFrameBytes int

	// Logger receives conversion fallbacks and decode failures. May be nil.
	Logger Logger
}

// Parser validates, classifies and decodes hex frames.
//
// Thread Safety: all methods are safe for concurrent use.
type Parser struct {
	decoder          Decoder
	converter        Converter
	batchConcurrency int
	maxBatchSize     int
	maxFrameBytes    int
	logger           Logger
}

// NewParser creates a Parser with default options around decoder.
func NewParser(decoder Decoder) *Parser {
	p, err := NewParserWithOptions(ParserOptions{Decoder: decoder})
	if err != nil {
		// Only a nil decoder fails, which is a programming error.
		panic(err)
	}
	return p
}

// NewParserWithOptions creates a Parser.
//
// Parameters:
//   - opts: Parser configuration; Decoder is required
//
// Returns:
//   - *Parser: ready to use
//   - error: if opts.Decoder is nil
func NewParserWithOptions(opts ParserOptions) (*Parser, error) {
	if opts.Decoder == nil {
		return nil, fmt.Errorf("dlms: decoder is required")
	}
	if opts.Converter == nil {
		opts.Converter = xmlconv.NewConverter()
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Parser{
		decoder:          opts.Decoder,
		converter:        opts.Converter,
		batchConcurrency: opts.BatchConcurrency,
		maxBatchSize:     opts.MaxBatchSize,
		maxFrameBytes:    opts.MaxFrameBytes,
		logger:           opts.Logger,
	}, nil
}

// Validate reports whether hexData is well-formed hex. It applies the same
// rules as the package-level Validate.
func (p *Parser) Validate(hexData string) bool {
	return Validate(hexData)
}

// Parse decodes a single frame.
//
// Returns:
//   - Message: the decoded record
//   - error: *ValidationError, *UnsupportedCommandError or *DecodeError
func (p *Parser) Parse(hexData string) (Message, error) {
	pdu, err := p.frame(hexData)
	if err != nil {
		return nil, err
	}
	msgType, err := Dispatch(pdu[0])
	if err != nil {
		return nil, err
	}
	return p.build(msgType, Normalize(hexData), pdu)
}

// frame validates hexData and returns its bytes.
func (p *Parser) frame(hexData string) ([]byte, error) {
	if Normalize(hexData) == "" {
		return nil, &ValidationError{Reason: "empty hex data"}
	}
	pdu, err := DecodeHex(hexData)
	if err != nil {
		return nil, err
	}
	if p.maxFrameBytes > 0 && len(pdu) > p.maxFrameBytes {
		return nil, &ValidationError{Reason: fmt.Sprintf("frame of %d bytes exceeds limit of %d", len(pdu), p.maxFrameBytes)}
	}
	return pdu, nil
}

// build runs the decoder and the kind-specific builder. Any failure,
// including a panic inside the decoder or builder, becomes a DecodeError.
func (p *Parser) build(msgType MessageType, rawHex string, pdu []byte) (msg Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			msg = nil
			err = &DecodeError{Type: msgType, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	raw, err := p.decoder.PDUToXML(pdu)
	if err != nil {
		return nil, &DecodeError{Type: msgType, Err: err}
	}
	// OriginalStructure keeps the decoder output as is; only the display
	// JSON and field extraction see the repaired document.
	xml := xmlconv.Normalize(raw)

	display, convErr := p.converter.TryConvert(xml)
	if convErr != nil {
		p.logger.Warn("display conversion fell back to error envelope", "type", msgType, "error", convErr)
	}

	in := buildInput{
		header: Header{
			RawData:           rawHex,
			Type:              msgType,
			DisplayStructure:  display,
			OriginalStructure: raw,
		},
		pdu:    pdu,
		fields: xmlfield.New(xml),
	}

	msg, err = builders[msgType](in)
	if err != nil {
		return nil, &DecodeError{Type: msgType, Err: err}
	}
	return msg, nil
}

// ParseBatch decodes every item or none. All items are validated first;
// if any fail, the BatchError names each failing index and no decoding
// happens. Otherwise items are decoded and decode failures are aggregated
// the same way. An empty batch succeeds with no messages.
//
// When BatchConcurrency is above 1, items are decoded in parallel; results
// keep their input order.
func (p *Parser) ParseBatch(ctx context.Context, items []string) ([]Message, error) {
	if p.maxBatchSize > 0 && len(items) > p.maxBatchSize {
		return nil, &ValidationError{Reason: fmt.Sprintf("batch of %d items exceeds limit of %d", len(items), p.maxBatchSize)}
	}

	var failures []BatchFailure
	for i, item := range items {
		if _, err := p.frame(item); err != nil {
			failures = append(failures, BatchFailure{Index: i, Err: err})
		}
	}
	if len(failures) > 0 {
		return nil, &BatchError{Failures: failures}
	}

	messages := make([]Message, len(items))
	errs := make([]error, len(items))

	if p.batchConcurrency > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.batchConcurrency)
		for i, item := range items {
			i, item := i, item
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				messages[i], errs[i] = p.Parse(item)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, item := range items {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			messages[i], errs[i] = p.Parse(item)
		}
	}

	for i, err := range errs {
		if err != nil {
			failures = append(failures, BatchFailure{Index: i, Err: err})
		}
	}
	if len(failures) > 0 {
		p.logger.Debug("batch decode failed", "items", len(items), "failures", len(failures))
		return nil, &BatchError{Failures: failures}
	}
	return messages, nil
}

// ParseText splits text into lines and decodes them as a batch.
func (p *Parser) ParseText(ctx context.Context, text string) ([]Message, error) {
	return p.ParseBatch(ctx, SplitLines(text))
}
