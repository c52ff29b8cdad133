package xmlconv

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/clbanning/mxj/v2"
)

// Engine converts one XML document to JSON text.
type Engine interface {
	XMLToJSON(xml string) (string, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(xml string) (string, error)

// XMLToJSON implements Engine.
func (f EngineFunc) XMLToJSON(xml string) (string, error) {
	return f(xml)
}

// Converter tries its primary engine, then its fallback.
//
// Converter is safe for concurrent use if its engines are.
type Converter struct {
	primary  Engine
	fallback Engine
}

// NewConverter returns a Converter using the built-in tree engine with mxj
// as the fallback.
func NewConverter() *Converter {
	return NewConverterWithEngines(TreeEngine{}, MxjEngine{})
}

// NewConverterWithEngines returns a Converter using the given engines.
func NewConverterWithEngines(primary, fallback Engine) *Converter {
	return &Converter{primary: primary, fallback: fallback}
}

// Convert always returns a JSON document. When both engines fail the
// document is an error envelope holding both messages and the input.
func (c *Converter) Convert(xml string) string {
	out, _ := c.TryConvert(xml)
	return out
}

// TryConvert behaves like Convert and additionally returns a
// *ConversionError when the envelope was produced.
//
// Returns:
//   - string: JSON document, never empty
//   - error: *ConversionError if both engines failed, nil otherwise
func (c *Converter) TryConvert(xml string) (string, error) {
	if strings.TrimSpace(xml) == "" {
		return "{}", nil
	}

	out, primaryErr := c.primary.XMLToJSON(xml)
	if primaryErr == nil {
		return out, nil
	}

	out, fallbackErr := c.fallback.XMLToJSON(xml)
	if fallbackErr == nil {
		return out, nil
	}

	convErr := &ConversionError{PrimaryErr: primaryErr, FallbackErr: fallbackErr}
	return envelope(xml, convErr), convErr
}

type errorEnvelope struct {
	Error         string `json:"error"`
	PrimaryError  string `json:"primaryError"`
	FallbackError string `json:"fallbackError"`
	OriginalXML   string `json:"originalXml"`
}

// envelope renders the last-resort document. HTML escaping is off so the
// embedded XML stays readable.
func envelope(xml string, err *ConversionError) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	encErr := enc.Encode(errorEnvelope{
		Error:         "Failed to convert XML to JSON",
		PrimaryError:  err.PrimaryErr.Error(),
		FallbackError: err.FallbackErr.Error(),
		OriginalXML:   NormalizeNewlines(xml),
	})
	if encErr != nil {
		// Only string fields; encoding cannot fail in practice.
		return fmt.Sprintf(`{"error":%q}`, "Failed to convert XML to JSON")
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// MxjEngine converts XML with github.com/clbanning/mxj/v2.
type MxjEngine struct{}

// XMLToJSON implements Engine.
func (MxjEngine) XMLToJSON(xml string) (string, error) {
	m, err := mxj.NewMapXml([]byte(xml))
	if err != nil {
		return "", fmt.Errorf("mxj: %w", err)
	}
	b, err := m.JsonIndent("", "  ")
	if err != nil {
		return "", fmt.Errorf("mxj: %w", err)
	}
	return string(b), nil
}
