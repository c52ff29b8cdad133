// Package export renders decoded messages as downloadable JSON or XML
// documents.
package export

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"github.com/Terminal3D/DLMS-Parser/internal/dlms"
)

// Format is an export document format.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatXML  Format = "xml"
)

// ErrUnsupportedFormat is returned for formats other than json and xml.
var ErrUnsupportedFormat = errors.New("export: unsupported format")

// ParseFormat accepts "json" or "xml" in any case. An empty string means JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatXML:
		return FormatXML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// ContentType returns the MIME type served for f.
func (f Format) ContentType() string {
	if f == FormatXML {
		return "application/xml; charset=utf-8"
	}
	return "application/json; charset=utf-8"
}

// FileName is the suggested download name for f.
func (f Format) FileName() string {
	return "dlms_messages." + string(f)
}

// Render writes messages in the requested format.
func Render(messages []dlms.Message, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return JSON(messages)
	case FormatXML:
		return XML(messages)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// JSON renders messages as an indented array. Each element carries its
// "type" discriminator so it can be read back with dlms.UnmarshalMessages.
func JSON(messages []dlms.Message) ([]byte, error) {
	if messages == nil {
		messages = []dlms.Message{}
	}
	out, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export: encoding json: %w", err)
	}
	return out, nil
}

type xmlDocument struct {
	XMLName  xml.Name     `xml:"DlmsMessages"`
	Messages []xmlMessage `xml:"Message"`
}

type xmlMessage struct {
	Type          string `xml:"Type"`
	RawData       string `xml:"RawData"`
	Structure     *cdata `xml:"Structure,omitempty"`
	JSONStructure *cdata `xml:"JsonStructure,omitempty"`
}

type cdata struct {
	Text string `xml:",cdata"`
}

// XML renders messages as a DlmsMessages document. The decoder's XML is
// embedded verbatim in a CDATA section when present; otherwise the display
// JSON is embedded as JsonStructure.
func XML(messages []dlms.Message) ([]byte, error) {
	doc := xmlDocument{Messages: make([]xmlMessage, 0, len(messages))}
	for _, msg := range messages {
		head := msg.Head()
		item := xmlMessage{
			Type:    string(head.Type),
			RawData: head.RawData,
		}
		switch {
		case head.OriginalStructure != "":
			item.Structure = &cdata{Text: head.OriginalStructure}
		case head.DisplayStructure != "":
			item.JSONStructure = &cdata{Text: head.DisplayStructure}
		}
		doc.Messages = append(doc.Messages, item)
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export: encoding xml: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}
