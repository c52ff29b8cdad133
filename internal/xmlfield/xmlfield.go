// Package xmlfield extracts attribute values from decoder XML by tag name.
//
// Extraction is pattern based rather than a full parse. Decoder output is
// flat enough that a tag-scoped regular expression is both sufficient and
// tolerant of the small structural defects decoders emit. Lookups are case
// insensitive on the tag name and require a name boundary, so "Date" never
// matches "DateTime".
package xmlfield

import (
	"regexp"
	"strings"
	"sync"
)

// patterns caches compiled expressions keyed by their source.
var patterns sync.Map

func compile(expr string) *regexp.Regexp {
	if re, ok := patterns.Load(expr); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile(expr)
	actual, _ := patterns.LoadOrStore(expr, re)
	return actual.(*regexp.Regexp)
}

func attrPattern(tag, attr string) *regexp.Regexp {
	return compile(`(?is)<` + regexp.QuoteMeta(tag) + `\s[^>]*?\b` + regexp.QuoteMeta(attr) + `\s*=\s*"([^"]*)"`)
}

func openPattern(tag string) *regexp.Regexp {
	return compile(`(?i)<` + regexp.QuoteMeta(tag) + `(?:\s[^>]*)?/?>`)
}

func closePattern(tag string) *regexp.Regexp {
	return compile(`(?i)</` + regexp.QuoteMeta(tag) + `\s*>`)
}

// Document is one XML description.
type Document struct {
	xml string
}

// New wraps xml for extraction.
func New(xml string) *Document {
	return &Document{xml: xml}
}

// String returns the wrapped XML.
func (d *Document) String() string {
	return d.xml
}

// Value returns the trimmed Value attribute of the first element named tag.
func (d *Document) Value(tag string) (string, bool) {
	return d.Attr(tag, "Value")
}

// Attr returns the trimmed attr attribute of the first element named tag.
func (d *Document) Attr(tag, attr string) (string, bool) {
	m := attrPattern(tag, attr).FindStringSubmatch(d.xml)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// All returns every attr attribute of elements named tag, in document order.
func (d *Document) All(tag, attr string) []string {
	matches := attrPattern(tag, attr).FindAllStringSubmatch(d.xml, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

// AllScoped is All restricted to the first section element. It returns an
// empty slice when the section is absent.
func (d *Document) AllScoped(section, tag, attr string) []string {
	inner, ok := d.Section(section)
	if !ok {
		return []string{}
	}
	return inner.All(tag, attr)
}

// Has reports whether an element named tag occurs.
func (d *Document) Has(tag string) bool {
	return openPattern(tag).MatchString(d.xml)
}

// Section returns the inner XML of the first element named tag. A
// self-closing element yields an empty document.
func (d *Document) Section(tag string) (*Document, bool) {
	loc := openPattern(tag).FindStringIndex(d.xml)
	if loc == nil {
		return nil, false
	}
	open := d.xml[loc[0]:loc[1]]
	if strings.HasSuffix(open, "/>") {
		return New(""), true
	}
	rest := d.xml[loc[1]:]
	end := closePattern(tag).FindStringIndex(rest)
	if end == nil {
		return nil, false
	}
	return New(rest[:end[0]]), true
}

// ValueScoped is Value restricted to the first section element.
func (d *Document) ValueScoped(section, tag string) (string, bool) {
	inner, ok := d.Section(section)
	if !ok {
		return "", false
	}
	return inner.Value(tag)
}
