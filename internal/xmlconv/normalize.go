package xmlconv

import (
	"regexp"
	"strings"
)

// wrapperRule strips an inner <Name> wrapper found inside <NameNormal>.
type wrapperRule struct {
	section *regexp.Regexp
	open    *regexp.Regexp
	close   *regexp.Regexp
}

func newWrapperRule(name string) wrapperRule {
	return wrapperRule{
		section: regexp.MustCompile(`(?s)<` + name + `Normal>.*?</` + name + `Normal>`),
		open:    regexp.MustCompile(`[ \t]*<` + name + `>[ \t]*\n?`),
		close:   regexp.MustCompile(`[ \t]*</` + name + `>[ \t]*\n?`),
	}
}

func (r wrapperRule) apply(xml string) string {
	return r.section.ReplaceAllStringFunc(xml, func(section string) string {
		section = r.open.ReplaceAllString(section, "")
		return r.close.ReplaceAllString(section, "")
	})
}

var wrapperRules = []wrapperRule{
	newWrapperRule("ActionRequest"),
	newWrapperRule("ActionResponse"),
}

// NormalizeNewlines converts CRLF and CR line endings to LF.
func NormalizeNewlines(xml string) string {
	return strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(xml)
}

// Normalize repairs known decoder defects. When an ActionRequestNormal or
// ActionResponseNormal element contains an inner element named after the
// outer PDU, the inner wrapper is removed and its children are promoted.
// Other input passes through with only its line endings normalized.
func Normalize(xml string) string {
	xml = NormalizeNewlines(xml)
	for _, r := range wrapperRules {
		xml = r.apply(xml)
	}
	return xml
}
