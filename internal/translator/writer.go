package translator

import (
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"strings"
)

// writer emits indented XML in the shape produced by Gurux DLMS
// translators: two-space indentation and leaf values in a Value attribute.
type writer struct {
	sb    strings.Builder
	depth int
}

func (w *writer) indent() {
	w.sb.WriteString(strings.Repeat("  ", w.depth))
}

func (w *writer) open(name string) {
	w.indent()
	fmt.Fprintf(&w.sb, "<%s>\n", name)
	w.depth++
}

// openQty opens a counted container such as <Structure Qty="02" >.
func (w *writer) openQty(name string, qty int) {
	w.indent()
	fmt.Fprintf(&w.sb, "<%s Qty=\"%s\" >\n", name, hexQty(qty))
	w.depth++
}

func (w *writer) close(name string) {
	w.depth--
	w.indent()
	fmt.Fprintf(&w.sb, "</%s>\n", name)
}

func (w *writer) empty(name string) {
	w.indent()
	fmt.Fprintf(&w.sb, "<%s />\n", name)
}

func (w *writer) attr(name, attr, value string) {
	w.indent()
	fmt.Fprintf(&w.sb, "<%s %s=\"", name, attr)
	_ = xml.EscapeText(&w.sb, []byte(value))
	w.sb.WriteString("\" />\n")
}

func (w *writer) value(name, value string) {
	w.attr(name, "Value", value)
}

func (w *writer) hexValue(name string, b []byte) {
	w.value(name, strings.ToUpper(hex.EncodeToString(b)))
}

func (w *writer) byteValue(name string, b byte) {
	w.value(name, fmt.Sprintf("%02X", b))
}

func (w *writer) u16Value(name string, v uint16) {
	w.value(name, fmt.Sprintf("%04X", v))
}

func (w *writer) u32Value(name string, v uint32) {
	w.value(name, fmt.Sprintf("%08X", v))
}

func (w *writer) String() string {
	return strings.TrimSuffix(w.sb.String(), "\n")
}

func hexQty(n int) string {
	if n > 0xFF {
		return fmt.Sprintf("%04X", n)
	}
	return fmt.Sprintf("%02X", n)
}
