package translator

import (
	"fmt"
	"strings"
)

// A-XDR Data type tags.
const (
	tagNull       = 0x00
	tagArray      = 0x01
	tagStructure  = 0x02
	tagBoolean    = 0x03
	tagBitString  = 0x04
	tagInt32      = 0x05
	tagUInt32     = 0x06
	tagOctetStr   = 0x09
	tagString     = 0x0A
	tagStringUTF8 = 0x0C
	tagBCD        = 0x0D
	tagInt8       = 0x0F
	tagInt16      = 0x10
	tagUInt8      = 0x11
	tagUInt16     = 0x12
	tagInt64      = 0x14
	tagUInt64     = 0x15
	tagEnum       = 0x16
	tagFloat32    = 0x17
	tagFloat64    = 0x18
	tagDateTime   = 0x19
	tagDate       = 0x1A
	tagTime       = 0x1B
)

// maxDataDepth bounds Array/Structure nesting.
const maxDataDepth = 32

// fixedWidth maps fixed-size types to their element name and octet width.
var fixedWidth = map[byte]struct {
	name  string
	width int
}{
	tagBCD:      {"BCD", 1},
	tagInt8:     {"Int8", 1},
	tagUInt8:    {"UInt8", 1},
	tagEnum:     {"Enum", 1},
	tagInt16:    {"Int16", 2},
	tagUInt16:   {"UInt16", 2},
	tagInt32:    {"Int32", 4},
	tagUInt32:   {"UInt32", 4},
	tagFloat32:  {"Float32", 4},
	tagInt64:    {"Int64", 8},
	tagUInt64:   {"UInt64", 8},
	tagFloat64:  {"Float64", 8},
	tagDateTime: {"DateTime", 12},
	tagDate:     {"Date", 5},
	tagTime:     {"Time", 4},
}

// writeData decodes one A-XDR Data value.
func writeData(r *reader, w *writer, depth int) error {
	if depth > maxDataDepth {
		return fmt.Errorf("%w: data nested deeper than %d", ErrMalformed, maxDataDepth)
	}

	tag, err := r.u8()
	if err != nil {
		return err
	}

	if f, ok := fixedWidth[tag]; ok {
		b, err := r.bytes(f.width)
		if err != nil {
			return err
		}
		w.hexValue(f.name, b)
		return nil
	}

	switch tag {
	case tagNull:
		w.empty("Null")
	case tagArray, tagStructure:
		n, err := r.length()
		if err != nil {
			return err
		}
		name := "Array"
		if tag == tagStructure {
			name = "Structure"
		}
		w.openQty(name, n)
		for i := 0; i < n; i++ {
			if err := writeData(r, w, depth+1); err != nil {
				return err
			}
		}
		w.close(name)
	case tagBoolean:
		b, err := r.u8()
		if err != nil {
			return err
		}
		if b != 0 {
			w.value("Boolean", "true")
		} else {
			w.value("Boolean", "false")
		}
	case tagBitString:
		bits, err := r.length()
		if err != nil {
			return err
		}
		b, err := r.bytes((bits + 7) / 8)
		if err != nil {
			return err
		}
		w.value("BitString", formatBits(b, bits))
	case tagOctetStr:
		b, err := readCounted(r)
		if err != nil {
			return err
		}
		w.hexValue("OctetString", b)
	case tagString:
		b, err := readCounted(r)
		if err != nil {
			return err
		}
		w.value("String", string(b))
	case tagStringUTF8:
		b, err := readCounted(r)
		if err != nil {
			return err
		}
		w.value("StringUTF8", string(b))
	default:
		return fmt.Errorf("%w: data type 0x%02X", ErrUnsupported, tag)
	}
	return nil
}

func readCounted(r *reader) ([]byte, error) {
	n, err := r.length()
	if err != nil {
		return nil, err
	}
	return r.bytes(n)
}

func formatBits(b []byte, bits int) string {
	var sb strings.Builder
	for i := 0; i < bits; i++ {
		if b[i/8]&(0x80>>(i%8)) != 0 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// dataAccessResults names the data-access-result enumeration.
var dataAccessResults = map[byte]string{
	0:   "Success",
	1:   "HardwareFault",
	2:   "TemporaryFailure",
	3:   "ReadWriteDenied",
	4:   "ObjectUndefined",
	9:   "ObjectClassInconsistent",
	11:  "ObjectUnavailable",
	12:  "TypeUnmatched",
	13:  "ScopeOfAccessViolated",
	14:  "DataBlockUnavailable",
	15:  "LongGetAborted",
	16:  "NoLongGetInProgress",
	17:  "LongSetAborted",
	18:  "NoLongSetInProgress",
	19:  "DataBlockNumberInvalid",
	250: "OtherReason",
}

func dataAccessResultName(b byte) string {
	if name, ok := dataAccessResults[b]; ok {
		return name
	}
	return fmt.Sprintf("%02X", b)
}
