// Package interpret turns decoded messages into labelled rows for people:
// OIDs become "Logical Name", result codes become words, octet strings show
// their best reading.
package interpret

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"unicode"

	"github.com/Terminal3D/DLMS-Parser/internal/dlms"
	"github.com/Terminal3D/DLMS-Parser/internal/octetstring"
)

// Field is one labelled row.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

var applicationContextLabels = map[string]string{
	"2.16.756.5.8.1.1":  "Logical Name",
	"2.16.756.5.8.1.2":  "Short Name",
	"2.16.756.5.8.1.3":  "Logical Name with ciphering",
	"2.16.756.5.8.1.4":  "Short Name with ciphering",
	"LN":                "Logical Name",
	"SN":                "Short Name",
	"LN_WITH_CIPHERING": "Logical Name with ciphering",
	"SN_WITH_CIPHERING": "Short Name with ciphering",
}

var mechanismLabels = map[string]string{
	"2.16.756.5.8.2.0": "No security",
	"2.16.756.5.8.2.1": "Low-level security (password)",
	"2.16.756.5.8.2.2": "High-level security",
	"2.16.756.5.8.2.3": "High-level security (MD5)",
	"2.16.756.5.8.2.4": "High-level security (SHA-1)",
	"2.16.756.5.8.2.5": "High-level security (GMAC)",
	"2.16.756.5.8.2.6": "High-level security (SHA-256)",
	"2.16.756.5.8.2.7": "High-level security (ECDSA)",
}

var associationResultLabels = map[dlms.AssociationResult]string{
	dlms.AssociationAccepted:          "Accepted",
	dlms.AssociationRejectedPermanent: "Rejected (permanent)",
	dlms.AssociationRejectedTransient: "Rejected (transient)",
}

// ApplicationContextLabel names an application context OID or label.
// Anything unrecognised is returned unchanged.
func ApplicationContextLabel(v string) string {
	if label, ok := applicationContextLabels[strings.ToUpper(strings.TrimSpace(v))]; ok {
		return label
	}
	return v
}

// MechanismLabel names an authentication mechanism OID.
func MechanismLabel(v string) string {
	if label, ok := mechanismLabels[strings.TrimSpace(v)]; ok {
		return label
	}
	return v
}

// AssociationResultLabel names an association result.
func AssociationResultLabel(r dlms.AssociationResult) string {
	if label, ok := associationResultLabels[r]; ok {
		return label
	}
	return dlms.Unknown
}

// SenderACSELabel describes the sender-acse-requirements flag.
func SenderACSELabel(required bool) string {
	if required {
		return "Authentication required"
	}
	return "No authentication"
}

// Fields returns the rows for msg. The first two rows are always the
// message type and the raw frame.
func Fields(msg dlms.Message) []Field {
	head := msg.Head()
	rows := &builder{}
	rows.add("Type", string(head.Type))
	rows.add("Raw Data", head.RawData)

	switch m := msg.(type) {
	case dlms.AARQ:
		rows.add("Application Context", withRaw(ApplicationContextLabel(m.ApplicationContextName), m.ApplicationContextName))
		rows.add("Calling AP Title", m.CallingAPTitle)
		rows.add("Sender ACSE Requirements", SenderACSELabel(m.SenderACSERequirements))
		rows.add("Mechanism Name", withRaw(MechanismLabel(m.MechanismName), m.MechanismName))
		rows.add("Calling Authentication", hexWithText(m.CallingAuthenticationValue))
		rows.add("Proposed DLMS Version", fmt.Sprintf("%d", m.InitiateRequest.ProposedDlmsVersionNumber))
		rows.add("Proposed Conformance", conformance(m.InitiateRequest.ProposedConformance))
		rows.add("Proposed Max PDU Size", fmt.Sprintf("%d bytes", m.InitiateRequest.ClientMaxReceivePduSize))
		rows.add("Response Allowed", yesNo(m.InitiateRequest.ResponseAllowed))
	case dlms.AARE:
		rows.add("Application Context", withRaw(ApplicationContextLabel(m.ApplicationContextName), m.ApplicationContextName))
		rows.add("Association Result", AssociationResultLabel(m.AssociationResult))
		rows.add("ACSE Service User", m.ResultSourceDiagnostic)
		rows.add("Negotiated DLMS Version", fmt.Sprintf("%d", m.InitiateResponse.NegotiatedDlmsVersionNumber))
		rows.add("Negotiated Conformance", conformance(m.InitiateResponse.NegotiatedConformance))
		rows.add("Negotiated Max PDU Size", fmt.Sprintf("%d bytes", m.InitiateResponse.ServerMaxReceivePduSize))
		rows.add("VAA Name", fmt.Sprintf("%d (0x%04X)", m.InitiateResponse.VaaName, m.InitiateResponse.VaaName))
	case dlms.GetRequest:
		rows.add("Request Type", string(m.RequestType))
		rows.add("Invoke ID", invoke(m.InvokeID))
		rows.add("Attribute", m.Attribute)
		rows.addIf("Access Selector", m.AccessSelector)
	case dlms.GetResponse:
		rows.add("Response Type", string(m.ResponseType))
		rows.add("Invoke ID", invoke(m.InvokeID))
		rows.add("Data Type", m.DataType)
		if m.Analysis != nil {
			analysis(rows, *m.Analysis)
		} else {
			rows.add("Data", m.Data)
		}
	case dlms.ActionRequest:
		rows.add("Request Type", string(m.RequestType))
		rows.add("Invoke ID", invoke(m.InvokeID))
		rows.add("Method", m.Method)
		for i, p := range m.Parameters.Structure {
			rows.add(fmt.Sprintf("Parameter %d (%s)", i+1, p.Kind), parameter(p))
		}
	case dlms.ActionResponse:
		rows.add("Response Type", string(m.ResponseType))
		rows.add("Invoke ID", invoke(m.InvokeID))
		rows.add("Action Result", fmt.Sprintf("%s (%d)", m.ActionResult, dlms.ActionResultCode(m.ActionResult)))
	case dlms.SetRequest, dlms.SetResponse,
		dlms.ReadRequest, dlms.ReadResponse,
		dlms.WriteRequest, dlms.WriteResponse:
		rows.add("Raw Data Length", fmt.Sprintf("%d characters", len(head.RawData)))
	}

	return rows.fields
}

// WriteText prints fields as an aligned two-column table.
func WriteText(w io.Writer, fields []Field) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, f := range fields {
		if _, err := fmt.Fprintf(tw, "%s:\t%s\n", f.Label, f.Value); err != nil {
			return err
		}
	}
	return tw.Flush()
}

type builder struct {
	fields []Field
}

func (b *builder) add(label, value string) {
	b.fields = append(b.fields, Field{Label: label, Value: value})
}

// addIf skips empty values.
func (b *builder) addIf(label, value string) {
	if value != "" {
		b.add(label, value)
	}
}

func analysis(rows *builder, a octetstring.Analysis) {
	rows.add("Data Content", a.Display())
	rows.addIf("Possible ASCII", a.ASCIIDecoding)
	rows.addIf("Possible Timestamp", a.PossibleTimestamp)
	rows.addIf("Possible OBIS Code", a.PossibleObisCode)
	rows.addIf("Structure", a.StructureInfo)
	rows.add("Data Length", fmt.Sprintf("%d bytes", len(a.RawHex)/2))
}

func parameter(p dlms.ActionParameter) string {
	if p.Kind == dlms.ParamDoubleLongUnsigned {
		return fmt.Sprintf("%d (0x%08X)", p.Number, p.Number)
	}
	return p.Text
}

func invoke(id int) string {
	return fmt.Sprintf("%d (0x%02X)", id, id)
}

func conformance(bits []string) string {
	if len(bits) == 0 {
		return dlms.NotAvailable
	}
	return strings.Join(bits, ", ")
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// withRaw appends the raw value when the label differs from it.
func withRaw(label, raw string) string {
	if label == raw || raw == "" || raw == dlms.NotAvailable {
		return label
	}
	return fmt.Sprintf("%s (%s)", label, raw)
}

// hexWithText shows a printable reading of a hex value next to the hex.
func hexWithText(v string) string {
	b, err := hex.DecodeString(v)
	if err != nil || len(b) == 0 {
		return v
	}
	for _, c := range b {
		if c > unicode.MaxASCII || !unicode.IsPrint(rune(c)) {
			return v
		}
	}
	return fmt.Sprintf("%s (0x%s)", b, v)
}
