package interpret

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Terminal3D/DLMS-Parser/internal/dlms"
	"github.com/Terminal3D/DLMS-Parser/internal/octetstring"
)

// fieldMap indexes rows by label; labels are unique per message.
func fieldMap(fields []Field) map[string]string {
	m := make(map[string]string, len(fields))
	for _, f := range fields {
		m[f.Label] = f.Value
	}
	return m
}

func TestApplicationContextLabel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"2.16.756.5.8.1.1", "Logical Name"},
		{"2.16.756.5.8.1.2", "Short Name"},
		{"ln_with_ciphering", "Logical Name with ciphering"},
		{"1.2.3", "1.2.3"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ApplicationContextLabel(tt.input); got != tt.want {
				t.Errorf("ApplicationContextLabel(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSenderACSELabel(t *testing.T) {
	if got := SenderACSELabel(true); got != "Authentication required" {
		t.Errorf("SenderACSELabel(true) = %q", got)
	}
	if got := SenderACSELabel(false); got != "No authentication" {
		t.Errorf("SenderACSELabel(false) = %q", got)
	}
}

func TestAssociationResultLabel(t *testing.T) {
	tests := []struct {
		input dlms.AssociationResult
		want  string
	}{
		{dlms.AssociationAccepted, "Accepted"},
		{dlms.AssociationRejectedPermanent, "Rejected (permanent)"},
		{dlms.AssociationRejectedTransient, "Rejected (transient)"},
		{dlms.AssociationUnknown, "Unknown"},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			if got := AssociationResultLabel(tt.input); got != tt.want {
				t.Errorf("AssociationResultLabel(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFieldsAARQ(t *testing.T) {
	msg := dlms.AARQ{
		Header:                     dlms.Header{RawData: "6036A1", Type: dlms.TypeAARQ},
		ApplicationContextName:     "2.16.756.5.8.1.1",
		CallingAPTitle:             dlms.NotAvailable,
		SenderACSERequirements:     true,
		MechanismName:              "2.16.756.5.8.2.1",
		CallingAuthenticationValue: "3132333435363738",
		UserInformation:            "N/A",
		InitiateRequest: dlms.InitiateRequest{
			ResponseAllowed:           true,
			ProposedDlmsVersionNumber: 6,
			ProposedConformance:       []string{"Get", "Set", "Action"},
			ClientMaxReceivePduSize:   65535,
		},
	}

	fields := Fields(msg)
	if fields[0] != (Field{"Type", "AARQ"}) || fields[1] != (Field{"Raw Data", "6036A1"}) {
		t.Errorf("leading rows = %v, want Type and Raw Data", fields[:2])
	}

	got := fieldMap(fields)
	want := map[string]string{
		"Application Context":      "Logical Name (2.16.756.5.8.1.1)",
		"Calling AP Title":         "N/A",
		"Sender ACSE Requirements": "Authentication required",
		"Mechanism Name":           "Low-level security (password) (2.16.756.5.8.2.1)",
		"Calling Authentication":   "12345678 (0x3132333435363738)",
		"Proposed DLMS Version":    "6",
		"Proposed Conformance":     "Get, Set, Action",
		"Proposed Max PDU Size":    "65535 bytes",
		"Response Allowed":         "Yes",
	}
	for label, value := range want {
		if got[label] != value {
			t.Errorf("Fields()[%q] = %q, want %q", label, got[label], value)
		}
	}
}

func TestFieldsAARE(t *testing.T) {
	msg := dlms.AARE{
		Header:                 dlms.Header{RawData: "6129A1", Type: dlms.TypeAARE},
		ApplicationContextName: "2.16.756.5.8.1.2",
		AssociationResult:      dlms.AssociationAccepted,
		ResultSourceDiagnostic: "No reason given",
		InitiateResponse: dlms.InitiateResponse{
			NegotiatedDlmsVersionNumber: 6,
			ServerMaxReceivePduSize:     1024,
			VaaName:                     7,
		},
	}

	got := fieldMap(Fields(msg))
	want := map[string]string{
		"Application Context":     "Short Name (2.16.756.5.8.1.2)",
		"Association Result":      "Accepted",
		"ACSE Service User":       "No reason given",
		"Negotiated Conformance":  "N/A",
		"Negotiated Max PDU Size": "1024 bytes",
		"VAA Name":                "7 (0x0007)",
	}
	for label, value := range want {
		if got[label] != value {
			t.Errorf("Fields()[%q] = %q, want %q", label, got[label], value)
		}
	}
}

func TestFieldsGetResponseWithAnalysis(t *testing.T) {
	analysis := octetstring.Classify("4B464D")
	msg := dlms.GetResponse{
		Header:       dlms.Header{RawData: "C401C1000903", Type: dlms.TypeGetResponse},
		ResponseType: dlms.ResponseNormal,
		InvokeID:     0xC1,
		DataType:     "OctetString",
		Data:         "4B464D",
		Analysis:     &analysis,
	}

	got := fieldMap(Fields(msg))
	if got["Invoke ID"] != "193 (0xC1)" {
		t.Errorf("Invoke ID = %q, want %q", got["Invoke ID"], "193 (0xC1)")
	}
	if got["Data Content"] != analysis.Display() {
		t.Errorf("Data Content = %q, want %q", got["Data Content"], analysis.Display())
	}
	if got["Data Length"] != "3 bytes" {
		t.Errorf("Data Length = %q, want %q", got["Data Length"], "3 bytes")
	}
	if _, ok := got["Data"]; ok {
		t.Error("raw Data row present alongside analysis")
	}
}

func TestFieldsGetResponsePlain(t *testing.T) {
	msg := dlms.GetResponse{
		Header:   dlms.Header{Type: dlms.TypeGetResponse},
		DataType: "UInt32",
		Data:     "0005A0B2",
	}

	got := fieldMap(Fields(msg))
	if got["Data"] != "0005A0B2" {
		t.Errorf("Data = %q, want %q", got["Data"], "0005A0B2")
	}
}

func TestFieldsActionMessages(t *testing.T) {
	req := dlms.ActionRequest{
		Header:      dlms.Header{Type: dlms.TypeActionRequest},
		RequestType: dlms.RequestNormal,
		InvokeID:    0xC1,
		Method:      "18:0-0:44.0.0*255:2",
		Parameters: dlms.ActionParameters{Structure: []dlms.ActionParameter{
			{Kind: dlms.ParamOctetString, Text: "KFM_v9009"},
			{Kind: dlms.ParamDoubleLongUnsigned, Number: 368818},
		}},
	}

	got := fieldMap(Fields(req))
	if got["Parameter 1 (OctetString)"] != "KFM_v9009" {
		t.Errorf("Parameter 1 = %q", got["Parameter 1 (OctetString)"])
	}
	if got["Parameter 2 (DoubleLongUnsigned)"] != "368818 (0x0005A0B2)" {
		t.Errorf("Parameter 2 = %q", got["Parameter 2 (DoubleLongUnsigned)"])
	}

	resp := dlms.ActionResponse{
		Header:       dlms.Header{Type: dlms.TypeActionResponse},
		ResponseType: dlms.ResponseNormal,
		ActionResult: dlms.ActionTypeUnmatched,
	}
	if got := fieldMap(Fields(resp))["Action Result"]; got != "TYPE_UNMATCHED (12)" {
		t.Errorf("Action Result = %q, want %q", got, "TYPE_UNMATCHED (12)")
	}
}

func TestFieldsGenericKinds(t *testing.T) {
	msg := dlms.ReadRequest{Header: dlms.Header{RawData: "050102", Type: dlms.TypeReadRequest}}

	fields := Fields(msg)
	if len(fields) != 3 {
		t.Fatalf("Fields() returned %d rows, want 3", len(fields))
	}
	if fields[2] != (Field{"Raw Data Length", "6 characters"}) {
		t.Errorf("Fields()[2] = %v", fields[2])
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	err := WriteText(&buf, []Field{
		{"Type", "AARE"},
		{"Association Result", "Accepted"},
	})
	if err != nil {
		t.Fatalf("WriteText() error = %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("WriteText() wrote %d lines, want 2", len(lines))
	}
	// Values start in the same column.
	if strings.Index(lines[0], "AARE") != strings.Index(lines[1], "Accepted") {
		t.Errorf("columns not aligned:\n%s", buf.String())
	}
}
