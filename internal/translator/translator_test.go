package translator

import (
	"encoding/hex"
	"errors"
	"reflect"
	"regexp"
	"strings"
	"testing"
)

const (
	aarqHex           = "60 3A A1 09 06 07 60 85 74 05 08 01 01 A6 02 04 00 8A 02 07 80 8B 07 60 85 74 05 08 02 01 AC 0A 80 08 30 30 30 30 30 30 30 33 BE 10 04 0E 01 00 00 00 06 5F 1F 04 00 20 7E 1F 01 F4"
	aareHex           = "61 29 A1 09 06 07 60 85 74 05 08 01 01 A2 03 02 01 00 A3 05 A1 03 02 01 00 BE 10 04 0E 08 00 06 5F 1F 04 00 00 1E 19 04 C8 00 07"
	getRequestHex     = "C0 01 4F 00 01 00 00 81 00 00 00 02 00"
	getResponseHex    = "C4 01 4F 00 09 1E 00 0C C3 13 02 07 50 14 14 14 00 80 10 00 49 00 1D 08 26 C8 10 00 00 0B 02 00 00 00 02 EE"
	actionRequestHex  = "C3 01 42 00 12 00 00 2C 00 00 FF 01 01 02 02 09 1E 4B 46 4D 41 44 32 31 4E 5F 45 56 4E 5F 42 47 5F 32 4B 5F 38 4D 5F 44 53 5F 76 39 30 30 39 06 00 05 A0 B2"
	actionResponseHex = "C7 01 42 0C 00"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		t.Fatalf("bad test vector %q: %v", s, err)
	}
	return b
}

func translate(t *testing.T, s string) string {
	t.Helper()
	out, err := New().PDUToXML(mustHex(t, s))
	if err != nil {
		t.Fatalf("PDUToXML() error = %v", err)
	}
	return out
}

var conformancePattern = regexp.MustCompile(`<ConformanceBit Name="([^"]+)" />`)

func TestAARQ(t *testing.T) {
	got := translate(t, aarqHex)

	for _, want := range []string{
		`<AssociationRequest>`,
		`  <ApplicationContextName Value="LN" />`,
		`  <CallingAPTitle Value="" />`,
		`  <SenderACSERequirements Value="1" />`,
		`  <MechanismName Value="Low" />`,
		`  <CallingAuthentication Value="3030303030303033" />`,
		`    <ProposedDlmsVersionNumber Value="06" />`,
		`    <ProposedMaxPduSize Value="01F4" />`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("AARQ xml missing %q\n%s", want, got)
		}
	}
	if strings.Contains(got, "ResponseAllowed") {
		t.Error("AARQ xml has ResponseAllowed although the field was absent")
	}

	var bits []string
	for _, m := range conformancePattern.FindAllStringSubmatch(got, -1) {
		bits = append(bits, m[1])
	}
	want := []string{
		"GeneralBlockTransfer", "PriorityMgmtSupported", "Attribute0SupportedWithGet",
		"BlockTransferWithGetOrRead", "BlockTransferWithSetOrWrite", "BlockTransferWithAction",
		"MultipleReferences", "Get", "Set", "SelectiveAccess", "EventNotification", "Action",
	}
	if !reflect.DeepEqual(bits, want) {
		t.Errorf("conformance bits = %v, want %v", bits, want)
	}
}

func TestAARE(t *testing.T) {
	got := translate(t, aareHex)

	want := `<AssociationResponse>
  <ApplicationContextName Value="LN" />
  <AssociationResult Value="00" />
  <ResultSourceDiagnostic>
    <ACSEServiceUser Value="00" />
  </ResultSourceDiagnostic>
  <InitiateResponse>
    <NegotiatedDlmsVersionNumber Value="06" />
    <NegotiatedConformance>
      <ConformanceBit Name="BlockTransferWithGetOrRead" />
      <ConformanceBit Name="BlockTransferWithSetOrWrite" />
      <ConformanceBit Name="BlockTransferWithAction" />
      <ConformanceBit Name="MultipleReferences" />
      <ConformanceBit Name="Get" />
      <ConformanceBit Name="Set" />
      <ConformanceBit Name="Action" />
    </NegotiatedConformance>
    <NegotiatedMaxPduSize Value="04C8" />
    <VaaName Value="0007" />
  </InitiateResponse>
</AssociationResponse>`
	if got != want {
		t.Errorf("AARE xml =\n%s\nwant\n%s", got, want)
	}
}

func TestCipheredUserInformation(t *testing.T) {
	// AARQ whose user-information carries a glo-initiateRequest (0x21).
	pdu := "6016A109060760857405080103BE0904072103AABBCC0011"
	got := translate(t, pdu)

	if !strings.Contains(got, `<ApplicationContextName Value="LN_WITH_CIPHERING" />`) {
		t.Errorf("context not decoded:\n%s", got)
	}
	if !strings.Contains(got, `<UserInformation Value="2103AABBCC0011" />`) {
		t.Errorf("ciphered user information not passed through:\n%s", got)
	}
}

func TestGetRequest(t *testing.T) {
	got := translate(t, getRequestHex)

	want := `<GetRequest>
  <GetRequestNormal>
    <InvokeIdAndPriority Value="4F" />
    <AttributeDescriptor>
      <ClassId Value="0001" />
      <InstanceId Value="000081000000" />
      <AttributeId Value="02" />
    </AttributeDescriptor>
  </GetRequestNormal>
</GetRequest>`
	if got != want {
		t.Errorf("GetRequest xml =\n%s\nwant\n%s", got, want)
	}
}

func TestGetRequestWithAccessSelection(t *testing.T) {
	// Profile generic buffer read with a range selector.
	got := translate(t, "C0 01 C1 0007 0100630100FF 02 01 01 0203 0906 0000010000FF 0F02 120000")

	for _, want := range []string{
		`<AccessSelector Value="01" />`,
		`<Structure Qty="03" >`,
		`<OctetString Value="0000010000FF" />`,
		`<Int8 Value="02" />`,
		`<UInt16 Value="0000" />`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("xml missing %q\n%s", want, got)
		}
	}
}

func TestGetResponse(t *testing.T) {
	got := translate(t, getResponseHex)

	want := `<GetResponse>
  <GetResponseNormal>
    <InvokeIdAndPriority Value="4F" />
    <Result>
      <Data>
        <OctetString Value="000CC3130207501414140080100049001D0826C81000000B0200000002EE" />
      </Data>
    </Result>
  </GetResponseNormal>
</GetResponse>`
	if got != want {
		t.Errorf("GetResponse xml =\n%s\nwant\n%s", got, want)
	}
}

func TestGetResponseDataAccessError(t *testing.T) {
	got := translate(t, "C4014F0104")
	if !strings.Contains(got, `<DataAccessError Value="ObjectUndefined" />`) {
		t.Errorf("xml =\n%s", got)
	}
}

func TestActionRequest(t *testing.T) {
	got := translate(t, actionRequestHex)

	want := `<ActionRequest>
  <ActionRequestNormal>
    <InvokeIdAndPriority Value="42" />
    <ActionRequest>
      <MethodDescriptor>
        <ClassId Value="0012" />
        <InstanceId Value="00002C0000FF" />
        <MethodId Value="01" />
      </MethodDescriptor>
      <MethodInvocationParameters>
        <Structure Qty="02" >
          <OctetString Value="4B464D414432314E5F45564E5F42475F324B5F384D5F44535F7639303039" />
          <UInt32 Value="0005A0B2" />
        </Structure>
      </MethodInvocationParameters>
    </ActionRequest>
  </ActionRequestNormal>
</ActionRequest>`
	if got != want {
		t.Errorf("ActionRequest xml =\n%s\nwant\n%s", got, want)
	}
}

func TestActionResponse(t *testing.T) {
	got := translate(t, actionResponseHex)

	want := `<ActionResponse>
  <ActionResponseNormal>
    <InvokeIdAndPriority Value="42" />
    <ActionResponse>
      <Result Value="0C" />
    </ActionResponse>
  </ActionResponseNormal>
</ActionResponse>`
	if got != want {
		t.Errorf("ActionResponse xml =\n%s\nwant\n%s", got, want)
	}
}

func TestActionChoiceNames(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"request next block", "C3 02 42 00 00 00 01", "<ActionRequestNextPBlock>"},
		{"request with list", "C3 03 42 01", "<ActionRequestWithList>"},
		{"request with list and first block", "C3 05 42 01", "<ActionRequestWithListAndFirstPBlock>"},
		{"request unknown choice", "C3 09 42", "<ActionRequestChoice09>"},
		{"response with block", "C7 02 42 01", "<ActionResponseWithPBlock>"},
		{"response with list", "C7 03 42 01 00", "<ActionResponseWithList>"},
		{"response unknown choice", "C7 07 42", "<ActionResponseChoice07>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translate(t, tt.in)
			if !strings.Contains(got, tt.want) {
				t.Errorf("PDUToXML(%s) =\n%s\nwant element %s", tt.in, got, tt.want)
			}
			if !strings.Contains(got, `<InvokeIdAndPriority Value="42" />`) {
				t.Errorf("PDUToXML(%s) lost the invoke id:\n%s", tt.in, got)
			}
		})
	}
}

func TestSetRequestAndResponse(t *testing.T) {
	got := translate(t, "C101C1000100000100 00FF02000906 07E4050F030A")
	for _, want := range []string{`<SetRequestNormal>`, `<ClassId Value="0001" />`, `<Value>`, `<OctetString Value="07E4050F030A" />`} {
		if !strings.Contains(got, want) {
			t.Errorf("SetRequest xml missing %q\n%s", want, got)
		}
	}

	got = translate(t, "C501C100")
	if !strings.Contains(got, `<Result Value="Success" />`) {
		t.Errorf("SetResponse xml =\n%s", got)
	}
}

func TestShortNameServices(t *testing.T) {
	tests := []struct {
		name string
		pdu  string
		want []string
	}{
		{"read request", "050102FA00", []string{`<ReadRequest Qty="01" >`, `<VariableName Value="FA00" />`}},
		{"read response", "0C01000A03414243", []string{`<ReadResponse Qty="01" >`, `<String Value="ABC" />`}},
		{"read response error", "0C010103", []string{`<DataAccessError Value="ReadWriteDenied" />`}},
		{"write request", "06010 2FA0001 1105", []string{`<VariableName Value="FA00" />`, `<ListOfData Qty="01" >`, `<UInt8 Value="05" />`}},
		{"write response", "0D020001 02", []string{`<WriteResponse Qty="02" >`, `<Success />`, `<DataAccessError Value="TemporaryFailure" />`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translate(t, tt.pdu)
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("xml missing %q\n%s", want, got)
				}
			}
		})
	}
}

func TestDataTypes(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"null", "00", `<Null />`},
		{"boolean", "0301", `<Boolean Value="true" />`},
		{"bit string", "040AC040", `<BitString Value="1100000001" />`},
		{"int32", "05FFFFFFFE", `<Int32 Value="FFFFFFFE" />`},
		{"utf8", "0C02C3A9", `<StringUTF8 Value="é" />`},
		{"escaped text", "0A03413C42", `<String Value="A&lt;B" />`},
		{"int64", "140000000000000001", `<Int64 Value="0000000000000001" />`},
		{"float32", "173F800000", `<Float32 Value="3F800000" />`},
		{"date time", "1907E4050F050A1E00FF800000", `<DateTime Value="07E4050F050A1E00FF800000" />`},
		{"date", "1A07E4050F05", `<Date Value="07E4050F05" />`},
		{"time", "1B0A1E0000", `<Time Value="0A1E0000" />`},
		{"enum", "1603", `<Enum Value="03" />`},
		{"array", "01021101 1102", `<Array Qty="02" >`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Wrap the value in a normal Get-Response.
			got := translate(t, "C401010 0"+tt.data)
			if !strings.Contains(got, tt.want) {
				t.Errorf("xml missing %q\n%s", tt.want, got)
			}
		})
	}
}

func TestPDUToXMLErrors(t *testing.T) {
	tests := []struct {
		name string
		pdu  string
		want error
	}{
		{"empty", "", ErrTruncated},
		{"unknown command", "FF01", ErrUnsupported},
		{"truncated aarq", "603AA109", ErrTruncated},
		{"truncated get request", "C0014F0001", ErrTruncated},
		{"bad get choice", "C0094F", ErrUnsupported},
		{"bad data tag", "C4014F0013", ErrUnsupported},
		{"bad aarq tag", "6003FF0100", ErrMalformed},
		{"bad conformance tag", "600EBE0C040A01000000065F1E040000", ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().PDUToXML(mustHex(t, tt.pdu))
			if !errors.Is(err, tt.want) {
				t.Errorf("PDUToXML() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDataNestingLimit(t *testing.T) {
	deep := strings.Repeat("0101", maxDataDepth+2) + "00"
	_, err := New().PDUToXML(mustHex(t, "C4014F00"+deep))
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("PDUToXML() error = %v, want ErrMalformed", err)
	}
}
