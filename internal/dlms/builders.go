package dlms

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"golang.org/x/text/encoding/charmap"

	"github.com/Terminal3D/DLMS-Parser/internal/obis"
	"github.com/Terminal3D/DLMS-Parser/internal/octetstring"
)

// Fields is the tag-scoped view of decoder XML the builders read from.
// *xmlfield.Document satisfies it.
type Fields interface {
	// Value returns the Value attribute of the first element named tag.
	Value(tag string) (string, bool)
	// ValueScoped is Value restricted to the first section element.
	ValueScoped(section, tag string) (string, bool)
	// All returns every attr attribute of elements named tag.
	All(tag, attr string) []string
	// AllScoped is All restricted to the first section element.
	AllScoped(section, tag, attr string) []string
	// Has reports whether an element named tag occurs.
	Has(tag string) bool
}

// buildInput carries everything a builder needs for one PDU.
type buildInput struct {
	header Header
	pdu    []byte
	fields Fields
}

type builder func(in buildInput) (Message, error)

var builders = map[MessageType]builder{
	TypeAARQ:           buildAARQ,
	TypeAARE:           buildAARE,
	TypeGetRequest:     buildGetRequest,
	TypeGetResponse:    buildGetResponse,
	TypeActionRequest:  buildActionRequest,
	TypeActionResponse: buildActionResponse,
	TypeSetRequest:     func(in buildInput) (Message, error) { return SetRequest{in.header}, nil },
	TypeSetResponse:    func(in buildInput) (Message, error) { return SetResponse{in.header}, nil },
	TypeReadRequest:    func(in buildInput) (Message, error) { return ReadRequest{in.header}, nil },
	TypeReadResponse:   func(in buildInput) (Message, error) { return ReadResponse{in.header}, nil },
	TypeWriteRequest:   func(in buildInput) (Message, error) { return WriteRequest{in.header}, nil },
	TypeWriteResponse:  func(in buildInput) (Message, error) { return WriteResponse{in.header}, nil },
}

// hexInt parses a hex field value.
func hexInt(v string) (int, error) {
	n, err := cast.ToIntE("0x" + strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid hex number %q: %w", v, err)
	}
	return n, nil
}

// optionalHexInt parses tag as hex, yielding 0 when the tag is absent.
func optionalHexInt(f Fields, tag string) (int, error) {
	v, ok := f.Value(tag)
	if !ok || v == "" {
		return 0, nil
	}
	n, err := hexInt(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", tag, err)
	}
	return n, nil
}

func valueOr(f Fields, tag, fallback string) string {
	if v, ok := f.Value(tag); ok && v != "" {
		return v
	}
	return fallback
}

// invokeID is the third octet of a Get/Set/Action PDU.
func invokeID(pdu []byte) int {
	if len(pdu) > 2 {
		return int(pdu[2])
	}
	return 0
}

// descriptor renders "<classId>:<OBIS>:<memberId>" from a Get attribute or
// Action method descriptor.
func descriptor(f Fields, member string) (string, error) {
	classID, okClass := f.Value("ClassId")
	instance, okInstance := f.Value("InstanceId")
	memberID, okMember := f.Value(member)
	if !okClass || !okInstance || !okMember {
		return NotAvailable, nil
	}

	c, err := hexInt(classID)
	if err != nil {
		return "", fmt.Errorf("ClassId: %w", err)
	}
	m, err := hexInt(memberID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", member, err)
	}
	return fmt.Sprintf("%d:%s:%d", c, obis.FormatInstanceID(instance), m), nil
}

func buildAARQ(in buildInput) (Message, error) {
	f := in.fields

	senderACSE, _ := f.Value("SenderACSERequirements")
	responseAllowed := true
	if v, ok := f.Value("ResponseAllowed"); ok {
		if b, err := cast.ToBoolE(v); err == nil {
			responseAllowed = b
		}
	}

	version, err := optionalHexInt(f, "ProposedDlmsVersionNumber")
	if err != nil {
		return nil, err
	}
	maxPDU, err := optionalHexInt(f, "ProposedMaxPduSize")
	if err != nil {
		return nil, err
	}

	ctxName, _ := f.Value("ApplicationContextName")
	mechanism, _ := f.Value("MechanismName")

	return AARQ{
		Header:                     in.header,
		ApplicationContextName:     MapApplicationContext(ctxName),
		CallingAPTitle:             valueOr(f, "CallingAPTitle", NotAvailable),
		SenderACSERequirements:     cast.ToBool(senderACSE),
		MechanismName:              MapMechanism(mechanism),
		CallingAuthenticationValue: valueOr(f, "CallingAuthentication", NotAvailable),
		UserInformation:            valueOr(f, "UserInformation", NotAvailable),
		InitiateRequest: InitiateRequest{
			ResponseAllowed:           responseAllowed,
			ProposedDlmsVersionNumber: version,
			ProposedConformance:       f.AllScoped("ProposedConformance", "ConformanceBit", "Name"),
			ClientMaxReceivePduSize:   maxPDU,
		},
	}, nil
}

func buildAARE(in buildInput) (Message, error) {
	f := in.fields

	version, err := optionalHexInt(f, "NegotiatedDlmsVersionNumber")
	if err != nil {
		return nil, err
	}
	maxPDU, err := optionalHexInt(f, "NegotiatedMaxPduSize")
	if err != nil {
		return nil, err
	}
	vaa, err := optionalHexInt(f, "VaaName")
	if err != nil {
		return nil, err
	}

	diagnostic := NotAvailable
	if f.Has("ResultSourceDiagnostic") {
		code, _ := f.ValueScoped("ResultSourceDiagnostic", "ACSEServiceUser")
		diagnostic = MapACSEServiceUser(code)
	}

	ctxName, _ := f.Value("ApplicationContextName")
	result, _ := f.Value("AssociationResult")

	return AARE{
		Header:                 in.header,
		ApplicationContextName: MapApplicationContext(ctxName),
		AssociationResult:      MapAssociationResult(result),
		ResultSourceDiagnostic: diagnostic,
		UserInformation:        valueOr(f, "UserInformation", NotAvailable),
		InitiateResponse: InitiateResponse{
			NegotiatedDlmsVersionNumber: version,
			NegotiatedConformance:       f.AllScoped("NegotiatedConformance", "ConformanceBit", "Name"),
			ServerMaxReceivePduSize:     maxPDU,
			VaaName:                     vaa,
		},
	}, nil
}

func buildGetRequest(in buildInput) (Message, error) {
	f := in.fields

	attribute, err := descriptor(f, "AttributeId")
	if err != nil {
		return nil, err
	}

	reqType := RequestNormal
	switch {
	case f.Has("GetRequestWithList"):
		reqType = RequestWithList
	case f.Has("GetRequestForNextDataBlock"), f.Has("GetRequestNext"):
		reqType = RequestNext
	}

	selector, _ := f.Value("AccessSelector")

	return GetRequest{
		Header:         in.header,
		RequestType:    reqType,
		InvokeID:       invokeID(in.pdu),
		Attribute:      attribute,
		AccessSelector: selector,
	}, nil
}

// dataTypeTags is the detection order for GetResponse data types. The
// first tag present wins.
var dataTypeTags = []struct {
	tag  string
	name string
}{
	{"OctetString", "OCTET_STRING"},
	{"UInt32", "UINT32"},
	{"UInt16", "UINT16"},
	{"UInt8", "UINT8"},
	{"Structure", "STRUCTURE"},
	{"Array", "ARRAY"},
	{"Boolean", "BOOLEAN"},
	{"Integer", "INTEGER"},
	{"DateTime", "DATETIME"},
	{"Date", "DATE"},
	{"Time", "TIME"},
	{"Int8", "INT8"},
	{"Int16", "INT16"},
	{"Int32", "INT32"},
	{"Int64", "INT64"},
	{"UInt64", "UINT64"},
	{"Enum", "ENUM"},
	{"String", "VISIBLE_STRING"},
	{"StringUTF8", "UTF8_STRING"},
	{"BitString", "BIT_STRING"},
	{"Float32", "FLOAT32"},
	{"Float64", "FLOAT64"},
	{"BCD", "BCD"},
	{"DataAccessError", "DATA_ACCESS_ERROR"},
}

// dataValueTags is the lookup order for the GetResponse data value.
var dataValueTags = []string{
	"OctetString", "UInt32", "UInt16", "UInt8", "Integer", "Boolean", "DateTime", "Date", "Time",
	"Int8", "Int16", "Int32", "Int64", "UInt64", "Enum", "String", "StringUTF8", "BitString",
	"Float32", "Float64", "BCD", "DataAccessError",
}

func buildGetResponse(in buildInput) (Message, error) {
	f := in.fields

	dataType := Unknown
	for _, d := range dataTypeTags {
		if f.Has(d.tag) {
			dataType = d.name
			break
		}
	}

	data := Missing
	for _, tag := range dataValueTags {
		if v, ok := f.Value(tag); ok {
			data = v
			break
		}
	}

	var analysis *octetstring.Analysis
	if v, ok := f.Value("OctetString"); ok {
		a := octetstring.Classify(v)
		analysis = &a
	}

	respType := ResponseNormal
	switch {
	case f.Has("GetResponseWithDataBlock"):
		respType = ResponseWithDatablock
	case f.Has("GetResponseWithList"):
		respType = ResponseWithList
	}

	return GetResponse{
		Header:       in.header,
		ResponseType: respType,
		InvokeID:     invokeID(in.pdu),
		DataType:     dataType,
		Data:         data,
		Analysis:     analysis,
	}, nil
}

func buildActionRequest(in buildInput) (Message, error) {
	f := in.fields

	method, err := descriptor(f, "MethodId")
	if err != nil {
		return nil, err
	}
	params, err := actionParameters(f)
	if err != nil {
		return nil, err
	}

	// Block-transfer choices that only carry a first block keep NORMAL.
	reqType := RequestNormal
	switch {
	case f.Has("ActionRequestWithList"), f.Has("ActionRequestWithListAndFirstPBlock"):
		reqType = RequestWithList
	case f.Has("ActionRequestNextPBlock"):
		reqType = RequestNext
	}

	return ActionRequest{
		Header:      in.header,
		RequestType: reqType,
		InvokeID:    invokeID(in.pdu),
		Method:      method,
		Parameters:  ActionParameters{Structure: params},
	}, nil
}

// actionParameters collects method arguments from the
// MethodInvocationParameters section: octet strings first, then UInt32,
// UInt16 and UInt8 values.
func actionParameters(f Fields) ([]ActionParameter, error) {
	const section = "MethodInvocationParameters"

	params := []ActionParameter{}
	for _, v := range f.AllScoped(section, "OctetString", "Value") {
		params = append(params, ActionParameter{Kind: ParamOctetString, Text: decodeLatin1(v)})
	}
	for _, tag := range []string{"UInt32", "UInt16", "Unsigned", "UInt8"} {
		for _, v := range f.AllScoped(section, tag, "Value") {
			n, err := cast.ToUint64E("0x" + v)
			if err != nil {
				return nil, fmt.Errorf("%s parameter %q: %w", tag, v, err)
			}
			params = append(params, ActionParameter{Kind: ParamDoubleLongUnsigned, Number: n})
		}
	}
	return params, nil
}

// decodeLatin1 reads hex as ISO-8859-1 text, keeping the hex when it does
// not decode.
func decodeLatin1(v string) string {
	b, err := hex.DecodeString(v)
	if err != nil {
		return v
	}
	text, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return v
	}
	return string(text)
}

func buildActionResponse(in buildInput) (Message, error) {
	f := in.fields
	result, _ := f.Value("Result")

	respType := ResponseNormal
	switch {
	case f.Has("ActionResponseWithPBlock"):
		respType = ResponseWithDatablock
	case f.Has("ActionResponseWithList"):
		respType = ResponseWithList
	}

	return ActionResponse{
		Header:       in.header,
		ResponseType: respType,
		InvokeID:     invokeID(in.pdu),
		ActionResult: MapActionResult(result),
	}, nil
}
