package dlms

import (
	"encoding/json"
	"fmt"

	"github.com/Terminal3D/DLMS-Parser/internal/octetstring"
)

// Message is a decoded PDU. The set of implementations is closed; consumers
// switch on the concrete type:
//
//	switch m := msg.(type) {
//	case dlms.AARQ:
//	case dlms.GetResponse:
//	...
//	}
type Message interface {
	// Head returns the fields shared by every kind.
	Head() Header
	isMessage()
}

// Header holds the fields common to every message kind.
type Header struct {
	RawData           string      `json:"rawData"`
	Type              MessageType `json:"type"`
	DisplayStructure  string      `json:"displayStructure,omitempty"`
	OriginalStructure string      `json:"originalStructure,omitempty"`
}

// Head implements Message.
func (h Header) Head() Header { return h }

func (Header) isMessage() {}

// AssociationResult is the outcome carried by an AARE.
type AssociationResult string

// Association results.
const (
	AssociationAccepted          AssociationResult = "ACCEPTED"
	AssociationRejectedPermanent AssociationResult = "REJECTED_PERMANENT"
	AssociationRejectedTransient AssociationResult = "REJECTED_TRANSIENT"
	AssociationUnknown           AssociationResult = "UNKNOWN"
)

// RequestType is the Get/Action request variant.
type RequestType string

// Request variants.
const (
	RequestNormal   RequestType = "NORMAL"
	RequestNext     RequestType = "NEXT"
	RequestWithList RequestType = "WITH_LIST"
)

// ResponseType is the Get/Action response variant.
type ResponseType string

// Response variants.
const (
	ResponseNormal        ResponseType = "NORMAL"
	ResponseWithDatablock ResponseType = "WITH_DATABLOCK"
	ResponseWithList      ResponseType = "WITH_LIST"
)

// ActionResult is the outcome of an ACTION service invocation.
type ActionResult string

// Action results. ActionOtherReason is the catch-all for codes outside the
// table.
const (
	ActionSuccess                 ActionResult = "SUCCESS"
	ActionHardwareFault           ActionResult = "HARDWARE_FAULT"
	ActionTemporaryFailure        ActionResult = "TEMPORARY_FAILURE"
	ActionReadWriteDenied         ActionResult = "READ_WRITE_DENIED"
	ActionObjectUndefined         ActionResult = "OBJECT_UNDEFINED"
	ActionObjectClassInconsistent ActionResult = "OBJECT_CLASS_INCONSISTENT"
	ActionObjectUnavailable       ActionResult = "OBJECT_UNAVAILABLE"
	ActionTypeUnmatched           ActionResult = "TYPE_UNMATCHED"
	ActionScopeOfAccessViolated   ActionResult = "SCOPE_OF_ACCESS_VIOLATED"
	ActionDataBlockUnavailable    ActionResult = "DATA_BLOCK_UNAVAILABLE"
	ActionLongActionAborted       ActionResult = "LONG_ACTION_ABORTED"
	ActionNoLongActionInProgress  ActionResult = "NO_LONG_ACTION_IN_PROGRESS"
	ActionOtherReason             ActionResult = "OTHER_REASON"
)

// InitiateRequest is the xDLMS proposal carried in an AARQ.
type InitiateRequest struct {
	ResponseAllowed           bool     `json:"responseAllowed"`
	ProposedDlmsVersionNumber int      `json:"proposedDlmsVersionNumber"`
	ProposedConformance       []string `json:"proposedConformance"`
	ClientMaxReceivePduSize   int      `json:"clientMaxReceivePduSize"`
}

// InitiateResponse is the xDLMS answer carried in an AARE.
type InitiateResponse struct {
	NegotiatedDlmsVersionNumber int      `json:"negotiatedDlmsVersionNumber"`
	NegotiatedConformance       []string `json:"negotiatedConformance"`
	ServerMaxReceivePduSize     int      `json:"serverMaxReceivePduSize"`
	VaaName                     int      `json:"vaaName"`
}

// AARQ is an association request.
type AARQ struct {
	Header
	ApplicationContextName     string          `json:"applicationContextName"`
	CallingAPTitle             string          `json:"callingApTitle"`
	SenderACSERequirements     bool            `json:"senderAcseRequirements"`
	MechanismName              string          `json:"mechanismName"`
	CallingAuthenticationValue string          `json:"callingAuthenticationValue"`
	UserInformation            string          `json:"userInformation"`
	InitiateRequest            InitiateRequest `json:"initiateRequest"`
}

// AARE is an association response.
type AARE struct {
	Header
	ApplicationContextName string            `json:"applicationContextName"`
	AssociationResult      AssociationResult `json:"associationResult"`
	ResultSourceDiagnostic string            `json:"resultSourceDiagnostic"`
	UserInformation        string            `json:"userInformation"`
	InitiateResponse       InitiateResponse  `json:"initiateResponse"`
}

// GetRequest reads one attribute.
type GetRequest struct {
	Header
	RequestType    RequestType `json:"requestType"`
	InvokeID       int         `json:"invokeId"`
	Attribute      string      `json:"attribute"`
	AccessSelector string      `json:"accessSelector,omitempty"`
}

// GetResponse carries the value read by a GetRequest.
type GetResponse struct {
	Header
	ResponseType ResponseType          `json:"responseType"`
	InvokeID     int                   `json:"invokeId"`
	DataType     string                `json:"dataType"`
	Data         string                `json:"data"`
	Analysis     *octetstring.Analysis `json:"analysis,omitempty"`
}

// ActionRequest invokes a method on an object.
type ActionRequest struct {
	Header
	RequestType RequestType      `json:"requestType"`
	InvokeID    int              `json:"invokeId"`
	Method      string           `json:"method"`
	Parameters  ActionParameters `json:"parameters"`
}

// ActionResponse reports the outcome of an ActionRequest.
type ActionResponse struct {
	Header
	ResponseType ResponseType `json:"responseType"`
	InvokeID     int          `json:"invokeId"`
	ActionResult ActionResult `json:"actionResult"`
}

// SetRequest writes one attribute.
type SetRequest struct{ Header }

// SetResponse acknowledges a SetRequest.
type SetResponse struct{ Header }

// ReadRequest is a short-name read.
type ReadRequest struct{ Header }

// ReadResponse answers a ReadRequest.
type ReadResponse struct{ Header }

// WriteRequest is a short-name write.
type WriteRequest struct{ Header }

// WriteResponse answers a WriteRequest.
type WriteResponse struct{ Header }

// ParameterKind tags an ActionParameter.
type ParameterKind string

// Parameter kinds.
const (
	ParamOctetString        ParameterKind = "OctetString"
	ParamDoubleLongUnsigned ParameterKind = "DoubleLongUnsigned"
)

// ActionParameter is a single method invocation argument. Text is set for
// ParamOctetString, Number for ParamDoubleLongUnsigned.
type ActionParameter struct {
	Kind   ParameterKind
	Text   string
	Number uint64
}

// ActionParameters groups the arguments of an ActionRequest.
type ActionParameters struct {
	Structure []ActionParameter `json:"structure"`
}

type actionParameterJSON struct {
	Kind  ParameterKind   `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes the parameter as {"kind":..., "value":...}.
func (p ActionParameter) MarshalJSON() ([]byte, error) {
	var v any
	switch p.Kind {
	case ParamDoubleLongUnsigned:
		v = p.Number
	default:
		v = p.Text
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(actionParameterJSON{Kind: p.Kind, Value: raw})
}

// UnmarshalJSON decodes the {"kind":..., "value":...} form.
func (p *ActionParameter) UnmarshalJSON(data []byte) error {
	var aux actionParameterJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.Kind = aux.Kind
	switch aux.Kind {
	case ParamDoubleLongUnsigned:
		return json.Unmarshal(aux.Value, &p.Number)
	case ParamOctetString:
		return json.Unmarshal(aux.Value, &p.Text)
	default:
		return fmt.Errorf("unknown action parameter kind %q", aux.Kind)
	}
}

// UnmarshalMessage restores a Message from its JSON form, using the "type"
// discriminator to pick the concrete kind.
func UnmarshalMessage(data []byte) (Message, error) {
	var probe struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("reading message type: %w", err)
	}

	var target Message
	switch probe.Type {
	case TypeAARQ:
		target = &AARQ{}
	case TypeAARE:
		target = &AARE{}
	case TypeGetRequest:
		target = &GetRequest{}
	case TypeGetResponse:
		target = &GetResponse{}
	case TypeActionRequest:
		target = &ActionRequest{}
	case TypeActionResponse:
		target = &ActionResponse{}
	case TypeSetRequest:
		target = &SetRequest{}
	case TypeSetResponse:
		target = &SetResponse{}
	case TypeReadRequest:
		target = &ReadRequest{}
	case TypeReadResponse:
		target = &ReadResponse{}
	case TypeWriteRequest:
		target = &WriteRequest{}
	case TypeWriteResponse:
		target = &WriteResponse{}
	default:
		return nil, fmt.Errorf("unknown message type %q", probe.Type)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", probe.Type, err)
	}
	return deref(target), nil
}

// UnmarshalMessages restores a JSON array of messages.
func UnmarshalMessages(data []byte) ([]Message, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("reading message list: %w", err)
	}
	out := make([]Message, 0, len(raws))
	for i, raw := range raws {
		m, err := UnmarshalMessage(raw)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// deref returns the value form so callers always see value variants.
func deref(m Message) Message {
	switch v := m.(type) {
	case *AARQ:
		return *v
	case *AARE:
		return *v
	case *GetRequest:
		return *v
	case *GetResponse:
		return *v
	case *ActionRequest:
		return *v
	case *ActionResponse:
		return *v
	case *SetRequest:
		return *v
	case *SetResponse:
		return *v
	case *ReadRequest:
		return *v
	case *ReadResponse:
		return *v
	case *WriteRequest:
		return *v
	case *WriteResponse:
		return *v
	}
	return m
}
