package dlms

import "fmt"

// MessageType identifies a supported PDU kind. The value doubles as the
// JSON "type" discriminator.
type MessageType string

// Supported PDU kinds.
const (
	TypeAARQ           MessageType = "AARQ"
	TypeAARE           MessageType = "AARE"
	TypeGetRequest     MessageType = "GetRequest"
	TypeGetResponse    MessageType = "GetResponse"
	TypeActionRequest  MessageType = "ActionRequest"
	TypeActionResponse MessageType = "ActionResponse"
	TypeSetRequest     MessageType = "SetRequest"
	TypeSetResponse    MessageType = "SetResponse"
	TypeReadRequest    MessageType = "ReadRequest"
	TypeReadResponse   MessageType = "ReadResponse"
	TypeWriteRequest   MessageType = "WriteRequest"
	TypeWriteResponse  MessageType = "WriteResponse"
)

// Leading command octets.
const (
	CommandAARQ           byte = 0x60
	CommandAARE           byte = 0x61
	CommandGetRequest     byte = 0xC0
	CommandSetRequest     byte = 0xC1
	CommandActionRequest  byte = 0xC3
	CommandGetResponse    byte = 0xC4
	CommandSetResponse    byte = 0xC5
	CommandActionResponse byte = 0xC7
	CommandReadRequest    byte = 0x05
	CommandWriteRequest   byte = 0x06
	CommandReadResponse   byte = 0x0C
	CommandWriteResponse  byte = 0x0D
)

var commandTable = map[byte]MessageType{
	CommandAARQ:           TypeAARQ,
	CommandAARE:           TypeAARE,
	CommandGetRequest:     TypeGetRequest,
	CommandGetResponse:    TypeGetResponse,
	CommandActionRequest:  TypeActionRequest,
	CommandActionResponse: TypeActionResponse,
	CommandSetRequest:     TypeSetRequest,
	CommandSetResponse:    TypeSetResponse,
	CommandReadRequest:    TypeReadRequest,
	CommandReadResponse:   TypeReadResponse,
	CommandWriteRequest:   TypeWriteRequest,
	CommandWriteResponse:  TypeWriteResponse,
}

// Dispatch maps the leading octet of a PDU to its message kind.
func Dispatch(b byte) (MessageType, error) {
	t, ok := commandTable[b]
	if !ok {
		return "", &UnsupportedCommandError{Command: b}
	}
	return t, nil
}

// MessageTypes returns every supported kind in command-table order.
func MessageTypes() []MessageType {
	return []MessageType{
		TypeAARQ, TypeAARE,
		TypeGetRequest, TypeGetResponse,
		TypeActionRequest, TypeActionResponse,
		TypeSetRequest, TypeSetResponse,
		TypeReadRequest, TypeReadResponse,
		TypeWriteRequest, TypeWriteResponse,
	}
}

// String returns the kind name.
func (t MessageType) String() string {
	return string(t)
}

func formatCommand(b byte) string {
	return fmt.Sprintf("0x%02X", b)
}
