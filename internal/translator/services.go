package translator

import "fmt"

// Service choice octets shared by Get, Set and Action PDUs.
const (
	choiceNormal = 0x01
	choiceNext   = 0x02
	choiceList   = 0x03
)

// Element names for the Action choices other than Normal. Their bodies
// are kept as PduData.
var (
	actionRequestChoices = map[byte]string{
		0x02: "ActionRequestNextPBlock",
		0x03: "ActionRequestWithList",
		0x04: "ActionRequestWithFirstPBlock",
		0x05: "ActionRequestWithListAndFirstPBlock",
		0x06: "ActionRequestWithPBlock",
	}
	actionResponseChoices = map[byte]string{
		0x02: "ActionResponseWithPBlock",
		0x03: "ActionResponseWithList",
		0x04: "ActionResponseNextPBlock",
	}
)

// choiceName looks choice up in names, falling back to <prefix>ChoiceXX.
func choiceName(names map[byte]string, prefix string, choice byte) string {
	if name, ok := names[choice]; ok {
		return name
	}
	return fmt.Sprintf("%sChoice%02X", prefix, choice)
}

// Variable-access-specification choices for short-name services.
const (
	accessVariableName      = 0x02
	accessParameterized     = 0x04
	accessBlockNumberAccess = 0x05
)

// writeDescriptor decodes class id, instance id and a member id
// under the given element names.
func writeDescriptor(r *reader, w *writer, name, member string) error {
	classID, err := r.u16()
	if err != nil {
		return err
	}
	instance, err := r.bytes(6)
	if err != nil {
		return err
	}
	memberID, err := r.u8()
	if err != nil {
		return err
	}

	w.open(name)
	w.u16Value("ClassId", classID)
	w.hexValue("InstanceId", instance)
	w.byteValue(member, memberID)
	w.close(name)
	return nil
}

// writeAccessSelection decodes the optional selective-access block that
// follows an attribute descriptor.
func writeAccessSelection(r *reader, w *writer) error {
	present, err := r.u8()
	if err != nil {
		return err
	}
	if present == 0 {
		return nil
	}
	selector, err := r.u8()
	if err != nil {
		return err
	}
	w.open("AccessSelection")
	w.byteValue("AccessSelector", selector)
	w.open("AccessParameters")
	if err := writeData(r, w, 0); err != nil {
		return err
	}
	w.close("AccessParameters")
	w.close("AccessSelection")
	return nil
}

func writeInvoke(r *reader, w *writer) error {
	invoke, err := r.u8()
	if err != nil {
		return err
	}
	w.byteValue("InvokeIdAndPriority", invoke)
	return nil
}

// writeUnparsed records the remainder of a choice the translator does not
// break down further.
func writeUnparsed(r *reader, w *writer) {
	if r.remaining() > 0 {
		w.hexValue("PduData", r.rest())
	}
}

func decodeGetRequest(pdu []byte) (string, error) {
	r := newReader(pdu[1:])
	choice, err := r.u8()
	if err != nil {
		return "", err
	}

	w := &writer{}
	w.open("GetRequest")
	switch choice {
	case choiceNormal:
		w.open("GetRequestNormal")
		if err := writeInvoke(r, w); err != nil {
			return "", err
		}
		if err := writeDescriptor(r, w, "AttributeDescriptor", "AttributeId"); err != nil {
			return "", err
		}
		if err := writeAccessSelection(r, w); err != nil {
			return "", err
		}
		w.close("GetRequestNormal")
	case choiceNext:
		w.open("GetRequestForNextDataBlock")
		if err := writeInvoke(r, w); err != nil {
			return "", err
		}
		block, err := r.u32()
		if err != nil {
			return "", err
		}
		w.u32Value("BlockNumber", block)
		w.close("GetRequestForNextDataBlock")
	case choiceList:
		w.open("GetRequestWithList")
		if err := writeInvoke(r, w); err != nil {
			return "", err
		}
		n, err := r.length()
		if err != nil {
			return "", err
		}
		w.openQty("AttributeDescriptorList", n)
		for i := 0; i < n; i++ {
			w.open("AttributeDescriptorWithSelection")
			if err := writeDescriptor(r, w, "AttributeDescriptor", "AttributeId"); err != nil {
				return "", err
			}
			if err := writeAccessSelection(r, w); err != nil {
				return "", err
			}
			w.close("AttributeDescriptorWithSelection")
		}
		w.close("AttributeDescriptorList")
		w.close("GetRequestWithList")
	default:
		return "", fmt.Errorf("%w: get-request choice 0x%02X", ErrUnsupported, choice)
	}
	w.close("GetRequest")
	return w.String(), nil
}

// writeGetDataResult decodes a Get-Data-Result: 00 followed by Data, or 01
// followed by a data-access-result.
func writeGetDataResult(r *reader, w *writer) error {
	choice, err := r.u8()
	if err != nil {
		return err
	}
	switch choice {
	case 0x00:
		w.open("Data")
		if err := writeData(r, w, 0); err != nil {
			return err
		}
		w.close("Data")
	case 0x01:
		code, err := r.u8()
		if err != nil {
			return err
		}
		w.value("DataAccessError", dataAccessResultName(code))
	default:
		return fmt.Errorf("%w: get-data-result choice 0x%02X", ErrMalformed, choice)
	}
	return nil
}

func decodeGetResponse(pdu []byte) (string, error) {
	r := newReader(pdu[1:])
	choice, err := r.u8()
	if err != nil {
		return "", err
	}

	w := &writer{}
	w.open("GetResponse")
	switch choice {
	case choiceNormal:
		w.open("GetResponseNormal")
		if err := writeInvoke(r, w); err != nil {
			return "", err
		}
		w.open("Result")
		if err := writeGetDataResult(r, w); err != nil {
			return "", err
		}
		w.close("Result")
		w.close("GetResponseNormal")
	case choiceNext:
		w.open("GetResponsewithDataBlock")
		if err := writeInvoke(r, w); err != nil {
			return "", err
		}
		last, err := r.u8()
		if err != nil {
			return "", err
		}
		block, err := r.u32()
		if err != nil {
			return "", err
		}
		w.open("Result")
		w.byteValue("LastBlock", last)
		w.u32Value("BlockNumber", block)
		kind, err := r.u8()
		if err != nil {
			return "", err
		}
		if kind == 0x00 {
			raw, err := readCounted(r)
			if err != nil {
				return "", err
			}
			w.hexValue("RawData", raw)
		} else {
			code, err := r.u8()
			if err != nil {
				return "", err
			}
			w.value("DataAccessError", dataAccessResultName(code))
		}
		w.close("Result")
		w.close("GetResponsewithDataBlock")
	case choiceList:
		w.open("GetResponseWithList")
		if err := writeInvoke(r, w); err != nil {
			return "", err
		}
		n, err := r.length()
		if err != nil {
			return "", err
		}
		w.openQty("Result", n)
		for i := 0; i < n; i++ {
			if err := writeGetDataResult(r, w); err != nil {
				return "", err
			}
		}
		w.close("Result")
		w.close("GetResponseWithList")
	default:
		return "", fmt.Errorf("%w: get-response choice 0x%02X", ErrUnsupported, choice)
	}
	w.close("GetResponse")
	return w.String(), nil
}

func decodeSetRequest(pdu []byte) (string, error) {
	r := newReader(pdu[1:])
	choice, err := r.u8()
	if err != nil {
		return "", err
	}

	w := &writer{}
	w.open("SetRequest")
	switch choice {
	case choiceNormal:
		w.open("SetRequestNormal")
		if err := writeInvoke(r, w); err != nil {
			return "", err
		}
		if err := writeDescriptor(r, w, "AttributeDescriptor", "AttributeId"); err != nil {
			return "", err
		}
		if err := writeAccessSelection(r, w); err != nil {
			return "", err
		}
		w.open("Value")
		if err := writeData(r, w, 0); err != nil {
			return "", err
		}
		w.close("Value")
		w.close("SetRequestNormal")
	default:
		name := fmt.Sprintf("SetRequestChoice%02X", choice)
		w.open(name)
		if err := writeInvoke(r, w); err != nil {
			return "", err
		}
		writeUnparsed(r, w)
		w.close(name)
	}
	w.close("SetRequest")
	return w.String(), nil
}

func decodeSetResponse(pdu []byte) (string, error) {
	r := newReader(pdu[1:])
	choice, err := r.u8()
	if err != nil {
		return "", err
	}

	w := &writer{}
	w.open("SetResponse")
	switch choice {
	case choiceNormal:
		w.open("SetResponseNormal")
		if err := writeInvoke(r, w); err != nil {
			return "", err
		}
		code, err := r.u8()
		if err != nil {
			return "", err
		}
		w.value("Result", dataAccessResultName(code))
		w.close("SetResponseNormal")
	default:
		name := fmt.Sprintf("SetResponseChoice%02X", choice)
		w.open(name)
		if err := writeInvoke(r, w); err != nil {
			return "", err
		}
		writeUnparsed(r, w)
		w.close(name)
	}
	w.close("SetResponse")
	return w.String(), nil
}

// decodeActionRequest repeats the outer element name inside
// ActionRequestNormal, matching the output of common DLMS translators.
func decodeActionRequest(pdu []byte) (string, error) {
	r := newReader(pdu[1:])
	choice, err := r.u8()
	if err != nil {
		return "", err
	}

	w := &writer{}
	w.open("ActionRequest")
	switch choice {
	case choiceNormal:
		w.open("ActionRequestNormal")
		if err := writeInvoke(r, w); err != nil {
			return "", err
		}
		w.open("ActionRequest")
		if err := writeDescriptor(r, w, "MethodDescriptor", "MethodId"); err != nil {
			return "", err
		}
		present, err := r.u8()
		if err != nil {
			return "", err
		}
		if present != 0 {
			w.open("MethodInvocationParameters")
			if err := writeData(r, w, 0); err != nil {
				return "", err
			}
			w.close("MethodInvocationParameters")
		}
		w.close("ActionRequest")
		w.close("ActionRequestNormal")
	default:
		name := choiceName(actionRequestChoices, "ActionRequest", choice)
		w.open(name)
		if err := writeInvoke(r, w); err != nil {
			return "", err
		}
		writeUnparsed(r, w)
		w.close(name)
	}
	w.close("ActionRequest")
	return w.String(), nil
}

func decodeActionResponse(pdu []byte) (string, error) {
	r := newReader(pdu[1:])
	choice, err := r.u8()
	if err != nil {
		return "", err
	}

	w := &writer{}
	w.open("ActionResponse")
	switch choice {
	case choiceNormal:
		w.open("ActionResponseNormal")
		if err := writeInvoke(r, w); err != nil {
			return "", err
		}
		w.open("ActionResponse")
		code, err := r.u8()
		if err != nil {
			return "", err
		}
		w.byteValue("Result", code)
		if r.remaining() > 0 {
			present, err := r.u8()
			if err != nil {
				return "", err
			}
			if present != 0 {
				w.open("ReturnParameters")
				if err := writeGetDataResult(r, w); err != nil {
					return "", err
				}
				w.close("ReturnParameters")
			}
		}
		w.close("ActionResponse")
		w.close("ActionResponseNormal")
	default:
		name := choiceName(actionResponseChoices, "ActionResponse", choice)
		w.open(name)
		if err := writeInvoke(r, w); err != nil {
			return "", err
		}
		writeUnparsed(r, w)
		w.close(name)
	}
	w.close("ActionResponse")
	return w.String(), nil
}

// writeVariableAccess decodes one short-name variable access specification.
func writeVariableAccess(r *reader, w *writer) error {
	choice, err := r.u8()
	if err != nil {
		return err
	}
	switch choice {
	case accessVariableName:
		name, err := r.u16()
		if err != nil {
			return err
		}
		w.u16Value("VariableName", name)
	case accessParameterized:
		name, err := r.u16()
		if err != nil {
			return err
		}
		selector, err := r.u8()
		if err != nil {
			return err
		}
		w.open("ParameterisedAccess")
		w.u16Value("VariableName", name)
		w.byteValue("Selector", selector)
		w.open("Parameter")
		if err := writeData(r, w, 0); err != nil {
			return err
		}
		w.close("Parameter")
		w.close("ParameterisedAccess")
	case accessBlockNumberAccess:
		block, err := r.u16()
		if err != nil {
			return err
		}
		w.u16Value("BlockNumberAccess", block)
	default:
		return fmt.Errorf("%w: variable access choice 0x%02X", ErrUnsupported, choice)
	}
	return nil
}

func decodeReadRequest(pdu []byte) (string, error) {
	r := newReader(pdu[1:])
	n, err := r.length()
	if err != nil {
		return "", err
	}

	w := &writer{}
	w.openQty("ReadRequest", n)
	for i := 0; i < n; i++ {
		if err := writeVariableAccess(r, w); err != nil {
			return "", err
		}
	}
	w.close("ReadRequest")
	return w.String(), nil
}

func decodeReadResponse(pdu []byte) (string, error) {
	r := newReader(pdu[1:])
	n, err := r.length()
	if err != nil {
		return "", err
	}

	w := &writer{}
	w.openQty("ReadResponse", n)
	for i := 0; i < n; i++ {
		if err := writeGetDataResult(r, w); err != nil {
			return "", err
		}
	}
	w.close("ReadResponse")
	return w.String(), nil
}

func decodeWriteRequest(pdu []byte) (string, error) {
	r := newReader(pdu[1:])
	n, err := r.length()
	if err != nil {
		return "", err
	}

	w := &writer{}
	w.open("WriteRequest")
	w.openQty("ListOfVariableAccessSpecification", n)
	for i := 0; i < n; i++ {
		if err := writeVariableAccess(r, w); err != nil {
			return "", err
		}
	}
	w.close("ListOfVariableAccessSpecification")

	n, err = r.length()
	if err != nil {
		return "", err
	}
	w.openQty("ListOfData", n)
	for i := 0; i < n; i++ {
		if err := writeData(r, w, 0); err != nil {
			return "", err
		}
	}
	w.close("ListOfData")
	w.close("WriteRequest")
	return w.String(), nil
}

func decodeWriteResponse(pdu []byte) (string, error) {
	r := newReader(pdu[1:])
	n, err := r.length()
	if err != nil {
		return "", err
	}

	w := &writer{}
	w.openQty("WriteResponse", n)
	for i := 0; i < n; i++ {
		choice, err := r.u8()
		if err != nil {
			return "", err
		}
		switch choice {
		case 0x00:
			w.empty("Success")
		case 0x01:
			code, err := r.u8()
			if err != nil {
				return "", err
			}
			w.value("DataAccessError", dataAccessResultName(code))
		default:
			return "", fmt.Errorf("%w: write-response choice 0x%02X", ErrMalformed, choice)
		}
	}
	w.close("WriteResponse")
	return w.String(), nil
}
