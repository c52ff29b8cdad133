package translator

import (
	"bytes"
	"fmt"
)

// AARQ context-specific tags.
const (
	tagProtocolVersion     = 0x80
	tagApplicationContext  = 0xA1
	tagCalledAPTitle       = 0xA2
	tagCalledAEQualifier   = 0xA3
	tagCalledAPInvocation  = 0xA4
	tagCalledAEInvocation  = 0xA5
	tagCallingAPTitle      = 0xA6
	tagCallingAEQualifier  = 0xA7
	tagCallingAPInvocation = 0xA8
	tagCallingAEInvocation = 0xA9
	tagSenderACSE          = 0x8A
	tagMechanismName       = 0x8B
	tagCallingAuth         = 0xAC
	tagImplementationInfo  = 0xBD
	tagUserInformation     = 0xBE
)

// AARE context-specific tags.
const (
	tagAssociationResult     = 0xA2
	tagResultDiagnostic      = 0xA3
	tagRespondingAPTitle     = 0xA4
	tagRespondingAEQualifier = 0xA5
	tagResponderACSE         = 0x88
	tagRespondingMechanism   = 0x89
	tagRespondingAuth        = 0xAA
	tagDiagnosticUser        = 0xA1
	tagDiagnosticProvider    = 0xA2
)

// Universal and value tags.
const (
	tagInteger             = 0x02
	tagOctetString         = 0x04
	tagOID                 = 0x06
	tagAuthValueCharString = 0x80
)

// xDLMS APDU tags carried in user-information.
const (
	xdlmsInitiateRequest  = 0x01
	xdlmsInitiateResponse = 0x08
	conformanceTag        = 0x5F
	conformanceTag2       = 0x1F
)

var (
	contextOIDPrefix   = []byte{0x60, 0x85, 0x74, 0x05, 0x08, 0x01}
	mechanismOIDPrefix = []byte{0x60, 0x85, 0x74, 0x05, 0x08, 0x02}
)

var contextNames = map[byte]string{
	1: "LN",
	2: "SN",
	3: "LN_WITH_CIPHERING",
	4: "SN_WITH_CIPHERING",
}

var mechanismNames = map[byte]string{
	0: "None",
	1: "Low",
	2: "High",
	3: "HLS_MD5",
	4: "HLS_SHA1",
	5: "HLS_GMAC",
	6: "HLS_SHA256",
	7: "HLS_ECDSA",
}

// conformanceBits names the 24 conformance bits, most significant first.
var conformanceBits = [24]string{
	"ReservedZero",
	"GeneralProtection",
	"GeneralBlockTransfer",
	"Read",
	"Write",
	"UnconfirmedWrite",
	"ReservedSix",
	"ReservedSeven",
	"Attribute0SupportedWithSet",
	"PriorityMgmtSupported",
	"Attribute0SupportedWithGet",
	"BlockTransferWithGetOrRead",
	"BlockTransferWithSetOrWrite",
	"BlockTransferWithAction",
	"MultipleReferences",
	"InformationReport",
	"DataNotification",
	"Access",
	"ParameterizedAccess",
	"Get",
	"Set",
	"SelectiveAccess",
	"EventNotification",
	"Action",
}

// oidName resolves the last arc of a known OID prefix, or falls back to
// the hex of the whole OID.
func oidName(oid, prefix []byte, names map[byte]string) string {
	if len(oid) == len(prefix)+1 && bytes.HasPrefix(oid, prefix) {
		if name, ok := names[oid[len(oid)-1]]; ok {
			return name
		}
	}
	return fmt.Sprintf("%X", oid)
}

func decodeAARQ(pdu []byte) (string, error) {
	body, err := newReader(pdu).expectTLV(0x60)
	if err != nil {
		return "", err
	}

	w := &writer{}
	w.open("AssociationRequest")
	r := newReader(body)
	for r.remaining() > 0 {
		tag, v, err := r.tlv()
		if err != nil {
			return "", err
		}
		switch tag {
		case tagProtocolVersion:
			w.hexValue("ProtocolVersion", v)
		case tagApplicationContext:
			oid, err := newReader(v).expectTLV(tagOID)
			if err != nil {
				return "", err
			}
			w.value("ApplicationContextName", oidName(oid, contextOIDPrefix, contextNames))
		case tagCalledAPTitle:
			if err := writeWrappedOctets(w, "CalledAPTitle", v); err != nil {
				return "", err
			}
		case tagCalledAEQualifier:
			if err := writeWrappedOctets(w, "CalledAEQualifier", v); err != nil {
				return "", err
			}
		case tagCalledAPInvocation:
			w.hexValue("CalledAPInvocationId", v)
		case tagCalledAEInvocation:
			w.hexValue("CalledAEInvocationId", v)
		case tagCallingAPTitle:
			if err := writeWrappedOctets(w, "CallingAPTitle", v); err != nil {
				return "", err
			}
		case tagCallingAEQualifier:
			if err := writeWrappedOctets(w, "CallingAEQualifier", v); err != nil {
				return "", err
			}
		case tagCallingAPInvocation:
			w.hexValue("CallingAPInvocationId", v)
		case tagCallingAEInvocation:
			w.hexValue("CallingAEInvocationId", v)
		case tagSenderACSE:
			w.value("SenderACSERequirements", acseRequirement(v))
		case tagMechanismName:
			w.value("MechanismName", oidName(v, mechanismOIDPrefix, mechanismNames))
		case tagCallingAuth:
			auth, err := newReader(v).expectTLV(tagAuthValueCharString)
			if err != nil {
				return "", err
			}
			w.hexValue("CallingAuthentication", auth)
		case tagImplementationInfo:
			w.hexValue("ImplementationInformation", v)
		case tagUserInformation:
			if err := writeUserInformation(w, v, xdlmsInitiateRequest, writeInitiateRequest); err != nil {
				return "", err
			}
		default:
			return "", fmt.Errorf("%w: AARQ tag 0x%02X", ErrMalformed, tag)
		}
	}
	w.close("AssociationRequest")
	return w.String(), nil
}

func decodeAARE(pdu []byte) (string, error) {
	body, err := newReader(pdu).expectTLV(0x61)
	if err != nil {
		return "", err
	}

	w := &writer{}
	w.open("AssociationResponse")
	r := newReader(body)
	for r.remaining() > 0 {
		tag, v, err := r.tlv()
		if err != nil {
			return "", err
		}
		switch tag {
		case tagProtocolVersion:
			w.hexValue("ProtocolVersion", v)
		case tagApplicationContext:
			oid, err := newReader(v).expectTLV(tagOID)
			if err != nil {
				return "", err
			}
			w.value("ApplicationContextName", oidName(oid, contextOIDPrefix, contextNames))
		case tagAssociationResult:
			res, err := newReader(v).expectTLV(tagInteger)
			if err != nil {
				return "", err
			}
			w.hexValue("AssociationResult", res)
		case tagResultDiagnostic:
			if err := writeDiagnostic(w, v); err != nil {
				return "", err
			}
		case tagRespondingAPTitle:
			if err := writeWrappedOctets(w, "RespondingAPTitle", v); err != nil {
				return "", err
			}
		case tagRespondingAEQualifier:
			if err := writeWrappedOctets(w, "RespondingAEQualifier", v); err != nil {
				return "", err
			}
		case tagResponderACSE:
			w.value("ResponderACSERequirement", acseRequirement(v))
		case tagRespondingMechanism:
			w.value("MechanismName", oidName(v, mechanismOIDPrefix, mechanismNames))
		case tagRespondingAuth:
			auth, err := newReader(v).expectTLV(tagAuthValueCharString)
			if err != nil {
				return "", err
			}
			w.hexValue("RespondingAuthentication", auth)
		case tagImplementationInfo:
			w.hexValue("ImplementationInformation", v)
		case tagUserInformation:
			if err := writeUserInformation(w, v, xdlmsInitiateResponse, writeInitiateResponse); err != nil {
				return "", err
			}
		default:
			return "", fmt.Errorf("%w: AARE tag 0x%02X", ErrMalformed, tag)
		}
	}
	w.close("AssociationResponse")
	return w.String(), nil
}

// writeWrappedOctets writes the octet string wrapped inside an
// AP-title / AE-qualifier element.
func writeWrappedOctets(w *writer, name string, v []byte) error {
	inner, err := newReader(v).expectTLV(tagOctetString)
	if err != nil {
		return err
	}
	w.hexValue(name, inner)
	return nil
}

// acseRequirement reads the single authentication bit of an ACSE
// requirements bit string: an unused-bits octet followed by the bits.
func acseRequirement(v []byte) string {
	if len(v) >= 2 && v[1]&0x80 != 0 {
		return "1"
	}
	return "0"
}

func writeDiagnostic(w *writer, v []byte) error {
	tag, inner, err := newReader(v).tlv()
	if err != nil {
		return err
	}
	code, err := newReader(inner).expectTLV(tagInteger)
	if err != nil {
		return err
	}

	w.open("ResultSourceDiagnostic")
	switch tag {
	case tagDiagnosticUser:
		w.hexValue("ACSEServiceUser", code)
	case tagDiagnosticProvider:
		w.hexValue("ACSEServiceProvider", code)
	default:
		return fmt.Errorf("%w: diagnostic tag 0x%02X", ErrMalformed, tag)
	}
	w.close("ResultSourceDiagnostic")
	return nil
}

// writeUserInformation decodes the xDLMS APDU carried in user-information.
// Ciphered or unexpected APDUs are written as a single hex value.
func writeUserInformation(w *writer, v []byte, want byte, decode func(*reader, *writer) error) error {
	apdu, err := newReader(v).expectTLV(tagOctetString)
	if err != nil {
		return err
	}
	if len(apdu) == 0 || apdu[0] != want {
		w.hexValue("UserInformation", apdu)
		return nil
	}

	// Decode into a scratch writer so a failure leaves no partial element.
	scratch := &writer{depth: w.depth}
	r := newReader(apdu[1:])
	if err := decode(r, scratch); err != nil {
		return err
	}
	w.sb.WriteString(scratch.sb.String())
	return nil
}

func writeInitiateRequest(r *reader, w *writer) error {
	w.open("InitiateRequest")

	present, err := r.u8()
	if err != nil {
		return err
	}
	if present != 0 {
		key, err := readCounted(r)
		if err != nil {
			return err
		}
		w.hexValue("DedicatedKey", key)
	}

	present, err = r.u8()
	if err != nil {
		return err
	}
	if present != 0 {
		allowed, err := r.u8()
		if err != nil {
			return err
		}
		w.value("ResponseAllowed", fmt.Sprintf("%t", allowed != 0))
	}

	present, err = r.u8()
	if err != nil {
		return err
	}
	if present != 0 {
		qos, err := r.u8()
		if err != nil {
			return err
		}
		w.byteValue("ProposedQualityOfService", qos)
	}

	version, err := r.u8()
	if err != nil {
		return err
	}
	w.byteValue("ProposedDlmsVersionNumber", version)

	if err := writeConformance(r, w, "ProposedConformance"); err != nil {
		return err
	}

	maxPDU, err := r.u16()
	if err != nil {
		return err
	}
	w.u16Value("ProposedMaxPduSize", maxPDU)

	w.close("InitiateRequest")
	return nil
}

func writeInitiateResponse(r *reader, w *writer) error {
	w.open("InitiateResponse")

	present, err := r.u8()
	if err != nil {
		return err
	}
	if present != 0 {
		qos, err := r.u8()
		if err != nil {
			return err
		}
		w.byteValue("NegotiatedQualityOfService", qos)
	}

	version, err := r.u8()
	if err != nil {
		return err
	}
	w.byteValue("NegotiatedDlmsVersionNumber", version)

	if err := writeConformance(r, w, "NegotiatedConformance"); err != nil {
		return err
	}

	maxPDU, err := r.u16()
	if err != nil {
		return err
	}
	w.u16Value("NegotiatedMaxPduSize", maxPDU)

	vaa, err := r.u16()
	if err != nil {
		return err
	}
	w.u16Value("VaaName", vaa)

	w.close("InitiateResponse")
	return nil
}

// writeConformance decodes the [APPLICATION 31] conformance block: tag
// 5F 1F, a length of 4, an unused-bits octet and three octets of flags.
func writeConformance(r *reader, w *writer, name string) error {
	t1, err := r.u8()
	if err != nil {
		return err
	}
	t2, err := r.u8()
	if err != nil {
		return err
	}
	if t1 != conformanceTag || t2 != conformanceTag2 {
		return fmt.Errorf("%w: expected conformance tag 5F1F, got %02X%02X", ErrMalformed, t1, t2)
	}
	v, err := readCounted(r)
	if err != nil {
		return err
	}
	if len(v) != 4 {
		return fmt.Errorf("%w: conformance length %d", ErrMalformed, len(v))
	}

	w.open(name)
	for i, bitName := range conformanceBits {
		if v[1+i/8]&(0x80>>(i%8)) != 0 {
			w.attr("ConformanceBit", "Name", bitName)
		}
	}
	w.close(name)
	return nil
}
