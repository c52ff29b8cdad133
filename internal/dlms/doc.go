// Package dlms classifies and assembles DLMS application-layer PDUs.
//
// A hex frame is validated, dispatched on its leading command octet, handed
// to an external Decoder for an XML description, and the description is
// turned into a typed, immutable Message. The package never decodes BER or
// A-XDR itself; that is the Decoder's job.
//
// # Pipeline
//
//	hex ──▶ Normalize/Validate ──▶ Dispatch ──▶ Decoder.PDUToXML
//	                                                 │
//	                                                 ▼
//	                                   xmlconv.Normalize (repair)
//	                                      │                │
//	                                      ▼                ▼
//	                              xmlconv.Converter   xmlfield.Document
//	                              (display JSON)      (builder input)
//	                                      │                │
//	                                      └──────┬─────────┘
//	                                             ▼
//	                                   builder ──▶ Message
//
// # Key Types
//
//   - Message: closed sum type over the twelve supported PDU kinds
//   - Parser: single and batch entry point
//   - Decoder: PDU to XML collaborator
//   - Fields: tag-scoped field access used by the builders
//
// # Usage
//
//	p := dlms.NewParser(translator.New())
//	msg, err := p.Parse("C0 01 4F 00 01 00 00 81 00 00 00 02 00")
//	if err != nil {
//	    return err
//	}
//	if req, ok := msg.(dlms.GetRequest); ok {
//	    fmt.Println(req.Attribute) // 1:0-0:129.0.0*0:2
//	}
//
// # Thread Safety
//
// Parser holds no mutable state after construction and is safe for
// concurrent use.
package dlms
