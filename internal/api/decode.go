package api

import (
	"net/http"

	"github.com/Terminal3D/DLMS-Parser/internal/dlms"
	"github.com/Terminal3D/DLMS-Parser/internal/export"
	"github.com/Terminal3D/DLMS-Parser/internal/history"
	"github.com/Terminal3D/DLMS-Parser/internal/interpret"
	"github.com/Terminal3D/DLMS-Parser/internal/octetstring"
)

// viewFields is the ?view= value that adds interpretation rows to /parse.
const viewFields = "fields"

// hexRequest is the body of /parse, /validate and /classify.
type hexRequest struct {
	Hex string `json:"hex"`
}

// batchRequest is the body of /parse/batch and /export. Lines wins over Text.
type batchRequest struct {
	Lines []string `json:"lines"`
	Text  string   `json:"text"`
}

// inputs returns the explicit lines, or Text split into non-blank lines.
func (b batchRequest) inputs() []string {
	if len(b.Lines) > 0 {
		return b.Lines
	}
	return dlms.SplitLines(b.Text)
}

// parseResponse is returned by /parse?view=fields.
type parseResponse struct {
	Message dlms.Message      `json:"message"`
	Fields  []interpret.Field `json:"fields"`
}

// batchResponse is returned by /parse/batch.
type batchResponse struct {
	Count    int            `json:"count"`
	Messages []dlms.Message `json:"messages"`
}

// validateResponse is returned by /validate.
type validateResponse struct {
	Valid      bool   `json:"valid"`
	Normalized string `json:"normalized"`
}

// handleParse decodes one frame.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req hexRequest
	if !decodeBody(w, r, &req) {
		return
	}

	msg, err := s.pipeline.Decode(r.Context(), history.SourceAPI, req.Hex)
	if err != nil {
		writeDecodeError(w, err)
		return
	}

	if r.URL.Query().Get("view") == viewFields {
		writeJSON(w, http.StatusOK, parseResponse{
			Message: msg,
			Fields:  interpret.Fields(msg),
		})
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// handleParseBatch decodes several frames. Either every frame decodes or
// the response is a single decode_error naming the failed lines.
func (s *Server) handleParseBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	inputs := req.inputs()
	if len(inputs) == 0 {
		writeBadRequest(w, "lines or text is required")
		return
	}

	messages, err := s.pipeline.DecodeBatch(r.Context(), history.SourceAPI, inputs)
	if err != nil {
		writeDecodeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, batchResponse{
		Count:    len(messages),
		Messages: messages,
	})
}

// handleValidate reports whether a frame is well-formed hex without
// decoding it. Nothing is recorded.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req hexRequest
	if !decodeBody(w, r, &req) {
		return
	}

	writeJSON(w, http.StatusOK, validateResponse{
		Valid:      dlms.Validate(req.Hex),
		Normalized: dlms.Normalize(req.Hex),
	})
}

// handleClassify runs the octet-string classifier over a hex value.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req hexRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !dlms.Validate(req.Hex) {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "hex must be an even number of hexadecimal digits")
		return
	}

	writeJSON(w, http.StatusOK, octetstring.Classify(dlms.Normalize(req.Hex)))
}

// handleExport decodes a batch and returns it as a downloadable document.
//
// Query parameters:
//   - format: json (default) or xml
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	var req batchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	inputs := req.inputs()
	if len(inputs) == 0 {
		writeBadRequest(w, "lines or text is required")
		return
	}

	messages, err := s.pipeline.DecodeBatch(r.Context(), history.SourceAPI, inputs)
	if err != nil {
		writeDecodeError(w, err)
		return
	}

	s.writeDocument(w, messages, format)
}

// writeDocument renders messages in format as an attachment.
func (s *Server) writeDocument(w http.ResponseWriter, messages []dlms.Message, format export.Format) {
	body, err := export.Render(messages, format)
	if err != nil {
		s.logger.Error("export render failed", "format", string(format), "error", err)
		writeInternalError(w, "failed to render export")
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+format.FileName()+`"`)
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(body)
}
