package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"painel/internal/core"
	"painel/internal/log"
	"painel/internal/parsers"
	"painel/internal/services"
	"painel/internal/sheets"
	"painel/internal/storage"
	"painel/internal/webhook"
)

// errBadRequest marks request-shape problems found by the handlers
// themselves (missing form field, malformed JSON body).
var errBadRequest = errors.New("bad request")

// validationErrors map to 400.
var validationErrors = []error{
	errBadRequest,
	core.ErrInvalidDate,
	core.ErrInvalidAmount,
	core.ErrInvalidPeriod,
	core.ErrEmptyProduct,
	core.ErrProductTooLong,
	core.ErrEmptyProjectID,
	core.ErrInvalidKind,
	core.ErrInvalidSource,
	services.ErrInvalidSettings,
	webhook.ErrMalformedPayload,
}

// JSONResponse provides a fluent API for building JSON responses.
type JSONResponse struct {
	statusCode int
	headers    map[string]string
	body       any
}

// NewJSONResponse creates a response builder with status 200.
func NewJSONResponse() *JSONResponse {
	return &JSONResponse{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponse) Status(code int) *JSONResponse {
	b.statusCode = code
	return b
}

func (b *JSONResponse) Header(name, value string) *JSONResponse {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponse) Body(v any) *JSONResponse {
	b.body = v
	return b
}

// Write sends the built response. 204 responses carry no body.
func (b *JSONResponse) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.statusCode == http.StatusNoContent || b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

type errorBody struct {
	Error string `json:"error"`
}

// ErrorResponse creates a JSON error response.
func ErrorResponse(statusCode int, message string) *JSONResponse {
	return NewJSONResponse().Status(statusCode).Body(errorBody{Error: message})
}

func BadRequestError(message string) *JSONResponse {
	return ErrorResponse(http.StatusBadRequest, message)
}

func NotFoundError(message string) *JSONResponse {
	return ErrorResponse(http.StatusNotFound, message)
}

// InternalServerError hides the cause; it is logged instead.
func InternalServerError() *JSONResponse {
	return ErrorResponse(http.StatusInternalServerError, "internal error")
}

// FromError maps a service error onto a status code and message. Parse
// diagnostics are returned verbatim so the user can fix the file.
func FromError(err error) *JSONResponse {
	code := statusFor(err)
	switch code {
	case http.StatusInternalServerError:
		return InternalServerError()
	case http.StatusNotFound:
		if errors.Is(err, storage.ErrNotFound) {
			return NotFoundError("not found")
		}
	}
	return ErrorResponse(code, err.Error())
}

func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case parsers.IsParseError(err),
		errors.Is(err, sheets.ErrUnsupportedFormat),
		errors.Is(err, sheets.ErrEmptySheet):
		return http.StatusUnprocessableEntity
	case errors.Is(err, webhook.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, webhook.ErrUnknownPlatform):
		return http.StatusNotFound
	case errors.Is(err, services.ErrSheetsUnavailable):
		return http.StatusNotImplemented
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// writeError logs err with the request-scoped logger and writes the mapped
// response.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	resp := FromError(err)
	log.NewAccessLogger(log.FromContext(r.Context())).Failed(r.Context(), op, err, resp.statusCode)
	resp.Write(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	NewJSONResponse().Status(status).Body(v).Write(w)
}
