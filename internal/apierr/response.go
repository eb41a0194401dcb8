package apierr

import (
	"encoding/json"
	"net/http"
)

// ErrorPayload is the caller-visible part of an error.
type ErrorPayload struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// ErrorBody is the failure response body.
type ErrorBody struct {
	Success bool         `json:"success"`
	Error   ErrorPayload `json:"error"`
}

// SuccessBody is the success response body.
type SuccessBody struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// Response returns the status and body for e. A nil error is treated as
// an internal failure.
func Response(e *Error) (int, ErrorBody) {
	if e == nil {
		e = New(CodeInternal, SafeInternalMessage)
	}
	return e.Code.HTTPStatus(), ErrorBody{
		Success: false,
		Error:   ErrorPayload{Code: e.Code, Message: e.Message},
	}
}

// Success wraps data in the success envelope.
func Success(data any) SuccessBody {
	return SuccessBody{Success: true, Data: data}
}

// WriteHTTP writes e as a JSON response with the given extra headers.
func WriteHTTP(w http.ResponseWriter, e *Error, headers http.Header) {
	status, body := Response(e)
	WriteJSON(w, status, body, headers)
}

// WriteSuccess writes data in the success envelope with status 200.
func WriteSuccess(w http.ResponseWriter, data any, headers http.Header) {
	WriteJSON(w, http.StatusOK, Success(data), headers)
}

// WriteJSON writes body as JSON with status and the given extra headers.
func WriteJSON(w http.ResponseWriter, status int, body any, headers http.Header) {
	h := w.Header()
	for k, vs := range headers {
		h.Del(k)
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	h.Set("Content-Type", "application/json")

	payload, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		_, fallback := Response(New(CodeInternal, SafeInternalMessage))
		payload, _ = json.Marshal(fallback)
	}

	w.WriteHeader(status)
	_, _ = w.Write(payload)
}
