package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/claude-slack/claude-slack/internal/types"
)

// errorBody is the wire shape of a failure.
type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// statusFor maps error kinds onto HTTP status codes.
func statusFor(kind types.ErrorKind) int {
	switch kind {
	case types.KindNotFound:
		return http.StatusNotFound
	case types.KindPreconditionFailed, types.KindConflict:
		return http.StatusConflict
	case types.KindInvalid:
		return http.StatusBadRequest
	case types.KindStoreBusy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeOK writes {ok:true} merged with the payload fields.
func writeOK(w http.ResponseWriter, payload map[string]any) {
	body := map[string]any{"ok": true}
	for k, v := range payload {
		body[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

// writeErr writes {ok:false, error:{kind, message}} with the mapped
// status code.
func writeErr(w http.ResponseWriter, err error) {
	kind := types.KindOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(kind))
	body := map[string]any{
		"ok":    false,
		"error": errorBody{Kind: string(kind), Message: err.Error()},
	}
	if encErr := json.NewEncoder(w).Encode(body); encErr != nil {
		log.Printf("api: encode error response: %v", encErr)
	}
}

// decodeBody reads a JSON request body into dst.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return types.ErrInvalidArgument.Msgf("bad request body: %v", err)
	}
	return nil
}
