package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
)

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respond writes v as protobuf when the client asked for it, JSON otherwise.
func respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if wantsProtobuf(r) {
		msg, err := protoFromJSON(v)
		if err == nil {
			writeProto(w, status, msg)
			return
		}
	}
	writeJSON(w, status, v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	respond(w, r, status, errorBody{Success: false, Error: code, Message: msg})
}

// decodeBody reads a JSON or protobuf Struct body into dst. Unknown fields
// are rejected either way.
func decodeBody(r *http.Request, dst any) error {
	if isProtobuf(r) {
		return decodeProto(r, dst)
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
