package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// maxRequestBody caps the request body size for both protobuf and JSON
// payloads. A registration with a full profile is well under 1 KiB.
const maxRequestBody = 4096

const protobufType = "application/x-protobuf"

func isProtobufType(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mt == protobufType || mt == "application/protobuf"
}

// isProtobuf returns true if the request body is a protobuf Struct.
func isProtobuf(r *http.Request) bool {
	return isProtobufType(r.Header.Get("Content-Type"))
}

// wantsProtobuf returns true if the client accepts a protobuf response.
func wantsProtobuf(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		if isProtobufType(strings.TrimSpace(part)) {
			return true
		}
	}
	return false
}

// readProto reads the request body and unmarshals it into msg.
func readProto(r *http.Request, msg proto.Message) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return err
	}
	return proto.Unmarshal(body, msg)
}

// decodeProto reads a google.protobuf.Struct body and decodes its fields
// into dst using dst's JSON tags.
func decodeProto(r *http.Request, dst any) error {
	var s structpb.Struct
	if err := readProto(r, &s); err != nil {
		return fmt.Errorf("decode protobuf body: %w", err)
	}
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeProto marshals msg and writes it with the given HTTP status.
func writeProto(w http.ResponseWriter, status int, msg proto.Message) {
	data, err := proto.Marshal(msg)
	if err != nil {
		// Fall back to a plain-text error if marshalling fails.
		http.Error(w, "proto marshal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", protobufType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// protoFromJSON converts a JSON-shaped value into a Struct (objects),
// ListValue (arrays) or Value (anything else), keeping the JSON field names.
func protoFromJSON(v any) (proto.Message, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}

	switch g := generic.(type) {
	case map[string]any:
		return structpb.NewStruct(g)
	case []any:
		return structpb.NewList(g)
	default:
		return structpb.NewValue(g)
	}
}
