package httpapi

import (
	"io"
	"net/http"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// maxRequestBody caps the request body size for both protobuf and JSON
// payloads. A check-in is a couple of short identifiers, so 4 KiB is generous.
const maxRequestBody = 4096

// isProtobuf returns true if the request's Content-Type indicates a
// protobuf payload.
func isProtobuf(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return ct == "application/x-protobuf" ||
		ct == "application/protobuf" ||
		ct == "application/octet-stream"
}

// readStruct reads the request body as an encoded google.protobuf.Struct.
func readStruct(r *http.Request) (*structpb.Struct, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return nil, err
	}
	msg := &structpb.Struct{}
	if err := proto.Unmarshal(body, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// writeStruct encodes fields as a google.protobuf.Struct and writes it with
// the given HTTP status.
func writeStruct(w http.ResponseWriter, status int, fields map[string]any) {
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		http.Error(w, "proto encode error", http.StatusInternalServerError)
		return
	}
	data, err := proto.Marshal(msg)
	if err != nil {
		http.Error(w, "proto marshal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
