package server

import (
	"emberdb/internal/storage/sstable"
)

// PutRequest is the body of PUT /v1/keys/:key. Value must be present but
// may be empty.
type PutRequest struct {
	Value *string `json:"value"`
}

type GetResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// WriteResponse reports the sequence assigned to a put or delete
type WriteResponse struct {
	Key string `json:"key"`
	Seq uint64 `json:"seq"`
}

type FlushResponse struct {
	Flushed  bool              `json:"flushed"`
	Metadata *sstable.Metadata `json:"metadata,omitempty"`
}
