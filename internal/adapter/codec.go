// Package adapter contains the infrastructure the search engine talks to:
// the class codec, execution oracles, artifact and report storage.
package adapter

import (
	"fmt"
	"log/slog"

	"lbcmut.dev/pkg/lbcmut/internal/classfile"
)

// ClassCodec converts between class binaries and the editable class model.
type ClassCodec interface {
	Decode(data []byte) (*classfile.Class, error)
	Encode(class *classfile.Class, mode classfile.FrameMode) ([]byte, error)
}

// LocalClassCodec is the ClassCodec backed by the classfile package.
type LocalClassCodec struct{}

// NewLocalClassCodec constructs a LocalClassCodec.
func NewLocalClassCodec() *LocalClassCodec {
	return &LocalClassCodec{}
}

// Decode parses a class binary.
func (c *LocalClassCodec) Decode(data []byte) (*classfile.Class, error) {
	class, err := classfile.Decode(data)
	if err != nil {
		slog.Debug("Failed to decode class", "size", len(data), "error", err)
		return nil, fmt.Errorf("decode class: %w", err)
	}

	return class, nil
}

// Encode serializes class, recomputing the code layout of every method.
func (c *LocalClassCodec) Encode(class *classfile.Class, mode classfile.FrameMode) ([]byte, error) {
	data, err := classfile.Encode(class, mode)
	if err != nil {
		slog.Debug("Failed to encode class", "class", class.Name(), "error", err)
		return nil, fmt.Errorf("encode class %s: %w", class.Name(), err)
	}

	return data, nil
}
