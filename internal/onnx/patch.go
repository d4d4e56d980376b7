package onnx

import (
	"fmt"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// SetIRVersion returns a copy of the serialised model with ir_version set to
// version. Every other field is carried over byte for byte.
func SetIRVersion(data []byte, version int64) ([]byte, error) {
	if version <= 0 {
		return nil, fmt.Errorf("onnx: ir version must be > 0 (got %d)", version)
	}
	out := appendVarint(make([]byte, 0, len(data)+4), modelIRVersion, uint64(version))
	err := walk(data, func(f field) error {
		if f.num == modelIRVersion && f.typ == protowire.VarintType {
			return nil
		}
		out = append(out, f.raw...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PatchIRVersion rewrites ir_version of the model file at path in place.
func PatchIRVersion(path string, version int64) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read onnx model: %w", err)
	}
	patched, err := SetIRVersion(data, version)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, patched, 0o644); err != nil {
		return fmt.Errorf("write onnx model: %w", err)
	}
	return nil
}
