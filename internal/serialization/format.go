package serialization

import (
	"encoding/json"
	"time"
)

// Format constants.
const (
	MagicBytes      = "KDST"
	FormatVersion   = 1
	HeaderAlignment = 64   // Align tensor data to 64 bytes
	FixedHeaderSize = 64   // Fixed header size (0x40 bytes)
	ChecksumSize    = 32   // SHA-256 checksum size (32 bytes)
	ChecksumOffset  = 0x20 // Checksum offset in the fixed header
)

// DTypeFloat32 is the only element type stored in .kdst files.
const DTypeFloat32 = "float32"

// Flags for the .kdst format.
const (
	FlagHasMetadata  uint32 = 1 << 0 // bit 0: custom metadata included
	FlagHasModelSpec uint32 = 1 << 1 // bit 1: architecture description included
)

// Header represents the JSON header in a .kdst file.
type Header struct {
	FormatVersion int               `json:"format_version"`       // Version of the .kdst format
	WriterVersion string            `json:"writer_version"`       // Version of the writer that created this file
	ModelType     string            `json:"model_type"`           // Type of model (e.g., "teacher", "student")
	RunID         string            `json:"run_id,omitempty"`     // Training run that produced the file
	CreatedAt     time.Time         `json:"created_at"`           // When the file was created
	ModelSpec     json.RawMessage   `json:"model_spec,omitempty"` // Architecture needed to rebuild the model
	Tensors       []TensorMeta      `json:"tensors"`              // Tensor metadata
	Metadata      map[string]string `json:"metadata"`             // Custom metadata
}

// TensorMeta describes a tensor in the .kdst file.
type TensorMeta struct {
	Name   string `json:"name"`   // Tensor name (e.g., "stage1.pointwise.kernel")
	DType  string `json:"dtype"`  // Data type, always "float32"
	Shape  []int  `json:"shape"`  // Tensor shape
	Offset int64  `json:"offset"` // Offset in the data section (bytes from start of tensor data)
	Size   int64  `json:"size"`   // Size in bytes
}

// dataOffset returns the absolute offset of the tensor data section for a
// header of the given size.
func dataOffset(headerSize int64) int64 {
	pos := int64(FixedHeaderSize) + headerSize
	return pos + (HeaderAlignment-(pos%HeaderAlignment))%HeaderAlignment
}
