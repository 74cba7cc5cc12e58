// Package serialization provides the .kdst format for saving and loading
// trained classifiers.
//
// A .kdst file stores a model's state dictionary together with the
// architecture description needed to rebuild the model:
//
//	Format Structure:
//	  [0x00-0x03: Magic "KDST"]
//	  [0x04-0x07: Version (uint32 LE)]
//	  [0x08-0x0B: Flags (uint32 LE)]
//	  [0x0C-0x0F: Reserved]
//	  [0x10-0x17: Header Size (uint64 LE)]
//	  [0x18-0x1F: Data Size (uint64 LE)]
//	  [0x20-0x3F: SHA-256 checksum of the tensor data]
//	  [Header: JSON metadata]
//	  [Padding to a 64-byte boundary]
//	  [Tensor data: float32 little-endian, tensors in name order]
//
// Example usage:
//
//	// Save a model
//	header := serialization.Header{ModelType: "student", ModelSpec: specJSON}
//	if err := serialization.WriteFile("student.kdst", state, header); err != nil {
//	    return err
//	}
//
//	// Load a model
//	reader, err := serialization.Open("student.kdst")
//	if err != nil {
//	    return err
//	}
//	defer reader.Close()
//	state, err := reader.StateDict()
package serialization
