package serialization

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/born-ml/distill/internal/tensor"
)

// ReaderOptions configures how a .kdst file is opened.
type ReaderOptions struct {
	// SkipChecksumValidation skips the SHA-256 check of the data section.
	SkipChecksumValidation bool
	// ValidationLevel controls header validation strictness.
	ValidationLevel ValidationLevel
}

// Reader reads tensors from a .kdst file.
type Reader struct {
	file       *os.File
	header     Header
	flags      uint32
	dataOffset int64
	dataSize   int64
	index      map[string]TensorMeta
}

// Open opens a .kdst file with strict validation.
func Open(path string) (*Reader, error) {
	return OpenWithOptions(path, ReaderOptions{})
}

// OpenWithOptions opens a .kdst file using the given options.
func OpenWithOptions(path string, opts ReaderOptions) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	r := &Reader{file: f}
	if err := r.init(opts); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

func (r *Reader) init(opts ReaderOptions) error {
	fixed := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(r.file, fixed); err != nil {
		return fmt.Errorf("failed to read fixed header: %w", err)
	}
	if string(fixed[0:4]) != MagicBytes {
		return fmt.Errorf("%w: expected %q, got %q", ErrInvalidMagic, MagicBytes, fixed[0:4])
	}
	version := binary.LittleEndian.Uint32(fixed[4:8])
	if version != FormatVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	r.flags = binary.LittleEndian.Uint32(fixed[8:12])
	headerSize := binary.LittleEndian.Uint64(fixed[16:24])
	dataSize := binary.LittleEndian.Uint64(fixed[24:32])
	if headerSize > MaxHeaderSize {
		return fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}
	if dataSize > math.MaxInt64/2 {
		return fmt.Errorf("%w: data size %d", ErrOutOfBounds, dataSize)
	}
	var stored [32]byte
	copy(stored[:], fixed[ChecksumOffset:ChecksumOffset+ChecksumSize])

	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r.file, headerJSON); err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	if err := json.Unmarshal(headerJSON, &r.header); err != nil {
		return fmt.Errorf("failed to parse header: %w", err)
	}

	r.dataOffset = dataOffset(int64(headerSize))
	r.dataSize = int64(dataSize)

	info, err := r.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if info.Size() < r.dataOffset+r.dataSize {
		return fmt.Errorf("%w: file is %d bytes, layout needs %d", ErrOutOfBounds, info.Size(), r.dataOffset+r.dataSize)
	}

	if err := ValidateHeader(&r.header, r.dataSize, opts.ValidationLevel); err != nil {
		return err
	}

	if !opts.SkipChecksumValidation {
		h := sha256.New()
		if _, err := io.Copy(h, io.NewSectionReader(r.file, r.dataOffset, r.dataSize)); err != nil {
			return fmt.Errorf("failed to checksum tensor data: %w", err)
		}
		if !bytes.Equal(h.Sum(nil), stored[:]) {
			return ErrChecksumMismatch
		}
	}

	r.index = make(map[string]TensorMeta, len(r.header.Tensors))
	for _, meta := range r.header.Tensors {
		r.index[meta.Name] = meta
	}
	return nil
}

// Header returns the parsed JSON header.
func (r *Reader) Header() Header {
	return r.header
}

// HasModelSpec reports whether the file carries an architecture description.
func (r *Reader) HasModelSpec() bool {
	return r.flags&FlagHasModelSpec != 0
}

// TensorNames returns the stored tensor names in file order.
func (r *Reader) TensorNames() []string {
	names := make([]string, len(r.header.Tensors))
	for i, meta := range r.header.Tensors {
		names[i] = meta.Name
	}
	return names
}

// LoadTensor reads a single tensor by name.
func (r *Reader) LoadTensor(name string) (*tensor.Tensor, error) {
	if r.file == nil {
		return nil, ErrReaderClosed
	}
	meta, ok := r.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTensorNotFound, name)
	}

	buf := make([]byte, meta.Size)
	if _, err := r.file.ReadAt(buf, r.dataOffset+meta.Offset); err != nil {
		return nil, fmt.Errorf("failed to read tensor %q: %w", name, err)
	}
	data := make([]float32, meta.Size/4)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	t, err := tensor.FromSlice(data, tensor.Shape(meta.Shape))
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", name, err)
	}
	return t, nil
}

// StateDict loads every tensor in the file.
func (r *Reader) StateDict() (map[string]*tensor.Tensor, error) {
	state := make(map[string]*tensor.Tensor, len(r.header.Tensors))
	for _, meta := range r.header.Tensors {
		t, err := r.LoadTensor(meta.Name)
		if err != nil {
			return nil, err
		}
		state[meta.Name] = t
	}
	return state, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
