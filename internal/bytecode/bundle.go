package bytecode

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Bundle wraps a Program for on-disk distribution (.vbc files). The lowering
// pass produces it; `vela run` consumes it.
type Bundle struct {
	Program    *Program
	SourceFile string // Original source path, for diagnostics only
}

const bundleVersion = 1

// Config default values travel inside interface{} slots; gob must know
// their concrete types up front.
func init() {
	gob.Register(int64(0))
	gob.Register(map[string]interface{}{})
	gob.Register([]interface{}{})
}

// Magic number prefix for .vbc files: "VLAB".
var bundleMagic = []byte{0x56, 0x4C, 0x41, 0x42}

// Serialize encodes the bundle.
//
// Layout:
//   - Magic number (4 bytes): "VLAB"
//   - Version (1 byte)
//   - Gob-encoded Bundle data
func (b *Bundle) Serialize() ([]byte, error) {
	buf := new(bytes.Buffer)

	buf.Write(bundleMagic)
	buf.WriteByte(bundleVersion)

	enc := gob.NewEncoder(buf)
	if err := enc.Encode(b); err != nil {
		return nil, fmt.Errorf("bundle gob encoding failed: %w", err)
	}

	return buf.Bytes(), nil
}

// Deserialize reads a serialized bundle back into memory.
func Deserialize(data []byte) (*Bundle, error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("bytecode data too short")
	}

	if !bytes.Equal(data[:4], bundleMagic) {
		return nil, fmt.Errorf("invalid magic number, expected VLAB")
	}

	version := data[4]
	if version != bundleVersion {
		return nil, fmt.Errorf("unsupported bytecode version: %d (this binary supports version %d)",
			version, bundleVersion)
	}

	dec := gob.NewDecoder(bytes.NewReader(data[5:]))
	var bundle Bundle
	if err := dec.Decode(&bundle); err != nil {
		return nil, fmt.Errorf("bundle gob decoding failed: %w", err)
	}
	if bundle.Program == nil {
		return nil, fmt.Errorf("bundle has no program")
	}
	bundle.Program.reindex()
	return &bundle, nil
}
