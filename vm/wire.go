package vm

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// WireVersion is the current encoded chunk format version.
// Increment when making incompatible changes to the format.
const WireVersion uint16 = 1

// WireMagic identifies an encoded chunk ("LOXC").
const WireMagic = "LOXC"

// wireChunk is the CBOR envelope for a chunk. Constants are stored as raw
// floats while numbers are the only value type.
type wireChunk struct {
	Magic     string    `cbor:"1,keyasint"`
	Version   uint16    `cbor:"2,keyasint"`
	Code      []byte    `cbor:"3,keyasint"`
	Lines     []int     `cbor:"4,keyasint"`
	Constants []float64 `cbor:"5,keyasint"`
}

// cborEncMode uses canonical mode so equal chunks encode to equal bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalChunk encodes c for storage or transport.
func MarshalChunk(c *Chunk) ([]byte, error) {
	w := wireChunk{
		Magic:     WireMagic,
		Version:   WireVersion,
		Code:      c.Code,
		Lines:     c.Lines,
		Constants: make([]float64, 0, c.Constants.Len()),
	}
	for i, v := range c.Constants.values {
		if !v.IsNumber() {
			return nil, fmt.Errorf("vm: marshal chunk: constant %d has unsupported type %s", i, v.Type)
		}
		w.Constants = append(w.Constants, v.AsNumber())
	}
	return cborEncMode.Marshal(&w)
}

// UnmarshalChunk decodes a chunk produced by MarshalChunk and validates it.
func UnmarshalChunk(data []byte) (*Chunk, error) {
	var w wireChunk
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("vm: unmarshal chunk: %w", err)
	}
	if w.Magic != WireMagic {
		return nil, fmt.Errorf("vm: unmarshal chunk: invalid magic %q", w.Magic)
	}
	if w.Version > WireVersion {
		return nil, fmt.Errorf("vm: unmarshal chunk: version %d is newer than supported version %d", w.Version, WireVersion)
	}

	c := &Chunk{
		Code:  w.Code,
		Lines: w.Lines,
	}
	if c.Code == nil {
		c.Code = []byte{}
	}
	if c.Lines == nil {
		c.Lines = []int{}
	}
	for _, f := range w.Constants {
		c.Constants.Add(NumberValue(f))
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("vm: unmarshal chunk: %w", err)
	}
	return c, nil
}
