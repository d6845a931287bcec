package embedding

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// encodeVector serializes a vector as little-endian float32 values prefixed
// by a 4-byte little-endian dimension, then gzip-compresses the result —
// the cache value layout fixed by spec.md §6 and §4.1, grounded on (and
// trimmed of the encryption concern of) pkg/embedding/cache/compression.go.
func encodeVector(vec []float32) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(vec))); err != nil {
		return nil, fmt.Errorf("encode dimension prefix: %w", err)
	}
	for _, f := range vec {
		if err := binary.Write(buf, binary.LittleEndian, math.Float32bits(f)); err != nil {
			return nil, fmt.Errorf("encode vector element: %w", err)
		}
	}

	var compressed bytes.Buffer
	gz, err := gzip.NewWriterLevel(&compressed, gzip.BestSpeed)
	if err != nil {
		return nil, fmt.Errorf("create gzip writer: %w", err)
	}
	if _, err := gz.Write(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("compress vector: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("finalize compression: %w", err)
	}
	return compressed.Bytes(), nil
}

// decodeVector reverses encodeVector. A dimension mismatch against
// expectedDim is treated by the caller as a cache miss (spec.md §4.1).
func decodeVector(data []byte, expectedDim int) ([]float32, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open gzip reader: %w", err)
	}
	defer func() { _ = gz.Close() }()

	raw, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("decompress vector: %w", err)
	}
	if len(raw) < 4 {
		return nil, fmt.Errorf("decoded payload too short for dimension prefix")
	}

	dim := int(binary.LittleEndian.Uint32(raw[:4]))
	want := 4 + dim*4
	if dim != expectedDim || len(raw) != want {
		return nil, fmt.Errorf("dimension mismatch: encoded=%d expected=%d", dim, expectedDim)
	}

	vec := make([]float32, dim)
	for i := 0; i < dim; i++ {
		bits := binary.LittleEndian.Uint32(raw[4+i*4 : 4+i*4+4])
		vec[i] = math.Float32frombits(bits)
	}
	return vec, nil
}
