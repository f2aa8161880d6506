package storage

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// ParseEmbedding decodes an embedding stored in metadata. Two encodings
// are accepted: a JSON array of numbers, or base64 of a little-endian
// float32 blob. Anything else, including NaN/Inf components, is
// ErrMalformedEmbedding.
func ParseEmbedding(value string) ([]float32, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("%w: empty value", ErrMalformedEmbedding)
	}

	var vector []float32
	if strings.HasPrefix(value, "[") {
		var raw []float64
		if err := json.Unmarshal([]byte(value), &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEmbedding, err)
		}
		vector = make([]float32, len(raw))
		for i, v := range raw {
			vector[i] = float32(v)
		}
	} else {
		blob, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEmbedding, err)
		}
		if len(blob)%4 != 0 {
			return nil, fmt.Errorf("%w: blob length %d is not a multiple of 4", ErrMalformedEmbedding, len(blob))
		}
		vector = deserializeVector(blob)
	}

	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: zero dimensions", ErrMalformedEmbedding)
	}
	for _, v := range vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, fmt.Errorf("%w: non-finite component", ErrMalformedEmbedding)
		}
	}
	return vector, nil
}

// EncodeEmbedding encodes a vector in the base64 blob form ParseEmbedding reads
func EncodeEmbedding(vector []float32) string {
	return base64.StdEncoding.EncodeToString(serializeVector(vector))
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}
