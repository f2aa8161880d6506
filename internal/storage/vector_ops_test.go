package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEmbedding(t *testing.T) {
	vec := []float32{0.25, -1, 3.5}

	tests := []struct {
		name    string
		input   string
		want    []float32
		wantErr bool
	}{
		{name: "json array", input: "[0.25, -1, 3.5]", want: vec},
		{name: "base64 blob", input: EncodeEmbedding(vec), want: vec},
		{name: "surrounding whitespace", input: "  [1,2]  ", want: []float32{1, 2}},
		{name: "empty", input: "", wantErr: true},
		{name: "empty array", input: "[]", wantErr: true},
		{name: "bad json", input: "[1, 2", wantErr: true},
		{name: "not base64", input: "!!!", wantErr: true},
		{name: "odd blob length", input: "AAAAAAA=", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEmbedding(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedEmbedding)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	vec := []float32{1.5, 0, -2.25, 1e-6}
	blob := serializeVector(vec)
	assert.Len(t, blob, 16)
	assert.Equal(t, vec, deserializeVector(blob))
}
