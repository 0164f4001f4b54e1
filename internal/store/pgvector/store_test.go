package pgvector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeVector(t *testing.T) {
	assert.Equal(t, "[1,0.5,-2]", encodeVector([]float32{1, 0.5, -2}))
	assert.Equal(t, "[]", encodeVector(nil))
}

func TestStoreName(t *testing.T) {
	s := &Store{}
	assert.Equal(t, "pgvector", s.Name())
}
