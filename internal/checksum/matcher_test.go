package checksum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSumIsStable(t *testing.T) {
	a := Sum([]byte("statement body"))
	b := Sum([]byte("statement body"))
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, Sum([]byte("different body")))
}

func TestMatcher(t *testing.T) {
	data := []byte("jan statement")
	m := NewMatcher(Sum(data))
	assert.True(t, m.Match(data))
	assert.False(t, m.Match([]byte("feb statement")))
	assert.False(t, NewMatcher("").Match(data))
}
