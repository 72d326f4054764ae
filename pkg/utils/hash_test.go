package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashString(t *testing.T) {
	assert.Equal(t, "9e107d9d372bb6826bd81d3542a419d6", HashString("The quick brown fox jumps over the lazy dog"))
	assert.Equal(t, HashString("chef knife"), HashString("chef knife"))
	assert.NotEqual(t, HashString("chef knife"), HashString("chef knives"))
	assert.Len(t, HashString(""), 32)
}
