package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCeilDiv(t *testing.T) {
	assert.Equal(t, uint32(24), CeilDiv(1500, 64))
	assert.Equal(t, uint32(1), CeilDiv(4, 64))
	assert.Equal(t, uint32(2), CeilDiv(128, 64))
	assert.Equal(t, uint32(0), CeilDiv(0, 64))
}
