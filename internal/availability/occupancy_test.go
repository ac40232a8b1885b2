package availability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampAvailable(t *testing.T) {
	assert.Equal(t, 3, ClampAvailable(5, 1, 1))
	assert.Equal(t, 0, ClampAvailable(5, 5, 0))
	assert.Equal(t, 0, ClampAvailable(5, 4, 2))
	assert.Equal(t, 0, ClampAvailable(0, 0, 0))
}
