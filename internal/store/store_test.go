package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemClock_LoadLocationResolvesIANAZone(t *testing.T) {
	var c SystemClock
	loc, err := c.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", loc.String())
}

func TestSystemClock_NowIsNotZero(t *testing.T) {
	var c SystemClock
	assert.False(t, c.Now().IsZero())
}
