package gif

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromToSec(t *testing.T) {
	assert := assert.New(t)

	d := FromSec(0.1)
	assert.Equal(100*time.Millisecond, d)
	assert.InDelta(0.1, ToSec(d), 1e-12)

	assert.Equal(time.Duration(0), FromSec(0.0))
	assert.InDelta(-2.5, ToSec(FromSec(-2.5)), 1e-12)
}

func TestSentinels(t *testing.T) {
	assert := assert.New(t)

	now := time.Now()
	assert.True(MinTime.Before(now))
	assert.True(MaxTime.After(now))

	// sentinels are usable in arithmetic
	assert.True(MinTime.Add(time.Second).After(MinTime))
}
