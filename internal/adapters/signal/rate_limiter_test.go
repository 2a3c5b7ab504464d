package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChatLimiterWindow(t *testing.T) {
	l := NewChatLimiter(2, 10*time.Second)
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }

	ok, _ := l.Allow("u1")
	assert.True(t, ok)
	now = now.Add(4 * time.Second)
	ok, _ = l.Allow("u1")
	assert.True(t, ok)

	ok, wait := l.Allow("u1")
	assert.False(t, ok)
	assert.Equal(t, 6*time.Second, wait)

	ok, _ = l.Allow("u2")
	assert.True(t, ok, "limits are per participant")

	now = now.Add(6 * time.Second)
	ok, _ = l.Allow("u1")
	assert.True(t, ok)

	l.Forget("u1")
	ok, _ = l.Allow("u1")
	assert.True(t, ok)
}
