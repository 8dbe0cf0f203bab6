package redisrepo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "tixqueue:v1:event:7:summary", KeyEventSummary(7))
	assert.Equal(t, "tixqueue:v1:event:7:availability", KeyEventAvailability(7))
	assert.Equal(t, "tixqueue:v1:rl:reservations:user:3", KeyRateLimit("reservations", "user:3"))
	assert.Equal(t, "tixqueue:v1:idem:reservations:7:3:abc", KeyIdemReservation(7, 3, "abc"))
	assert.Equal(t, "tixqueue:v1:events", ChannelEvents())

	// keys for different users never collide on the same idempotency key
	assert.NotEqual(t, KeyIdemReservation(7, 3, "abc"), KeyIdemReservation(7, 4, "abc"))
}

func TestToInt(t *testing.T) {
	tests := []struct {
		in   any
		want int64
	}{
		{int64(5), 5},
		{3, 3},
		{float64(9), 9},
		{"12", 12},
		{"x", 0},
		{nil, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, toInt(tt.in))
	}
}

func TestRandomHex(t *testing.T) {
	a, b := randomHex(12), randomHex(12)
	assert.Len(t, a, 24)
	assert.NotEqual(t, a, b)
}
