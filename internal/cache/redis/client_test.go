package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientKey(t *testing.T) {
	c := NewFromRedis(nil, "optiondesk:")
	assert.Equal(t, "optiondesk:quote:BTC", c.Key("quote", "BTC"))
	assert.Equal(t, "optiondesk:settlements", c.Key("settlements"))

	bare := NewFromRedis(nil, "")
	assert.Equal(t, "lock:submit:u1", bare.Key("lock", "submit:u1"))
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	assert.Contains(t, slidingWindowLua, "ZREMRANGEBYSCORE")
	assert.Contains(t, slidingWindowLua, "ZCARD")
}
