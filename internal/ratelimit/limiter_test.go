package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_AllowConsumesBucketIndependentlyPerKey(t *testing.T) {
	l := New(1, 1)
	assert.True(t, l.Allow("room-a"))
	assert.False(t, l.Allow("room-a")) // bucket exhausted
	assert.True(t, l.Allow("room-b"))  // distinct bucket, untouched
}

func TestLimiter_WaitReturnsWhenContextCancelled(t *testing.T) {
	l := New(0.000001, 1)
	l.Allow("r") // drain the single burst token

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Wait(ctx, "r")
	assert.Error(t, err)
}
