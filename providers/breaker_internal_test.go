package providers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerTransitions(t *testing.T) {
	now := time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(2, time.Minute, 2)
	b.now = func() time.Time { return now }

	b.OnFailure()
	assert.Equal(t, StateClosed, b.State())
	b.OnFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.CanExecute())

	now = now.Add(time.Minute)
	assert.True(t, b.CanExecute())
	assert.Equal(t, StateHalfOpen, b.State())
	b.OnFailure()
	assert.Equal(t, StateOpen, b.State())

	now = now.Add(time.Minute)
	assert.True(t, b.CanExecute())
	b.OnSuccess()
	assert.Equal(t, StateHalfOpen, b.State())
	b.OnSuccess()
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "closed", b.State().String())
}

func TestCRC16(t *testing.T) {
	assert.Equal(t, uint16(0x29B1), crc16("123456789"))
}

func TestBreakerAdmitsOneTrialCall(t *testing.T) {
	now := time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(1, time.Minute, 2)
	b.now = func() time.Time { return now }

	b.OnFailure()
	now = now.Add(time.Minute)
	assert.True(t, b.CanExecute())
	assert.False(t, b.CanExecute())

	b.Release()
	assert.True(t, b.CanExecute())
	b.OnSuccess()
	assert.Equal(t, StateHalfOpen, b.State())
	assert.True(t, b.CanExecute())
	assert.False(t, b.CanExecute())
	b.OnSuccess()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.CanExecute())
	assert.True(t, b.CanExecute())
}
