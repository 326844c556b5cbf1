package source

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMachineTransitions(t *testing.T) {
	transient := &TransientFetchError{ActionType: "buyback", Err: errors.New("timeout")}
	permanent := &PermanentFetchError{ActionType: "buyback", Err: errors.New("gone")}
	backoff := ExponentialBackoff{Base: time.Second, Max: 10 * time.Second}

	t.Run("success with next page keeps fetching", func(t *testing.T) {
		m := NewMachine(2, backoff)
		m.Succeeded("token")
		assert.Equal(t, StateFetching, m.State())
	})

	t.Run("success without next page exhausts", func(t *testing.T) {
		m := NewMachine(2, backoff)
		m.Succeeded("")
		assert.Equal(t, StateExhausted, m.State())
		assert.True(t, m.Done())
		assert.NoError(t, m.Err())
	})

	t.Run("transient backs off with growing delay", func(t *testing.T) {
		m := NewMachine(3, backoff)
		m.Failed(transient)
		assert.Equal(t, StateBackoff, m.State())
		assert.Equal(t, 1, m.Attempt())
		assert.Equal(t, time.Second, m.Delay())
		m.Resume()
		m.Failed(transient)
		assert.Equal(t, 2, m.Attempt())
		assert.Equal(t, 2*time.Second, m.Delay())
		m.Resume()
		m.Succeeded("next")
		assert.Equal(t, 0, m.Attempt(), "success resets the retry budget")
	})

	t.Run("retries exhausted fails", func(t *testing.T) {
		m := NewMachine(1, backoff)
		m.Failed(transient)
		m.Resume()
		m.Failed(transient)
		assert.Equal(t, StateFailed, m.State())
		var exhausted *RetriesExhaustedError
		assert.ErrorAs(t, m.Err(), &exhausted)
	})

	t.Run("permanent fails immediately", func(t *testing.T) {
		m := NewMachine(5, backoff)
		m.Failed(permanent)
		assert.Equal(t, StateFailed, m.State())
		assert.Same(t, permanent, m.Err())
	})

	t.Run("rate limit hint overrides backoff", func(t *testing.T) {
		m := NewMachine(2, backoff)
		m.Failed(&RateLimitedError{RetryAfter: 8 * time.Second, Err: transient})
		assert.Equal(t, StateBackoff, m.State())
		assert.Equal(t, 8*time.Second, m.Delay())
	})

	t.Run("events outside fetching are ignored", func(t *testing.T) {
		m := NewMachine(2, backoff)
		m.Succeeded("")
		m.Failed(permanent)
		assert.Equal(t, StateExhausted, m.State())
		m.Abort(errors.New("late"))
		assert.Equal(t, StateExhausted, m.State())
	})
}

func TestExponentialBackoff(t *testing.T) {
	b := ExponentialBackoff{Base: 500 * time.Millisecond, Max: 3 * time.Second}
	assert.Equal(t, 500*time.Millisecond, b.Delay(1, 0))
	assert.Equal(t, time.Second, b.Delay(2, 0))
	assert.Equal(t, 2*time.Second, b.Delay(3, 0))
	assert.Equal(t, 3*time.Second, b.Delay(4, 0))
	assert.Equal(t, 3*time.Second, b.Delay(50, 0))
	assert.Equal(t, 3*time.Second, b.Delay(1, time.Hour), "hint is capped")
	assert.Equal(t, 500*time.Millisecond, b.Delay(0, 0))
}

func TestPageTokens(t *testing.T) {
	tok := encodeToken("rights_issue", 4)
	n, err := decodeToken("rights_issue", tok)
	assert.NoError(t, err)
	assert.Equal(t, 4, n)

	_, err = decodeToken("buyback", tok)
	assert.Error(t, err)

	n, err = decodeToken("buyback", "")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, 0, PageNumber("buyback", "%%%"))
}
