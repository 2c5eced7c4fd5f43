package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := New[int](Settings{Name: "test", ConsecutiveFailures: 2, OpenTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		_, err := b.Execute(func() (int, error) { return 0, errBoom })
		require.ErrorIs(t, err, errBoom)
	}

	calls := 0
	_, err := b.Execute(func() (int, error) { calls++; return 1, nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.Zero(t, calls)
	assert.Equal(t, "open", b.State())
}

func TestBreaker_IgnoresNonFailures(t *testing.T) {
	errClient := errors.New("bad request")
	b := New[int](Settings{
		Name:                "test",
		ConsecutiveFailures: 1,
		IsFailure:           func(err error) bool { return !errors.Is(err, errClient) },
	})

	for i := 0; i < 3; i++ {
		_, err := b.Execute(func() (int, error) { return 0, errClient })
		assert.ErrorIs(t, err, errClient)
	}
	assert.Equal(t, "closed", b.State())
}

func TestBreaker_PassesResult(t *testing.T) {
	b := New[string](Settings{Name: "test"})
	v, err := b.Execute(func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}
