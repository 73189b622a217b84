package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recoverFatal(fn func()) (fe *FatalError, ok bool) {
	defer func() {
		fe, ok = AsFatal(recover())
	}()
	fn()
	return nil, false
}

func TestFatalPanicsWithKind(t *testing.T) {
	fe, ok := recoverFatal(func() { Fatal(ErrCapacityExhausted, "pool %s full", "cb") })
	require.True(t, ok)
	assert.ErrorIs(t, fe, ErrCapacityExhausted)
	assert.NotErrorIs(t, fe, ErrMisuse)
	assert.Contains(t, fe.Error(), "pool cb full")
}

func TestMustWrapsDeviceError(t *testing.T) {
	cause := errors.New("device removed")
	fe, ok := recoverFatal(func() { Must(cause, "ExecuteCommandLists") })
	require.True(t, ok)
	assert.ErrorIs(t, fe, ErrGPUFailure)
	assert.ErrorIs(t, fe, cause)
	assert.Contains(t, fe.Error(), "ExecuteCommandLists")

	assert.NotPanics(t, func() { Must(nil, "noop") })
}

func TestAsFatalIgnoresOtherPanics(t *testing.T) {
	_, ok := AsFatal("plain string")
	assert.False(t, ok)
	_, ok = AsFatal(errors.New("plain error"))
	assert.False(t, ok)
	_, ok = AsFatal(nil)
	assert.False(t, ok)
}
