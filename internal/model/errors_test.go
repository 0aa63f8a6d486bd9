package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestE_FormatsMessage(t *testing.T) {
	err := E(KindConflict, "site %s is busy", "alpha")
	assert.Equal(t, "conflict_error: site alpha is busy", err.Error())
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindLivenessTimeout, cause, "site did not come up")

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "site did not come up")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestKindOf_UnknownError(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
	assert.Equal(t, ErrorKind(""), KindOf(nil))
}

func TestIsKind_ThroughWrapping(t *testing.T) {
	inner := E(KindNoPortsAvailable, "pool exhausted")
	outer := fmt.Errorf("starting site: %w", inner)

	assert.True(t, IsKind(outer, KindNoPortsAvailable))
	assert.False(t, IsKind(outer, KindConflict))
}
