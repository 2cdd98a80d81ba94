package ir

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorHelpersSeeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("submit: %w", NewUnmanagedResourceError("Log"))

	assert.True(t, IsUnmanagedResource(err))
	assert.False(t, IsCommitFailure(err))
	assert.Contains(t, err.Error(), "UNMANAGED_RESOURCE")
	assert.Contains(t, err.Error(), "resource=Log")
}

func TestCommitErrorKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := NewCommitError("tx-1", cause)

	assert.True(t, IsCommitFailure(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "tx-1", err.TransactionID)
	assert.Contains(t, err.Error(), "transaction=tx-1")
}

func TestSequenceGenerator(t *testing.T) {
	g := NewSequenceGenerator("tx")
	assert.Equal(t, "tx-1", g.Generate())
	assert.Equal(t, "tx-2", g.Generate())

	assert.Len(t, UUIDv7Generator{}.Generate(), 36)
}
