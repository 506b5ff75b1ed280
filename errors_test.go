package hsm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigurationErrorMessage(t *testing.T) {
	err := NewConfigurationError("Door", "missing Initial transition function")
	assert.Contains(t, err.Error(), "Door")
	assert.Contains(t, err.Error(), "missing Initial transition function")
}

func TestStackInvariantErrorMessage(t *testing.T) {
	err := NewStackInvariantError("Idle", "not at the top of the active-state stack")
	assert.Contains(t, err.Error(), "Idle")
}

func TestParentMissingErrorMessage(t *testing.T) {
	err := NewParentMissingError("Orphan")
	assert.Contains(t, err.Error(), "Orphan")
}

func TestConstructorsRejectNilParent(t *testing.T) {
	assert.PanicsWithValue(t, NewParentMissingError("Orphan"), func() {
		NewState(nil, "Orphan")
	})
	assert.PanicsWithValue(t, NewParentMissingError("Orphan"), func() {
		NewComposite(nil, "Orphan", false, false)
	})
	assert.PanicsWithValue(t, NewParentMissingError("Orphan"), func() {
		NewConcurrent(nil, "Orphan")
	})
}

func TestActionErrorUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := NewActionError("Pump", "entry", cause)

	assert.ErrorIs(t, err, cause)

	var ae *ActionError
	assert.ErrorAs(t, err, &ae)
	assert.Equal(t, "entry", ae.Phase)
	assert.Equal(t, "Pump", ae.State)
}
