package hsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSetPollClearsOnce(t *testing.T) {
	e := NewEvent(nil, "Ping")
	assert.False(t, e.Poll())

	e.Set()
	assert.True(t, e.Poll())
	assert.False(t, e.Poll(), "a second Poll after a Set should observe nothing")

	e.Set()
	e.Set()
	assert.True(t, e.Poll(), "repeated Sets before a Poll collapse to a single pending wakeup")
	assert.False(t, e.Poll())
}

func TestEventName(t *testing.T) {
	e := NewEvent(nil, "Ping")
	assert.Equal(t, "Ping", e.Name())
	assert.NotEmpty(t, e.ID)
}

func TestEventWithValueRoundTrip(t *testing.T) {
	e := NewEventWithValue[int](nil, "Temp")

	e.SetValue(72)
	require.True(t, e.Poll())
	assert.Equal(t, 72, e.Value())
}

func TestEventWithValuePanicsWhenUnset(t *testing.T) {
	e := NewEventWithValue[string](nil, "Label")
	assert.PanicsWithValue(t, ErrValueNotSet, func() {
		e.Value()
	})
}

func TestEventWithValueUndefinedAfterClear(t *testing.T) {
	e := NewEventWithValue[string](nil, "Label")
	e.SetValue("hello")
	require.True(t, e.Poll())
	_ = e.Value()

	assert.False(t, e.Poll(), "second poll with no intervening SetValue observes nothing")
	assert.PanicsWithValue(t, ErrValueNotSet, func() {
		e.Value()
	}, "value must be undefined once Poll has cleared it")
}
