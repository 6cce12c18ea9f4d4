package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBusEvent(t *testing.T) {
	pid := 4242
	e := Event{
		Type: "proc.spawn",
		Data: []byte(`{"time":"2026-07-31T00:00:00Z","type":"proc.spawn","job":"web","pid":4242}`),
	}

	b, err := DecodeBusEvent(e)
	require.NoError(t, err)
	assert.Equal(t, "proc.spawn", b.Type)
	assert.Equal(t, "web", b.Job)
	require.NotNil(t, b.PID)
	assert.Equal(t, pid, *b.PID)
}

func TestDecodeBusEvent_WithError(t *testing.T) {
	e := Event{
		Type: "proc.exit",
		Data: []byte(`{"time":"2026-07-31T00:00:01Z","type":"proc.exit","job":"bad","error":"exit status 1"}`),
	}

	b, err := DecodeBusEvent(e)
	require.NoError(t, err)
	assert.Equal(t, "exit status 1", b.Error)
}

func TestDecodeBusEvent_Invalid(t *testing.T) {
	_, err := DecodeBusEvent(Event{Data: []byte("not json")})
	require.Error(t, err)
}
