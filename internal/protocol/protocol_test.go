package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moldmap/internal/geom"
)

func TestMapCommandRoundTrip(t *testing.T) {
	path := []geom.Point3{geom.Pt(0, 0, 0), geom.Pt(10, 5.5, -2)}
	cmd := NewMapCommand("job-42", path, "mm", 50)

	line, err := EncodeCommand(cmd)
	require.NoError(t, err)

	parsed, err := ParseCommand(line)
	require.NoError(t, err)
	got, ok := parsed.(MapCommand)
	require.True(t, ok)

	assert.Equal(t, "job-42", got.JobID)
	assert.Equal(t, cmd.Path, got.Path)
	assert.Equal(t, "mm", got.Meta.Units)
	assert.Equal(t, 50.0, got.Meta.Feedrate)
	assert.Equal(t, path, got.Points())
}

func TestEncodeStopAndStatus(t *testing.T) {
	line, err := EncodeCommand(StopCommand{Cmd: CmdStop})
	require.NoError(t, err)
	assert.JSONEq(t, `{"cmd":"STOP"}`, line)

	parsed, err := ParseCommand(`{"cmd":"STATUS"}`)
	require.NoError(t, err)
	_, ok := parsed.(StatusCommand)
	assert.True(t, ok)
}

func TestParseCommandErrors(t *testing.T) {
	_, err := ParseCommand("not json at all")
	assert.True(t, errors.Is(err, ErrMalformedFrame))

	_, err = ParseCommand(`{"cmd":"WARP"}`)
	assert.True(t, errors.Is(err, ErrUnknownMessageType))

	_, err = ParseCommand(`{"foo":"bar"}`)
	assert.True(t, errors.Is(err, ErrUnknownMessageType))
}

func TestParseEventKinds(t *testing.T) {
	tests := []struct {
		line string
		kind string
	}{
		{`{"type":"VALIDATION","status":"VALID"}`, TypeValidation},
		{`{"type":"POS","pos":[1,2,3],"t":1712345678901}`, TypePosition},
		{`{"type":"PROGRESS","visited":10,"total":25}`, TypeProgress},
		{`{"type":"COMPLETE","job_id":"j1","duration_s":1.25}`, TypeComplete},
		{`{"type":"ERROR","code":"UNKNOWN_CMD","message":"boom"}`, TypeError},
	}
	for _, tc := range tests {
		ev, err := ParseEvent(tc.line)
		require.NoError(t, err, tc.line)
		assert.Equal(t, tc.kind, ev.Kind(), tc.line)
	}
}

func TestParseEventFields(t *testing.T) {
	ev, err := ParseEvent(`{"type":"POS","pos":[1.5,-2,3],"t":99}`)
	require.NoError(t, err)
	pos := ev.(Position)
	assert.Equal(t, geom.Pt(1.5, -2, 3), pos.Point())
	assert.Equal(t, int64(99), pos.T)

	ev, err = ParseEvent(`{"type":"VALIDATION","status":"INVALID","message":"empty path"}`)
	require.NoError(t, err)
	v := ev.(Validation)
	assert.Equal(t, StatusInvalid, v.Status)
	assert.Equal(t, "empty path", v.Message)

	ev, err = ParseEvent(`{"type":"COMPLETE","job_id":"j7","duration_s":4.5}`)
	require.NoError(t, err)
	c := ev.(Complete)
	assert.Equal(t, "j7", c.JobID)
	assert.Equal(t, 4.5, c.DurationS)
}

func TestParseEventErrors(t *testing.T) {
	_, err := ParseEvent("{{{")
	assert.True(t, errors.Is(err, ErrMalformedFrame))

	_, err = ParseEvent(`{"type":"TEMP","c":21}`)
	assert.True(t, errors.Is(err, ErrUnknownMessageType))

	_, err = ParseEvent(`{"status":"VALID"}`)
	assert.True(t, errors.Is(err, ErrUnknownMessageType))

	// STATUS is a device-internal reply, not a host event kind
	_, err = ParseEvent(`{"type":"STATUS","running":false}`)
	assert.True(t, errors.Is(err, ErrUnknownMessageType))
}

func TestEncodeEventRoundTrip(t *testing.T) {
	in := Validation{Type: TypeValidation, Status: StatusValid}
	line, err := EncodeEvent(in)
	require.NoError(t, err)
	out, err := ParseEvent(line)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestProgressPercent(t *testing.T) {
	assert.Equal(t, 0.0, Progress{}.Percent())
	assert.InDelta(t, 40.0, Progress{Visited: 10, Total: 25}.Percent(), 1e-12)
}
