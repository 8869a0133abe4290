package logrecord

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeCommand(t *testing.T) {
	msg := EncodeCommand(SetWatchProcess, FilterIDPayload(-1234))
	require.Len(t, msg, CommandHeaderSize+8)

	cmd, payload, err := DecodeCommand(msg)
	require.NoError(t, err)
	assert.Equal(t, SetWatchProcess, cmd)

	id, err := ParseFilterIDPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, int64(-1234), id)
}

func TestDecodeCommand_TooShort(t *testing.T) {
	_, _, err := DecodeCommand([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestPathPayload(t *testing.T) {
	payload, err := PathPayload(`\Device\HarddiskVolume3\watched\*`)
	require.NoError(t, err)

	// UTF-16 with a terminating NUL.
	assert.Len(t, payload, 2*(len(`\Device\HarddiskVolume3\watched\*`)+1))
	assert.Equal(t, []byte{0, 0}, payload[len(payload)-2:])

	got, err := ParsePathPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, `\Device\HarddiskVolume3\watched\*`, got)
}

func TestParseDriverVersion(t *testing.T) {
	v, err := ParseDriverVersion(AppendDriverVersion(nil, DriverVersion{Major: 2, Minor: 3}))
	require.NoError(t, err)
	assert.Equal(t, DriverVersion{Major: 2, Minor: 3}, v)
	assert.Equal(t, "2.3", v.String())

	_, err = ParseDriverVersion([]byte{2})
	assert.Error(t, err)
}

func TestCommand_String(t *testing.T) {
	assert.Equal(t, "fetch-log", FetchLog.String())
	assert.Equal(t, "set-path-filter", SetPathFilter.String())
	assert.Equal(t, "command(9)", Command(9).String())
}
