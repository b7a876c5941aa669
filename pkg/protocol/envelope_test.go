package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDerivesTypeFromPayload(t *testing.T) {
	data, err := Encode(ID(7), TimeResponse{Time: "2026-01-02 03:04:05"})
	require.NoError(t, err)

	env, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, TypeTimeRequest, env.Type)
	assert.Equal(t, int64(7), env.IDValue())

	var resp TimeResponse
	require.NoError(t, env.Bind(&resp))
	assert.Equal(t, "2026-01-02 03:04:05", resp.Time)
}

func TestEncodeKeepsZeroID(t *testing.T) {
	data, err := Encode(ID(0), TimeRequest{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"timeRequest","id":0,"payload":{}}`, string(data))
}

func TestEncodeOmitsMissingID(t *testing.T) {
	data, err := Encode(nil, ErrorPayload{Message: MessageInvalidFormat})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","payload":{"message":"Invalid message format"}}`, string(data))
}

func TestEncodeRejectsUntypedPayload(t *testing.T) {
	_, err := Encode(ID(1), JobStarted{JobID: 1})
	assert.Error(t, err)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte(`{"type":"timeRequest",`))
	var decErr *DecodeError
	require.True(t, errors.As(err, &decErr))
	assert.Nil(t, decErr.ID)
}

func TestDecodeMissingTypeKeepsID(t *testing.T) {
	_, err := Decode([]byte(`{"id":12,"payload":{}}`))
	var decErr *DecodeError
	require.True(t, errors.As(err, &decErr))
	require.NotNil(t, decErr.ID)
	assert.Equal(t, int64(12), *decErr.ID)
}

func TestDecodeWrongTypeRecoversID(t *testing.T) {
	_, err := Decode([]byte(`{"type":5,"id":4}`))
	var decErr *DecodeError
	require.True(t, errors.As(err, &decErr))
	require.NotNil(t, decErr.ID)
	assert.Equal(t, int64(4), *decErr.ID)
}

func TestBindEmptyPayload(t *testing.T) {
	env, err := Decode([]byte(`{"type":"test","id":1}`))
	require.NoError(t, err)

	var req TestRequest
	require.NoError(t, env.Bind(&req))
	assert.Empty(t, req.Message)
}

func TestCatalog(t *testing.T) {
	assert.True(t, IsCorrelated(TypeTimeRequest))
	assert.True(t, IsCorrelated(TypeError))
	assert.True(t, IsSubscription(TypeJobProgress))
	assert.False(t, IsCorrelated(TypeLog))
	assert.False(t, Known("doesNotExist"))
	assert.Equal(t, KindUnknown, KindOf("doesNotExist"))
	assert.Equal(t, "subscription", KindOf(TypeJobComplete).String())
}
