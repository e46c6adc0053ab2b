package twilio

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCarrierEvents(t *testing.T) {
	start, err := EncodeStart("MZ1", "CA123", map[string]string{"callerNumber": "+4912345678"})
	require.NoError(t, err)
	media, err := EncodeMedia("MZ1", 3, 60, []byte{0xFF, 0x7F})
	require.NoError(t, err)
	mark, err := EncodeMark("MZ1", "response-1")
	require.NoError(t, err)
	stop, err := EncodeStop("MZ1", "CA123")
	require.NoError(t, err)
	connected, err := EncodeConnected()
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
		want Event
	}{
		{"connected", connected, Connected{Protocol: "Call"}},
		{"media", media, Media{StreamSid: "MZ1", Track: "inbound", Chunk: "3", Timestamp: "60", Payload: []byte{0xFF, 0x7F}}},
		{"mark", mark, Mark{StreamSid: "MZ1", Name: "response-1"}},
		{"stop", stop, Stop{StreamSid: "MZ1", CallSid: "CA123"}},
		{"dtmf", []byte(`{"event":"dtmf","streamSid":"MZ1","dtmf":{"track":"inbound_track","digit":"5"}}`), DTMF{StreamSid: "MZ1", Digit: "5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev)
		})
	}

	ev, err := Decode(start)
	require.NoError(t, err)
	s, ok := ev.(Start)
	require.True(t, ok)
	assert.Equal(t, "MZ1", s.StreamSid)
	assert.Equal(t, "CA123", s.CallSid)
	assert.Equal(t, "+4912345678", s.CustomParameters["callerNumber"])
	assert.Equal(t, "audio/x-mulaw", s.Encoding)
	assert.Equal(t, 8000, s.SampleRate)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode([]byte(`{"event":"media","media":{"payload":"***"}}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = Decode([]byte(`{"event":"media"}`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode([]byte(`{"event":"unknown"}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestOutboundMessages(t *testing.T) {
	data, err := json.Marshal(NewMedia("MZ1", []byte{0xFF}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"media","streamSid":"MZ1","media":{"payload":"/w=="}}`, string(data))

	data, err = json.Marshal(NewClear("MZ1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"clear","streamSid":"MZ1"}`, string(data))

	data, err = json.Marshal(NewMark("MZ1", "apology"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"mark","streamSid":"MZ1","mark":{"name":"apology"}}`, string(data))
}
