package audio

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcmOf(samples ...int16) []byte {
	return fromSamples(samples)
}

func TestDecodeMuLawLength(t *testing.T) {
	for _, n := range []int{0, 1, 160, 333} {
		assert.Len(t, DecodeMuLaw(make([]byte, n)), 2*n)
	}
}

func TestEncodeMuLawLength(t *testing.T) {
	out, err := EncodeMuLaw(make([]byte, 320))
	require.NoError(t, err)
	assert.Len(t, out, 160)

	_, err = EncodeMuLaw(make([]byte, 3))
	assert.ErrorIs(t, err, ErrInvalidAudioLength)
}

func TestMuLawByteRoundTrip(t *testing.T) {
	for i := 0; i < 256; i++ {
		b := byte(i)
		if b == 0x7F {
			// 负零与正零解码结果相同
			continue
		}
		pcm := DecodeMuLaw([]byte{b})
		enc, err := EncodeMuLaw(pcm)
		require.NoError(t, err)
		assert.Equal(t, b, enc[0], "字节 0x%02X", b)
	}
}

func TestMuLawSampleRoundTrip(t *testing.T) {
	for s := -32635; s <= 32635; s += 7 {
		enc, err := EncodeMuLaw(pcmOf(int16(s)))
		require.NoError(t, err)
		got := int(int16(binary.LittleEndian.Uint16(DecodeMuLaw(enc))))

		diff := got - s
		if diff < 0 {
			diff = -diff
		}
		limit := 512
		if s > -124 && s < 124 {
			limit = 4
		}
		assert.LessOrEqual(t, diff, limit, "采样 %d 解码为 %d", s, got)
	}
}

func TestMuLawClipping(t *testing.T) {
	enc, err := EncodeMuLaw(pcmOf(32767, -32768))
	require.NoError(t, err)
	dec := toSamples(DecodeMuLaw(enc))
	assert.Equal(t, int16(32124), dec[0])
	assert.Equal(t, int16(-32124), dec[1])
}

func TestMuLawSilence(t *testing.T) {
	enc, err := EncodeMuLaw(pcmOf(0))
	require.NoError(t, err)
	assert.Equal(t, byte(0xFF), enc[0])
}

func TestResample(t *testing.T) {
	tests := []struct {
		name    string
		samples int
		src     int
		dst     int
		want    int
	}{
		{"8k到24k", 160, SampleRate8kHz, SampleRate24kHz, 480},
		{"24k到8k", 480, SampleRate24kHz, SampleRate8kHz, 160},
		{"8k到16k", 160, SampleRate8kHz, SampleRate16kHz, 320},
		{"同采样率", 100, SampleRate8kHz, SampleRate8kHz, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Resample(make([]byte, tt.samples*2), tt.src, tt.dst)
			require.NoError(t, err)
			assert.Len(t, out, tt.want*2)
		})
	}
}

func TestResampleInvalidLength(t *testing.T) {
	_, err := Resample(make([]byte, 5), SampleRate8kHz, SampleRate24kHz)
	assert.ErrorIs(t, err, ErrInvalidAudioLength)

	_, err = Resample(make([]byte, 4), 0, SampleRate24kHz)
	assert.Error(t, err)
}

func TestResampleKeepsLastSample(t *testing.T) {
	up, err := Resample(pcmOf(0, 1000, 2000, 3000), SampleRate8kHz, SampleRate24kHz)
	require.NoError(t, err)
	upSamples := toSamples(up)
	assert.Equal(t, int16(0), upSamples[0])
	assert.Equal(t, int16(3000), upSamples[len(upSamples)-1])

	in := make([]int16, 6)
	in[5] = 9000
	down, err := Resample(pcmOf(in...), SampleRate24kHz, SampleRate8kHz)
	require.NoError(t, err)
	downSamples := toSamples(down)
	require.Len(t, downSamples, 2)
	assert.Equal(t, int16(3000), downSamples[1])
}

func TestResampleDecimationAverages(t *testing.T) {
	down, err := Resample(pcmOf(100, 200, 300, 400, 500, 600), SampleRate24kHz, SampleRate8kHz)
	require.NoError(t, err)
	assert.Equal(t, []int16{200, 500}, toSamples(down))
}

func TestFrames(t *testing.T) {
	frames := Frames(make([]byte, 480), CarrierFrameSize)
	require.Len(t, frames, 3)
	for _, f := range frames {
		assert.Len(t, f, CarrierFrameSize)
	}

	frames = Frames(make([]byte, 170), CarrierFrameSize)
	require.Len(t, frames, 2)
	assert.Len(t, frames[1], 10)

	assert.Nil(t, Frames(nil, CarrierFrameSize))
}

func TestDurationOf(t *testing.T) {
	assert.Equal(t, 20*time.Millisecond, DurationOf(160, FormatMuLaw, SampleRate8kHz))
	assert.Equal(t, 20*time.Millisecond, DurationOf(960, FormatPCM16, SampleRate24kHz))
	assert.Equal(t, time.Duration(0), DurationOf(160, FormatMuLaw, 0))
}

func TestConverter(t *testing.T) {
	c, err := NewConverter(FormatMuLaw, 0)
	require.NoError(t, err)
	assert.True(t, c.Passthrough())

	in := []byte{0x01, 0x7F, 0xFF}
	out, err := c.ToModel(in)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	c, err = NewConverter(FormatPCM16, SampleRate24kHz)
	require.NoError(t, err)
	assert.False(t, c.Passthrough())

	model, err := c.ToModel(make([]byte, CarrierFrameSize))
	require.NoError(t, err)
	assert.Len(t, model, 960)

	carrier, err := c.ToCarrier(model)
	require.NoError(t, err)
	assert.Len(t, carrier, CarrierFrameSize)
	assert.Equal(t, 20*time.Millisecond, c.CarrierDuration(len(carrier)))

	_, err = c.ToCarrier(make([]byte, 961))
	assert.ErrorIs(t, err, ErrInvalidAudioLength)

	_, err = NewConverter("opus", 48000)
	assert.Error(t, err)
}

func TestEnergy(t *testing.T) {
	assert.Equal(t, 0, Energy(nil))
	assert.Equal(t, 0, Energy([]byte{0xFF, 0xFF}))

	loud, err := EncodeMuLaw(pcmOf(8000, -8000))
	require.NoError(t, err)
	assert.Greater(t, Energy(loud), 7000)
}
