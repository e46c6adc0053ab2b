package audio

import (
	"fmt"
	"time"
)

// Format 音频格式标识，取值与模型会话配置一致
type Format string

const (
	FormatMuLaw Format = "g711_ulaw"
	FormatPCM16 Format = "pcm16"
)

// CarrierFrameSize 运营商侧一帧(20ms @ 8kHz μ-law)的字节数
const CarrierFrameSize = 160

// FrameDuration 运营商侧单帧时长
const FrameDuration = 20 * time.Millisecond

// Frames 将载荷切分为固定大小的帧，最后一帧可能不足frameSize
func Frames(payload []byte, frameSize int) [][]byte {
	if frameSize <= 0 || len(payload) == 0 {
		return nil
	}
	frames := make([][]byte, 0, (len(payload)+frameSize-1)/frameSize)
	for start := 0; start < len(payload); start += frameSize {
		end := start + frameSize
		if end > len(payload) {
			end = len(payload)
		}
		frames = append(frames, payload[start:end])
	}
	return frames
}

// DurationOf 计算给定格式与采样率下n字节音频的时长
func DurationOf(n int, format Format, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := n
	if format == FormatPCM16 {
		samples = n / BytesPerSample
	}
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// Converter 在运营商μ-law 8kHz与模型音频格式之间转换
type Converter struct {
	modelFormat Format
	modelRate   int
}

// NewConverter 创建转换器，pcm16格式需要给出模型采样率
func NewConverter(modelFormat Format, modelRate int) (*Converter, error) {
	switch modelFormat {
	case FormatMuLaw:
		modelRate = SampleRate8kHz
	case FormatPCM16:
		if modelRate <= 0 {
			return nil, fmt.Errorf("pcm16格式需要有效采样率: %d", modelRate)
		}
	default:
		return nil, fmt.Errorf("不支持的音频格式: %s", modelFormat)
	}
	return &Converter{modelFormat: modelFormat, modelRate: modelRate}, nil
}

// Passthrough 两侧格式一致时直接透传
func (c *Converter) Passthrough() bool {
	return c.modelFormat == FormatMuLaw
}

// ToModel 将运营商μ-law音频转换为模型输入格式
func (c *Converter) ToModel(mulaw []byte) ([]byte, error) {
	if c.Passthrough() {
		return mulaw, nil
	}
	return Resample(DecodeMuLaw(mulaw), SampleRate8kHz, c.modelRate)
}

// ToCarrier 将模型输出音频转换为运营商μ-law
func (c *Converter) ToCarrier(data []byte) ([]byte, error) {
	if c.Passthrough() {
		return data, nil
	}
	pcm, err := Resample(data, c.modelRate, SampleRate8kHz)
	if err != nil {
		return nil, err
	}
	return EncodeMuLaw(pcm)
}

// CarrierDuration 计算运营商μ-law 8kHz音频的时长
func (c *Converter) CarrierDuration(n int) time.Duration {
	return DurationOf(n, FormatMuLaw, SampleRate8kHz)
}
