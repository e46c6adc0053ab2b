// Package audio 提供电话音频的编解码、重采样与分帧
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrInvalidAudioLength 线性PCM输入的字节数不是2的倍数
var ErrInvalidAudioLength = errors.New("音频长度无效")

const (
	mulawBias = 0x84  // G.711偏置
	mulawClip = 32635 // 编码前的削波上限

	// BytesPerSample 16位线性PCM每个采样的字节数
	BytesPerSample = 2
)

// mulawTable μ-law到线性PCM的解码表
var mulawTable [256]int16

func init() {
	for i := 0; i < 256; i++ {
		mulawTable[i] = decodeSample(byte(i))
	}
}

func decodeSample(u byte) int16 {
	u = ^u
	sign := u & 0x80
	exponent := (u >> 4) & 0x07
	mantissa := u & 0x0F

	value := (int(mantissa) << 3) + mulawBias
	value <<= uint(exponent)
	value -= mulawBias
	if sign != 0 {
		return int16(-value)
	}
	return int16(value)
}

func encodeSample(sample int16) byte {
	s := int(sample)
	sign := 0
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > mulawClip {
		s = mulawClip
	}
	s += mulawBias

	exponent := 7
	for mask := 0x4000; s&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := (s >> (exponent + 3)) & 0x0F
	return ^byte(sign | exponent<<4 | mantissa)
}

// DecodeMuLaw 将μ-law字节解码为16位小端线性PCM，输出长度为输入的2倍
func DecodeMuLaw(data []byte) []byte {
	out := make([]byte, len(data)*BytesPerSample)
	for i, b := range data {
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(mulawTable[b]))
	}
	return out
}

// EncodeMuLaw 将16位小端线性PCM编码为μ-law，输出长度为输入的一半
func EncodeMuLaw(pcm []byte) ([]byte, error) {
	if len(pcm)%BytesPerSample != 0 {
		return nil, fmt.Errorf("%w: %d字节", ErrInvalidAudioLength, len(pcm))
	}
	out := make([]byte, len(pcm)/BytesPerSample)
	for i := range out {
		out[i] = encodeSample(int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:])))
	}
	return out, nil
}

// Energy 返回μ-law帧解码后的平均绝对幅度
func Energy(mulaw []byte) int {
	if len(mulaw) == 0 {
		return 0
	}
	sum := 0
	for _, b := range mulaw {
		v := int(mulawTable[b])
		if v < 0 {
			v = -v
		}
		sum += v
	}
	return sum / len(mulaw)
}
