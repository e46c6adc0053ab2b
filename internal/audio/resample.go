package audio

import (
	"encoding/binary"
	"fmt"
)

// 常用采样率
const (
	SampleRate8kHz  = 8000  // 电话窄带
	SampleRate16kHz = 16000 // 语音识别常用
	SampleRate24kHz = 24000 // 模型PCM输出
)

// Resample 在两个采样率之间转换16位小端线性PCM。
// 升采样使用线性插值，降采样对每个输出区间内的输入采样取平均。
// 最后一个输入采样总是落在最后一个输出区间内。
func Resample(pcm []byte, srcRate, dstRate int) ([]byte, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("采样率无效: src=%d, dst=%d", srcRate, dstRate)
	}
	if len(pcm)%BytesPerSample != 0 {
		return nil, fmt.Errorf("%w: %d字节", ErrInvalidAudioLength, len(pcm))
	}
	if srcRate == dstRate {
		out := make([]byte, len(pcm))
		copy(out, pcm)
		return out, nil
	}

	in := toSamples(pcm)
	if len(in) == 0 {
		return []byte{}, nil
	}

	n := len(in) * dstRate / srcRate
	if n == 0 {
		n = 1
	}

	var out []int16
	if dstRate > srcRate {
		out = interpolate(in, n)
	} else {
		out = decimate(in, n)
	}
	return fromSamples(out), nil
}

// interpolate 线性插值，首尾对齐
func interpolate(in []int16, n int) []int16 {
	out := make([]int16, n)
	if len(in) == 1 || n == 1 {
		for i := range out {
			out[i] = in[0]
		}
		return out
	}
	step := float64(len(in)-1) / float64(n-1)
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := pos - float64(idx)
		s0, s1 := float64(in[idx]), float64(in[idx+1])
		out[i] = int16(s0 + frac*(s1-s0))
	}
	return out
}

// decimate 按区间求均值
func decimate(in []int16, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		start := i * len(in) / n
		end := (i + 1) * len(in) / n
		if i == n-1 {
			end = len(in)
		}
		if end <= start {
			end = start + 1
		}
		var sum int
		for _, s := range in[start:end] {
			sum += int(s)
		}
		out[i] = int16(sum / (end - start))
	}
	return out
}

func toSamples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/BytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:]))
	}
	return samples
}

func fromSamples(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(s))
	}
	return out
}
