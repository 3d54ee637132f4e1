package audio

import "math"

// ToMono 将交错的多声道采样按帧取平均，得到单声道。
func ToMono(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += interleaved[i*channels+ch]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Resample 线性插值重采样，输入相同则输出相同。
func Resample(in []float32, inRate, outRate int) []float32 {
	if inRate == outRate || len(in) == 0 || inRate <= 0 || outRate <= 0 {
		return append([]float32(nil), in...)
	}

	ratio := float64(outRate) / float64(inRate)
	outLen := int(math.Round(float64(len(in)) * ratio))
	if outLen < 1 {
		outLen = 1
	}

	out := make([]float32, outLen)
	for i := 0; i < outLen; i++ {
		srcPos := float64(i) / ratio
		i0 := int(math.Floor(srcPos))
		if i0 >= len(in) {
			i0 = len(in) - 1
		}
		i1 := i0 + 1
		if i1 >= len(in) {
			i1 = len(in) - 1
		}
		f := float32(srcPos - float64(i0))
		out[i] = in[i0]*(1-f) + in[i1]*f
	}
	return out
}

// ToPCM16 将 [-1,1] 浮点采样转为 16 位整型，越界截断。
func ToPCM16(samples []float32) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * math.MaxInt16)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		}
		if v < math.MinInt16 {
			v = math.MinInt16
		}
		out[i] = int(v)
	}
	return out
}

// IsSilent 判断所有采样的绝对值是否都不超过阈值。
func IsSilent(samples []float32, threshold float32) bool {
	for _, s := range samples {
		if s > threshold || s < -threshold {
			return false
		}
	}
	return true
}
