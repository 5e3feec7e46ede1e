package audio

import (
	"github.com/faiface/beep"
)

type sampleStreamer struct {
	data []int16
	pos  int
}

func (s *sampleStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		if s.pos >= len(s.data) {
			return i, i > 0
		}
		v := float64(s.data[s.pos]) / 32768.0
		samples[i][0] = v
		samples[i][1] = v
		s.pos++
	}
	return len(samples), true
}

func (s *sampleStreamer) Err() error { return nil }

// Resample converts mono PCM16 samples between sample rates.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}

	r := beep.Resample(3, beep.SampleRate(fromRate), beep.SampleRate(toRate), &sampleStreamer{data: samples})

	out := make([]int16, 0, len(samples)*toRate/fromRate+1)
	buf := make([][2]float64, 512)
	for {
		n, ok := r.Stream(buf)
		for i := 0; i < n; i++ {
			out = append(out, int16(clamp((buf[i][0]+buf[i][1])/2)*32767))
		}
		if !ok {
			break
		}
	}
	return out
}

func clamp(f float64) float64 {
	switch {
	case f > 1:
		return 1
	case f < -1:
		return -1
	default:
		return f
	}
}
