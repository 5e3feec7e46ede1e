package audio

import "math"

// Band selects the frequency range of a spectral snapshot.
type Band string

const (
	BandVoice Band = "voice"
	BandMusic Band = "music"
)

// Frequencies is a normalized spectral snapshot for visualization only.
type Frequencies struct {
	Values []float32
}

func zeroFrequencies() Frequencies {
	return Frequencies{Values: []float32{0}}
}

const analysisBins = 32

// analyze computes per-bin magnitudes over the most recent samples using
// Goertzel filters, normalized to 0..1.
func analyze(samples []int16, sampleRate int, band Band) Frequencies {
	if len(samples) == 0 {
		return zeroFrequencies()
	}
	if len(samples) > 1024 {
		samples = samples[len(samples)-1024:]
	}

	lo, hi := 85.0, 3400.0
	if band == BandMusic {
		lo, hi = 20.0, 10_000.0
	}
	if nyquist := float64(sampleRate) / 2; hi > nyquist {
		hi = nyquist
	}

	values := make([]float32, analysisBins)
	n := float64(len(samples))
	var peak float32
	for bin := 0; bin < analysisBins; bin++ {
		freq := lo + (hi-lo)*float64(bin)/float64(analysisBins-1)
		coeff := 2 * math.Cos(2*math.Pi*freq/float64(sampleRate))
		var s0, s1, s2 float64
		for _, v := range samples {
			s0 = float64(v)/32768.0 + coeff*s1 - s2
			s2 = s1
			s1 = s0
		}
		power := s1*s1 + s2*s2 - coeff*s1*s2
		if power < 0 {
			power = 0
		}
		mag := float32(math.Sqrt(power) / n)
		values[bin] = mag
		if mag > peak {
			peak = mag
		}
	}
	if peak > 0 {
		for i := range values {
			values[i] /= peak
		}
	}
	return Frequencies{Values: values}
}
