package conversation

import (
	"fmt"
	"os"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
)

// pcmStreamer adapts raw mono PCM16 samples to a beep streamer.
type pcmStreamer struct {
	data []int16
	pos  int
}

func (s *pcmStreamer) Stream(samples [][2]float64) (n int, ok bool) {
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

func (s *pcmStreamer) Err() error { return nil }

// SynthesizeWAV writes the accumulated samples of a completed item to a
// playable wav file and returns its reference.
func SynthesizeWAV(samples []int16, sampleRate int) (*File, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples")
	}

	f, err := os.CreateTemp("", "voicechat-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create wav file: %w", err)
	}

	format := beep.Format{
		SampleRate:  beep.SampleRate(sampleRate),
		NumChannels: 1,
		Precision:   2,
	}
	if err := wav.Encode(f, &pcmStreamer{data: samples}, format); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("encode wav: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	return &File{Path: f.Name(), Size: info.Size()}, nil
}
