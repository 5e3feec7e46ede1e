package audio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// FrameHandler receives one fixed-size mono PCM16 frame per call.
type FrameHandler func(frame []int16)

var ErrNotAcquired = errors.New("capture device not acquired")

type RecorderConfig struct {
	Source     Source
	SampleRate int           // defaults to DefaultSampleRate
	FrameSize  int           // samples per frame, defaults to 100 ms worth
	Logger     *slog.Logger
}

// Recorder owns the microphone input device. Begin acquires the device,
// Record starts frame delivery, Pause stops delivery without releasing the
// device and End releases it. The current frame handler is an explicit
// field, replaced atomically under the recorder lock, so exactly one
// handler is ever active.
type Recorder struct {
	mu         sync.Mutex
	src        Source
	sampleRate int
	frameSize  int
	logger     *slog.Logger

	onFrame   FrameHandler
	open      bool
	recording bool
	gen       int
	last      []int16
}

func NewRecorder(cfg RecorderConfig) *Recorder {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.FrameSize == 0 {
		cfg.FrameSize = frameSamples(cfg.SampleRate, DefaultFrameDuration)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Recorder{
		src:        cfg.Source,
		sampleRate: cfg.SampleRate,
		frameSize:  cfg.FrameSize,
		logger:     cfg.Logger,
	}
}

// Begin acquires the capture device. Safe to call when already acquired.
func (r *Recorder) Begin() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.open {
		return nil
	}
	if err := r.src.Open(r.sampleRate); err != nil {
		return fmt.Errorf("acquire capture device: %w", err)
	}
	r.open = true
	return nil
}

// Record starts continuous capture, delivering frames to onFrame. Calling
// Record while already recording swaps the frame handler in place.
func (r *Recorder) Record(onFrame FrameHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open {
		return ErrNotAcquired
	}
	r.onFrame = onFrame
	if r.recording {
		return nil
	}
	r.recording = true
	r.gen++
	go r.loop(r.gen)
	return nil
}

// Pause stops frame delivery without releasing the device. No frame is
// delivered after Pause returns.
func (r *Recorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recording = false
	r.onFrame = nil
	return nil
}

// End releases the device entirely.
func (r *Recorder) End() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recording = false
	r.onFrame = nil
	if !r.open {
		return nil
	}
	r.open = false
	return r.src.Close()
}

func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// GetFrequencies returns a spectral snapshot of the most recent frame, or a
// zeroed result when not actively capturing.
func (r *Recorder) GetFrequencies(band Band) Frequencies {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording || len(r.last) == 0 {
		return zeroFrequencies()
	}
	return analyze(r.last, r.sampleRate, band)
}

// loop reads from the device and emits fixed frames. Handlers run under the
// recorder lock, which is what makes Pause a hard cutoff.
func (r *Recorder) loop(gen int) {
	scratch := make([]int16, r.frameSize)
	chunker := newFrameChunker(r.frameSize)

	for {
		n, err := r.src.Read(scratch)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.logger.Error("capture read failed", slog.Any("err", err))
			}
			r.mu.Lock()
			if r.gen == gen {
				r.recording = false
			}
			r.mu.Unlock()
			return
		}

		r.mu.Lock()
		if r.gen != gen || !r.recording {
			r.mu.Unlock()
			return
		}
		chunker.push(scratch[:n])
		for {
			frame := chunker.pop()
			if frame == nil {
				break
			}
			r.last = frame
			if r.onFrame != nil {
				r.onFrame(frame)
			}
		}
		r.mu.Unlock()
	}
}
