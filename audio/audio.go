package audio

import "time"

const (
	// DefaultSampleRate is the fixed session sample rate. The protocol
	// streams PCM16 at 24 kHz in both directions; device adapters resample
	// when the hardware runs at a different rate.
	DefaultSampleRate = 24_000

	// DefaultFrameDuration is how much audio one capture frame carries.
	DefaultFrameDuration = 100 * time.Millisecond
)

// Source is a raw capture device delivering mono PCM16 samples.
type Source interface {
	Open(sampleRate int) error
	Read(buf []int16) (int, error)
	Close() error
}

// Sink renders mono PCM16 samples on an output device. Write may block while
// the device buffer is full; Clear drops whatever is queued and unblocks a
// pending Write.
type Sink interface {
	Open(sampleRate int) error
	Write(samples []int16) (int, error)
	Clear()
	Close() error
}

// frameSamples converts a duration to a sample count at the given rate.
func frameSamples(sampleRate int, d time.Duration) int {
	return int(float64(sampleRate) * d.Seconds())
}
