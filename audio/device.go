package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/MarkKremer/microphone/v2"
	beep "github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/smallnest/ringbuffer"
)

const (
	bytesPerSample = 2 // 16-bit mono PCM
	speakerLatency = 200 * time.Millisecond
	speakerBacklog = time.Second
)

// MicSource captures from the default system microphone. When
// DeviceSampleRate differs from the session rate, captured audio is
// resampled on the way in.
type MicSource struct {
	DeviceSampleRate int

	mu          sync.Mutex
	stream      *microphone.Streamer
	frames      [][2]float64
	sessionRate int
}

func (m *MicSource) Open(sampleRate int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream != nil {
		return nil
	}
	if m.DeviceSampleRate == 0 {
		m.DeviceSampleRate = sampleRate
	}
	if err := microphone.Init(); err != nil {
		return fmt.Errorf("init capture backend: %w", err)
	}
	stream, _, err := microphone.OpenDefaultStream(beep.SampleRate(m.DeviceSampleRate), 1)
	if err != nil {
		microphone.Terminate()
		return fmt.Errorf("open microphone: %w", err)
	}
	stream.Start()
	m.stream = stream
	m.sessionRate = sampleRate
	return nil
}

func (m *MicSource) Read(buf []int16) (int, error) {
	m.mu.Lock()
	stream := m.stream
	deviceRate, sessionRate := m.DeviceSampleRate, m.sessionRate
	m.mu.Unlock()
	if stream == nil {
		return 0, io.EOF
	}

	want := len(buf) * deviceRate / sessionRate
	if want == 0 {
		want = len(buf)
	}
	if cap(m.frames) < want {
		m.frames = make([][2]float64, want)
	}
	n, ok := stream.Stream(m.frames[:want])
	if !ok {
		return 0, io.EOF
	}

	raw := make([]int16, n)
	for i := 0; i < n; i++ {
		raw[i] = int16(clamp(m.frames[i][0]) * 32767)
	}
	out := Resample(raw, deviceRate, sessionRate)
	return copy(buf, out), nil
}

func (m *MicSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream == nil {
		return nil
	}
	err := m.stream.Close()
	m.stream = nil
	microphone.Terminate()
	return err
}

// SpeakerSink renders to the default system speaker. A blocking ring buffer
// sits between Write and the speaker mixer; the mixer streams silence while
// the ring is empty, which keeps playback glitch-free between responses.
type SpeakerSink struct {
	DeviceSampleRate int

	mu          sync.Mutex
	ring        *ringbuffer.RingBuffer
	sessionRate int
}

func (s *SpeakerSink) Open(sampleRate int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ring != nil {
		return nil
	}
	if s.DeviceSampleRate == 0 {
		s.DeviceSampleRate = sampleRate
	}
	sr := beep.SampleRate(s.DeviceSampleRate)
	if err := speaker.Init(sr, sr.N(speakerLatency)); err != nil {
		return fmt.Errorf("open speaker: %w", err)
	}
	size := frameSamples(s.DeviceSampleRate, speakerBacklog) * bytesPerSample
	s.ring = ringbuffer.New(size).SetBlocking(true)
	s.sessionRate = sampleRate
	speaker.Play(&ringStreamer{ring: s.ring})
	return nil
}

func (s *SpeakerSink) Write(samples []int16) (int, error) {
	s.mu.Lock()
	ring := s.ring
	deviceRate, sessionRate := s.DeviceSampleRate, s.sessionRate
	s.mu.Unlock()
	if ring == nil {
		return 0, io.ErrClosedPipe
	}

	out := Resample(samples, sessionRate, deviceRate)
	b := make([]byte, len(out)*bytesPerSample)
	for i, v := range out {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(v))
	}
	if _, err := ring.Write(b); err != nil {
		return 0, err
	}
	return len(samples), nil
}

func (s *SpeakerSink) Clear() {
	s.mu.Lock()
	ring := s.ring
	s.mu.Unlock()
	if ring != nil {
		ring.Reset()
	}
}

func (s *SpeakerSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ring == nil {
		return nil
	}
	s.ring.CloseWriter()
	s.ring = nil
	speaker.Clear()
	return nil
}

// ringStreamer feeds the speaker mixer from the ring buffer, playing silence
// while no data is queued.
type ringStreamer struct {
	ring *ringbuffer.RingBuffer
	buf  []byte
}

func (r *ringStreamer) Stream(samples [][2]float64) (int, bool) {
	if cap(r.buf) < len(samples)*bytesPerSample {
		r.buf = make([]byte, len(samples)*bytesPerSample)
	}
	n, _ := r.ring.TryRead(r.buf[:len(samples)*bytesPerSample])
	n -= n % bytesPerSample
	for i := range samples {
		if i < n/bytesPerSample {
			v := float64(int16(binary.LittleEndian.Uint16(r.buf[i*2:]))) / 32768.0
			samples[i] = [2]float64{v, v}
		} else {
			samples[i] = [2]float64{}
		}
	}
	return len(samples), true
}

func (r *ringStreamer) Err() error { return nil }
