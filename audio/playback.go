package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Interruption describes how much of the interrupted track was actually
// rendered when playback was halted.
type Interruption struct {
	TrackID     string
	Offset      int     // rendered samples of the interrupted track
	CurrentTime float64 // same offset, in seconds
}

type PlayerConfig struct {
	Sink       Sink
	SampleRate int // defaults to DefaultSampleRate
	ChunkSize  int // samples handed to the sink per write
	Logger     *slog.Logger
}

type track struct {
	id       string
	samples  []int16
	handed   int // samples handed to the sink
	rendered int // samples acknowledged by the sink
	skipped  bool
}

func (t *track) exhausted() bool {
	return t.skipped || t.handed >= len(t.samples)
}

// Player owns the speaker output device. Buffers enqueued under the same
// track id are concatenated in call order; distinct tracks play in arrival
// order. Interrupt is a hard stop, not a drain.
type Player struct {
	mu   sync.Mutex
	cond *sync.Cond

	sink       Sink
	sampleRate int
	chunk      int
	logger     *slog.Logger

	tracks  []*track
	head    int
	open    bool
	playing bool
	paused  bool
	gen     int
	last    []int16
}

func NewPlayer(cfg PlayerConfig) *Player {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = frameSamples(cfg.SampleRate, DefaultFrameDuration) / 2
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	p := &Player{
		sink:       cfg.Sink,
		sampleRate: cfg.SampleRate,
		chunk:      cfg.ChunkSize,
		logger:     cfg.Logger,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Connect acquires the output device and starts rendering.
func (p *Player) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open {
		return nil
	}
	if err := p.sink.Open(p.sampleRate); err != nil {
		return fmt.Errorf("acquire playback device: %w", err)
	}
	p.open = true
	p.gen++
	go p.loop(p.gen)
	return nil
}

// Disconnect hard-stops playback and releases the device.
func (p *Player) Disconnect() error {
	p.Interrupt()
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return nil
	}
	p.open = false
	p.cond.Broadcast()
	return p.sink.Close()
}

// Enqueue appends samples to the continuous playback buffer for trackID.
func (p *Player) Enqueue(samples []int16, trackID string) {
	if len(samples) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.tracks) - 1; i >= p.head; i-- {
		if t := p.tracks[i]; t.id == trackID && !t.skipped {
			t.samples = append(t.samples, samples...)
			p.paused = false
			p.cond.Broadcast()
			return
		}
	}
	p.tracks = append(p.tracks, &track{
		id:      trackID,
		samples: append([]int16(nil), samples...),
	})
	p.paused = false
	p.cond.Broadcast()
}

// Interrupt immediately halts playback and reports the rendered portion of
// the currently-playing track. Buffers queued for other tracks are left
// untouched; rendering resumes on the next Enqueue.
func (p *Player) Interrupt() Interruption {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.paused = true
	p.playing = false
	if p.sink != nil && p.open {
		p.sink.Clear()
	}
	p.cond.Broadcast()

	cur := p.currentLocked()
	if cur == nil {
		return Interruption{}
	}
	cur.skipped = true
	for p.head < len(p.tracks) && p.tracks[p.head].exhausted() {
		p.head++
	}
	return Interruption{
		TrackID:     cur.id,
		Offset:      cur.rendered,
		CurrentTime: float64(cur.rendered) / float64(p.sampleRate),
	}
}

func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// GetFrequencies returns a spectral snapshot of the most recently rendered
// chunk, or a zeroed result when idle.
func (p *Player) GetFrequencies(band Band) Frequencies {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing || len(p.last) == 0 {
		return zeroFrequencies()
	}
	return analyze(p.last, p.sampleRate, band)
}

// currentLocked is the track playback currently points at, nil when there is
// no unfinished track.
func (p *Player) currentLocked() *track {
	for i := p.head; i < len(p.tracks); i++ {
		if !p.tracks[i].exhausted() || p.tracks[i].rendered < p.tracks[i].handed {
			return p.tracks[i]
		}
	}
	return nil
}

func (p *Player) loop(gen int) {
	for {
		p.mu.Lock()
		for p.gen == gen && p.open && (p.paused || p.nextLocked() == nil) {
			p.playing = false
			p.cond.Wait()
		}
		if p.gen != gen || !p.open {
			p.mu.Unlock()
			return
		}
		t := p.nextLocked()
		end := t.handed + p.chunk
		if end > len(t.samples) {
			end = len(t.samples)
		}
		chunk := make([]int16, end-t.handed)
		copy(chunk, t.samples[t.handed:end])
		t.handed = end
		p.playing = true
		p.mu.Unlock()

		n, err := p.sink.Write(chunk)
		p.mu.Lock()
		if p.gen == gen {
			t.rendered += n
			if n > 0 {
				p.last = chunk[:n]
			}
			for p.head < len(p.tracks) && p.tracks[p.head].exhausted() &&
				p.tracks[p.head].rendered >= p.tracks[p.head].handed {
				p.head++
			}
		}
		p.mu.Unlock()
		if err != nil {
			p.logger.Error("playback write failed", slog.Any("err", err))
			return
		}
	}
}

// nextLocked is the first track with samples not yet handed to the sink.
func (p *Player) nextLocked() *track {
	for i := p.head; i < len(p.tracks); i++ {
		if !p.tracks[i].exhausted() {
			return p.tracks[i]
		}
	}
	return nil
}
