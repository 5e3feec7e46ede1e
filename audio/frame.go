package audio

// frameChunker regroups arbitrarily sized sample reads into fixed frames.
// The frame boundary is configuration, not negotiation: whatever the device
// hands us, downstream only ever sees frames of exactly size samples.
type frameChunker struct {
	buf  []int16
	size int
}

func newFrameChunker(size int) *frameChunker {
	return &frameChunker{
		size: size,
		buf:  make([]int16, 0, size*2),
	}
}

func (c *frameChunker) push(samples []int16) {
	c.buf = append(c.buf, samples...)
}

// pop returns the next full frame, or nil when less than one frame is
// buffered. The returned slice is owned by the caller.
func (c *frameChunker) pop() []int16 {
	if len(c.buf) < c.size {
		return nil
	}
	frame := make([]int16, c.size)
	copy(frame, c.buf[:c.size])
	c.buf = c.buf[:copy(c.buf, c.buf[c.size:])]
	return frame
}
