package voicechat

import (
	"log/slog"
	"time"

	"github.com/codewandler/voicechat-go/audio"
)

type clientConfig struct {
	logger         *slog.Logger
	dialTimeout    time.Duration
	sampleRate     int
	sendTruncation bool
}

type Option func(*clientConfig)

func WithLogger(logger *slog.Logger) Option {
	return func(o *clientConfig) {
		o.logger = logger
	}
}

func WithDefaultLogger() Option {
	return WithLogger(slog.Default())
}

// WithDialTimeout bounds both the websocket handshake and the wait for the
// server's session confirmation.
func WithDialTimeout(d time.Duration) Option {
	return func(o *clientConfig) {
		o.dialTimeout = d
	}
}

func WithSampleRate(sr int) Option {
	return func(o *clientConfig) {
		o.sampleRate = sr
	}
}

// WithTruncationFeedback controls whether, after an interruption, the client
// tells the server how much of the assistant turn was actually rendered.
// Disabled by default.
func WithTruncationFeedback(enabled bool) Option {
	return func(o *clientConfig) {
		o.sendTruncation = enabled
	}
}

func WithOptions(opts ...Option) Option {
	return func(o *clientConfig) {
		for _, opt := range opts {
			opt(o)
		}
	}
}

func withDefaults() Option {
	return WithOptions(
		WithLogger(slog.Default()),
		WithDialTimeout(10*time.Second),
		WithSampleRate(audio.DefaultSampleRate),
		WithTruncationFeedback(false),
	)
}
