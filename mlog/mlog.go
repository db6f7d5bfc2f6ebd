// Package mlog provides the leveled, channel-scoped logger used throughout
// the media pipeline (spec §6 Logging). It wraps log/slog the way
// go-musicfox/utils/slogx wraps it for the player: a single underlying
// *slog.Logger, with per-channel enablement so noisy subsystems (io, http)
// can be silenced independently of flac_codec or streaming diagnostics.
package mlog

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Channel names a logging subsystem. Channels outside this core (e.g.
// "widget") are never emitted from this module.
type Channel string

const (
	ChannelIO        Channel = "io"
	ChannelHTTP      Channel = "http"
	ChannelDemuxer   Channel = "demuxer"
	ChannelFlacCodec Channel = "flac_codec"
	ChannelStreaming Channel = "streaming"
	ChannelMemory    Channel = "memory"
)

// Entry is one leveled log record: (timestamp, channel, message).
type Entry struct {
	Time    time.Time
	Channel Channel
	Level   slog.Level
	Message string
}

// Logger is a leveled channel logger. The zero value is not usable; use New.
type Logger struct {
	mu       sync.RWMutex
	enabled  map[Channel]bool
	slog     *slog.Logger
	onRecord func(Entry)
}

// New builds a Logger writing to w (os.Stderr if nil) with the given
// channels enabled. If no channels are given, all channels are enabled.
func New(w *os.File, channels ...Channel) *Logger {
	if w == nil {
		w = os.Stderr
	}
	l := &Logger{
		enabled: make(map[Channel]bool),
		slog:    slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}
	if len(channels) == 0 {
		channels = []Channel{ChannelIO, ChannelHTTP, ChannelDemuxer, ChannelFlacCodec, ChannelStreaming, ChannelMemory}
	}
	for _, c := range channels {
		l.enabled[c] = true
	}
	return l
}

// SetEnabled toggles emission for a channel at runtime.
func (l *Logger) SetEnabled(ch Channel, on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled[ch] = on
}

// OnRecord installs a hook invoked for every emitted Entry, in addition to
// the slog write. Tests use this to assert on log shape without parsing
// the text handler's output.
func (l *Logger) OnRecord(fn func(Entry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onRecord = fn
}

func (l *Logger) enabledFor(ch Channel) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.enabled[ch]
}

func (l *Logger) emit(level slog.Level, ch Channel, msg string, args ...any) {
	if !l.enabledFor(ch) {
		return
	}
	l.slog.Log(context.Background(), level, msg, append([]any{"channel", string(ch)}, args...)...)
	l.mu.RLock()
	hook := l.onRecord
	l.mu.RUnlock()
	if hook != nil {
		hook(Entry{Time: time.Now(), Channel: ch, Level: level, Message: msg})
	}
}

func (l *Logger) Debug(ch Channel, msg string, args ...any) { l.emit(slog.LevelDebug, ch, msg, args...) }
func (l *Logger) Info(ch Channel, msg string, args ...any)  { l.emit(slog.LevelInfo, ch, msg, args...) }
func (l *Logger) Warn(ch Channel, msg string, args ...any)  { l.emit(slog.LevelWarn, ch, msg, args...) }
func (l *Logger) Error(ch Channel, msg string, args ...any) { l.emit(slog.LevelError, ch, msg, args...) }

// Err formats an error the way go-musicfox/utils/slogx.Error does, for
// inclusion as a log attribute: mlog.Err(err).
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}

// Default is a process-wide logger with all channels enabled, analogous to
// slog's package-level default but scoped to this module so callers are
// never forced to thread a *Logger through every constructor.
var Default = New(os.Stderr)
