// Package media defines the data types shared across the demuxer, streaming
// manager, and codec layers (spec §3 DATA MODEL): StreamInfo, MediaChunk,
// and AudioFrame. Kept as its own package (rather than folded into demux or
// codec) since all three of demux, stream, and codec need to refer to these
// types without importing one another.
package media

// StreamInfo describes one logical stream extracted by a demuxer.
type StreamInfo struct {
	// StreamID is unique within the container.
	StreamID uint32
	// CodecName is a short tag: "pcm", "flac", "mp3", "aac", "vorbis",
	// "opus", "alaw", "mulaw", etc.
	CodecName string
	// SampleRate in Hz, 1..655350.
	SampleRate uint32
	// Channels, 1..8.
	Channels uint8
	// BitsPerSample, 4..32.
	BitsPerSample uint8
	// DurationSamples and DurationMs: either may be 0 to mean unknown.
	// Invariant: if SampleRate and DurationSamples are both nonzero,
	// DurationMs == DurationSamples*1000/SampleRate.
	DurationSamples uint64
	DurationMs      uint64
	// BitrateBps is 0 when unknown.
	BitrateBps uint32
	// CodecSetup carries codec-specific out-of-band setup data (e.g. FLAC
	// STREAMINFO bytes, Vorbis/Opus header packets, esds config).
	CodecSetup []byte
}

// MediaChunk is the encoded payload for one stream at one timestamp. An
// empty chunk (len(Data) == 0) signals EOF for the requested stream.
type MediaChunk struct {
	StreamID uint32
	Data     []byte
	// TimestampSamples is the chunk's position in the stream's own sample
	// clock (the "granule" in Ogg terms).
	TimestampSamples uint64
	// FileOffset is the chunk's byte offset in the source container, kept
	// for debugging/diagnostics only.
	FileOffset int64
	// Keyframe is always true for audio in this pipeline: every audio frame
	// is independently decodable.
	Keyframe bool

	// release, when non-nil, returns the pool.Buffer that owns Data to its
	// pool; Release calls it once. Chunks not backed by the pool (e.g. built
	// in tests) leave this nil and Release is a no-op.
	release func()
}

// SetRelease attaches a release callback invoked by Release. Used by
// demuxers that obtain Data from a pool.Buffer.
func (c *MediaChunk) SetRelease(fn func()) { c.release = fn }

// Release returns the chunk's backing buffer to its pool, if any. Safe to
// call on a zero-value or already-released chunk.
func (c *MediaChunk) Release() {
	if c.release != nil {
		c.release()
		c.release = nil
	}
}

// EOF reports whether this chunk signals end of stream.
func (c *MediaChunk) EOF() bool { return len(c.Data) == 0 }

// AudioFrame is decoded PCM output: interleaved int16 samples.
type AudioFrame struct {
	Samples    []int16
	SampleRate uint32
	Channels   uint8
	// TimestampSamples is this frame's first sample's position in the
	// stream's sample clock.
	TimestampSamples uint64
}

// NumSamples returns the inter-channel sample count represented by Samples,
// satisfying the invariant len(Samples) == NumSamples()*Channels.
func (f *AudioFrame) NumSamples() int {
	if f.Channels == 0 {
		return 0
	}
	return len(f.Samples) / int(f.Channels)
}
