package demux

import (
	"github.com/farcloser/mediacore/errs"
	"github.com/farcloser/mediacore/ioh"
	"github.com/farcloser/mediacore/media"
	"github.com/farcloser/mediacore/pool"
)

// chunkPool is the shared buffer pool (spec §4.2) backing MediaChunk
// payloads allocated by the RIFF/AIFF demuxers. An unbounded budget (0)
// is appropriate here: callers that need a pressure-managed budget call
// chunkPool.SetPressure from their own monitoring loop.
var chunkPool = pool.New(0)

// ApplyPoolOption applies fn (e.g. the apply closure returned by
// pool.WithStatsDB) to the package's shared chunk buffer pool. Exposed so
// cmd/mediacore-probe's --stats-db flag can wire pressure-history
// persistence without the demux package exporting chunkPool itself.
func ApplyPoolOption(fn func(*pool.Pool)) { fn(chunkPool) }

// SetPoolPressure forwards to the shared chunk buffer pool's SetPressure,
// for callers (e.g. a future memory-pressure monitor) driving the pool's
// band transitions.
func SetPoolPressure(pressure int) { chunkPool.SetPressure(pressure) }

func errUnsupportedFormat(f Format) error {
	return errs.New("demux.Open", errs.Unsupported, "no demuxer registered for format "+f.String())
}

// asReader adapts a ByteSource to an io.Reader for use with io.ReadFull and
// other stdlib helpers that only need sequential reads.
func asReader(src ioh.ByteSource) ioReaderAdapter { return ioReaderAdapter{src} }

type ioReaderAdapter struct{ src ioh.ByteSource }

func (a ioReaderAdapter) Read(p []byte) (int, error) { return a.src.Read(p) }

// Demuxer is the common interface every container-specific demuxer
// satisfies. It also satisfies stream.ChunkSource, so a Demuxer can be
// handed directly to a stream.Manager.
type Demuxer interface {
	// StreamInfo describes the single audio stream this demuxer exposes.
	// mediacore's pipeline decodes at most one audio stream per container.
	StreamInfo() media.StreamInfo

	// ReadChunk returns the next encoded MediaChunk in ascending timestamp
	// order, or an empty chunk (MediaChunk.EOF() == true) at end of stream.
	ReadChunk() (media.MediaChunk, error)

	// SeekMs seeks to the nearest position at or before timestampMs and
	// returns an error if the seek could not be performed (e.g. the
	// underlying ByteSource is not seekable).
	SeekMs(timestampMs uint64) error

	// Close releases the demuxer's ByteSource and any other resources.
	Close() error
}

// Open probes src, constructs the matching Demuxer, and parses its header
// structures (but does not read any audio chunk yet). path is passed
// through to Probe for extension fallback; it may be empty.
func Open(src ioh.ByteSource, path string) (Demuxer, error) {
	format, err := Probe(src, path)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatRIFF:
		return openRIFF(src)
	case FormatAIFF:
		return openAIFF(src)
	case FormatOgg:
		return openOgg(src)
	case FormatFLAC:
		return openFLAC(src)
	case FormatISOBMFF:
		return openISOBMFF(src)
	default:
		return nil, errUnsupportedFormat(format)
	}
}
