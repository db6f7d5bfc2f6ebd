package demux

import (
	"errors"
	"io"

	flac "github.com/farcloser/mediacore"
	"github.com/farcloser/mediacore/errs"
	"github.com/farcloser/mediacore/frame"
	"github.com/farcloser/mediacore/ioh"
	"github.com/farcloser/mediacore/media"
	"github.com/farcloser/mediacore/mlog"
)

// maxConsecutiveFrameErrors is the number of consecutive recoverable
// frame failures (spec §4.10: "On mismatch, the frame is dropped and
// decoder advances to next sync; a running error counter increments")
// tolerated before ReadChunk gives up and promotes to a fatal BadFormat
// error, per spec §4.10's >16-consecutive-failures threshold.
const maxConsecutiveFrameErrors = 16

// flacDemuxer implements spec §4.9: a thin wrapper around the root Stream
// decoder that re-exposes it as a Demuxer, emitting one MediaChunk per
// frame. The RFC 9639 decode happens here, in Stream.ParseNext; each
// chunk carries that frame's decoded samples (see encodeFlacChunk), which
// the codec layer (codec.flacBridgeDecoder) only converts to int16. The frame
// index is not materialized at open; ReadChunk scans forward lazily, per
// spec §4.9's "demuxer does not materialize all frames at open".
type flacDemuxer struct {
	src    ioh.ByteSource
	stream *flac.Stream
	pos    uint64 // running inter-channel sample position

	// consecutiveErrors counts recoverable frame-CRC failures since the
	// last successfully decoded frame; reset to 0 on success, and reset
	// to fatal (BadFormat) once it exceeds maxConsecutiveFrameErrors.
	consecutiveErrors int
}

// CorruptionCount reports the number of consecutive recoverable frame
// failures since the last successfully decoded frame, for callers that
// want to surface stream health (spec §4.10's queryable corruption
// counter).
func (d *flacDemuxer) CorruptionCount() int { return d.consecutiveErrors }

// byteSourceReadSeeker adapts a ByteSource to io.ReadSeeker for the root
// Stream decoder, which is expressed purely in terms of io.Reader/
// io.ReadSeeker.
type byteSourceReadSeeker struct{ src ioh.ByteSource }

func (a byteSourceReadSeeker) Read(p []byte) (int, error)       { return a.src.Read(p) }
func (a byteSourceReadSeeker) Seek(o int64, w int) (int64, error) { return a.src.Seek(o, w) }

func openFLAC(src ioh.ByteSource) (Demuxer, error) {
	const op = "demux.openFLAC"

	stream, err := flac.NewSeek(byteSourceReadSeeker{src})
	if err != nil {
		return nil, errs.Wrap(op, errs.BadFormat, err)
	}
	return &flacDemuxer{src: src, stream: stream}, nil
}

func (d *flacDemuxer) StreamInfo() media.StreamInfo {
	si := d.stream.Info
	return media.StreamInfo{
		StreamID:        0,
		CodecName:       "flac",
		SampleRate:      si.SampleRate,
		Channels:        si.NChannels,
		BitsPerSample:   si.BitsPerSample,
		DurationSamples: si.NSamples,
		DurationMs:      durationMsFor(si.NSamples, si.SampleRate),
	}
}

func durationMsFor(samples uint64, rate uint32) uint64 {
	if rate == 0 {
		return 0
	}
	return samples * 1000 / uint64(rate)
}

// ReadChunk decodes the next frame and re-encodes its samples as a
// self-contained chunk payload for the codec layer: a minimal fixed
// header (channel count, bit depth, block size) followed by channel-major
// int32 samples, so codec.flacBridgeDecoder never needs back-reference
// into the demuxer's frame.Frame value.
func (d *flacDemuxer) ReadChunk() (media.MediaChunk, error) {
	const op = "demux.flacDemuxer.ReadChunk"

	for {
		f, err := d.stream.ParseNext()
		if err == nil {
			d.consecutiveErrors = 0
			data := encodeFlacChunk(f)
			chunk := media.MediaChunk{
				StreamID:         0,
				Data:             data,
				TimestampSamples: d.pos,
				Keyframe:         true,
			}
			d.pos += uint64(f.BlockSize)
			return chunk, nil
		}

		if errors.Is(err, io.EOF) {
			return media.MediaChunk{}, nil
		}

		var crcErr *frame.CRCError
		if !errors.As(err, &crcErr) {
			return media.MediaChunk{}, errs.Wrap(op, errs.BadFormat, err)
		}

		d.consecutiveErrors++
		if d.consecutiveErrors > maxConsecutiveFrameErrors {
			return media.MediaChunk{}, errs.Wrap(op, errs.BadFormat, err)
		}

		mlog.Default.Warn(mlog.ChannelDemuxer, "flac frame CRC mismatch, resyncing to next frame",
			"error", err.Error(), "consecutive_errors", d.consecutiveErrors)

		if syncErr := d.stream.SyncToNextFrame(); syncErr != nil {
			if errors.Is(syncErr, io.EOF) {
				return media.MediaChunk{}, nil
			}
			return media.MediaChunk{}, errs.Wrap(op, errs.Io, syncErr)
		}
	}
}

func (d *flacDemuxer) SeekMs(timestampMs uint64) error {
	const op = "demux.flacDemuxer.SeekMs"
	sampleNum := timestampMs * uint64(d.stream.Info.SampleRate) / 1000
	pos, err := d.stream.Seek(sampleNum)
	if err != nil {
		return errs.Wrap(op, errs.Io, err)
	}
	d.pos = pos
	return nil
}

func (d *flacDemuxer) Close() error { return d.src.Close() }
