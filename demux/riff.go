package demux

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/farcloser/mediacore/errs"
	"github.com/farcloser/mediacore/ioh"
	"github.com/farcloser/mediacore/media"
)

// riffDemuxer implements spec §4.8's RIFF/WAV container: "RIFF" + LE size +
// "WAVE" + chunks. Grounded on the teacher's own chunk-walk shape in
// meta.Block.Parse (read a typed header, dispatch on its type, skip what
// isn't understood) generalized from FLAC metadata blocks to RIFF chunks.
type riffDemuxer struct {
	src ioh.ByteSource

	formatTag     uint16
	channels      uint16
	sampleRate    uint32
	bitsPerSample uint16
	blockAlign    uint16

	dataStart int64
	dataSize  int64
	pos       int64 // byte offset within the data chunk
}

const riffChunkHeaderSize = 8

func openRIFF(src ioh.ByteSource) (Demuxer, error) {
	const op = "demux.openRIFF"

	if _, err := src.Seek(12, ioh.SeekStart); err != nil {
		return nil, errs.Wrap(op, errs.Io, err)
	}

	d := &riffDemuxer{src: src}

	for {
		var hdr [8]byte
		if _, err := io.ReadFull(asReader(src), hdr[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, errs.WrapIo(op, errs.IoOther, err)
		}
		id := string(hdr[:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))
		chunkStart, _ := src.Seek(0, ioh.SeekCurrent)

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(asReader(src), body); err != nil {
				return nil, errs.WrapIo(op, errs.IoOther, err)
			}
			if len(body) < 16 {
				return nil, errs.New(op, errs.BadFormat, "fmt chunk too short")
			}
			d.formatTag = binary.LittleEndian.Uint16(body[0:2])
			d.channels = binary.LittleEndian.Uint16(body[2:4])
			d.sampleRate = binary.LittleEndian.Uint32(body[4:8])
			d.blockAlign = binary.LittleEndian.Uint16(body[12:14])
			d.bitsPerSample = binary.LittleEndian.Uint16(body[14:16])
		case "data":
			d.dataStart = chunkStart
			d.dataSize = size
			// Audio data found; remaining chunks (if any) are ignored, as
			// the canonical "data is last" layout is overwhelmingly common
			// and sample-accurate seeking only needs dataStart/dataSize.
			goto done
		}

		next := chunkStart + size + size%2
		if _, err := src.Seek(next, ioh.SeekStart); err != nil {
			return nil, errs.Wrap(op, errs.Io, err)
		}
	}

done:
	if d.dataStart == 0 {
		return nil, errs.New(op, errs.BadFormat, "no data chunk found")
	}
	if _, err := src.Seek(d.dataStart, ioh.SeekStart); err != nil {
		return nil, errs.Wrap(op, errs.Io, err)
	}
	return d, nil
}

// codecNameForFormatTag maps a WAVEFORMATEX format tag to mediacore's
// short codec name tag (spec §4.8, §3).
func codecNameForFormatTag(tag uint16) string {
	switch tag {
	case 1:
		return "pcm"
	case 3:
		return "float"
	case 6:
		return "alaw"
	case 7:
		return "mulaw"
	case 85:
		return "mp3"
	case 65534:
		return "pcm" // WAVE_FORMAT_EXTENSIBLE; subformat not disambiguated here.
	default:
		return "pcm"
	}
}

func (d *riffDemuxer) StreamInfo() media.StreamInfo {
	bytesPerSample := int64(d.bitsPerSample) / 8
	var durationSamples uint64
	if d.channels > 0 && bytesPerSample > 0 {
		durationSamples = uint64(d.dataSize / (int64(d.channels) * bytesPerSample))
	}
	var durationMs uint64
	if d.sampleRate > 0 {
		durationMs = durationSamples * 1000 / uint64(d.sampleRate)
	}
	return media.StreamInfo{
		StreamID:        0,
		CodecName:       codecNameForFormatTag(d.formatTag),
		SampleRate:      d.sampleRate,
		Channels:        uint8(d.channels),
		BitsPerSample:   uint8(d.bitsPerSample),
		DurationSamples: durationSamples,
		DurationMs:      durationMs,
	}
}

// chunkReadSamples is the number of PCM frames read per ReadChunk call.
const chunkReadSamples = 4096

func (d *riffDemuxer) ReadChunk() (media.MediaChunk, error) {
	frameSize := int64(d.channels) * int64(d.bitsPerSample) / 8
	if frameSize == 0 {
		return media.MediaChunk{}, errs.New("demux.riffDemuxer.ReadChunk", errs.BadFormat, "zero frame size")
	}
	want := frameSize * chunkReadSamples
	remaining := d.dataSize - d.pos
	if remaining <= 0 {
		return media.MediaChunk{}, nil
	}
	if want > remaining {
		want = remaining - remaining%frameSize
		if want == 0 {
			want = remaining
		}
	}

	pbuf := chunkPool.Acquire(int(want), "demux.riff")
	buf := pbuf.Data[:want]
	n, err := io.ReadFull(asReader(d.src), buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		chunkPool.Release(pbuf)
		return media.MediaChunk{}, errs.WrapIo("demux.riffDemuxer.ReadChunk", errs.IoOther, err)
	}

	chunk := media.MediaChunk{
		StreamID:         0,
		Data:             buf[:n],
		TimestampSamples: uint64(d.pos / frameSize),
		FileOffset:       d.dataStart + d.pos,
		Keyframe:         true,
	}
	chunk.SetRelease(func() { chunkPool.Release(pbuf) })
	d.pos += int64(n)
	return chunk, nil
}

func (d *riffDemuxer) SeekMs(timestampMs uint64) error {
	frameSize := int64(d.channels) * int64(d.bitsPerSample) / 8
	if frameSize == 0 || d.sampleRate == 0 {
		return errs.New("demux.riffDemuxer.SeekMs", errs.Unsupported, "seek requires known format")
	}
	sample := timestampMs * uint64(d.sampleRate) / 1000
	offset := int64(sample) * frameSize
	if offset > d.dataSize {
		offset = d.dataSize
	}
	if _, err := d.src.Seek(d.dataStart+offset, ioh.SeekStart); err != nil {
		return errs.Wrap("demux.riffDemuxer.SeekMs", errs.Io, err)
	}
	d.pos = offset
	return nil
}

func (d *riffDemuxer) Close() error { return d.src.Close() }

// --- AIFF ---

// aiffDemuxer implements spec §4.8's AIFF container: "FORM" + BE size +
// "AIFF" + chunks ("COMM", "SSND"), with the sample rate stored as an
// IEEE-754 80-bit extended float that must be decoded explicitly.
type aiffDemuxer struct {
	channels      uint16
	bitsPerSample uint16
	sampleFrames  uint32
	sampleRate    uint32

	src       ioh.ByteSource
	dataStart int64 // start of SSND's audio bytes (after offset+blocksize prefix)
	dataSize  int64
	pos       int64
}

func openAIFF(src ioh.ByteSource) (Demuxer, error) {
	const op = "demux.openAIFF"

	if _, err := src.Seek(12, ioh.SeekStart); err != nil {
		return nil, errs.Wrap(op, errs.Io, err)
	}

	d := &aiffDemuxer{src: src}

	for {
		var hdr [8]byte
		if _, err := io.ReadFull(asReader(src), hdr[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, errs.WrapIo(op, errs.IoOther, err)
		}
		id := string(hdr[:4])
		size := int64(binary.BigEndian.Uint32(hdr[4:8]))
		chunkStart, _ := src.Seek(0, ioh.SeekCurrent)

		switch id {
		case "COMM":
			body := make([]byte, size)
			if _, err := io.ReadFull(asReader(src), body); err != nil {
				return nil, errs.WrapIo(op, errs.IoOther, err)
			}
			if len(body) < 18 {
				return nil, errs.New(op, errs.BadFormat, "COMM chunk too short")
			}
			d.channels = binary.BigEndian.Uint16(body[0:2])
			d.sampleFrames = binary.BigEndian.Uint32(body[2:6])
			d.bitsPerSample = binary.BigEndian.Uint16(body[6:8])
			d.sampleRate = decodeIEEE80(body[8:18])
		case "SSND":
			var prefix [8]byte
			if _, err := io.ReadFull(asReader(src), prefix[:]); err != nil {
				return nil, errs.WrapIo(op, errs.IoOther, err)
			}
			d.dataStart = chunkStart + 8
			d.dataSize = size - 8
			goto done
		}

		next := chunkStart + size + size%2
		if _, err := src.Seek(next, ioh.SeekStart); err != nil {
			return nil, errs.Wrap(op, errs.Io, err)
		}
	}

done:
	if d.dataStart == 0 {
		return nil, errs.New(op, errs.BadFormat, "no SSND chunk found")
	}
	if _, err := src.Seek(d.dataStart, ioh.SeekStart); err != nil {
		return nil, errs.Wrap(op, errs.Io, err)
	}
	return d, nil
}

// decodeIEEE80 decodes the 80-bit IEEE-754 extended-precision float AIFF
// uses for its sample rate, per spec §4.8. It is the product of a 1-bit
// sign, 15-bit biased exponent (bias 16383), and 64-bit integer mantissa
// with an explicit (non-implicit) leading bit.
func decodeIEEE80(b []byte) uint32 {
	if len(b) < 10 {
		return 0
	}
	sign := b[0] & 0x80
	exp := int(binary.BigEndian.Uint16(b[0:2])&0x7FFF) - 16383
	mantissa := binary.BigEndian.Uint64(b[2:10])
	f := float64(mantissa) * math.Pow(2, float64(exp-63))
	if sign != 0 {
		f = -f
	}
	return uint32(f + 0.5)
}

func (d *aiffDemuxer) StreamInfo() media.StreamInfo {
	var durationMs uint64
	if d.sampleRate > 0 {
		durationMs = uint64(d.sampleFrames) * 1000 / uint64(d.sampleRate)
	}
	return media.StreamInfo{
		StreamID:        0,
		CodecName:       "pcm",
		SampleRate:      d.sampleRate,
		Channels:        uint8(d.channels),
		BitsPerSample:   uint8(d.bitsPerSample),
		DurationSamples: uint64(d.sampleFrames),
		DurationMs:      durationMs,
	}
}

func (d *aiffDemuxer) frameSize() int64 {
	return int64(d.channels) * int64((d.bitsPerSample+7)/8)
}

func (d *aiffDemuxer) ReadChunk() (media.MediaChunk, error) {
	fs := d.frameSize()
	if fs == 0 {
		return media.MediaChunk{}, errs.New("demux.aiffDemuxer.ReadChunk", errs.BadFormat, "zero frame size")
	}
	want := fs * chunkReadSamples
	remaining := d.dataSize - d.pos
	if remaining <= 0 {
		return media.MediaChunk{}, nil
	}
	if want > remaining {
		want = remaining - remaining%fs
		if want == 0 {
			want = remaining
		}
	}
	pbuf := chunkPool.Acquire(int(want), "demux.aiff")
	buf := pbuf.Data[:want]
	n, err := io.ReadFull(asReader(d.src), buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		chunkPool.Release(pbuf)
		return media.MediaChunk{}, errs.WrapIo("demux.aiffDemuxer.ReadChunk", errs.IoOther, err)
	}
	chunk := media.MediaChunk{
		StreamID:         0,
		Data:             buf[:n],
		TimestampSamples: uint64(d.pos / fs),
		FileOffset:       d.dataStart + d.pos,
		Keyframe:         true,
	}
	chunk.SetRelease(func() { chunkPool.Release(pbuf) })
	d.pos += int64(n)
	return chunk, nil
}

func (d *aiffDemuxer) SeekMs(timestampMs uint64) error {
	fs := d.frameSize()
	if fs == 0 || d.sampleRate == 0 {
		return errs.New("demux.aiffDemuxer.SeekMs", errs.Unsupported, "seek requires known format")
	}
	sample := timestampMs * uint64(d.sampleRate) / 1000
	offset := int64(sample) * fs
	if offset > d.dataSize {
		offset = d.dataSize
	}
	if _, err := d.src.Seek(d.dataStart+offset, ioh.SeekStart); err != nil {
		return errs.Wrap("demux.aiffDemuxer.SeekMs", errs.Io, err)
	}
	d.pos = offset
	return nil
}

func (d *aiffDemuxer) Close() error { return d.src.Close() }
