package demux

import (
	"encoding/binary"
	"io"

	"github.com/farcloser/mediacore/errs"
	"github.com/farcloser/mediacore/internal/hashutil/crc32ogg"
	"github.com/farcloser/mediacore/ioh"
	"github.com/farcloser/mediacore/media"
	"github.com/farcloser/mediacore/mlog"
)

// oggPageHeaderSize is the fixed portion of an Ogg page header before its
// variable-length segment table (RFC 3533 §6): capture pattern (4), version
// (1), header type (1), granule position (8), serial (4), sequence (4),
// checksum (4), segment count (1).
const oggPageHeaderSize = 27

const (
	oggHeaderContinued = 0x01
	oggHeaderBOS       = 0x02
	oggHeaderEOS       = 0x04
)

// granposInvalid is the "no timestamp yet" granule sentinel (-1).
const granposInvalid int64 = -1

// granposAdd implements spec §4.6's op_granpos_add-style arithmetic: fails
// if src is invalid, and fails rather than silently wrap if the result
// would itself be -1.
func granposAdd(src int64, delta int64) (int64, error) {
	if src == granposInvalid {
		return 0, errs.New("demux.granposAdd", errs.BadFormat, "invalid source granule position")
	}
	dst := src + delta
	if dst == granposInvalid {
		return 0, errs.New("demux.granposAdd", errs.BadFormat, "granule arithmetic wrapped to -1")
	}
	return dst, nil
}

// granposDiff implements a - b with the dual-range ordering rule: any
// negative value other than -1 sorts as "greater" than any non-negative
// value (used by some codecs to encode pre-roll/lookahead frames).
func granposDiff(a, b int64) (int64, error) {
	if a == granposInvalid || b == granposInvalid {
		return 0, errs.New("demux.granposDiff", errs.BadFormat, "invalid granule position")
	}
	const minGran, maxGran = -1 << 63, 1<<63 - 1
	if a < 0 && b >= 0 { // a lies past b in the negative range: a - b > 0.
		da, db := (minGran-a)-1, maxGran-b
		if maxGran+da < db {
			return 0, errs.New("demux.granposDiff", errs.BadFormat, "granule difference overflows int64")
		}
		return db - da, nil
	}
	if a >= 0 && b < 0 { // b lies past a in the negative range: a - b < 0.
		da, db := a+minGran, minGran-b
		if da < minGran-db {
			return 0, errs.New("demux.granposDiff", errs.BadFormat, "granule difference overflows int64")
		}
		return da + db, nil
	}
	return a - b, nil
}

// granposCmp compares a and b under the same dual-range ordering rule.
func granposCmp(a, b int64) int {
	an, bn := a < 0 && a != granposInvalid, b < 0 && b != granposInvalid
	switch {
	case an && !bn:
		return 1
	case !an && bn:
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

type oggPage struct {
	headerType byte
	granule    int64
	serial     uint32
	sequence   uint32
	segments   []byte // per-segment lengths
	payload    []byte
	start      int64 // file offset of this page's first byte
	end        int64 // file offset one past this page
}

// oggLogicalStream tracks one serial number's codec identification and
// running granule state.
type oggLogicalStream struct {
	serial     uint32
	codecName  string
	sampleRate uint32
	channels   uint8
	preSkip    uint32
	headerDone bool
	lastGran   int64
}

// oggDemuxer implements spec §4.6. Only the first audio-bearing logical
// stream is exposed as StreamInfo/ReadChunk's target, matching the rest
// of this pipeline's "normal case: one audio stream" assumption (spec
// §4 Concurrency notes).
type oggDemuxer struct {
	src ioh.ByteSource

	streams    map[uint32]*oggLogicalStream
	primary    uint32
	haveReaded bool

	pos      int64 // read cursor for forward scanning
	fileSize int64
}

func openOgg(src ioh.ByteSource) (Demuxer, error) {
	const op = "demux.openOgg"

	d := &oggDemuxer{src: src, streams: make(map[uint32]*oggLogicalStream)}
	if sz, ok := src.Size(); ok {
		d.fileSize = sz
	}

	if _, err := src.Seek(0, ioh.SeekStart); err != nil {
		return nil, errs.Wrap(op, errs.Io, err)
	}

	// Scan forward through BOS pages identifying every logical stream,
	// stopping at the primary stream's first non-BOS page.
	for {
		page, err := readOggPage(src)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.Wrap(op, errs.BadFormat, err)
		}
		d.pos = page.end

		ls, ok := d.streams[page.serial]
		if !ok {
			if page.headerType&oggHeaderBOS == 0 {
				continue // data page for a stream we never saw a BOS for; skip.
			}
			ls = &oggLogicalStream{serial: page.serial, lastGran: granposInvalid}
			d.streams[page.serial] = ls
			identifyOggCodec(ls, page.payload)
			if ls.codecName != "" && d.primary == 0 {
				d.primary = page.serial
			}
			continue
		}

		if !ls.headerDone {
			parseOggHeaderPacket(ls, page.payload)
			ls.headerDone = true
		}

		if page.granule != granposInvalid {
			ls.lastGran = page.granule
		}

		if page.headerType&oggHeaderEOS != 0 {
			// Stream concluded within the header-scan window (tiny file);
			// nothing further to learn about it.
		}

		if d.primary == page.serial {
			break // found the primary stream's first data-bearing page.
		}
	}

	if d.primary == 0 {
		return nil, errs.New(op, errs.Unsupported, "no recognized logical bitstream found")
	}

	if _, err := src.Seek(0, ioh.SeekStart); err != nil {
		return nil, errs.Wrap(op, errs.Io, err)
	}
	d.pos = 0
	return d, nil
}

// identifyOggCodec inspects a BOS page's first packet signature per spec
// §4.6.
func identifyOggCodec(ls *oggLogicalStream, payload []byte) {
	switch {
	case hasPrefix(payload, []byte("\x01vorbis")):
		ls.codecName = "vorbis"
		if len(payload) >= 16 {
			ls.channels = payload[11]
			ls.sampleRate = binary.LittleEndian.Uint32(payload[12:16])
		}
	case hasPrefix(payload, []byte("OpusHead")):
		ls.codecName = "opus"
		if len(payload) >= 12 {
			ls.channels = payload[9]
			ls.preSkip = uint32(binary.LittleEndian.Uint16(payload[10:12]))
		}
		ls.sampleRate = 48000 // Opus always decodes at 48kHz regardless of container rate.
	case hasPrefix(payload, []byte("fLaC")), hasPrefix(payload, []byte("\x7FFLAC")):
		ls.codecName = "flac"
	case hasPrefix(payload, []byte("Speex   ")):
		ls.codecName = "speex"
	}
}

// parseOggHeaderPacket populates metadata from comment-header packets;
// mediacore does not otherwise interpret stream metadata, so this is a
// no-op placeholder recognizing the packet shape per spec §4.6.
func parseOggHeaderPacket(ls *oggLogicalStream, payload []byte) {
	_ = hasPrefix(payload, []byte("\x03vorbis")) || hasPrefix(payload, []byte("OpusTags"))
}

func hasPrefix(b, prefix []byte) bool {
	return len(b) >= len(prefix) && string(b[:len(prefix)]) == string(prefix)
}

func (d *oggDemuxer) StreamInfo() media.StreamInfo {
	ls := d.streams[d.primary]
	return media.StreamInfo{
		StreamID:   d.primary,
		CodecName:  ls.codecName,
		SampleRate: ls.sampleRate,
		Channels:   ls.channels,
	}
}

// ReadChunk scans forward for the next page belonging to the primary
// stream and emits its payload as one chunk. Non-primary pages are
// skipped; a page that fails CRC or structural sanity triggers resync
// (spec §4.6 Recovery) rather than aborting the whole demux.
func (d *oggDemuxer) ReadChunk() (media.MediaChunk, error) {
	const op = "demux.oggDemuxer.ReadChunk"

	if _, err := d.src.Seek(d.pos, ioh.SeekStart); err != nil {
		return media.MediaChunk{}, errs.Wrap(op, errs.Io, err)
	}

	for {
		page, err := readOggPage(d.src)
		if err == io.EOF {
			return media.MediaChunk{}, nil
		}
		if err != nil {
			if errs.Is(err, errs.Corrupted) {
				mlog.Default.Warn(mlog.ChannelDemuxer, "ogg page resync after corruption", "error", err.Error())
				continue // readOggPage already advanced past the bad page to the next sync.
			}
			return media.MediaChunk{}, errs.Wrap(op, errs.BadFormat, err)
		}
		d.pos = page.end

		if page.serial != d.primary {
			continue
		}

		ls := d.streams[d.primary]
		gran := granposTimestamp(ls, page.granule)

		chunk := media.MediaChunk{
			StreamID:         d.primary,
			Data:             page.payload,
			TimestampSamples: gran,
			FileOffset:       page.start,
			Keyframe:         true,
		}
		if page.granule != granposInvalid {
			ls.lastGran = page.granule
		}
		return chunk, nil
	}
}

// granposTimestamp converts a granule position to an inter-channel sample
// timestamp per spec §4.6's codec-aware conversion. Opus subtracts
// pre_skip; other codecs treat granule as a raw sample count.
func granposTimestamp(ls *oggLogicalStream, granule int64) uint64 {
	if granule < 0 {
		return 0
	}
	if ls.codecName == "opus" {
		if uint64(granule) <= uint64(ls.preSkip) {
			return 0
		}
		return uint64(granule) - uint64(ls.preSkip)
	}
	return uint64(granule)
}

const oggBisectChunkSize = 64 << 10

// SeekMs implements spec §4.6's page-bisection seek.
func (d *oggDemuxer) SeekMs(timestampMs uint64) error {
	const op = "demux.oggDemuxer.SeekMs"

	ls := d.streams[d.primary]
	if ls.sampleRate == 0 {
		return errs.New(op, errs.Unsupported, "seek requires known sample rate")
	}
	targetRate := ls.sampleRate
	target := int64(timestampMs) * int64(targetRate) / 1000
	if ls.codecName == "opus" {
		target += int64(ls.preSkip)
	}

	lo, hi := int64(0), d.fileSize
	if hi == 0 {
		return errs.New(op, errs.Unsupported, "seek requires a known-size source")
	}

	var lastGood *oggPage
	for hi-lo >= oggBisectChunkSize {
		mid := (lo + hi) / 2
		page, foundAt, err := scanForPageSync(d.src, mid, hi)
		if err != nil {
			hi = mid // couldn't find a sync forward of mid; narrow the upper half away.
			continue
		}
		if page.serial != d.primary || page.granule == granposInvalid {
			lo = foundAt + 1
			continue
		}
		if page.granule < target {
			lo = page.end
		} else {
			hi = foundAt
		}
		lastGood = page
	}

	// Linear scan from lo for the last page with granule <= target.
	if _, err := d.src.Seek(lo, ioh.SeekStart); err != nil {
		return errs.Wrap(op, errs.Io, err)
	}
	d.pos = lo
	var best *oggPage
	for {
		page, err := readOggPage(d.src)
		if err != nil {
			break
		}
		if page.serial == d.primary && page.granule != granposInvalid && page.granule <= target {
			p := page
			best = &p
			d.pos = page.end
		}
		if page.granule != granposInvalid && page.granule > target {
			break
		}
	}
	if best == nil {
		best = lastGood
	}
	if best != nil {
		d.pos = best.start
		ls.lastGran = best.granule
	}
	return nil
}

func (d *oggDemuxer) Close() error { return d.src.Close() }

// scanForPageSync scans [from, to) for the next "OggS" capture pattern and
// parses that page, returning its byte offset too.
func scanForPageSync(src ioh.ByteSource, from, to int64) (*oggPage, int64, error) {
	if _, err := src.Seek(from, ioh.SeekStart); err != nil {
		return nil, 0, err
	}
	offset := from
	window := make([]byte, 4)
	for offset < to {
		n, err := src.Read(window)
		if n < 4 || err != nil {
			return nil, 0, io.EOF
		}
		if string(window) == "OggS" {
			if _, err := src.Seek(offset, ioh.SeekStart); err != nil {
				return nil, 0, err
			}
			page, err := readOggPage(src)
			if err != nil {
				return nil, 0, err
			}
			return page, offset, nil
		}
		offset++
		if _, err := src.Seek(offset, ioh.SeekStart); err != nil {
			return nil, 0, err
		}
	}
	return nil, 0, io.EOF
}

// readOggPage reads one page starting at the source's current position. A
// page that fails CRC or lacks the "OggS" capture pattern returns a
// Corrupted error after first scanning forward to the next "OggS" sync, so
// the source's position is left ready for the caller to retry (spec §4.6
// Recovery: "skip to next OggS sync"); when no later sync exists the error
// is Truncated instead.
func readOggPage(src ioh.ByteSource) (*oggPage, error) {
	const op = "demux.readOggPage"

	start, err := src.Seek(0, ioh.SeekCurrent)
	if err != nil {
		return nil, err
	}

	var hdr [oggPageHeaderSize]byte
	if _, err := io.ReadFull(asReader(src), hdr[:]); err != nil {
		return nil, err
	}
	if string(hdr[0:4]) != "OggS" {
		return nil, resyncOgg(src, op)
	}

	segCount := int(hdr[26])
	segTable := make([]byte, segCount)
	if _, err := io.ReadFull(asReader(src), segTable); err != nil {
		return nil, err
	}
	payloadLen := 0
	for _, s := range segTable {
		payloadLen += int(s)
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(asReader(src), payload); err != nil {
		return nil, err
	}
	end, err := src.Seek(0, ioh.SeekCurrent)
	if err != nil {
		return nil, err
	}

	full := make([]byte, 0, oggPageHeaderSize+segCount+payloadLen)
	full = append(full, hdr[:]...)
	full = append(full, segTable...)
	full = append(full, payload...)
	wantCRC := binary.LittleEndian.Uint32(hdr[22:26])
	if got := crc32ogg.PageChecksum(full); got != wantCRC {
		return nil, resyncOgg(src, op)
	}

	page := &oggPage{
		headerType: hdr[5],
		granule:    int64(binary.LittleEndian.Uint64(hdr[6:14])),
		serial:     binary.LittleEndian.Uint32(hdr[14:18]),
		sequence:   binary.LittleEndian.Uint32(hdr[18:22]),
		segments:   segTable,
		payload:    payload,
		start:      start,
		end:        end,
	}
	return page, nil
}

// resyncOgg scans forward byte-by-byte for the next "OggS" and repositions
// the source there, returning a Corrupted error the caller should treat as
// "retry from here", isolating the damage to one page per spec §4.6.
func resyncOgg(src ioh.ByteSource, op string) error {
	var window [4]byte
	filled := 0
	var b [1]byte
	for {
		n, err := src.Read(b[:])
		if n == 0 || err != nil {
			return errs.New(op, errs.Truncated, "no further OggS sync found")
		}
		window[0], window[1], window[2], window[3] = window[1], window[2], window[3], b[0]
		filled++
		if filled >= 4 && string(window[:]) == "OggS" {
			if _, err := src.Seek(-4, ioh.SeekCurrent); err != nil {
				return err
			}
			return errs.New(op, errs.Corrupted, "resynced after invalid Ogg page")
		}
	}
}
