package demux

import (
	"encoding/binary"
	"io"

	"github.com/farcloser/mediacore/errs"
	"github.com/farcloser/mediacore/ioh"
	"github.com/farcloser/mediacore/media"
)

// isobmffBox is one parsed box-tree node header: size/type/payload offset,
// per spec §4.7.
type isobmffBox struct {
	boxType    string
	start      int64 // offset of the box's payload (after size/type/ext-size)
	end        int64 // offset one past the box's payload
}

// sampleTableEntry is one resolved audio sample's position, built from the
// stts/stsc/stsz/stco sample tables (or, for fragmented MP4, from trun).
type sampleTableEntry struct {
	offset       int64
	size         uint32
	durationTS   uint32 // duration in media-timescale units
	decodeTimeTS uint64 // cumulative decode time in media-timescale units
}

// isobmffDemuxer implements spec §4.7.
type isobmffDemuxer struct {
	src ioh.ByteSource

	codecFourCC   string
	codecSetup    []byte
	timescale     uint32
	sampleRate    uint32
	channels      uint8
	bitsPerSample uint8

	samples  []sampleTableEntry
	cursor   int
	fragment bool
}

const isobmffHeaderMinSize = 8

func openISOBMFF(src ioh.ByteSource) (Demuxer, error) {
	const op = "demux.openISOBMFF"

	if _, err := src.Seek(0, ioh.SeekStart); err != nil {
		return nil, errs.Wrap(op, errs.Io, err)
	}

	d := &isobmffDemuxer{src: src}

	sawFtyp := false
	sawMoov := false
	var pendingMdatStart int64 = -1

	fileSize, _ := src.Size()

	for {
		box, err := readISOBMFFBox(src)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.Wrap(op, errs.BadFormat, err)
		}

		switch box.boxType {
		case "ftyp":
			sawFtyp = true
		case "moov":
			if err := d.parseMoov(src, box); err != nil {
				return nil, err
			}
			sawMoov = true
		case "mdat":
			if pendingMdatStart < 0 {
				pendingMdatStart = box.start
			}
		case "moof":
			d.fragment = true
			if err := d.parseMoof(src, box); err != nil {
				return nil, err
			}
		}

		if !sawMoov && pendingMdatStart >= 0 && fileSize > 0 {
			// Late-moov streaming (spec §4.7): mdat arrived before moov.
			// Jump to search the file tail for moov.
			tailStart := fileSize - 16<<20
			if tailStart < 0 {
				tailStart = 0
			}
			if err := d.scanTailForMoov(src, tailStart, fileSize); err != nil {
				return nil, err
			}
			sawMoov = len(d.samples) > 0 || d.codecFourCC != ""
		}

		if _, err := src.Seek(box.end, ioh.SeekStart); err != nil {
			return nil, errs.Wrap(op, errs.Io, err)
		}
	}

	if !sawFtyp {
		return nil, errs.New(op, errs.BadFormat, "missing ftyp box")
	}
	if d.sampleRate == 0 {
		return nil, errs.New(op, errs.BadFormat, "no audio track found")
	}

	return d, nil
}

// scanTailForMoov re-probes the tail of the file for a moov box, per spec
// §4.7's late-moov streaming support.
func (d *isobmffDemuxer) scanTailForMoov(src ioh.ByteSource, from, to int64) error {
	pos := from
	for pos < to {
		if _, err := src.Seek(pos, ioh.SeekStart); err != nil {
			return err
		}
		box, err := readISOBMFFBox(src)
		if err != nil {
			pos++
			continue
		}
		if box.boxType == "moov" {
			return d.parseMoov(src, box)
		}
		pos = box.end
	}
	return errs.New("demux.isobmffDemuxer.scanTailForMoov", errs.Unsupported, "moov not found in tail scan window")
}

// readISOBMFFBox reads one box header at the source's current position,
// per spec §4.7: size:u32be, type:4cc, [ext_size:u64be if size==1].
func readISOBMFFBox(src ioh.ByteSource) (*isobmffBox, error) {
	start, err := src.Seek(0, ioh.SeekCurrent)
	if err != nil {
		return nil, err
	}
	var hdr [8]byte
	if _, err := io.ReadFull(asReader(src), hdr[:]); err != nil {
		return nil, err
	}
	size := int64(binary.BigEndian.Uint32(hdr[0:4]))
	boxType := string(hdr[4:8])
	payloadStart := start + 8

	if size == 1 {
		var ext [8]byte
		if _, err := io.ReadFull(asReader(src), ext[:]); err != nil {
			return nil, err
		}
		size = int64(binary.BigEndian.Uint64(ext[:]))
		payloadStart += 8
	} else if size == 0 {
		sz, ok := src.Size()
		if !ok {
			return nil, errs.New("demux.readISOBMFFBox", errs.Unsupported, "box extends to unknown end of stream")
		}
		size = sz - start
	}

	return &isobmffBox{boxType: boxType, start: payloadStart, end: start + size}, nil
}

// walkChildren calls fn for each direct child box inside a container box
// spanning [start, end) in the source.
func walkChildren(src ioh.ByteSource, start, end int64, fn func(*isobmffBox) error) error {
	pos := start
	for pos < end {
		if _, err := src.Seek(pos, ioh.SeekStart); err != nil {
			return err
		}
		box, err := readISOBMFFBox(src)
		if err != nil {
			return err
		}
		if err := fn(box); err != nil {
			return err
		}
		pos = box.end
	}
	return nil
}

// parseMoov walks moov/trak/mdia/minf/stbl for the first audio track,
// building the flat sample table per spec §4.7.
func (d *isobmffDemuxer) parseMoov(src ioh.ByteSource, moov *isobmffBox) error {
	const op = "demux.isobmffDemuxer.parseMoov"

	var stts, stsc, stsz, stco, co64 []byte
	found := false

	err := walkChildren(src, moov.start, moov.end, func(trak *isobmffBox) error {
		if trak.boxType != "trak" || found {
			return nil
		}

		if err := walkChildren(src, trak.start, trak.end, func(mdia *isobmffBox) error {
			if mdia.boxType != "mdia" {
				return nil
			}
			return walkChildren(src, mdia.start, mdia.end, func(child *isobmffBox) error {
				if child.boxType != "mdhd" {
					return nil
				}
				body, err := readBoxBody(src, child)
				if err != nil {
					return err
				}
				if len(body) >= 20 {
					if body[0] == 1 && len(body) >= 28 {
						d.timescale = binary.BigEndian.Uint32(body[20:24])
					} else {
						d.timescale = binary.BigEndian.Uint32(body[12:16])
					}
				}
				return nil
			})
		}); err != nil {
			return err
		}

		return findSTBL(src, trak, func(stbl *isobmffBox) error {
			return walkChildren(src, stbl.start, stbl.end, func(child *isobmffBox) error {
				body, err := readBoxBody(src, child)
				if err != nil {
					return err
				}
				switch child.boxType {
				case "stsd":
					d.parseStsd(body)
					found = d.sampleRate != 0
				case "stts":
					stts = body
				case "stsc":
					stsc = body
				case "stsz":
					stsz = body
				case "stco":
					stco = body
				case "co64":
					co64 = body
				}
				return nil
			})
		})
	})
	if err != nil {
		return errs.Wrap(op, errs.BadFormat, err)
	}

	if !found {
		return nil // no audio track in this moov.
	}

	samples, err := buildSampleTable(stts, stsc, stsz, stco, co64)
	if err != nil {
		return errs.Wrap(op, errs.BadFormat, err)
	}
	d.samples = samples
	return nil
}

func findSTBL(src ioh.ByteSource, trak *isobmffBox, fn func(*isobmffBox) error) error {
	return walkChildren(src, trak.start, trak.end, func(mdia *isobmffBox) error {
		if mdia.boxType != "mdia" {
			return nil
		}
		return walkChildren(src, mdia.start, mdia.end, func(minf *isobmffBox) error {
			if minf.boxType != "minf" {
				return nil
			}
			return walkChildren(src, minf.start, minf.end, func(stbl *isobmffBox) error {
				if stbl.boxType != "stbl" {
					return nil
				}
				return fn(stbl)
			})
		})
	})
}

func readBoxBody(src ioh.ByteSource, box *isobmffBox) ([]byte, error) {
	if _, err := src.Seek(box.start, ioh.SeekStart); err != nil {
		return nil, err
	}
	body := make([]byte, box.end-box.start)
	if _, err := io.ReadFull(asReader(src), body); err != nil {
		return nil, err
	}
	return body, nil
}

// parseStsd extracts the audio sample entry's codec fourcc and basic
// format fields, plus codec-specific setup (esds/dfLa/dOps), per spec
// §4.7.
func (d *isobmffDemuxer) parseStsd(body []byte) {
	if len(body) < 8 {
		return
	}
	// version(1)+flags(3)+entry_count(4), then the first sample entry.
	if len(body) < 8+8 {
		return
	}
	entry := body[8:]
	if len(entry) < 8 {
		return
	}
	fourcc := string(entry[4:8])
	d.codecFourCC = fourcc
	d.codecName2Info(fourcc)

	// Audio sample entry fixed fields start at offset 8 within the entry
	// (after size/type), skip reserved(6)+data_reference_index(2), then
	// version(2)+revision(2)+vendor(4)+channels(2)+samplesize(2)+
	// compression_id(2)+packet_size(2)+samplerate(4, 16.16 fixed).
	if len(entry) >= 8+20+16 {
		fixed := entry[8+8:]
		if len(fixed) >= 20 {
			d.channels = uint8(binary.BigEndian.Uint16(fixed[8:10]))
			d.bitsPerSample = uint8(binary.BigEndian.Uint16(fixed[10:12]))
			d.sampleRate = binary.BigEndian.Uint32(fixed[16:20]) >> 16
		}
	}

	// Codec-setup box, if present, follows the fixed audio fields.
	setupStart := 8 + 8 + 20
	if len(entry) > setupStart+8 {
		d.codecSetup = append([]byte{}, entry[setupStart:]...)
	}
}

func (d *isobmffDemuxer) codecName2Info(fourcc string) {
	switch fourcc {
	case "mp4a":
		d.setCodecName("aac")
	case "fLaC":
		d.setCodecName("flac")
	case "Opus":
		d.setCodecName("opus")
	case "twos", "sowt", "in24", "in32", "lpcm":
		d.setCodecName("pcm")
	case "alaw":
		d.setCodecName("alaw")
	case "ulaw":
		d.setCodecName("mulaw")
	default:
		d.setCodecName(fourcc)
	}
}

func (d *isobmffDemuxer) setCodecName(name string) { d.codecFourCC = name }

// buildSampleTable cross-references stts/stsc/stsz/stco (or co64) into a
// flat per-sample offset/size/duration table, per spec §4.7. Mismatched
// counts across tables are fatal for the track (spec's invariant check).
func buildSampleTable(stts, stsc, stsz, stco, co64 []byte) ([]sampleTableEntry, error) {
	const op = "demux.buildSampleTable"

	if len(stsz) < 12 {
		return nil, errs.New(op, errs.BadFormat, "stsz too short")
	}
	sampleSize := binary.BigEndian.Uint32(stsz[4:8])
	sampleCount := int(binary.BigEndian.Uint32(stsz[8:12]))
	sizes := make([]uint32, sampleCount)
	if sampleSize != 0 {
		for i := range sizes {
			sizes[i] = sampleSize
		}
	} else {
		if len(stsz) < 12+sampleCount*4 {
			return nil, errs.New(op, errs.BadFormat, "stsz sample size table truncated")
		}
		for i := 0; i < sampleCount; i++ {
			sizes[i] = binary.BigEndian.Uint32(stsz[12+i*4 : 16+i*4])
		}
	}

	durations := make([]uint32, 0, sampleCount)
	if len(stts) >= 8 {
		entryCount := int(binary.BigEndian.Uint32(stts[4:8]))
		off := 8
		for i := 0; i < entryCount && off+8 <= len(stts); i++ {
			count := binary.BigEndian.Uint32(stts[off : off+4])
			dur := binary.BigEndian.Uint32(stts[off+4 : off+8])
			for j := uint32(0); j < count; j++ {
				durations = append(durations, dur)
			}
			off += 8
		}
	}
	if len(durations) != sampleCount {
		return nil, errs.New(op, errs.BadFormat, "stts sample count does not match stsz")
	}

	var chunkOffsets []int64
	if len(co64) >= 8 {
		n := int(binary.BigEndian.Uint32(co64[4:8]))
		for i := 0; i < n && 8+i*8+8 <= len(co64); i++ {
			chunkOffsets = append(chunkOffsets, int64(binary.BigEndian.Uint64(co64[8+i*8:16+i*8])))
		}
	} else if len(stco) >= 8 {
		n := int(binary.BigEndian.Uint32(stco[4:8]))
		for i := 0; i < n && 8+i*4+4 <= len(stco); i++ {
			chunkOffsets = append(chunkOffsets, int64(binary.BigEndian.Uint32(stco[8+i*4:12+i*4])))
		}
	}
	if len(chunkOffsets) == 0 {
		return nil, errs.New(op, errs.BadFormat, "no chunk offset table (stco/co64)")
	}

	type stscEntry struct {
		firstChunk      uint32
		samplesPerChunk uint32
	}
	var stscEntries []stscEntry
	if len(stsc) >= 8 {
		n := int(binary.BigEndian.Uint32(stsc[4:8]))
		off := 8
		for i := 0; i < n && off+12 <= len(stsc); i++ {
			stscEntries = append(stscEntries, stscEntry{
				firstChunk:      binary.BigEndian.Uint32(stsc[off : off+4]),
				samplesPerChunk: binary.BigEndian.Uint32(stsc[off+4 : off+8]),
			})
			off += 12
		}
	}
	if len(stscEntries) == 0 {
		return nil, errs.New(op, errs.BadFormat, "empty stsc")
	}

	out := make([]sampleTableEntry, 0, sampleCount)
	sampleIdx := 0
	var cumDuration uint64
	for chunkIdx := 1; sampleIdx < sampleCount && chunkIdx-1 < len(chunkOffsets); chunkIdx++ {
		samplesPerChunk := stscEntries[len(stscEntries)-1].samplesPerChunk
		for _, e := range stscEntries {
			if uint32(chunkIdx) >= e.firstChunk {
				samplesPerChunk = e.samplesPerChunk
			}
		}
		offset := chunkOffsets[chunkIdx-1]
		for s := uint32(0); s < samplesPerChunk && sampleIdx < sampleCount; s++ {
			out = append(out, sampleTableEntry{
				offset:       offset,
				size:         sizes[sampleIdx],
				durationTS:   durations[sampleIdx],
				decodeTimeTS: cumDuration,
			})
			offset += int64(sizes[sampleIdx])
			cumDuration += uint64(durations[sampleIdx])
			sampleIdx++
		}
	}

	if sampleIdx != sampleCount {
		return nil, errs.New(op, errs.BadFormat, "stsc/stco sample count does not match stsz")
	}

	return out, nil
}

// parseMoof handles one fragment's tfhd/trun per spec §4.7's fragmented-MP4
// support, appending resolved samples to the logical sample table. Only a
// single track per fragment is supported, matching this pipeline's
// single-audio-track assumption.
func (d *isobmffDemuxer) parseMoof(src ioh.ByteSource, moof *isobmffBox) error {
	const op = "demux.isobmffDemuxer.parseMoof"

	var baseDataOffset int64 = moof.start - 8 // default: the moof box itself
	var defaultSampleDuration, defaultSampleSize uint32
	var baseDecodeTime uint64

	err := walkChildren(src, moof.start, moof.end, func(traf *isobmffBox) error {
		if traf.boxType != "traf" {
			return nil
		}
		return walkChildren(src, traf.start, traf.end, func(child *isobmffBox) error {
			body, err := readBoxBody(src, child)
			if err != nil {
				return err
			}
			switch child.boxType {
			case "tfhd":
				if len(body) < 8 {
					return nil
				}
				flags := binary.BigEndian.Uint32(body[0:4]) & 0x00FFFFFF
				off := 8
				if flags&0x000001 != 0 { // base-data-offset-present
					if len(body) >= off+8 {
						baseDataOffset = int64(binary.BigEndian.Uint64(body[off : off+8]))
					}
					off += 8
				}
				if flags&0x000002 != 0 { // sample-description-index-present
					off += 4
				}
				if flags&0x000008 != 0 && len(body) >= off+4 { // default-sample-duration
					defaultSampleDuration = binary.BigEndian.Uint32(body[off : off+4])
					off += 4
				}
				if flags&0x000010 != 0 && len(body) >= off+4 { // default-sample-size
					defaultSampleSize = binary.BigEndian.Uint32(body[off : off+4])
				}
			case "tfdt":
				if len(body) >= 1 {
					if body[0] == 1 && len(body) >= 12 {
						baseDecodeTime = binary.BigEndian.Uint64(body[4:12])
					} else if len(body) >= 8 {
						baseDecodeTime = uint64(binary.BigEndian.Uint32(body[4:8]))
					}
				}
			case "trun":
				d.appendTrun(body, baseDataOffset, defaultSampleDuration, defaultSampleSize, baseDecodeTime)
			}
			return nil
		})
	})
	if err != nil {
		return errs.Wrap(op, errs.BadFormat, err)
	}
	return nil
}

func (d *isobmffDemuxer) appendTrun(body []byte, baseDataOffset int64, defaultDur, defaultSize uint32, baseDecodeTime uint64) {
	if len(body) < 8 {
		return
	}
	flags := binary.BigEndian.Uint32(body[0:4]) & 0x00FFFFFF
	sampleCount := binary.BigEndian.Uint32(body[4:8])
	off := 8

	dataOffset := baseDataOffset
	if flags&0x000001 != 0 && len(body) >= off+4 { // data-offset-present
		dataOffset += int64(int32(binary.BigEndian.Uint32(body[off : off+4])))
		off += 4
	}
	if flags&0x000004 != 0 { // first-sample-flags-present
		off += 4
	}

	cursor := dataOffset
	cumTime := baseDecodeTime
	for i := uint32(0); i < sampleCount; i++ {
		dur := defaultDur
		size := defaultSize
		if flags&0x000100 != 0 && len(body) >= off+4 { // sample-duration-present
			dur = binary.BigEndian.Uint32(body[off : off+4])
			off += 4
		}
		if flags&0x000200 != 0 && len(body) >= off+4 { // sample-size-present
			size = binary.BigEndian.Uint32(body[off : off+4])
			off += 4
		}
		if flags&0x000400 != 0 { // sample-flags-present
			off += 4
		}
		if flags&0x000800 != 0 { // sample-composition-time-offsets-present
			off += 4
		}
		d.samples = append(d.samples, sampleTableEntry{
			offset:       cursor,
			size:         size,
			durationTS:   dur,
			decodeTimeTS: cumTime,
		})
		cursor += int64(size)
		cumTime += uint64(dur)
	}
}

func (d *isobmffDemuxer) StreamInfo() media.StreamInfo {
	var durationSamples uint64
	if n := len(d.samples); n > 0 {
		last := d.samples[n-1]
		durationSamples = last.decodeTimeTS + uint64(last.durationTS)
	}
	var durationMs uint64
	if d.timescale > 0 {
		durationMs = durationSamples * 1000 / uint64(d.timescale)
	}
	return media.StreamInfo{
		StreamID:        0,
		CodecName:       d.codecFourCC,
		SampleRate:      d.sampleRate,
		Channels:        d.channels,
		BitsPerSample:   d.bitsPerSample,
		DurationSamples: durationSamples,
		DurationMs:      durationMs,
		CodecSetup:      d.codecSetup,
	}
}

func (d *isobmffDemuxer) ReadChunk() (media.MediaChunk, error) {
	const op = "demux.isobmffDemuxer.ReadChunk"

	if d.cursor >= len(d.samples) {
		return media.MediaChunk{}, nil
	}
	entry := d.samples[d.cursor]
	if _, err := d.src.Seek(entry.offset, ioh.SeekStart); err != nil {
		return media.MediaChunk{}, errs.Wrap(op, errs.Io, err)
	}
	buf := make([]byte, entry.size)
	if _, err := io.ReadFull(asReader(d.src), buf); err != nil {
		return media.MediaChunk{}, errs.WrapIo(op, errs.IoOther, err)
	}
	d.cursor++
	return media.MediaChunk{
		StreamID:         0,
		Data:             buf,
		TimestampSamples: entry.decodeTimeTS,
		FileOffset:       entry.offset,
		Keyframe:         true,
	}, nil
}

func (d *isobmffDemuxer) SeekMs(timestampMs uint64) error {
	if d.timescale == 0 {
		return errs.New("demux.isobmffDemuxer.SeekMs", errs.Unsupported, "seek requires known timescale")
	}
	target := uint64(timestampMs) * uint64(d.timescale) / 1000
	idx := 0
	for i, e := range d.samples {
		if e.decodeTimeTS > target {
			break
		}
		idx = i
	}
	d.cursor = idx
	return nil
}

func (d *isobmffDemuxer) Close() error { return d.src.Close() }
