// Package demux implements the demuxer registry named in spec §4.5: a
// signature table probed against a ByteSource's first bytes, with an
// extension-based fallback when content probing is inconclusive. Grounded
// on the teacher's own format-dispatch idiom in meta.Type (a small closed
// enum of known formats resolved from a header tag) and, for the
// factory shape itself, on original_source's DemuxerFactory.cpp.
package demux

import (
	"path/filepath"
	"strings"

	"github.com/farcloser/mediacore/errs"
	"github.com/farcloser/mediacore/ioh"
)

// Format identifies a container format recognized by the registry.
type Format int

const (
	FormatUnknown Format = iota
	FormatRIFF
	FormatAIFF
	FormatOgg
	FormatFLAC
	FormatISOBMFF
	FormatMP3
)

func (f Format) String() string {
	switch f {
	case FormatRIFF:
		return "riff"
	case FormatAIFF:
		return "aiff"
	case FormatOgg:
		return "ogg"
	case FormatFLAC:
		return "flac"
	case FormatISOBMFF:
		return "isobmff"
	case FormatMP3:
		return "mp3"
	default:
		return "unknown"
	}
}

// signature is one entry of the probe table: magic bytes expected at a
// fixed offset from the start of the source, with a priority used to break
// ties when more than one signature matches (spec §4.5: "on tie, highest
// priority wins deterministically").
type signature struct {
	format   Format
	magic    []byte
	offset   int
	priority int
}

// probeWindow is the number of leading bytes read for signature probing.
const probeWindow = 128

// signatures is the built-in table from spec §4.5.
var signatures = []signature{
	{format: FormatRIFF, magic: []byte("RIFF"), offset: 0, priority: 10},
	{format: FormatAIFF, magic: []byte("FORM"), offset: 0, priority: 10},
	{format: FormatOgg, magic: []byte("OggS"), offset: 0, priority: 10},
	{format: FormatFLAC, magic: []byte("fLaC"), offset: 0, priority: 10},
	{format: FormatISOBMFF, magic: []byte("ftyp"), offset: 4, priority: 10},
	{format: FormatMP3, magic: []byte("ID3"), offset: 0, priority: 5},
	{format: FormatMP3, magic: []byte{0xFF, 0xFB}, offset: 0, priority: 1},
}

// extensionFormats maps a lowercase, dot-less file extension to a format,
// used only when content probing finds no match and a path is available.
var extensionFormats = map[string]Format{
	"wav":  FormatRIFF,
	"wave": FormatRIFF,
	"aif":  FormatAIFF,
	"aiff": FormatAIFF,
	"ogg":  FormatOgg,
	"oga":  FormatOgg,
	"opus": FormatOgg,
	"flac": FormatFLAC,
	"mp4":  FormatISOBMFF,
	"m4a":  FormatISOBMFF,
	"m4b":  FormatISOBMFF,
	"mp3":  FormatMP3,
}

// Probe reads up to probeWindow bytes from the start of src (restoring its
// position afterward) and returns the winning signature match, falling
// back to an extension match against path when no signature matches.
// path may be empty when unavailable (e.g. an http:// byte source).
func Probe(src ioh.ByteSource, path string) (Format, error) {
	const op = "demux.Probe"

	start, err := src.Seek(0, ioh.SeekCurrent)
	if err != nil {
		return FormatUnknown, errs.Wrap(op, errs.Io, err)
	}

	if _, err := src.Seek(0, ioh.SeekStart); err != nil {
		return FormatUnknown, errs.Wrap(op, errs.Io, err)
	}

	buf := make([]byte, probeWindow)
	n, _ := readFull(src, buf)
	buf = buf[:n]

	if _, err := src.Seek(start, ioh.SeekStart); err != nil {
		return FormatUnknown, errs.Wrap(op, errs.Io, err)
	}

	best := FormatUnknown
	bestPriority := -1
	for _, sig := range signatures {
		if sig.offset+len(sig.magic) > len(buf) {
			continue
		}
		if string(buf[sig.offset:sig.offset+len(sig.magic)]) != string(sig.magic) {
			continue
		}
		if sig.priority > bestPriority {
			best = sig.format
			bestPriority = sig.priority
		}
	}
	if best != FormatUnknown {
		return best, nil
	}

	if path != "" {
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
		if f, ok := extensionFormats[ext]; ok {
			return f, nil
		}
	}

	return FormatUnknown, errs.New(op, errs.InvalidMedia, "no signature or extension match")
}

// readFull reads into buf until it is full or src is exhausted, unlike
// io.ReadFull it tolerates a short final read as success (the probe window
// may exceed a tiny file's total size).
func readFull(src ioh.ByteSource, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := src.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
	}
	return total, nil
}
