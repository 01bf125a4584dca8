package audio

import (
	"bytes"
	"path/filepath"
	"strings"
)

// Format is the symbolic tag downstream stages use to pick handling for an
// inbound blob. It never encodes codec details, only the container family.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatMP3  Format = "mp3"
	FormatM4A  Format = "m4a"
	FormatOGG  Format = "ogg"
	FormatFLAC Format = "flac"
	FormatWebM Format = "webm"

	// DefaultFormat is returned when nothing matches. Mobile clients record
	// m4a, so an opaque blob is most likely that; ffmpeg re-probes the real
	// container on conversion anyway.
	DefaultFormat = FormatM4A
)

// mimeFormats maps known audio MIME subtypes to format tags. Declared
// metadata is cheap and usually correct, so it wins over sniffing.
var mimeFormats = map[string]Format{
	"wav":        FormatWAV,
	"x-wav":      FormatWAV,
	"wave":       FormatWAV,
	"mpeg":       FormatMP3,
	"mp3":        FormatMP3,
	"mp4":        FormatM4A,
	"m4a":        FormatM4A,
	"x-m4a":      FormatM4A,
	"aac":        FormatM4A,
	"ogg":        FormatOGG,
	"vorbis":     FormatOGG,
	"opus":       FormatOGG,
	"flac":       FormatFLAC,
	"x-flac":     FormatFLAC,
	"webm":       FormatWebM,
	"x-matroska": FormatWebM,
}

var extFormats = map[string]Format{
	".wav":  FormatWAV,
	".mp3":  FormatMP3,
	".m4a":  FormatM4A,
	".mp4":  FormatM4A,
	".aac":  FormatM4A,
	".ogg":  FormatOGG,
	".oga":  FormatOGG,
	".opus": FormatOGG,
	".flac": FormatFLAC,
	".webm": FormatWebM,
}

// Detect classifies an inbound audio blob. Priority: declared content type,
// then filename extension, then leading-byte signatures, then DefaultFormat.
// It never fails; downstream always gets some format to attempt.
func Detect(data []byte, contentType, filename string) Format {
	if f, ok := byContentType(contentType); ok {
		return f
	}
	if f, ok := extFormats[strings.ToLower(filepath.Ext(filename))]; ok {
		return f
	}
	if f, ok := bySignature(data); ok {
		return f
	}
	return DefaultFormat
}

func byContentType(ct string) (Format, bool) {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	slash := strings.Index(ct, "/")
	if slash < 0 {
		return "", false
	}
	major, sub := ct[:slash], ct[slash+1:]
	if major != "audio" && major != "video" {
		return "", false
	}
	f, ok := mimeFormats[sub]
	return f, ok
}

// bySignature checks the leading bytes against known container magics.
func bySignature(data []byte) (Format, bool) {
	switch {
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV, true
	case len(data) >= 4 && bytes.Equal(data[:4], []byte("OggS")):
		return FormatOGG, true
	case len(data) >= 4 && bytes.Equal(data[:4], []byte("fLaC")):
		return FormatFLAC, true
	case len(data) >= 3 && bytes.Equal(data[:3], []byte("ID3")):
		return FormatMP3, true
	// MPEG audio frame sync: 11 set bits.
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3, true
	// ISO BMFF: size (4 bytes) then "ftyp".
	case len(data) >= 8 && bytes.Equal(data[4:8], []byte("ftyp")):
		return FormatM4A, true
	// EBML header, used by webm/mkv.
	case len(data) >= 4 && bytes.Equal(data[:4], []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return FormatWebM, true
	}
	return "", false
}

// Ext returns the filename extension for a format tag.
func (f Format) Ext() string {
	return "." + string(f)
}

// MimeType returns the MIME type to declare when sending a file of this format.
func (f Format) MimeType() string {
	switch f {
	case FormatWAV:
		return "audio/wav"
	case FormatMP3:
		return "audio/mpeg"
	case FormatM4A:
		return "audio/m4a"
	case FormatOGG:
		return "audio/ogg"
	case FormatFLAC:
		return "audio/flac"
	case FormatWebM:
		return "audio/webm"
	default:
		return "application/octet-stream"
	}
}
