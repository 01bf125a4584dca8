package audio

import "testing"

func TestDetectPriority(t *testing.T) {
	wavSig := append([]byte("RIFF\x24\x08\x00\x00WAVE"), make([]byte, 32)...)

	cases := []struct {
		name        string
		data        []byte
		contentType string
		filename    string
		want        Format
	}{
		{"content type wins over extension", wavSig, "audio/mpeg", "a.wav", FormatMP3},
		{"content type with params", nil, "audio/ogg; codecs=opus", "", FormatOGG},
		{"extension wins over signature", wavSig, "", "voice.m4a", FormatM4A},
		{"non-audio content type ignored", wavSig, "application/octet-stream", "", FormatWAV},
		{"video mp4 treated as m4a source", nil, "video/mp4", "", FormatM4A},
		{"unknown extension falls through to sniffing", []byte("OggS\x00\x02"), "", "blob.dat", FormatOGG},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Detect(tc.data, tc.contentType, tc.filename); got != tc.want {
				t.Fatalf("Detect() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDetectSignatures(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want Format
	}{
		{"riff wav", []byte("RIFF\x00\x00\x00\x00WAVEfmt "), FormatWAV},
		{"ogg", []byte("OggS\x00\x02\x00\x00"), FormatOGG},
		{"flac", []byte("fLaC\x00\x00\x00\x22"), FormatFLAC},
		{"id3 mp3", []byte("ID3\x04\x00\x00\x00"), FormatMP3},
		{"mp3 frame sync", []byte{0xFF, 0xFB, 0x90, 0x00}, FormatMP3},
		{"ftyp m4a", []byte{0x00, 0x00, 0x00, 0x20, 'f', 't', 'y', 'p', 'M', '4', 'A', ' '}, FormatM4A},
		{"ebml webm", []byte{0x1A, 0x45, 0xDF, 0xA3, 0x01}, FormatWebM},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Detect(tc.data, "", ""); got != tc.want {
				t.Fatalf("Detect() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDetectDefaultIsStable(t *testing.T) {
	junk := []byte{0x00, 0x01, 0x02, 0x03, 0xDE, 0xAD, 0xBE, 0xEF}
	for i := 0; i < 5; i++ {
		if got := Detect(junk, "text/plain", "notes.txt"); got != DefaultFormat {
			t.Fatalf("Detect() = %q, want default %q", got, DefaultFormat)
		}
	}
	// Empty everything still yields the default, never a panic.
	if got := Detect(nil, "", ""); got != DefaultFormat {
		t.Fatalf("Detect(nil) = %q, want %q", got, DefaultFormat)
	}
}
