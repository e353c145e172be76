// Package audiosniff identifies audio containers from magic bytes. Vendor
// CDNs occasionally serve audio with a generic content type, so downloaded
// payloads are sniffed before being stored.
package audiosniff

import "bytes"

// Format describes a recognized audio container.
type Format struct {
	Ext  string
	MIME string
}

var (
	MP3  = Format{Ext: ".mp3", MIME: "audio/mpeg"}
	WAV  = Format{Ext: ".wav", MIME: "audio/wav"}
	OGG  = Format{Ext: ".ogg", MIME: "audio/ogg"}
	FLAC = Format{Ext: ".flac", MIME: "audio/flac"}
	M4A  = Format{Ext: ".m4a", MIME: "audio/mp4"}
)

// Detect inspects the leading bytes of data and returns the matched format.
// The second return is false when the data is not a recognized audio
// container.
func Detect(data []byte) (Format, bool) {
	if len(data) < 4 {
		return Format{}, false
	}
	switch {
	case bytes.HasPrefix(data, []byte("ID3")):
		return MP3, true
	case data[0] == 0xFF && (data[1] == 0xFB || data[1] == 0xF3 || data[1] == 0xF2):
		// Bare MPEG frame sync without an ID3 tag.
		return MP3, true
	case bytes.HasPrefix(data, []byte("RIFF")) && len(data) >= 12 && bytes.Equal(data[8:12], []byte("WAVE")):
		return WAV, true
	case bytes.HasPrefix(data, []byte("OggS")):
		return OGG, true
	case bytes.HasPrefix(data, []byte("fLaC")):
		return FLAC, true
	case len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")):
		return M4A, true
	}
	return Format{}, false
}

// IsAudio reports whether data looks like a recognized audio container.
func IsAudio(data []byte) bool {
	_, ok := Detect(data)
	return ok
}
