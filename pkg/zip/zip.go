package zip

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Track is one audio file inside a download bundle.
type Track struct {
	Filename string `json:"filename"`
	Title    string `json:"title,omitempty"`
	MIME     string `json:"mime"`
	Data     []byte `json:"-"`
}

// ArchiveTracks bundles tracks into a zip with a manifest.json describing
// them. Duplicate filenames are suffixed to keep every track in the archive.
func ArchiveTracks(tracks []Track) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)

	seen := make(map[string]int)
	manifest := make([]Track, 0, len(tracks))
	for _, track := range tracks {
		base := track.Filename
		if base == "" {
			base = "track.mp3"
		}
		name := base
		if n := seen[base]; n > 0 {
			name = dedupeName(base, n)
		}
		seen[base]++

		w, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("zip: create entry %q: %w", name, err)
		}
		if _, err := w.Write(track.Data); err != nil {
			return nil, fmt.Errorf("zip: write entry %q: %w", name, err)
		}
		track.Filename = name
		manifest = append(manifest, track)
	}

	mw, err := zw.Create("manifest.json")
	if err != nil {
		return nil, fmt.Errorf("zip: create manifest: %w", err)
	}
	if err := json.NewEncoder(mw).Encode(manifest); err != nil {
		return nil, fmt.Errorf("zip: write manifest: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: close archive: %w", err)
	}
	return buf.Bytes(), nil
}

func dedupeName(name string, n int) string {
	if idx := strings.LastIndex(name, "."); idx > 0 {
		return fmt.Sprintf("%s-%d%s", name[:idx], n, name[idx:])
	}
	return fmt.Sprintf("%s-%d", name, n)
}
