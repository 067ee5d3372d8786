// Package audio reads metadata from uploaded media files.
package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/bogem/id3v2"
	tcmp3 "github.com/tcolgate/mp3"
)

// Metadata is what could be learned from a file. Zero values mean unknown.
type Metadata struct {
	Duration int    `json:"duration"` // whole seconds, rounded
	Title    string `json:"title,omitempty"`
	Artist   string `json:"artist,omitempty"`
}

// IsMP3 reports whether the filename carries an .mp3 extension.
func IsMP3(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".mp3")
}

// ProbeMP3 reads the ID3v2 title and artist and sums the MPEG frame durations.
func ProbeMP3(r io.ReadSeeker) (Metadata, error) {
	var md Metadata

	tag, err := id3v2.ParseReader(r, id3v2.Options{Parse: true, ParseFrames: []string{"Title", "Artist"}})
	if err == nil {
		md.Title = strings.TrimSpace(tag.Title())
		md.Artist = strings.TrimSpace(tag.Artist())
	}

	if err := skipID3(r); err != nil {
		return md, err
	}
	d, err := mp3Duration(r)
	if err != nil {
		return md, err
	}
	md.Duration = int(math.Round(d.Seconds()))
	return md, nil
}

// skipID3 positions r at the first byte after a leading ID3v2 tag, or at 0 if there is none.
func skipID3(r io.ReadSeeker) error {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind: %w", err)
	}
	header := make([]byte, 10)
	if _, err := io.ReadFull(r, header); err != nil || string(header[:3]) != "ID3" {
		_, err := r.Seek(0, io.SeekStart)
		return err
	}
	// Tag size is a 28-bit syncsafe integer; the footer flag adds 10 bytes.
	size := int64(header[6]&0x7f)<<21 | int64(header[7]&0x7f)<<14 | int64(header[8]&0x7f)<<7 | int64(header[9]&0x7f)
	if header[5]&0x10 != 0 {
		size += 10
	}
	_, err := r.Seek(10+size, io.SeekStart)
	return err
}

func mp3Duration(r io.Reader) (time.Duration, error) {
	var (
		dur     time.Duration
		dec     = tcmp3.NewDecoder(r)
		frame   tcmp3.Frame
		skipped int
	)
	for {
		if err := dec.Decode(&frame, &skipped); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return 0, fmt.Errorf("failed to decode mp3 frame: %w", err)
		}
		dur += frame.Duration()
	}
	return dur, nil
}
