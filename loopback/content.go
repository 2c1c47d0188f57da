package loopback

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/mitchellh/go-homedir"
)

// Content is one selectable source file
type Content struct {
	Name   string
	Path   string
	Frames int // length in frames at the engine sample rate
}

// LoadContent reads a WAV header and returns its length in frames,
// converted to sampleRate
func LoadContent(path string, sampleRate int) (Content, error) {
	p, err := homedir.Expand(path)
	if err != nil {
		return Content{}, fmt.Errorf("expand %s: %w", path, err)
	}
	f, err := os.Open(p)
	if err != nil {
		return Content{}, fmt.Errorf("open content: %w", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return Content{}, fmt.Errorf("invalid WAV file: %s", p)
	}
	if err := decoder.FwdToPCM(); err != nil {
		return Content{}, fmt.Errorf("read %s: %w", p, err)
	}
	format := decoder.Format()
	bitDepth := int(decoder.SampleBitDepth())
	if bitDepth == 0 || format.NumChannels == 0 {
		return Content{}, fmt.Errorf("unknown sample format in %s", p)
	}
	bytesPerSample := (bitDepth-1)/8 + 1
	frames := int(decoder.PCMLen()) / bytesPerSample / format.NumChannels
	if sampleRate > 0 && format.SampleRate > 0 && format.SampleRate != sampleRate {
		frames = int(int64(frames) * int64(sampleRate) / int64(format.SampleRate))
	}

	name := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
	return Content{Name: name, Path: p, Frames: frames}, nil
}
