// Package audio reads stored WAV recordings into sample buffers for inference.
package audio

import (
	"fmt"
	"os"

	gowav "github.com/go-audio/wav"
)

// Buffer is a decoded recording: mono float32 samples in [-1, 1] at the file's
// original sample rate.
type Buffer struct {
	Samples []float32
	Rate    int
}

// DecodeError marks a permanently bad input file (missing, unreadable, empty or
// not a WAV container). Jobs must not retry it.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decoder reads WAV files from local disk.
type Decoder struct{}

// NewDecoder creates a WAV file decoder.
func NewDecoder() *Decoder { return &Decoder{} }

// DecodeFile reads a 16-bit PCM WAV file (mono or stereo, any sample rate) and
// returns a mono buffer. Multi-channel input is downmixed by averaging.
func (d *Decoder) DecodeFile(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	if info.Size() == 0 {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("empty file")}
	}

	dec := gowav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("not a valid WAV container")}
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("read pcm: %w", err)}
	}
	if pcm.Format == nil || pcm.Format.NumChannels <= 0 || pcm.Format.SampleRate <= 0 {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("missing format chunk")}
	}

	channels := pcm.Format.NumChannels
	bitDepth := pcm.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := float32(int(1) << (bitDepth - 1))

	frames := len(pcm.Data) / channels
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += float32(pcm.Data[i*channels+c]) / scale
		}
		samples[i] = sum / float32(channels)
	}

	return &Buffer{Samples: samples, Rate: pcm.Format.SampleRate}, nil
}

// Resample converts the buffer to the target rate by linear interpolation.
// Returns the samples unchanged when the rates already match.
func Resample(buf *Buffer, targetRate int) []float32 {
	if buf.Rate == targetRate || len(buf.Samples) == 0 {
		return buf.Samples
	}
	ratio := float64(buf.Rate) / float64(targetRate)
	n := int(float64(len(buf.Samples)) / ratio)
	if n == 0 {
		n = 1
	}
	out := make([]float32, n)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(buf.Samples)-1 {
			out[i] = buf.Samples[len(buf.Samples)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = buf.Samples[j]*(1-frac) + buf.Samples[j+1]*frac
	}
	return out
}
