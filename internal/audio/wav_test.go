package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	gaudio "github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeWAV writes a 16-bit PCM WAV with the given per-channel frames.
func writeWAV(t *testing.T, path string, rate, channels int, frames []int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := gowav.NewEncoder(f, rate, 16, channels, 1)
	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           frames,
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
}

func TestDecodeFile_Mono(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mono.wav")
	writeWAV(t, path, 16000, 1, []int{0, 16384, -16384, 32767})

	buf, err := NewDecoder().DecodeFile(path)
	require.NoError(t, err)
	assert.Equal(t, 16000, buf.Rate)
	require.Len(t, buf.Samples, 4)
	assert.InDelta(t, 0.0, buf.Samples[0], 1e-4)
	assert.InDelta(t, 0.5, buf.Samples[1], 1e-4)
	assert.InDelta(t, -0.5, buf.Samples[2], 1e-4)
}

func TestDecodeFile_StereoDownmix(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stereo.wav")
	// Interleaved L/R pairs; downmix averages each frame.
	writeWAV(t, path, 44100, 2, []int{16384, 0, 0, 16384})

	buf, err := NewDecoder().DecodeFile(path)
	require.NoError(t, err)
	assert.Equal(t, 44100, buf.Rate)
	require.Len(t, buf.Samples, 2)
	assert.InDelta(t, 0.25, buf.Samples[0], 1e-4)
	assert.InDelta(t, 0.25, buf.Samples[1], 1e-4)
}

func TestDecodeFile_Missing(t *testing.T) {
	_, err := NewDecoder().DecodeFile(filepath.Join(t.TempDir(), "nope.wav"))
	require.Error(t, err)
	var decodeErr *DecodeError
	assert.ErrorAs(t, err, &decodeErr)
}

func TestDecodeFile_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.wav")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := NewDecoder().DecodeFile(path)
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, path, decodeErr.Path)
}

func TestDecodeFile_NotWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.wav")
	require.NoError(t, os.WriteFile(path, []byte("this is not a riff chunk at all"), 0o644))

	_, err := NewDecoder().DecodeFile(path)
	var decodeErr *DecodeError
	assert.ErrorAs(t, err, &decodeErr)
}

func TestResample_Identity(t *testing.T) {
	buf := &Buffer{Samples: []float32{0.1, 0.2, 0.3}, Rate: 16000}
	out := Resample(buf, 16000)
	assert.Equal(t, buf.Samples, out)
}

func TestResample_Downsample(t *testing.T) {
	// 1 second of 32kHz audio resampled to 16kHz halves the sample count.
	in := make([]float32, 32000)
	for i := range in {
		in[i] = float32(math.Sin(float64(i) / 100))
	}
	out := Resample(&Buffer{Samples: in, Rate: 32000}, 16000)
	assert.Equal(t, 16000, len(out))
	assert.InDelta(t, float64(in[0]), float64(out[0]), 1e-4)
}
