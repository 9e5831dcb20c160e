// Package audioconv decodes recorded audio files into the mono 16 kHz
// float32 PCM the transcriber consumes. Used by the --from-file mode so
// turns can be driven from recordings instead of the microphone.
package audioconv

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

const targetRate = 16000

type Options struct {
	// MaxSamples truncates the decoded stream; 0 keeps everything.
	MaxSamples int
}

// FileToPCM16k decodes a wav, mp3 or ogg-vorbis file. Unknown extensions
// are sniffed by magic bytes.
func FileToPCM16k(_ context.Context, path string, opt Options) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return decodeWAV(f, opt)
	case ".mp3":
		return decodeMP3(f, opt)
	case ".ogg", ".oga":
		return decodeOgg(f, opt)
	}

	br := bufio.NewReader(f)
	magic, _ := br.Peek(4)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	switch string(magic) {
	case "RIFF":
		return decodeWAV(f, opt)
	case "OggS":
		return decodeOgg(f, opt)
	}
	if len(magic) >= 3 && (magic[0] == 0xFF || string(magic[:3]) == "ID3") {
		return decodeMP3(f, opt)
	}
	return nil, fmt.Errorf("unsupported audio format: %s", path)
}

func decodeWAV(r io.ReadSeeker, opt Options) ([]float32, error) {
	d := wav.NewDecoder(r)
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	if buf == nil || buf.Format == nil {
		return nil, fmt.Errorf("empty wav stream")
	}

	samples := intToFloat32(buf.Data, int(d.BitDepth))
	samples = downmix(samples, buf.Format.NumChannels)
	samples = resample(samples, buf.Format.SampleRate, targetRate)
	return truncate(samples, opt.MaxSamples), nil
}

func decodeMP3(r io.Reader, opt Options) ([]float32, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("decode mp3: %w", err)
	}

	// go-mp3 always yields interleaved stereo s16le.
	raw, err := io.ReadAll(d)
	if err != nil {
		return nil, fmt.Errorf("read mp3 pcm: %w", err)
	}

	n := len(raw) / 2
	interleaved := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(raw[2*i:]))
		interleaved[i] = float32(v) / 32768
	}

	samples := downmix(interleaved, 2)
	samples = resample(samples, d.SampleRate(), targetRate)
	return truncate(samples, opt.MaxSamples), nil
}

func decodeOgg(r io.Reader, opt Options) ([]float32, error) {
	data, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decode ogg-vorbis: %w", err)
	}

	samples := downmix(data, format.Channels)
	samples = resample(samples, format.SampleRate, targetRate)
	return truncate(samples, opt.MaxSamples), nil
}

func intToFloat32(data []int, bitDepth int) []float32 {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := 1.0 / float64(int64(1)<<uint(bitDepth-1))
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(float64(v) * scale)
	}
	return out
}

func downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	frames := len(in) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(in[i*channels+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

func resample(in []float32, inRate, outRate int) []float32 {
	if inRate == outRate || len(in) == 0 {
		return in
	}
	ratio := float64(outRate) / float64(inRate)
	n := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		src := float64(i) / ratio
		i0 := int(src)
		if i0 >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(src - float64(i0))
		out[i] = in[i0]*(1-frac) + in[i0+1]*frac
	}
	return out
}

func truncate(in []float32, max int) []float32 {
	if max > 0 && len(in) > max {
		return in[:max]
	}
	return in
}
