// Package audio holds synthesized waveforms and their encodings.
package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Buffer is a uniquely owned block of signed 16-bit samples.
type Buffer struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// NewMono wraps samples taken over from an engine into a single-channel buffer.
// The caller must not retain samples after the call.
func NewMono(samples []int16, sampleRate int) *Buffer {
	return &Buffer{Samples: samples, SampleRate: sampleRate, Channels: 1}
}

// Empty returns a zero-length mono buffer at the given rate.
func Empty(sampleRate int) *Buffer {
	return NewMono(nil, 0).resampled(sampleRate)
}

// Len returns the number of sample frames.
func (b *Buffer) Len() int {
	if b == nil || b.Channels == 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// resampled is the zero-length shortcut: there is nothing to convert, only the
// rate label changes.
func (b *Buffer) resampled(rate int) *Buffer {
	return &Buffer{SampleRate: rate, Channels: b.Channels}
}

// Resample converts the buffer to rate and returns a new buffer. The receiver is
// returned unchanged when the rates already match.
func (b *Buffer) Resample(rate int) (*Buffer, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", rate)
	}
	if rate == b.SampleRate {
		return b, nil
	}
	if len(b.Samples) == 0 || b.SampleRate == 0 {
		return b.resampled(rate), nil
	}

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(b.SampleRate),
		OutputRate: float64(rate),
		Channels:   b.Channels,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("creating resampler: %w", err)
	}

	in := make([]float64, len(b.Samples))
	for i, s := range b.Samples {
		in[i] = float64(s) / 32768.0
	}
	out, err := r.Process(in)
	if err != nil {
		return nil, fmt.Errorf("resampling %d -> %d: %w", b.SampleRate, rate, err)
	}

	samples := make([]int16, len(out))
	for i, s := range out {
		switch {
		case s > 1.0:
			samples[i] = 32767
		case s < -1.0:
			samples[i] = -32768
		default:
			samples[i] = int16(s * 32767.0)
		}
	}
	return &Buffer{Samples: samples, SampleRate: rate, Channels: b.Channels}, nil
}

// PCM returns the samples as little-endian 16-bit PCM bytes.
func (b *Buffer) PCM() []byte {
	out := make([]byte, 2*len(b.Samples))
	for i, s := range b.Samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// WriteRaw writes the samples as headerless little-endian PCM.
func (b *Buffer) WriteRaw(w io.Writer) error {
	_, err := w.Write(b.PCM())
	return err
}

// WAV returns the buffer wrapped in a RIFF/WAVE container.
func (b *Buffer) WAV() []byte {
	pcm := b.PCM()
	dataLen := len(pcm)
	fileLen := 36 + dataLen // 44-byte header minus the 8-byte RIFF preamble
	const bytesPerSample = 2

	buf := &bytes.Buffer{}
	buf.Grow(44 + dataLen)

	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(fileLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(buf, binary.LittleEndian, uint16(b.Channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(b.SampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(b.SampleRate*b.Channels*bytesPerSample))
	_ = binary.Write(buf, binary.LittleEndian, uint16(b.Channels*bytesPerSample))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bytesPerSample*8))

	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(pcm)

	return buf.Bytes()
}

// DecodePCM converts little-endian 16-bit PCM bytes to samples. A trailing odd
// byte is dropped.
func DecodePCM(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}
	return samples
}
