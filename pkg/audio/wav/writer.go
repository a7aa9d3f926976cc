package wav

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Writer encodes 16-bit PCM samples as a WAV stream. The capture controller
// uses it to wrap raw microphone buffers before submission; since the whole
// clip lives in memory, the header is finalized in Bytes rather than by
// seeking back over a file.
type Writer struct {
	sampleRate    uint32
	numChannels   uint16
	bitsPerSample uint16
	data          bytes.Buffer
}

// NewWriter creates a WAV encoder for the given PCM format.
func NewWriter(sampleRate uint32, numChannels, bitsPerSample uint16) *Writer {
	return &Writer{
		sampleRate:    sampleRate,
		numChannels:   numChannels,
		bitsPerSample: bitsPerSample,
	}
}

// WritePCM appends raw little-endian PCM bytes. The caller is responsible for
// matching the format declared at construction.
func (w *Writer) WritePCM(pcm []byte) {
	w.data.Write(pcm)
}

// WriteSamples appends 16-bit samples, interleaved per channel.
func (w *Writer) WriteSamples(samples []int16) error {
	if w.bitsPerSample != 16 {
		return fmt.Errorf("WriteSamples requires 16-bit format, have %d", w.bitsPerSample)
	}
	return binary.Write(&w.data, binary.LittleEndian, samples)
}

// Bytes renders the complete WAV stream, header included.
func (w *Writer) Bytes() []byte {
	var out bytes.Buffer
	writeHeader(&out, w.sampleRate, w.numChannels, w.bitsPerSample, uint32(w.data.Len()))
	out.Write(w.data.Bytes())
	return out.Bytes()
}

// DataLen returns the number of PCM payload bytes written so far.
func (w *Writer) DataLen() int {
	return w.data.Len()
}

func writeHeader(out io.Writer, sampleRate uint32, numChannels, bitsPerSample uint16, dataSize uint32) {
	byteRate := sampleRate * uint32(numChannels) * uint32(bitsPerSample) / 8
	blockAlign := numChannels * bitsPerSample / 8

	io.WriteString(out, "RIFF")
	binary.Write(out, binary.LittleEndian, dataSize+36)
	io.WriteString(out, "WAVE")

	io.WriteString(out, "fmt ")
	binary.Write(out, binary.LittleEndian, uint32(16))
	binary.Write(out, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(out, binary.LittleEndian, numChannels)
	binary.Write(out, binary.LittleEndian, sampleRate)
	binary.Write(out, binary.LittleEndian, byteRate)
	binary.Write(out, binary.LittleEndian, blockAlign)
	binary.Write(out, binary.LittleEndian, bitsPerSample)

	io.WriteString(out, "data")
	binary.Write(out, binary.LittleEndian, dataSize)
}
