package wav

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// Header describes a decoded WAV stream.
type Header struct {
	SampleRate    uint32
	NumChannels   uint16
	BitsPerSample uint16
	DataSize      uint32
}

// Duration returns the playing time the header describes.
func (h Header) Duration() time.Duration {
	bytesPerSecond := h.SampleRate * uint32(h.NumChannels) * uint32(h.BitsPerSample) / 8
	if bytesPerSecond == 0 {
		return 0
	}
	return time.Duration(float64(h.DataSize) / float64(bytesPerSecond) * float64(time.Second))
}

// Decode parses an in-memory WAV stream and returns its header and PCM
// payload. Only PCM-encoded streams are accepted.
func Decode(data []byte) (Header, []byte, error) {
	r := bytes.NewReader(data)

	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return Header{}, nil, fmt.Errorf("short RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return Header{}, nil, fmt.Errorf("not a WAV stream")
	}

	var h Header
	var pcm []byte
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return Header{}, nil, fmt.Errorf("reading chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			var fmtChunk [16]byte
			if _, err := io.ReadFull(r, fmtChunk[:]); err != nil {
				return Header{}, nil, fmt.Errorf("short fmt chunk: %w", err)
			}
			if format := binary.LittleEndian.Uint16(fmtChunk[0:2]); format != 1 {
				return Header{}, nil, fmt.Errorf("unsupported WAV format %d (want PCM)", format)
			}
			h.NumChannels = binary.LittleEndian.Uint16(fmtChunk[2:4])
			h.SampleRate = binary.LittleEndian.Uint32(fmtChunk[4:8])
			h.BitsPerSample = binary.LittleEndian.Uint16(fmtChunk[14:16])
			if size > 16 {
				if _, err := r.Seek(int64(size-16), io.SeekCurrent); err != nil {
					return Header{}, nil, err
				}
			}
		case "data":
			pcm = make([]byte, size)
			if _, err := io.ReadFull(r, pcm); err != nil {
				return Header{}, nil, fmt.Errorf("short data chunk: %w", err)
			}
			h.DataSize = size
		default:
			if _, err := r.Seek(int64(size), io.SeekCurrent); err != nil {
				return Header{}, nil, err
			}
		}
	}

	if h.SampleRate == 0 {
		return Header{}, nil, fmt.Errorf("missing fmt chunk")
	}
	if pcm == nil {
		return Header{}, nil, fmt.Errorf("missing data chunk")
	}
	return h, pcm, nil
}
