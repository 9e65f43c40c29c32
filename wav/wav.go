// A very simple WAVE file reader and writer.
// The writer patches the RIFF and data sizes in Finish so the amount of
// audio does not need to be known up front.
// See http://soundfile.sapp.org/doc/WaveFormat/ for format
// documentation.

package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const PCM = 1

var ErrFormat = errors.New("wav: unsupported format")

type Writer struct {
	WS     io.WriteSeeker
	Format Format
}

type Format struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// NewFormat fills in the derived fields of a PCM format.
func NewFormat(sampleRate, channels, bits int) Format {
	f := Format{
		AudioFormat:   PCM,
		Channels:      uint16(channels),
		SampleRate:    uint32(sampleRate),
		BitsPerSample: uint16(bits),
	}
	f.BlockAlign = uint16(channels * bits / 8)
	f.ByteRate = uint32(sampleRate) * uint32(f.BlockAlign)
	return f
}

// WriteFrame writes interleaved 16-bit samples.
func (w *Writer) WriteFrame(samples []int16) error {
	return binary.Write(w.WS, binary.LittleEndian, samples)
}

// Write writes raw sample bytes, already in the writer's format.
func (w *Writer) Write(p []byte) (int, error) {
	return w.WS.Write(p)
}

func (w *Writer) Finish() (int64, error) {
	wlen, err := w.WS.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}

	offset, err := w.WS.Seek(4, io.SeekStart)
	if offset != 4 || err != nil {
		return 0, err
	}
	if err := binary.Write(w.WS, binary.LittleEndian, int32(wlen-8)); err != nil {
		return 0, err
	}
	offset, err = w.WS.Seek(40, io.SeekStart)
	if offset != 40 || err != nil {
		return 0, err
	}
	if err := binary.Write(w.WS, binary.LittleEndian, int32(wlen-44)); err != nil {
		return 0, err
	}
	if _, err := w.WS.Seek(wlen, io.SeekStart); err != nil {
		return 0, err
	}

	return wlen, nil
}

// NewWriter starts a 16-bit stereo file.
func NewWriter(ws io.WriteSeeker, sampleRate int) (*Writer, error) {
	return NewWriterFormat(ws, NewFormat(sampleRate, 2, 16))
}

func NewWriterFormat(ws io.WriteSeeker, format Format) (*Writer, error) {
	writer := &Writer{WS: ws, Format: format}

	if _, err := ws.Write([]byte("RIFF")); err != nil {
		return nil, err
	}

	// Write out zero for now, come back and fill this later
	if err := binary.Write(ws, binary.LittleEndian, int32(0)); err != nil {
		return nil, err
	}

	if _, err := ws.Write([]byte("WAVE")); err != nil {
		return nil, err
	}

	// Write format chunk
	if _, err := ws.Write([]byte("fmt ")); err != nil {
		return nil, err
	}
	if err := binary.Write(ws, binary.LittleEndian, int32(16)); err != nil {
		return nil, err
	}
	if err := binary.Write(ws, binary.LittleEndian, format); err != nil {
		return nil, err
	}

	// Write data chunk header
	if _, err := ws.Write([]byte("data")); err != nil {
		return nil, err
	}
	// Write out zero for the data size for now, come back and fill this later
	if err := binary.Write(ws, binary.LittleEndian, int32(0)); err != nil {
		return nil, err
	}

	return writer, nil
}

// Decode reads a PCM WAVE file, skipping chunks other than fmt and data.
// Only 8 and 16-bit PCM is accepted.
func Decode(r io.Reader) (Format, []byte, error) {
	var format Format

	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return format, nil, err
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return format, nil, fmt.Errorf("%w: not a RIFF/WAVE file", ErrFormat)
	}

	haveFmt := false
	for {
		var hdr struct {
			ID   [4]byte
			Size uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
			if errors.Is(err, io.EOF) {
				return format, nil, fmt.Errorf("%w: no data chunk", ErrFormat)
			}
			return format, nil, err
		}
		// Chunks are padded to an even size
		size := int64(hdr.Size) + int64(hdr.Size&1)

		switch string(hdr.ID[:]) {
		case "fmt ":
			if hdr.Size < 16 {
				return format, nil, fmt.Errorf("%w: short fmt chunk", ErrFormat)
			}
			if err := binary.Read(r, binary.LittleEndian, &format); err != nil {
				return format, nil, err
			}
			if _, err := io.CopyN(io.Discard, r, size-16); err != nil {
				return format, nil, err
			}
			if format.AudioFormat != PCM {
				return format, nil, fmt.Errorf("%w: audio format %d", ErrFormat, format.AudioFormat)
			}
			if format.BitsPerSample != 8 && format.BitsPerSample != 16 {
				return format, nil, fmt.Errorf("%w: %d bits per sample", ErrFormat, format.BitsPerSample)
			}
			if format.Channels == 0 {
				return format, nil, fmt.Errorf("%w: zero channels", ErrFormat)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return format, nil, fmt.Errorf("%w: data before fmt", ErrFormat)
			}
			// The header size is untrusted, grow with what is actually read
			data, err := io.ReadAll(io.LimitReader(r, int64(hdr.Size)))
			if err != nil {
				return format, nil, err
			}
			if len(data) < int(hdr.Size) {
				return format, nil, io.ErrUnexpectedEOF
			}
			// Drop any partial trailing frame
			ba := int(format.BlockAlign)
			if ba == 0 {
				ba = int(format.Channels) * int(format.BitsPerSample) / 8
			}
			return format, data[:len(data)-len(data)%ba], nil
		default:
			if _, err := io.CopyN(io.Discard, r, size); err != nil {
				return format, nil, err
			}
		}
	}
}
