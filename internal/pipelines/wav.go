package pipelines

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// PCM is decoded 16-bit mono audio.
type PCM struct {
	SampleRate int
	Samples    []int16
}

// Duration in seconds.
func (p *PCM) Duration() float64 {
	if p.SampleRate == 0 {
		return 0
	}
	return float64(len(p.Samples)) / float64(p.SampleRate)
}

// ReadWAV decodes a file written by ExtractAudio.
func ReadWAV(path string) (*PCM, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wav: %w", err)
	}
	return DecodeWAV(data)
}

// DecodeWAV parses a RIFF/WAVE buffer holding mono 16-bit PCM. Chunks other
// than "fmt " and "data" are skipped.
func DecodeWAV(data []byte) (*PCM, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, errors.New("wav: not a RIFF/WAVE file")
	}

	var (
		pcm     PCM
		haveFmt bool
	)
	r := bytes.NewReader(data[12:])
	for {
		var hdr struct {
			ID   [4]byte
			Size uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("wav: chunk header: %w", err)
		}
		// ffmpeg streaming to a pipe leaves the data size as 0 or 0xFFFFFFFF.
		size := int64(hdr.Size)
		if remaining := int64(r.Len()); size > remaining || (string(hdr.ID[:]) == "data" && size == 0) {
			size = remaining
		}

		switch string(hdr.ID[:]) {
		case "fmt ":
			var f struct {
				Format        uint16
				Channels      uint16
				SampleRate    uint32
				ByteRate      uint32
				BlockAlign    uint16
				BitsPerSample uint16
			}
			if size < 16 {
				return nil, errors.New("wav: short fmt chunk")
			}
			if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
				return nil, fmt.Errorf("wav: fmt chunk: %w", err)
			}
			if f.Format != 1 || f.Channels != 1 || f.BitsPerSample != 16 {
				return nil, fmt.Errorf("wav: want mono 16-bit PCM, got format=%d channels=%d bits=%d",
					f.Format, f.Channels, f.BitsPerSample)
			}
			pcm.SampleRate = int(f.SampleRate)
			haveFmt = true
			if _, err := r.Seek(size-16, io.SeekCurrent); err != nil {
				return nil, err
			}
		case "data":
			if !haveFmt {
				return nil, errors.New("wav: data chunk before fmt chunk")
			}
			pcm.Samples = make([]int16, size/2)
			if err := binary.Read(r, binary.LittleEndian, pcm.Samples); err != nil {
				return nil, fmt.Errorf("wav: data chunk: %w", err)
			}
			return &pcm, nil
		default:
			if _, err := r.Seek(size+size%2, io.SeekCurrent); err != nil {
				return nil, err
			}
		}
	}
	return nil, errors.New("wav: no data chunk")
}

// EncodeWAV writes samples as a mono 16-bit WAV.
func EncodeWAV(w io.Writer, pcm *PCM) error {
	dataLen := uint32(len(pcm.Samples) * 2)
	hdr := struct {
		RIFF          [4]byte
		Size          uint32
		WAVE          [4]byte
		Fmt           [4]byte
		FmtSize       uint32
		Format        uint16
		Channels      uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
		Data          [4]byte
		DataSize      uint32
	}{
		RIFF: [4]byte{'R', 'I', 'F', 'F'}, Size: 36 + dataLen, WAVE: [4]byte{'W', 'A', 'V', 'E'},
		Fmt: [4]byte{'f', 'm', 't', ' '}, FmtSize: 16, Format: 1, Channels: 1,
		SampleRate: uint32(pcm.SampleRate), ByteRate: uint32(pcm.SampleRate * 2), BlockAlign: 2, BitsPerSample: 16,
		Data: [4]byte{'d', 'a', 't', 'a'}, DataSize: dataLen,
	}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, pcm.Samples)
}
