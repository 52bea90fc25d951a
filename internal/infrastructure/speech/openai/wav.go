package openai

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// WAVDuration reads a RIFF/WAVE file's fmt and data chunks and computes the
// playback duration without decoding samples.
func WAVDuration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return wavDuration(f)
}

func wavDuration(r io.ReadSeeker) (time.Duration, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return 0, fmt.Errorf("reading RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return 0, errors.New("not a RIFF/WAVE file")
	}

	var byteRate uint32
	var dataSize uint32
	haveFmt, haveData := false, false

	for !(haveFmt && haveData) {
		var header [8]byte
		if _, err := io.ReadFull(r, header[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return 0, fmt.Errorf("reading chunk header: %w", err)
		}
		chunkID := string(header[0:4])
		chunkSize := binary.LittleEndian.Uint32(header[4:8])

		switch chunkID {
		case "fmt ":
			var fmtChunk [16]byte
			if _, err := io.ReadFull(r, fmtChunk[:]); err != nil {
				return 0, fmt.Errorf("reading fmt chunk: %w", err)
			}
			byteRate = binary.LittleEndian.Uint32(fmtChunk[8:12])
			haveFmt = true
			if chunkSize > 16 {
				if _, err := r.Seek(int64(chunkSize-16), io.SeekCurrent); err != nil {
					return 0, fmt.Errorf("skipping fmt extension: %w", err)
				}
			}
		case "data":
			dataSize = chunkSize
			haveData = true
			if _, err := r.Seek(int64(chunkSize), io.SeekCurrent); err != nil {
				return 0, fmt.Errorf("skipping data chunk: %w", err)
			}
		default:
			// Chunks are word-aligned; odd sizes carry a pad byte.
			skip := int64(chunkSize)
			if chunkSize%2 == 1 {
				skip++
			}
			if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
				return 0, fmt.Errorf("skipping %s chunk: %w", chunkID, err)
			}
		}
	}

	if !haveFmt || !haveData {
		return 0, errors.New("missing fmt or data chunk")
	}
	if byteRate == 0 {
		return 0, errors.New("zero byte rate")
	}
	seconds := float64(dataSize) / float64(byteRate)
	return time.Duration(seconds * float64(time.Second)), nil
}
