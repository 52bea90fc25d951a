package openai

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildWAV assembles a minimal PCM WAV with the given byte rate and data
// payload size.
func buildWAV(byteRate, dataSize uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate/2))
	binary.Write(&buf, binary.LittleEndian, byteRate)
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataSize)
	buf.Write(make([]byte, dataSize))
	return buf.Bytes()
}

func TestWAVDuration(t *testing.T) {
	tests := []struct {
		name     string
		byteRate uint32
		dataSize uint32
		want     time.Duration
	}{
		{name: "one second", byteRate: 48000, dataSize: 48000, want: time.Second},
		{name: "half second", byteRate: 48000, dataSize: 24000, want: 500 * time.Millisecond},
		{name: "empty data", byteRate: 48000, dataSize: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := wavDuration(bytes.NewReader(buildWAV(tt.byteRate, tt.dataSize)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWAVDurationRejectsGarbage(t *testing.T) {
	_, err := wavDuration(bytes.NewReader([]byte("this is not a wav file at all")))
	assert.Error(t, err)
}

func TestWAVDurationSkipsUnknownChunks(t *testing.T) {
	wav := buildWAV(48000, 48000)

	// Splice a LIST chunk between fmt and data.
	var buf bytes.Buffer
	buf.Write(wav[:36])
	buf.WriteString("LIST")
	binary.Write(&buf, binary.LittleEndian, uint32(4))
	buf.WriteString("INFO")
	buf.Write(wav[36:])

	got, err := wavDuration(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, time.Second, got)
}
