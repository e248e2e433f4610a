package analysis

import (
	"encoding/binary"
	"io"
	"os"
)

// ProbeDuration reads the audio duration from a WAV file header. It is
// the cheap fallback used at admission time when no extractor sidecar
// is configured: a 44-byte-ish header read instead of a full decode.
// Returns ok=false for non-WAV containers or malformed headers;
// admission proceeds without a duration check in that case.
func ProbeDuration(path string) (seconds float64, ok bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	var riff [12]byte
	if _, err := io.ReadFull(f, riff[:]); err != nil {
		return 0, false
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return 0, false
	}

	var byteRate uint32
	var dataSize uint32

	// Walk the chunk list for "fmt " (byte rate) and "data" (payload size).
	var header [8]byte
	for {
		if _, err := io.ReadFull(f, header[:]); err != nil {
			break
		}
		chunkID := string(header[0:4])
		chunkSize := binary.LittleEndian.Uint32(header[4:8])

		switch chunkID {
		case "fmt ":
			var fmtBody [16]byte
			if chunkSize < 16 {
				return 0, false
			}
			if _, err := io.ReadFull(f, fmtBody[:]); err != nil {
				return 0, false
			}
			byteRate = binary.LittleEndian.Uint32(fmtBody[8:12])
			if skip := int64(chunkSize) - 16; skip > 0 {
				if _, err := f.Seek(skip, io.SeekCurrent); err != nil {
					return 0, false
				}
			}
		case "data":
			dataSize = chunkSize
		default:
			if _, err := f.Seek(int64(chunkSize), io.SeekCurrent); err != nil {
				return 0, false
			}
		}

		if byteRate > 0 && dataSize > 0 {
			return float64(dataSize) / float64(byteRate), true
		}
		if chunkID == "data" {
			// data chunk is typically last; skip its payload to keep walking
			if _, err := f.Seek(int64(chunkSize), io.SeekCurrent); err != nil {
				break
			}
		}
		// Chunks are word-aligned
		if chunkSize%2 == 1 {
			if _, err := f.Seek(1, io.SeekCurrent); err != nil {
				break
			}
		}
	}
	return 0, false
}
