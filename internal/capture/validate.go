package capture

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrUnknownContainer is returned when a chunk payload does not start with a
// recognized audio container signature. Encoder restart races can emit
// headerless fragments; dropping them locally is cheaper than a guaranteed
// server-side decode failure.
var ErrUnknownContainer = errors.New("unrecognized audio container")

var containerSignatures = []struct {
	name   string
	offset int
	magic  []byte
}{
	{"webm", 0, []byte{0x1A, 0x45, 0xDF, 0xA3}}, // EBML header
	{"ogg", 0, []byte("OggS")},
	{"wav", 0, []byte("RIFF")},
	{"flac", 0, []byte("fLaC")},
	{"mp3", 0, []byte("ID3")},
}

// DetectContainer inspects the leading bytes of a chunk payload and returns
// the container name, or ErrUnknownContainer if no signature matches.
func DetectContainer(payload []byte) (string, error) {
	for _, sig := range containerSignatures {
		end := sig.offset + len(sig.magic)
		if len(payload) >= end && bytes.Equal(payload[sig.offset:end], sig.magic) {
			return sig.name, nil
		}
	}
	// Raw MPEG audio frames have no container magic, just a frame sync.
	if len(payload) >= 2 && payload[0] == 0xFF && payload[1]&0xE0 == 0xE0 {
		return "mp3", nil
	}
	return "", fmt.Errorf("%w (%d byte payload)", ErrUnknownContainer, len(payload))
}
