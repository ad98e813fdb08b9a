package application

import (
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// ErrChecksumMismatch is returned when a stored document no longer matches
// the checksum recorded at upload.
var ErrChecksumMismatch = errors.New("application: document checksum mismatch")

// documentChecksum returns the hex BLAKE2b-256 digest of data.
func documentChecksum(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// verifyDocument checks doc.Data against doc.Checksum. Documents stored
// without a checksum pass.
func verifyDocument(doc Document) error {
	if doc.Checksum == "" {
		return nil
	}
	if got := documentChecksum(doc.Data); got != doc.Checksum {
		return fmt.Errorf("%w: document %d has %s, recorded %s", ErrChecksumMismatch, doc.ID, got, doc.Checksum)
	}
	return nil
}
