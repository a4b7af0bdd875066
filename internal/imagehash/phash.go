// Package imagehash computes perceptual-hash fingerprints for duplicate
// detection. Hashes are computed here but never compared by this service.
package imagehash

import (
	"bytes"
	"fmt"
	"image"

	// Register the decoders for the formats the gallery serves.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/corona10/goimagehash"
)

// Perceptual implements moderation.Fingerprinter with a 64-bit pHash.
type Perceptual struct{}

// New constructs a Perceptual fingerprinter.
func New() *Perceptual {
	return &Perceptual{}
}

// Fingerprint decodes data and returns the perceptual hash in its canonical
// string form (e.g. "p:c3d4e1a2b5f60789").
func (*Perceptual) Fingerprint(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return "", fmt.Errorf("perception hash: %w", err)
	}
	return hash.ToString(), nil
}
