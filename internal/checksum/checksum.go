package checksum

import (
	"crypto/sha256"
	"fmt"
	"io"

	"offers-harvester/internal/offer"
)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// GenerateOfferHash hashes one offer.
// Formula: SHA256(category|product|image|normal|discount|actual|savings)
func (g *Generator) GenerateOfferHash(o offer.Derived) string {
	h := sha256.New()
	writeOffer(h, o)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// GenerateSnapshotHash hashes a whole snapshot, order included, so two
// writes of the same offers in the same order share a fingerprint.
func (g *Generator) GenerateSnapshotHash(offers []offer.Derived) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d\n", len(offers))
	for _, o := range offers {
		writeOffer(h, o)
		_, _ = io.WriteString(h, "\n")
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// VerifySnapshotHash reports whether offers still match expectedHash.
func (g *Generator) VerifySnapshotHash(expectedHash string, offers []offer.Derived) bool {
	return g.GenerateSnapshotHash(offers) == expectedHash
}

func writeOffer(w io.Writer, o offer.Derived) {
	fmt.Fprintf(w, "%s|%s|%s|%s|%s|%s|%s",
		o.Category, o.Product, o.Image, o.NormalPrice, o.Discount, o.ActualPrice, o.Savings)
}
