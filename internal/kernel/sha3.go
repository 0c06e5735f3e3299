package kernel

import "golang.org/x/crypto/sha3"

// SHA3Hasher implements Hasher with SHA3-256, truncated to CsumBytes, the
// same primitive and truncation width the original checksum format uses.
type SHA3Hasher struct{}

// NewSHA3Hasher returns the default Hasher.
func NewSHA3Hasher() SHA3Hasher { return SHA3Hasher{} }

func (SHA3Hasher) Sum(dst []byte, data []byte) {
	full := sha3.Sum256(data)

	copy(dst, full[:len(dst)])
}
