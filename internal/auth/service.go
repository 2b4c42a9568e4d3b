// Package auth terminates the trust boundary between this service and the
// upstream identity provider. End users never authenticate here; the
// gateway that fronts the back office does, with a pre-shared API key, and
// forwards the already-validated actor identity in request headers.
package auth

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Verifier checks gateway credentials against bcrypt hashes loaded at boot.
type Verifier struct {
	keyHashes [][]byte
}

// NewVerifier constructs a Verifier from bcrypt-hashed API keys. Multiple
// hashes allow zero-downtime key rotation.
func NewVerifier(hashes []string) *Verifier {
	v := &Verifier{}
	for _, h := range hashes {
		if h == "" {
			continue
		}
		v.keyHashes = append(v.keyHashes, []byte(h))
	}
	return v
}

// Verify validates a presented API key. An empty verifier rejects everything.
func (v *Verifier) Verify(key string) error {
	if v == nil || len(v.keyHashes) == 0 || key == "" {
		return shared.ErrUnauthorized
	}
	for _, hash := range v.keyHashes {
		if bcrypt.CompareHashAndPassword(hash, []byte(key)) == nil {
			return nil
		}
	}
	return shared.ErrUnauthorized
}
