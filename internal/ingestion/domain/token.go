package domain

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"
)

// TokenPrefixLen is the length of the public, lookup-friendly prefix of an
// ingestion token's plaintext, as fixed by §3/§4.1: "prefix (12 chars)".
const TokenPrefixLen = 12

// IngestionToken authenticates a website's tracking SDK (§4.1, C1). Only the
// hash of the plaintext secret is ever persisted; the prefix exists purely
// so a lookup can find the row in O(1) before doing a constant-time
// comparison of the hash.
type IngestionToken struct {
	ID          int64
	WebsiteID   WebsiteID
	Prefix      string
	Hash        string
	ExpiresAt   *time.Time
	RevokedAt   *time.Time
	IPAllowlist []string
	LastUsedAt  *time.Time
	Timestamps
}

// ParsedToken is the result of splitting a bearer token's plaintext body
// into its lookup prefix and secret, per §4.1 step 1: "body has form
// <12 chars>.<rest>".
type ParsedToken struct {
	Prefix string
	Secret string
}

// ParseBearerToken splits an `Authorization: Bearer <prefix>.<secret>`
// header value. It only validates shape; prefix lookup and hash comparison
// happen downstream once the corresponding token row is known.
func ParseBearerToken(authHeader string) (ParsedToken, bool) {
	const schemePrefix = "Bearer "
	if !strings.HasPrefix(authHeader, schemePrefix) {
		return ParsedToken{}, false
	}

	body := strings.TrimPrefix(authHeader, schemePrefix)
	if body == "" {
		return ParsedToken{}, false
	}

	dot := strings.IndexByte(body, '.')
	if dot != TokenPrefixLen {
		return ParsedToken{}, false
	}

	prefix := body[:dot]
	secret := body[dot+1:]
	if secret == "" {
		return ParsedToken{}, false
	}

	return ParsedToken{Prefix: prefix, Secret: secret}, true
}

// HashTokenPlaintext computes the stored hash for a token's full plaintext
// (`<prefix>.<secret>`). SHA-256 over the whole plaintext, not a slow KDF:
// the secret already carries enough entropy from generation, and this path
// runs on every ingestion request.
func HashTokenPlaintext(prefix, secret string) string {
	sum := sha256.Sum256([]byte(prefix + "." + secret))
	return hex.EncodeToString(sum[:])
}

// VerifyHash compares a candidate hash to the token's stored hash in
// constant time, per §4.1 step 4.
func (t *IngestionToken) VerifyHash(candidateHash string) bool {
	return subtle.ConstantTimeCompare([]byte(t.Hash), []byte(candidateHash)) == 1
}

// IsExpired reports whether the token's expiry has passed, per §4.1 step 3.
func (t *IngestionToken) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}

// IsRevoked reports whether the token has been revoked, per §4.1 step 2.
// FindByPrefix returns revoked tokens too, so C1 can distinguish "revoked"
// from "not found" and report the right error code.
func (t *IngestionToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IPAllowed reports whether clientIP is permitted to use this token, per
// §4.1 step 5: an empty allowlist imposes no restriction; a non-empty one
// requires exact client-IP membership.
func (t *IngestionToken) IPAllowed(clientIP string) bool {
	if len(t.IPAllowlist) == 0 {
		return true
	}
	for _, allowed := range t.IPAllowlist {
		if allowed == clientIP {
			return true
		}
	}
	return false
}
