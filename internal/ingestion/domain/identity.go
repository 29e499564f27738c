package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// IdentityType enumerates the observable signals an Identity can represent
// (§3, GLOSSARY). ga_cid and future extensions share the same hashed-value
// shape, so the set is open-ended in storage even though §4.2 only accepts
// four values on ingress.
type IdentityType string

const (
	IdentityTypeCookie    IdentityType = "cookie"
	IdentityTypeUserID    IdentityType = "user_id"
	IdentityTypeEmailHash IdentityType = "email_hash"
	IdentityTypeGACID     IdentityType = "ga_cid"
)

// HashIdentityValue hashes a raw identity value for storage, per §3's
// invariant that "value never stored in plaintext". Email hashes arrive
// from the SDK already hashed (type email_hash implies the caller hashed
// it); this function is applied uniformly regardless, since a cookie or
// user_id value is just as much plaintext PII as an unhashed email.
func HashIdentityValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// Identity is a hashed observable pointing at a customer (§3, GLOSSARY).
// Unique per (website, type, value_hash); never deleted.
type Identity struct {
	ID        int64
	WebsiteID WebsiteID
	Type      IdentityType
	ValueHash string
	Timestamps
}

// NewIdentity constructs an Identity for interning. The ID is left zero
// until the repository assigns one.
func NewIdentity(websiteID WebsiteID, identityType IdentityType, rawValue string) *Identity {
	return &Identity{
		WebsiteID:  websiteID,
		Type:       identityType,
		ValueHash:  HashIdentityValue(rawValue),
		Timestamps: newTimestamps(),
	}
}
