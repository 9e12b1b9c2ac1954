package span

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainSpan is the domain prefix for span content hashes.
// The version suffix enables future algorithm migration.
const DomainSpan = "spanos/span/v1"

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null separator prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash computes the content hash of arbitrary bytes under the span domain.
// Exposed to executed kernels via the capability context.
func Hash(data []byte) string {
	return hashWithDomain(DomainSpan, data)
}

// ContentHash computes the canonical content hash of a span. Signature and
// curr_hash are excluded so the hash covers exactly the signed content, and
// empty fields are omitted so the hash is stable across storage round trips.
func ContentHash(s Span) (string, error) {
	canonical, err := MarshalCanonical(hashableFields(s))
	if err != nil {
		return "", fmt.Errorf("ContentHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSpan, canonical), nil
}

// MustContentHash is like ContentHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustContentHash(s Span) string {
	h, err := ContentHash(s)
	if err != nil {
		panic(err)
	}
	return h
}

// hashableFields builds the hash input: every populated field except the
// integrity pair, keyed by wire name.
func hashableFields(s Span) map[string]any {
	m := map[string]any{
		"id":          s.ID,
		"seq":         s.Seq,
		"entity_type": s.EntityType,
		"at":          s.At,
	}
	putStr := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	putStr("who", s.Who)
	putStr("did", s.Did)
	putStr("this", s.This)
	putStr("status", s.Status)
	putStr("name", s.Name)
	putStr("description", s.Description)
	putStr("code", s.Code)
	putStr("language", s.Language)
	putStr("runtime", s.Runtime)
	putStr("owner_id", s.OwnerID)
	putStr("tenant_id", s.TenantID)
	putStr("visibility", s.Visibility)
	putStr("parent_id", s.ParentID)
	putStr("trace_id", s.TraceID)
	putStr("public_key", s.PublicKey)
	if len(s.RelatedTo) > 0 {
		m["related_to"] = s.RelatedTo
	}
	if len(s.Input) > 0 {
		m["input"] = s.Input
	}
	if len(s.Output) > 0 {
		m["output"] = s.Output
	}
	if len(s.Error) > 0 {
		m["error"] = s.Error
	}
	if len(s.Metadata) > 0 {
		m["metadata"] = s.Metadata
	}
	if s.DurationMS != 0 {
		m["duration_ms"] = s.DurationMS
	}
	return m
}

// Sign produces a hex signature over the raw bytes of a hex content hash.
func Sign(priv ed25519.PrivateKey, hashHex string) (string, error) {
	msg, err := hex.DecodeString(hashHex)
	if err != nil {
		return "", fmt.Errorf("sign: decode hash: %w", err)
	}
	return hex.EncodeToString(ed25519.Sign(priv, msg)), nil
}

// VerifySignature checks a hex ed25519 signature over a hex content hash
// with a hex public key. Malformed inputs verify as false with an error.
func VerifySignature(pubHex, hashHex, sigHex string) (bool, error) {
	pub, err := hex.DecodeString(pubHex)
	if err != nil {
		return false, fmt.Errorf("verify: decode public key: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("verify: public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	msg, err := hex.DecodeString(hashHex)
	if err != nil {
		return false, fmt.Errorf("verify: decode hash: %w", err)
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("verify: decode signature: %w", err)
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig), nil
}
