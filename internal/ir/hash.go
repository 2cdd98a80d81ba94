package ir

import (
	"crypto/sha256"
	"encoding/hex"
)

// Domain prefixes for content digests. The version suffix allows a future
// algorithm change without ambiguity.
const (
	DomainTransaction = "connect/transaction/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TransactionDigest returns the digest stored next to a WAL payload.
// Journals recompute it on read so a torn or edited entry is detectable.
func TransactionDigest(payload []byte) string {
	return hashWithDomain(DomainTransaction, payload)
}
