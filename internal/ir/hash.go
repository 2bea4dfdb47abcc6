package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainStatement = "pgquery/statement/v1"
	DomainSQL       = "pgquery/sql/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// StatementHash computes the content-addressed identity of a statement
// description. The description is any value MarshalCanonical accepts;
// callers build it from the statement's fields so that two descriptions
// with equal content hash equally regardless of map order.
func StatementHash(description Object) (string, error) {
	canonical, err := MarshalCanonical(description)
	if err != nil {
		return "", fmt.Errorf("StatementHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainStatement, canonical), nil
}

// SQLHash computes the identity of rendered SQL text.
func SQLHash(sql string) string {
	return hashWithDomain(DomainSQL, []byte(sql))
}
