package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"cuiregistry/internal/cui"
)

// hashSeparator cannot appear in scraped cell text.
const hashSeparator = "\x1f"

// RowHash is the hex SHA-256 of a record's trimmed fields. It identifies a
// record's content independent of its position in the run.
func RowHash(r cui.Record) string {
	fields := []string{
		r.Organization,
		r.Category,
		r.Authority,
		string(r.Designation),
		r.Safeguarding,
		cui.JoinSanctions(r.Sanctions),
		r.SourceURL,
	}
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteString(hashSeparator)
		}
		b.WriteString(strings.TrimSpace(f))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
