// internal/domain/ledger/hash.go
package ledger

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// canonicalVersion prefixes the serialization so the format can evolve
// without reinterpreting old chains.
const canonicalVersion = "inventory-event/v1"

// moneyScale is the fixed number of decimal places used for money fields
// in storage and in the canonical form.
const moneyScale = 4

// CanonicalBytes serializes every field of the event except EventHash in a
// fixed order. Fields are separated by a NUL byte so adjacent values cannot
// be shifted into each other. Append and verify both go through here.
func CanonicalBytes(e *InventoryEvent) []byte {
	fields := []string{
		canonicalVersion,
		e.ID.String(),
		e.TenantID,
		string(e.EventType),
		e.CatalogItemID.String(),
		e.LotID.String(),
		e.LocationID.String(),
		strconv.FormatInt(e.Quantity, 10),
		e.UnitCost.StringFixed(moneyScale),
		e.Currency,
		e.ValueDelta.StringFixed(moneyScale),
		string(e.ReferenceType),
		e.ReferenceID,
		derefString(e.CounterpartyID),
		derefString(e.PrevEventHash),
		strconv.FormatInt(e.SequenceNumber, 10),
		e.ActorID,
		canonicalTime(e.CreatedAt),
	}
	return []byte(strings.Join(fields, "\x00"))
}

// ComputeHash returns the hex SHA-256 of the event's canonical form
func ComputeHash(e *InventoryEvent) string {
	sum := sha256.Sum256(CanonicalBytes(e))
	return hex.EncodeToString(sum[:])
}

// hashEqual compares two hashes in constant time
func hashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// canonicalTime renders timestamps at the microsecond precision every
// supported database preserves.
func canonicalTime(t time.Time) string {
	return t.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// shortHash returns a truncated hash for log lines
func shortHash(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:8] + "..." + hash[len(hash)-4:]
}
