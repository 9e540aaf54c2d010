// Package uuid generates time-ordered identifiers for database rows.
package uuid

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	googleuuid "github.com/google/uuid"
)

// New generates a UUIDv7 based on the current timestamp. Time-ordered IDs
// keep ledger rows naturally clustered by creation time, which the
// company-shareholder detection (earliest row wins) relies on as a
// tie-breaker next to created_at.
func New() string {
	var uuid [16]byte

	timestamp := uint64(time.Now().UnixMilli())
	binary.BigEndian.PutUint64(uuid[0:8], timestamp<<16)

	if _, err := rand.Read(uuid[6:]); err != nil {
		// Fall back to a random v4 if the entropy source fails.
		return googleuuid.New().String()
	}

	// Version 7 and RFC 4122 variant bits.
	uuid[6] = (uuid[6] & 0x0f) | 0x70
	uuid[8] = (uuid[8] & 0x3f) | 0x80

	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		binary.BigEndian.Uint32(uuid[0:4]),
		binary.BigEndian.Uint16(uuid[4:6]),
		binary.BigEndian.Uint16(uuid[6:8]),
		binary.BigEndian.Uint16(uuid[8:10]),
		uuid[10:16],
	)
}

// IsValid checks whether a string is a valid UUID.
func IsValid(s string) bool {
	_, err := googleuuid.Parse(s)
	return err == nil
}
