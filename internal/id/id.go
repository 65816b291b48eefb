// Package id generates the identifiers stubd hands out at runtime:
// request log entry ids and short tokens for live feed subscribers.
package id

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// Request returns a fresh request log entry id.
func Request() string {
	return "req-" + uuid.NewString()
}

// Short returns an 8-character random hex token for places where a full
// UUID is noise (subscriber handles, generated endpoint names).
func Short() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
