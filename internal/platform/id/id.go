// Package id mints offer and trade identifiers.
//
// An identifier is a random UUID rendered as 26 lowercase base32 characters,
// short enough for log lines and safe in URLs and idempotency keys.
package id

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var lowerBase32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a fresh identifier. It fails only when the system random
// source does.
func NewID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return strings.ToLower(lowerBase32.EncodeToString(u[:])), nil
}
