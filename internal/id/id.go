// Package id generates identifiers and invitation codes.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// codeAlphabet excludes characters that are easy to misread (0/O, 1/I/L).
	codeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"
	// CodeLength is the default invitation code length.
	CodeLength = 10
)

// Generate creates a prefixed unique ID using NanoID.
// Format: prefix-nanoid (e.g., "inv-V1StGXR8_Z5jdHi6B-myT").
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// NewCode generates an invitation code of the given length from an
// unambiguous upper-case alphabet. A length <= 0 uses CodeLength.
func NewCode(length int) (string, error) {
	if length <= 0 {
		length = CodeLength
	}
	code, err := gonanoid.Generate(codeAlphabet, length)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return code, nil
}
