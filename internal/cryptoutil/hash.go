// Package cryptoutil holds the digest helpers used to check that copied
// objects match their source.
package cryptoutil

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// HashEqual compares two hex digests in constant time, ignoring case.
// Empty digests never match.
func HashEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(a)), []byte(strings.ToLower(b))) == 1
}

// MD5Hex is the digest object stores report for single-part uploads.
func MD5Hex(data []byte) string {
	h := md5.Sum(data)
	return hex.EncodeToString(h[:])
}
