package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
)

// Fingerprint hashes a request path and its parameters. Parameters are
// encoded sorted by key, so map iteration order never changes the result.
func Fingerprint(path string, params map[string]string) string {
	values := make(url.Values, len(params))
	for k, v := range params {
		values.Set(k, v)
	}
	sum := sha256.Sum256([]byte(path + "?" + values.Encode()))
	return hex.EncodeToString(sum[:])
}
