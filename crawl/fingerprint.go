package crawl

import (
	"crypto/md5"
	"strings"
)

// Fingerprint hashes normalized (title, title, body) text into a 128-bit
// digest for duplicate-content detection, title double-weighted per spec
// §3 ("hash over normalized text with title double-weighted").
func Fingerprint(title, body string) [16]byte {
	normalized := strings.ToLower(strings.Join(strings.Fields(title), " ")) + " " +
		strings.ToLower(strings.Join(strings.Fields(title), " ")) + " " +
		strings.ToLower(strings.Join(strings.Fields(body), " "))
	return md5.Sum([]byte(normalized))
}
