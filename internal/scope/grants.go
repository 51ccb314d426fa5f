package scope

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// keySeparator stands in for "/" while matching so that doublestar's "*"
// spans key segments the way an IAM resource wildcard does.
const keySeparator = "\x1f"

var iamEscaper = strings.NewReplacer(
	`\`, `\\`,
	`[`, `\[`,
	`]`, `\]`,
	`{`, `\{`,
	`}`, `\}`,
	"/", keySeparator,
)

// Grants reports which pattern, if any, allows reading key from bucket.
// "*" matches any run of characters including "/" and "?" matches exactly
// one character.
func (bp BucketPaths) Grants(bucket, key string) (string, bool) {
	name := strings.ReplaceAll(key, "/", keySeparator)
	for _, b := range bp {
		if b.Bucket != bucket {
			continue
		}
		for _, p := range b.Patterns {
			ok, err := doublestar.Match(iamEscaper.Replace(p), name)
			if err == nil && ok {
				return p, true
			}
		}
	}
	return "", false
}

// Lookup returns the patterns configured for bucket
func (bp BucketPaths) Lookup(bucket string) ([]string, bool) {
	for _, b := range bp {
		if b.Bucket == bucket {
			return b.Patterns, true
		}
	}
	return nil, false
}
