package agentengine

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"regexp"
)

// matchesAny reports whether path matches any glob pattern in patterns.
func matchesAny(patterns []string, path string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, path); ok {
			return true
		}
	}
	return false
}

// matchesAnyRegex reports whether command matches any regex pattern.
// Malformed patterns are skipped rather than treated as a match, so a typo
// in configuration fails closed only for the patterns that do compile.
func matchesAnyRegex(patterns []string, command string) bool {
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		if re.MatchString(command) {
			return true
		}
	}
	return false
}

// digest produces a short content-addressable identifier for a read path,
// used to reconstitute read-tracking sets from tool_result metadata alone.
func digest(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:8])
}
