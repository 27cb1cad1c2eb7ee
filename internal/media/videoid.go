package media

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strings"
)

// ExtractVideoID derives a stable video identifier from a source URL.
// Recognized YouTube forms (watch?v=, youtu.be/, /embed/, /shorts/) yield the
// platform id; anything else falls back to a hash of the URL string so every
// reachable URL maps to a deterministic id.
func ExtractVideoID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err == nil {
		if v := u.Query().Get("v"); v != "" {
			return v
		}
		host := strings.TrimPrefix(u.Hostname(), "www.")
		path := strings.Trim(u.Path, "/")
		if host == "youtu.be" && path != "" {
			return firstPathSegment(path)
		}
		for _, prefix := range []string{"embed/", "shorts/", "v/"} {
			if rest, ok := strings.CutPrefix(path, prefix); ok && rest != "" {
				return firstPathSegment(rest)
			}
		}
	}
	sum := md5.Sum([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

func firstPathSegment(p string) string {
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return p
}
