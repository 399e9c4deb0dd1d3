package cdn

import (
	"fmt"
	"net/url"
	"strings"
)

// EncodeURL percent-encodes the path and query of a URL for submission to
// the CDN API. Path separators and the drive-style colon stay literal in
// the path; '=' and '&' stay literal in the query so parameter structure
// survives. Already-parseable URLs with multibyte names (common in media
// libraries) come out fully ASCII.
func EncodeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}

	encoded := u.Scheme + "://" + u.Host + escape(u.Path, "/:")
	if u.RawQuery != "" {
		encoded += "?" + escape(u.RawQuery, "=&")
	}
	return encoded
}

// escape percent-encodes every byte of s except unreserved characters and
// the ones listed in safe. Bytes already part of a valid %XX escape are
// re-encoded; callers pass decoded components.
func escape(s, safe string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) || strings.IndexByte(safe, c) >= 0 {
			sb.WriteByte(c)
			continue
		}
		fmt.Fprintf(&sb, "%%%02X", c)
	}
	return sb.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-' || c == '_' || c == '.' || c == '~':
		return true
	}
	return false
}
