package bundle

import (
	"path"
	"strings"
)

// HashToken is replaced by the content hash when it appears in an output key.
const HashToken = "#"

// ExpandAppRelative expands a leading "~/" to appPath. Other paths are
// returned unchanged.
func ExpandAppRelative(appPath, p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	rest := p[2:]
	if appPath == "" {
		return rest
	}
	return strings.TrimSuffix(appPath, "/") + "/" + rest
}

// StorageKey maps an application path to the bucket key that holds it:
// the query string and any "~/" or "/" root are dropped.
func StorageKey(p string) string {
	p = stripQuery(p)
	p = strings.TrimPrefix(p, "~/")
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return ""
	}
	return path.Clean(p)
}

func stripQuery(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		return p[:i]
	}
	return p
}

// appendHash adds the r=<hash> cache-busting parameter to path.
func appendHash(p, hash string) string {
	sep := "?"
	if strings.Contains(p, "?") {
		sep = "&"
	}
	return p + sep + "r=" + hash
}
