package keepalive

import (
	"path"
	"strings"
)

// Endpoint joins the server base URL and the API path into the keepalive
// submission URL. The path gets a leading slash when it lacks one and
// duplicate slashes are collapsed, so sloppy operator input still yields one
// canonical URL.
func Endpoint(serverURL, apiPath string) string {
	return joinURL(serverURL, apiPath, "keepalive")
}

func joinURL(base string, elems ...string) string {
	base = strings.TrimRight(base, "/")
	return base + path.Join(append([]string{"/"}, elems...)...)
}
