package acquire

// links.go rewrites cloud-sharing links into direct-download URLs. Share
// links from these hosts land on an HTML viewer page rather than the file
// itself, so downloading them verbatim yields a web page instead of an
// archive.

import (
	"net/url"
	"strings"
)

// NormalizeLink rewrites known cloud-sharing URL shapes into direct-download
// form. URLs from unrecognized hosts are returned unchanged, as is anything
// that fails to parse.
func NormalizeLink(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	switch strings.ToLower(u.Hostname()) {
	case "drive.google.com":
		if id := driveFileID(u); id != "" {
			return "https://drive.google.com/uc?export=download&id=" + url.QueryEscape(id)
		}
	case "www.dropbox.com", "dropbox.com":
		q := u.Query()
		if q.Get("dl") != "1" {
			q.Set("dl", "1")
			u.RawQuery = q.Encode()
			return u.String()
		}
	}

	return raw
}

// driveFileID pulls the file ID out of the URL shapes Google Drive uses:
// a /file/d/<id>/... path segment, or an id query parameter on /open and
// /uc links.
func driveFileID(u *url.URL) string {
	if id := u.Query().Get("id"); id != "" {
		return id
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "d" && parts[i+1] != "" {
			return parts[i+1]
		}
	}
	return ""
}
