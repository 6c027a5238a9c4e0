package bluesky

import "strings"

// rkeyFromURI extracts the record key from an at:// URI
// (at://did:plc:xyz/app.bsky.feed.post/3kabc -> 3kabc).
func rkeyFromURI(uri string) string {
	i := strings.LastIndex(uri, "/")
	if i < 0 {
		return ""
	}
	return uri[i+1:]
}

// postWebURL builds the bsky.app web URL for a post view, or empty if the
// pieces are missing.
func postWebURL(p *apiPost) string {
	if p == nil || p.Author == nil || p.URI == "" {
		return ""
	}
	rkey := rkeyFromURI(p.URI)
	if rkey == "" || !strings.HasPrefix(p.URI, "at://") {
		return ""
	}
	return "https://bsky.app/profile/" + p.Author.Handle + "/post/" + rkey
}
