// Package frontier implements the Scheduler's persistent, deduplicated
// link frontier: a pending set/queue plus a dead set per class, mirrored
// in memory over a MongoDB-backed store for durability across restarts.
package frontier

import (
	"strings"

	"github.com/webstalk/webstalk/internal/rpcwire"
)

// Fingerprint is the dedup key a link maps to within a class. For
// ClassLink it is the link's exact string; for ClassTopicLink it is the
// `p/100808`-style numeric-id substring the original system matches on,
// so that links differing only in query string or scheme still collide.
type Fingerprint string

// FingerprintOf computes the dedup key for link under class.
func FingerprintOf(link rpcwire.Link, class rpcwire.Class) Fingerprint {
	if class == rpcwire.ClassTopicLink {
		return Fingerprint(topicFingerprint(string(link)))
	}
	return Fingerprint(link)
}

// topicFingerprint extracts the `p/<digits>`-shaped path segment a topic
// page URL carries, e.g. "https://x.example/p/100808?from=feed" ->
// "p/100808". Links with no such segment fall back to the full string so
// they still participate in dedup rather than silently bypassing it.
func topicFingerprint(link string) string {
	idx := strings.Index(link, "p/")
	if idx < 0 {
		return link
	}
	rest := link[idx+2:]
	end := len(rest)
	for i, r := range rest {
		if r < '0' || r > '9' {
			end = i
			break
		}
	}
	if end == 0 {
		return link
	}
	return "p/" + rest[:end]
}
