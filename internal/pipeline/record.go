// Package pipeline implements the Pipeline collaborator contract from
// spec.md §4.8: a single Feed method a Downloader calls with each fetch
// response, which extracts new links (re-submitted to the Scheduler
// through a linkSubmitter) and writes generic records to a sink.
// Grounded on the teacher's internal/pipeline Middleware chain,
// retargeted from site-specific Item extraction at a generic
// ResponseKind-routed handler model per spec.md §9's "typed sum routed
// to handlers" guidance.
package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ResponseKind classifies a fetch response so the Pipeline can route it
// to the right extraction handler, replacing the teacher's single
// site-specific Item shape with a generic sum type.
type ResponseKind uint8

const (
	KindUnknown ResponseKind = iota
	KindGeneral
	KindTopic
)

func (k ResponseKind) String() string {
	switch k {
	case KindGeneral:
		return "general"
	case KindTopic:
		return "topic"
	default:
		return "unknown"
	}
}

// Record is the generic document a handler produces from one response,
// replacing the teacher's types.Item (a site-specific key/value bag tied
// to ToFlatMap/CSV export this crawler has no use for).
type Record struct {
	SourceURL string
	Kind      ResponseKind
	Fields    map[string]any
	FetchedAt time.Time
	Checksum  string
}

// NewRecord builds a Record and stamps its Checksum from the "title",
// "body" and "href" entries of fields (sourceURL and other fields are not
// hashed), used by DedupMiddleware-equivalent logic downstream.
func NewRecord(sourceURL string, kind ResponseKind, fields map[string]any, fetchedAt time.Time) *Record {
	r := &Record{SourceURL: sourceURL, Kind: kind, Fields: fields, FetchedAt: fetchedAt}
	r.Checksum = checksum(sourceURL, fields)
	return r
}

func checksum(sourceURL string, fields map[string]any) string {
	h := sha256.New()
	h.Write([]byte(sourceURL))
	for _, k := range []string{"title", "body", "href"} {
		if v, ok := fields[k]; ok {
			if s, ok := v.(string); ok {
				h.Write([]byte(s))
			}
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
