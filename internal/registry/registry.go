// Package registry is the canonical store of citation records. Every angle
// executor registers the raw sources it extracted; the registry collapses
// duplicates across angles and hands out stable sequential ids that the
// synthesizer later resolves citation markers against.
package registry

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/luma-insights/prism/internal/metrics"
	"github.com/luma-insights/prism/internal/models"
)

// ErrEmptyCandidate is returned for candidates carrying no citable
// information (no title, no URL, no excerpt).
var ErrEmptyCandidate = errors.New("source candidate has no citable information")

// Candidate is one raw source entry as extracted from a retrieval payload.
type Candidate struct {
	Title   string
	URL     string
	Excerpt string
	Page    int
}

// Registry assigns stable ids to sources and deduplicates across all angles.
// Register is safe for concurrent use; all writes serialize on one mutex
// (the contention window is a map lookup plus an append).
type Registry struct {
	mu      sync.Mutex
	byKey   map[string]*models.Source
	ordered []*models.Source
	nextID  int
	logger  *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		byKey:  make(map[string]*models.Source),
		nextID: 1,
		logger: logger,
	}
}

// Register deduplicates the candidate against everything seen so far and
// returns the canonical Source. A repeat sighting appends angleIndex to the
// existing record's citing angles; a first sighting creates a new Source with
// the next sequential id. Ids start at 1 and are never reused or reordered.
func (r *Registry) Register(c Candidate, angleIndex int) (*models.Source, error) {
	key := dedupKey(c)
	if key == "" {
		return nil, ErrEmptyCandidate
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byKey[key]; ok {
		if !containsInt(existing.CitingAngles, angleIndex) {
			existing.CitingAngles = append(existing.CitingAngles, angleIndex)
		}
		// Fill metadata missing from the first sighting.
		if existing.Title == "" && c.Title != "" {
			existing.Title = c.Title
		}
		if existing.Excerpt == "" && c.Excerpt != "" {
			existing.Excerpt = c.Excerpt
		}
		metrics.SourcesDeduplicated.Inc()
		return existing, nil
	}

	src := &models.Source{
		ID:           fmt.Sprintf("S%d", r.nextID),
		Title:        c.Title,
		URL:          c.URL,
		Excerpt:      c.Excerpt,
		Page:         c.Page,
		CitingAngles: []int{angleIndex},
	}
	r.nextID++
	r.byKey[key] = src
	r.ordered = append(r.ordered, src)
	metrics.SourcesRegistered.Inc()
	return src, nil
}

// Finalize returns all registered sources in id (first-seen) order. Callers
// must only invoke it after every angle executor has completed.
func (r *Registry) Finalize() []*models.Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Source, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Len returns the number of distinct sources registered so far.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ordered)
}

// dedupKey computes the identity used to collapse duplicates: the normalized
// URL when one is present, else the normalized title, else the excerpt text.
func dedupKey(c Candidate) string {
	if u := strings.TrimSpace(c.URL); u != "" {
		if norm, err := NormalizeURL(u); err == nil && norm != "" {
			return "url:" + norm
		}
		return "url:" + strings.ToLower(u)
	}
	if t := normalizeTitle(c.Title); t != "" {
		return "title:" + t
	}
	if e := strings.TrimSpace(c.Excerpt); e != "" {
		return "excerpt:" + strings.ToLower(e)
	}
	return ""
}

// NormalizeURL cleans a URL for deduplication:
// - lowercases scheme and host, strips a leading "www."
// - drops the fragment and tracking query parameters
// - removes any trailing slash from the path
func NormalizeURL(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	if strings.HasPrefix(parsed.Host, "www.") {
		parsed.Host = parsed.Host[4:]
	}

	parsed.Fragment = ""

	if parsed.RawQuery != "" {
		q := parsed.Query()
		trackingParams := []string{
			"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
			"fbclid", "gclid", "msclkid",
		}
		for _, param := range trackingParams {
			q.Del(param)
		}
		parsed.RawQuery = q.Encode()
	}

	if strings.HasSuffix(parsed.Path, "/") {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	}

	return parsed.String(), nil
}

// normalizeTitle case-folds and collapses internal whitespace.
func normalizeTitle(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
