// Package graph merges extracted concepts into the knowledge graph.
//
// Every node is keyed by (label, database, name) and every edge is created
// with MERGE, so replaying an ingestion leaves the graph unchanged. The
// uniqueness constraints provisioned by EnsureSchema back that guarantee.
package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mailgraph/internal/domain"
)

// Node labels.
const (
	LabelConcept = "Concept"
	LabelKeyword = "Keyword"
	LabelURL     = "URL"
	LabelWebsite = "Website"
	LabelEmail   = "Email"
	LabelSource  = "Source"
)

// Relationship types.
const (
	RelDescribes  = "DESCRIBES"
	RelHosts      = "HOSTS"
	RelRepresents = "REPRESENTS"
	RelContains   = "CONTAINS"
	RelSends      = "SENDS"
)

// Labels lists every node label that needs a uniqueness constraint.
var Labels = []string{LabelConcept, LabelKeyword, LabelURL, LabelWebsite, LabelEmail, LabelSource}

var relationships = map[string]bool{
	RelDescribes: true, RelHosts: true, RelRepresents: true, RelContains: true, RelSends: true,
}

// ErrMalformedURL is returned when a website cannot be derived from a URL.
var ErrMalformedURL = errors.New("malformed url")

// Node identifies a graph entity. Props are written only when the node is
// first created.
type Node struct {
	Label string
	Name  string
	Props map[string]any
}

// Writer merges nodes and edges inside one transaction.
type Writer interface {
	MergeNode(ctx context.Context, n Node, createdAt time.Time) error
	MergeEdge(ctx context.Context, rel string, from, to Node, createdAt time.Time) error
}

// Session is a graph connection scoped to one run. WriteConcept runs fn in
// its own transaction and rolls it back if fn fails.
type Session interface {
	WriteConcept(ctx context.Context, fn func(Writer) error) error
	Close(ctx context.Context) error
}

// Ingest merges each concept in its own transaction. A concept that fails is
// reported and skipped; the rest are still ingested.
func Ingest(ctx context.Context, sess Session, concepts []domain.Concept, p domain.Provenance) domain.GraphReport {
	var report domain.GraphReport
	for _, c := range concepts {
		if err := ingestConcept(ctx, sess, c, p); err != nil {
			report.Failures = append(report.Failures, domain.GraphFailure{Concept: c.Name, Error: err.Error()})
			continue
		}
		report.Ingested++
	}
	return report
}

func ingestConcept(ctx context.Context, sess Session, c domain.Concept, p domain.Provenance) error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return errors.New("graph: concept name is empty")
	}

	// Resolve every website up front so a bad URL writes nothing.
	sites := make([]string, len(c.URLs))
	for i, u := range c.URLs {
		site, err := WebsiteOf(u)
		if err != nil {
			return fmt.Errorf("graph: url %q: %w", u, err)
		}
		sites[i] = site
	}

	concept := Node{Label: LabelConcept, Name: name, Props: map[string]any{"topic": c.Topic}}
	email := Node{Label: LabelEmail, Name: p.EmailID}
	source := Node{Label: LabelSource, Name: p.Source}
	at := p.SentAt

	return sess.WriteConcept(ctx, func(w Writer) error {
		if err := w.MergeNode(ctx, concept, at); err != nil {
			return fmt.Errorf("graph: merge concept: %w", err)
		}

		for i, u := range c.URLs {
			url := Node{Label: LabelURL, Name: strings.TrimSpace(u)}
			site := Node{Label: LabelWebsite, Name: sites[i]}
			for _, n := range []Node{url, site} {
				if err := w.MergeNode(ctx, n, at); err != nil {
					return fmt.Errorf("graph: merge %s: %w", n.Label, err)
				}
			}
			if err := w.MergeEdge(ctx, RelHosts, site, url, at); err != nil {
				return fmt.Errorf("graph: merge %s: %w", RelHosts, err)
			}
			if err := w.MergeEdge(ctx, RelDescribes, url, concept, at); err != nil {
				return fmt.Errorf("graph: merge %s: %w", RelDescribes, err)
			}
		}

		for _, k := range c.Keywords {
			k = strings.TrimSpace(k)
			if k == "" {
				continue
			}
			keyword := Node{Label: LabelKeyword, Name: k}
			for _, n := range []Node{keyword, email, source} {
				if err := w.MergeNode(ctx, n, at); err != nil {
					return fmt.Errorf("graph: merge %s: %w", n.Label, err)
				}
			}
			edges := []struct {
				rel      string
				from, to Node
			}{
				{RelRepresents, keyword, concept},
				{RelContains, email, keyword},
				{RelSends, source, email},
			}
			for _, e := range edges {
				if err := w.MergeEdge(ctx, e.rel, e.from, e.to, at); err != nil {
					return fmt.Errorf("graph: merge %s: %w", e.rel, err)
				}
			}
		}
		return nil
	})
}

// WebsiteOf derives the website of a URL: a leading http:// or https:// is
// removed and everything before the first slash is kept.
func WebsiteOf(rawURL string) (string, error) {
	s := strings.TrimSpace(rawURL)
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "https://"):
		s = s[len("https://"):]
	case strings.HasPrefix(lower, "http://"):
		s = s[len("http://"):]
	}
	if strings.Contains(s, "://") {
		return "", ErrMalformedURL
	}
	host, _, _ := strings.Cut(s, "/")
	if host == "" || strings.ContainsAny(host, " \t\r\n") {
		return "", ErrMalformedURL
	}
	return host, nil
}
