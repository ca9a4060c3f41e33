// Package quality computes a client-side quality score for a clustering
// result. It only looks at what the wire already carries (sizes, names,
// adjustment history); the algorithmic metrics stay server-side.
package quality

import (
	"math"

	"github.com/klasterhq/klaster/internal/models"
)

// Score represents the computed quality of a session's cluster set.
type Score struct {
	Total       int
	Balance     int // 0-40: evenness of the size distribution
	Granularity int // 0-20: cluster count in a useful range
	Labeling    int // 0-20: share of clusters with a human label
	Curation    int // 0-20: evidence of manual review
}

// Scorer computes quality scores for sessions.
type Scorer struct{}

// NewScorer returns a new quality Scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score computes a quality score (0-100) for a result-bearing session.
// Sessions without clusters score zero.
func (s *Scorer) Score(session *models.Session) *Score {
	q := &Score{}
	if session == nil || len(session.Clusters) == 0 {
		return q
	}

	q.Balance = scoreBalance(session.Clusters, 40)
	q.Granularity = scoreGranularity(len(session.Clusters), 20)
	q.Labeling = scoreLabeling(session.Clusters, 20)
	q.Curation = scoreCuration(len(session.Adjustments), 20)

	q.Total = q.Balance + q.Granularity + q.Labeling + q.Curation
	return q
}

// scoreBalance maps the normalized entropy of the size distribution to
// points. A perfectly even split scores full points; one giant cluster
// plus crumbs scores near zero.
func scoreBalance(clusters []models.Cluster, maxPoints int) int {
	if len(clusters) < 2 {
		return maxPoints / 2
	}

	total := 0
	for _, c := range clusters {
		total += c.Size
	}
	if total == 0 {
		return 0
	}

	entropy := 0.0
	for _, c := range clusters {
		if c.Size == 0 {
			continue
		}
		p := float64(c.Size) / float64(total)
		entropy -= p * math.Log2(p)
	}
	normalized := entropy / math.Log2(float64(len(clusters)))
	return int(math.Round(normalized * float64(maxPoints)))
}

// scoreGranularity rewards a cluster count that is neither trivial nor
// unmanageable.
func scoreGranularity(count, maxPoints int) int {
	switch {
	case count >= 3 && count <= 30:
		return maxPoints
	case count == 2 || (count > 30 && count <= 60):
		return int(float64(maxPoints) * 0.6)
	case count > 60 && count <= 120:
		return int(float64(maxPoints) * 0.3)
	default:
		return int(float64(maxPoints) * 0.1)
	}
}

// scoreLabeling converts the named-cluster ratio to points.
func scoreLabeling(clusters []models.Cluster, maxPoints int) int {
	named := 0
	for _, c := range clusters {
		if c.Name != "" {
			named++
		}
	}
	ratio := float64(named) / float64(len(clusters))
	return int(math.Round(ratio * float64(maxPoints)))
}

// scoreCuration counts manual adjustments as review evidence, capped so a
// long merge spree does not dominate the score.
func scoreCuration(adjustments, maxPoints int) int {
	switch {
	case adjustments >= 5:
		return maxPoints
	case adjustments >= 3:
		return int(float64(maxPoints) * 0.75)
	case adjustments >= 1:
		return int(float64(maxPoints) * 0.5)
	default:
		return int(float64(maxPoints) * 0.25)
	}
}
