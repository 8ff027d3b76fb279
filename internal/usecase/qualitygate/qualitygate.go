// Package qualitygate implements the three-way deterministic router
// (spec.md §4.6) that splits enriched articles into approved, flagged, and
// rejected buckets ahead of the emit stage.
package qualitygate

import "catchup-feed/internal/domain/entity"

// minConfidenceFloor rejects an article outright regardless of tier, before
// the effective-minimum flagging check even runs (spec.md §4.6).
const minConfidenceFloor = 10

// Decision is the quality gate's routing verdict for one article.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionFlag    Decision = "flag"
	DecisionReject  Decision = "reject"
)

// Gate is the quality-gate stage. It is stateless aside from the global
// minimum-confidence configuration it was built with.
type Gate struct {
	globalMinConfidence int
}

// New builds a quality gate with the configured global minimum confidence
// (MIN_CONFIDENCE_SCORE).
func New(globalMinConfidence int) *Gate {
	return &Gate{globalMinConfidence: globalMinConfidence}
}

// Route classifies one enriched article into reject/flag/approve.
func (g *Gate) Route(ea *entity.EnrichedArticle) Decision {
	if ea.What == "" || ea.Confidence < minConfidenceFloor {
		return DecisionReject
	}

	policy := entity.PolicyFor(ea.Classified.Raw.ReliabilityTier)

	if ea.HasHighRiskFlag() {
		return DecisionFlag
	}
	if ea.Confidence < ea.EffectiveMinConfidence(g.globalMinConfidence) {
		return DecisionFlag
	}
	if policy.ForceModeration {
		return DecisionFlag
	}

	return DecisionApprove
}

// RouteAll partitions a batch of enriched articles into the three buckets,
// preserving input order within each bucket.
func (g *Gate) RouteAll(articles []entity.EnrichedArticle) (approved, flagged, rejected []entity.EnrichedArticle) {
	for i := range articles {
		switch g.Route(&articles[i]) {
		case DecisionApprove:
			approved = append(approved, articles[i])
		case DecisionFlag:
			flagged = append(flagged, articles[i])
		default:
			rejected = append(rejected, articles[i])
		}
	}
	return approved, flagged, rejected
}
