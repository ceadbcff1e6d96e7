package lifecycle

import (
	"math"
	"time"

	"github.com/pantheon-ai/mnemo/isolation"
	"github.com/pantheon-ai/mnemo/memory"
)

// Forgetting-curve parameters. Retention decays exponentially with a
// 30-day time constant from the last access and is bought back by access
// frequency, importance, and the persona's priority for the kind.
const (
	// decayDays is the exponential time constant of the base curve.
	decayDays = 30.0

	// accessBonusPerHit and accessBonusCap reward frequently recalled
	// items: 0.05 per recorded access, capped at 0.3.
	accessBonusPerHit = 0.05
	accessBonusCap    = 0.3

	// importanceWeight scales the item's importance contribution.
	importanceWeight = 0.2

	// priorityWeight scales the persona's per-kind priority ([1,5]), so
	// the priority bonus spans 0.04 to 0.2.
	priorityWeight = 0.04
)

// Prune thresholds per kind. An item whose retention falls below its
// kind's threshold is destroyed on the next pruning sweep.
const (
	// EpisodicPruneThreshold prunes episodes once retention drops below
	// 0.10.
	EpisodicPruneThreshold = 0.10

	// SemanticPruneThreshold prunes semantic items below 0.05; concepts
	// hold on longer than episodes.
	SemanticPruneThreshold = 0.05
)

// Retention computes the forgetting-curve score of an item in [0,1].
// The priority argument is the persona's retention priority for the
// item's kind, from isolation.Profile.PriorityFor.
func Retention(now time.Time, item *memory.Item, priority int) float64 {
	if priority < isolation.PriorityMin {
		priority = isolation.PriorityMin
	}
	if priority > isolation.PriorityMax {
		priority = isolation.PriorityMax
	}

	days := now.Sub(item.LastAccess).Hours() / 24
	if days < 0 {
		days = 0
	}

	base := math.Exp(-days / decayDays)
	accessBonus := math.Min(accessBonusPerHit*float64(item.AccessCount), accessBonusCap)
	retention := base + accessBonus + importanceWeight*item.Importance + priorityWeight*float64(priority)

	return math.Min(retention, 1.0)
}

// PruneThreshold returns the retention floor for a kind and whether the
// kind is ever pruned automatically. Procedural knowledge is not, and
// working memory is left to its fast-tier TTL.
func PruneThreshold(kind memory.Kind) (float64, bool) {
	switch kind {
	case memory.KindEpisodic:
		return EpisodicPruneThreshold, true
	case memory.KindSemantic:
		return SemanticPruneThreshold, true
	default:
		return 0, false
	}
}
