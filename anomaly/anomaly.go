// Package anomaly classifies engagement counters into manipulation tiers.
// Pure and deterministic: no state, no I/O, every threshold named.
package anomaly

// Tier is the classification outcome.
type Tier int

const (
	// Insufficient means there is not enough signal to judge (no views).
	Insufficient Tier = iota
	// Normal means the counters look organic.
	Normal
	// Suspicious means the ratios are skewed but not conclusive.
	Suspicious
	// LikelyManipulated means the counters are not plausible organically.
	LikelyManipulated
)

func (t Tier) String() string {
	switch t {
	case Insufficient:
		return "insufficient"
	case Normal:
		return "normal"
	case Suspicious:
		return "suspicious"
	case LikelyManipulated:
		return "likely_manipulated"
	default:
		return "unknown"
	}
}

// Thresholds are the tunable cut-offs for Classify.
type Thresholds struct {
	// HighLikeRatio: a like:view ratio above this is implausible on its own.
	HighLikeRatio float64
	// MediumLikeRatio: a like:view ratio above this is only suspicious when
	// comments are disproportionately absent.
	MediumLikeRatio float64
	// LowCommentRatio: comment:view ratio below this counts as "absent".
	LowCommentRatio float64
	// MaxViewsPerHour: average views/hour above this fails the early-velocity check.
	MaxViewsPerHour float64
}

// DefaultThresholds returns the representative production values.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HighLikeRatio:   0.28,
		MediumLikeRatio: 0.12,
		LowCommentRatio: 0.001,
		MaxViewsPerHour: 200000,
	}
}

// Classify maps an engagement snapshot to a tier.
func Classify(views, likes, comments int64, ageHours float64, th Thresholds) Tier {
	if views <= 0 {
		return Insufficient
	}

	likeRatio := float64(likes) / float64(views)
	commentRatio := float64(comments) / float64(views)

	if likes > views || likeRatio > th.HighLikeRatio {
		return LikelyManipulated
	}
	if likeRatio > th.MediumLikeRatio && commentRatio < th.LowCommentRatio {
		return Suspicious
	}
	if ageHours > 0 && float64(views)/ageHours > th.MaxViewsPerHour {
		return Suspicious
	}
	return Normal
}
