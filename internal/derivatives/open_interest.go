package derivatives

// WhaleContext is the whale-direction label accompanying an open-interest
// reading.
type WhaleContext string

const (
	WhaleAccumulation WhaleContext = "ACCUMULATION"
	WhaleDistribution WhaleContext = "DISTRIBUTION"
	WhaleNeutral      WhaleContext = "NEUTRAL"
)

// OIVote is the open-interest adapter's output.
type OIVote struct {
	Delta   float64
	Vote    float64
	Context string
}

// ConvertOpenInterest implements the open-interest decision table (spec
// §4.5). oiPrev <= 0 yields a 0 vote and context "no_data" since Delta is
// undefined.
func ConvertOpenInterest(oiNow, oiPrev float64, whale WhaleContext) OIVote {
	if oiPrev <= 0 {
		return OIVote{Delta: 0, Vote: 0, Context: "no_data"}
	}
	delta := (oiNow - oiPrev) / oiPrev

	switch {
	case delta < -0.01:
		return OIVote{Delta: delta, Vote: 0, Context: "deleveraging"}
	case delta <= 0.01:
		return OIVote{Delta: delta, Vote: 0, Context: "stable"}
	case delta <= 0.03:
		return oiModerateVote(delta, whale)
	default:
		return oiStrongVote(delta, whale)
	}
}

func oiModerateVote(delta float64, whale WhaleContext) OIVote {
	switch whale {
	case WhaleAccumulation:
		return OIVote{Delta: delta, Vote: 0.3, Context: "confirming"}
	case WhaleDistribution:
		return OIVote{Delta: delta, Vote: -0.2, Context: "diverging"}
	default:
		return OIVote{Delta: delta, Vote: 0.1, Context: "neutral"}
	}
}

func oiStrongVote(delta float64, whale WhaleContext) OIVote {
	switch whale {
	case WhaleAccumulation:
		return OIVote{Delta: delta, Vote: 0.5, Context: "confirming"}
	case WhaleDistribution:
		return OIVote{Delta: delta, Vote: -0.3, Context: "diverging"}
	default:
		return OIVote{Delta: delta, Vote: 0.2, Context: "neutral"}
	}
}
