package warmth

// Band is the discrete bucket a warmth score falls into.
type Band string

const (
	BandHot     Band = "hot"
	BandWarm    Band = "warm"
	BandNeutral Band = "neutral"
	BandCool    Band = "cool"
	BandCold    Band = "cold"
)

// BandFor maps a score to its band. Boundary values belong to the higher
// band: exactly 80 is hot, not warm.
func BandFor(score int) Band {
	switch {
	case score >= 80:
		return BandHot
	case score >= 60:
		return BandWarm
	case score >= 40:
		return BandNeutral
	case score >= 20:
		return BandCool
	default:
		return BandCold
	}
}

// Bands lists all bands from hottest to coldest.
func Bands() []Band {
	return []Band{BandHot, BandWarm, BandNeutral, BandCool, BandCold}
}
