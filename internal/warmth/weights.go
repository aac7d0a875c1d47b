package warmth

// DefaultWeights maps an interaction channel to the amplitude boost it
// contributes. Weight policy ultimately belongs to the caller logging the
// interaction; these defaults cover callers that only know the channel.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		"email":   5,
		"sms":     4,
		"dm":      4,
		"call":    7,
		"meeting": 9,
		"note":    3,
		"other":   5,
	}
}

// WeightFor looks up a channel's weight in the given table, falling back to
// the "other" entry for unknown channels.
func WeightFor(weights map[string]float64, channel string) float64 {
	if w, ok := weights[channel]; ok {
		return w
	}
	return weights["other"]
}
