package warmth

// ModeInfo describes one decay mode for the modes API.
type ModeInfo struct {
	Mode           Mode    `json:"mode"`
	Lambda         float64 `json:"lambda"`
	HalfLifeDays   float64 `json:"half_life_days"`
	DaysToReachout float64 `json:"days_to_reachout"`
	Description    string  `json:"description"`
}

// ModeCatalogue returns the user-selectable decay modes. The test mode is
// excluded; it exists only for accelerated integration runs.
func ModeCatalogue() []ModeInfo {
	return []ModeInfo{
		{ModeSlow, 0.040132, 17.3, 29.9, "~30 days between touches"},
		{ModeMedium, 0.085998, 8.1, 13.9, "~14 days between touches"},
		{ModeFast, 0.171996, 4.0, 7.0, "~7 days between touches"},
	}
}
