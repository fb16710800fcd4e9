package theme

// Usage thresholds in percent.
const (
	WarnPercent     = 75.0
	CriticalPercent = 90.0
)

// ForUsage returns the color for a utilisation percentage: Critical at or
// above CriticalPercent, Warn at or above WarnPercent, otherwise "" (no
// color).
func (t Theme) ForUsage(pct float64) string {
	switch {
	case pct >= CriticalPercent:
		return t.Critical
	case pct >= WarnPercent:
		return t.Warn
	default:
		return ""
	}
}

// ForBattery returns the color for a battery reading: OK while charging,
// Critical at or below 15%, otherwise "".
func (t Theme) ForBattery(capacity int, charging bool) string {
	switch {
	case charging:
		return t.OK
	case capacity <= 15:
		return t.Critical
	default:
		return ""
	}
}
