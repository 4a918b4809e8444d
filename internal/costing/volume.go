package costing

import "time"

// VolumeSource tags where the reference volume came from.
type VolumeSource string

const (
	VolumeActual      VolumeSource = "actual"
	VolumeTheoretical VolumeSource = "theoretical"
)

// ReferenceVolume is the unit count every monthly pool is prorated over.
// Value is always at least 1.
type ReferenceVolume struct {
	Value  int64        `json:"value"`
	Source VolumeSource `json:"source"`
}

// ResolveReferenceVolume prefers this month's recorded production and falls
// back to the configured average, which is clamped to 1 when not positive.
func ResolveReferenceVolume(producedThisMonth, configuredAverage int64) ReferenceVolume {
	if producedThisMonth > 0 {
		return ReferenceVolume{Value: producedThisMonth, Source: VolumeActual}
	}
	if configuredAverage <= 0 {
		configuredAverage = 1
	}
	return ReferenceVolume{Value: configuredAverage, Source: VolumeTheoretical}
}

// Prorate divides a monthly amount across the reference volume.
func (v ReferenceVolume) Prorate(amount float64) float64 {
	if v.Value <= 0 {
		return amount
	}
	return amount / float64(v.Value)
}

// MonthBounds returns [first day of t's month, first day of the next month) in t's location.
func MonthBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 1, 0)
}
