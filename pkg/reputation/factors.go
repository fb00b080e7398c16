package reputation

import "time"

// neutralScore applies whenever the underlying metadata field is missing or
// malformed: the package is neither rewarded nor penalized.
const neutralScore = 0.5

// Factors holds the per-dimension sub-scores, each in [0, 1].
type Factors struct {
	Age         float64 `json:"age"`
	Downloads   float64 `json:"downloads"`
	Author      float64 `json:"author"`
	Maintenance float64 `json:"maintenance"`
}

// Composite combines the factor scores with fixed weights.
func (f Factors) Composite() float64 {
	return 0.3*f.Age + 0.3*f.Downloads + 0.2*f.Author + 0.2*f.Maintenance
}

// Flags derives the qualitative flags from the sub-scores. Each flag fires
// iff its sub-score is strictly below 0.5; the composite plays no part.
func (f Factors) Flags() []string {
	var flags []string
	if f.Age < 0.5 {
		flags = append(flags, "new_package")
	}
	if f.Downloads < 0.5 {
		flags = append(flags, "low_downloads")
	}
	if f.Author < 0.5 {
		flags = append(flags, "unknown_author")
	}
	if f.Maintenance < 0.5 {
		flags = append(flags, "unmaintained")
	}
	return flags
}

// AgeScore maps the package creation date to a sub-score. A zero creation
// time (missing or malformed field) is neutral.
func AgeScore(created, now time.Time) float64 {
	if created.IsZero() {
		return neutralScore
	}
	switch days := now.Sub(created).Hours() / 24; {
	case days < 30:
		return 0.2
	case days < 90:
		return 0.5
	case days < 365:
		return 0.7
	case days < 730:
		return 0.9
	default:
		return 1.0
	}
}

// DownloadsScore maps the weekly download count to a sub-score.
// A negative count means the registry does not expose downloads and is
// neutral (notably the canonical PyPI JSON endpoint).
func DownloadsScore(weekly int64) float64 {
	if weekly < 0 {
		return neutralScore
	}
	switch {
	case weekly < 100:
		return 0.2
	case weekly < 1_000:
		return 0.5
	case weekly < 10_000:
		return 0.7
	case weekly < 100_000:
		return 0.9
	default:
		return 1.0
	}
}

// AuthorScore rates the publisher signal: organizations and multi-
// maintainer packages rank highest, a bare author name is acceptable, and
// an anonymous publisher is penalized.
func AuthorScore(organization bool, maintainers int, author string) float64 {
	switch {
	case organization || maintainers >= 2:
		return 1.0
	case author != "":
		return 0.8
	default:
		return 0.3
	}
}

// MaintenanceScore maps the last-update date to a sub-score. A zero time is
// neutral.
func MaintenanceScore(lastUpdate, now time.Time) float64 {
	if lastUpdate.IsZero() {
		return neutralScore
	}
	switch days := now.Sub(lastUpdate).Hours() / 24; {
	case days > 730:
		return 0.2
	case days > 365:
		return 0.5
	case days > 180:
		return 0.7
	default:
		return 1.0
	}
}
