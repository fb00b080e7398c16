package reputation

import (
	"sort"
	"time"
)

// Helpers extracting the best available date and publisher fields from raw
// registry payloads. Malformed values degrade to the zero time, which the
// step functions treat as neutral.

func npmCreated(raw map[string]any) time.Time {
	return parseTime(dig(raw, "time", "created"))
}

func npmModified(raw map[string]any) time.Time {
	return parseTime(dig(raw, "time", "modified"))
}

func npmAuthorScore(raw map[string]any) float64 {
	maintainers, _ := raw["maintainers"].([]any)
	author := ""
	switch a := raw["author"].(type) {
	case string:
		author = a
	case map[string]any:
		author, _ = a["name"].(string)
	}
	// npm does not flag organizations in the package document; multiple
	// maintainers is the strongest available signal.
	return AuthorScore(false, len(maintainers), author)
}

// pypiUploadRange scans the releases table for the earliest and latest
// upload times, which stand in for creation and last-update dates.
func pypiUploadRange(raw map[string]any) (first, last time.Time) {
	releases, _ := raw["releases"].(map[string]any)
	var times []time.Time
	for _, files := range releases {
		list, _ := files.([]any)
		for _, f := range list {
			file, _ := f.(map[string]any)
			if t := parseTime(file["upload_time_iso_8601"]); !t.IsZero() {
				times = append(times, t)
			} else if t := parseTime(file["upload_time"]); !t.IsZero() {
				times = append(times, t)
			}
		}
	}
	if len(times) == 0 {
		return time.Time{}, time.Time{}
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return times[0], times[len(times)-1]
}

func pypiAuthorScore(raw map[string]any) float64 {
	info, _ := raw["info"].(map[string]any)
	author, _ := info["author"].(string)
	if author == "" {
		// Modern packages often publish author_email only.
		if email, _ := info["author_email"].(string); email != "" {
			author = email
		}
	}
	return AuthorScore(false, 0, author)
}

// parseTime accepts the timestamp layouts the registries actually emit.
func parseTime(v any) time.Time {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func dig(raw map[string]any, keys ...string) any {
	var cur any = raw
	for _, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[k]
	}
	return cur
}
