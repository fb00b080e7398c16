package resolve

import "strings"

// Latest is the sentinel returned when a version spec cannot be pinned to a
// concrete version at this layer; the registry decides what it means.
const Latest = "latest"

// rangeOperators mark specs that would need constraint solving; they fall
// back to the registry's latest rather than being SAT-solved here.
var rangeOperators = []string{">=", "<=", "~=", "!=", ">", "<"}

// ResolveVersionSpec reduces a manifest or registry version spec to either
// a concrete version string or the Latest sentinel:
//
//   - "*", "latest", "", "x", "X" → latest
//   - anything containing "," or a range operator → latest
//   - a leading "^" or "~" is stripped (the floor of the range)
//   - leading "=" signs are stripped
//   - otherwise the spec is already concrete and returned as given
func ResolveVersionSpec(spec string) string {
	s := strings.TrimSpace(spec)
	switch s {
	case "", "*", Latest, "x", "X":
		return Latest
	}
	if strings.Contains(s, ",") {
		return Latest
	}
	for _, op := range rangeOperators {
		if strings.Contains(s, op) {
			return Latest
		}
	}
	if s[0] == '^' || s[0] == '~' {
		return s[1:]
	}
	return strings.TrimLeft(s, "=")
}
