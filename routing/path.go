package routing

import (
	"regexp"
	"strings"
)

var (
	catchAllSegment  = regexp.MustCompile(`\{\*\*?[^}]*\}`)
	constrainedParam = regexp.MustCompile(`\{([^}:*]+):[^}]*\}`)
	trailingCatchAll = regexp.MustCompile(`/\{\*\*?[^}]*\}$`)
)

// ChiPattern translates a path match into a chi route pattern. Catch-all
// parameters ({**rest} or {*rest}) become "*" and parameter constraints
// ({id:int}) are dropped.
func ChiPattern(pathMatch string) string {
	pattern := catchAllSegment.ReplaceAllString(pathMatch, "*")
	pattern = constrainedParam.ReplaceAllString(pattern, "{$1}")
	if !strings.HasPrefix(pattern, "/") {
		pattern = "/" + pattern
	}
	// chi only accepts a wildcard as the last segment.
	if i := strings.Index(pattern, "*"); i >= 0 && i != len(pattern)-1 {
		pattern = pattern[:i+1]
	}
	return pattern
}

// ChiPatterns returns the chi patterns a path match is served on. A trailing
// catch-all may be empty, so "/api/{**rest}" also serves "/api".
func ChiPatterns(pathMatch string) []string {
	pattern := ChiPattern(pathMatch)
	patterns := []string{pattern}
	if trailingCatchAll.MatchString(pathMatch) {
		if prefix := strings.TrimSuffix(pattern, "/*"); prefix != "" && prefix != pattern {
			patterns = append(patterns, prefix)
		}
	}
	return patterns
}
