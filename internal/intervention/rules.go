package intervention

import (
	"net/url"
	"strings"

	"github.com/dronefleet/orchestrator/internal/model"
)

// affirmativeFlagKeys are the persona-trait keys spec §4.7 recognises as an
// unconditional "always intervene" signal.
var affirmativeFlagKeys = []string{
	"requireIntervention", "requiresIntervention", "alwaysRequireIntervention",
	"manualReview", "manual_review", "forceIntervention",
}

// CheckForIntervention is the pure predicate spec §4.7 names
// checkForIntervention: true if persona carries an affirmative flag, or if
// rawURL matches any domain/path/keyword rule named directly on persona or
// nested under persona.interventionRules.
func CheckForIntervention(rawURL string, persona model.Value) bool {
	if hasAffirmativeFlag(persona) {
		return true
	}

	var host, path string
	if u, err := url.Parse(rawURL); err == nil {
		host = strings.ToLower(u.Hostname())
		path = strings.ToLower(u.Path)
	}
	return matchesRules(rawURL, host, path, persona)
}

func hasAffirmativeFlag(traits model.Value) bool {
	for _, key := range affirmativeFlagKeys {
		v, ok := traits.GetFold(key)
		if !ok {
			continue
		}
		if truthy, recognised := v.AsBool(); recognised && truthy {
			return true
		}
	}
	return false
}

// matchesRules evaluates the domain/path/keyword rules directly present on
// rules, then recurses into rules.interventionRules if present — the
// "possibly a nested mapping or sequence" case spec §4.7 describes.
func matchesRules(fullURL, host, path string, rules model.Value) bool {
	if v, ok := rules.GetFold("domain", "domains", "host", "hosts", "interventionDomains"); ok {
		if matchAny(v, func(s string) bool { return host != "" && strings.HasSuffix(host, strings.ToLower(s)) }) {
			return true
		}
	}
	if v, ok := rules.GetFold("path", "paths", "interventionPaths"); ok {
		if matchAny(v, func(s string) bool { return strings.Contains(path, strings.ToLower(s)) }) {
			return true
		}
	}
	if v, ok := rules.GetFold("keyword", "keywords", "contains", "interventionKeywords"); ok {
		lowerURL := strings.ToLower(fullURL)
		if matchAny(v, func(s string) bool { return strings.Contains(lowerURL, strings.ToLower(s)) }) {
			return true
		}
	}
	if v, ok := rules.GetFold("interventionRules"); ok {
		return matchesNested(fullURL, host, path, v)
	}
	return false
}

func matchesNested(fullURL, host, path string, v model.Value) bool {
	switch v.Kind() {
	case model.KindObject:
		return matchesRules(fullURL, host, path, v)
	case model.KindArray:
		arr, _ := v.AsArray()
		for _, e := range arr {
			if matchesNested(fullURL, host, path, e) {
				return true
			}
		}
	}
	return false
}

// matchAny applies pred to v if it's a string, or to every element if v is
// an array of strings (rule values may be given either way).
func matchAny(v model.Value, pred func(string) bool) bool {
	switch v.Kind() {
	case model.KindString:
		s, _ := v.AsString()
		return pred(s)
	case model.KindArray:
		arr, _ := v.AsArray()
		for _, e := range arr {
			if matchAny(e, pred) {
				return true
			}
		}
	}
	return false
}
