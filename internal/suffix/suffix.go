// Package suffix implements spec.md §4.1's PublicSuffixIndex: deriving the
// registrable domain (eTLD+1) for a URL or host from an embedded snapshot of
// the Mozilla Public Suffix List, honoring exact, wildcard, and exception
// rules.
package suffix

import (
	"bufio"
	"bytes"
	_ "embed"
	"net/url"
	"os"
	"strings"

	"github.com/dronefleet/orchestrator/internal/logx"
	"golang.org/x/net/idna"
)

//go:embed data/public_suffix_list.dat
var embeddedList []byte

// fallbackSuffixes is used only when neither the embedded snapshot nor
// PUBLIC_SUFFIX_LIST_PATH produce any usable rules (spec §4.1 "Fallback").
var fallbackSuffixes = []string{"com", "net", "org", "uk", "co.uk"}

type ruleKind int

const (
	ruleExact ruleKind = iota
	ruleWildcard
	ruleException
)

type rule struct {
	kind   ruleKind
	labels []string // rule labels, top-level-last order (e.g. "co.uk" -> ["co","uk"])
}

// Index answers registrable-domain queries against a parsed rule set.
type Index struct {
	byKey map[string]rule // key = labels joined with "." (rule text without leading !/*.)
	log   *logx.Logger
}

// New builds an Index from the embedded snapshot, overridden by
// PUBLIC_SUFFIX_LIST_PATH when that environment variable names a file
// containing at least 100 non-empty lines (spec §4.1 Environment /
// Fallback).
func New(log *logx.Logger) *Index {
	if log == nil {
		log = logx.New(nil, "suffix", logx.LevelInfo)
	}

	data := embeddedList
	if path := strings.TrimSpace(os.Getenv("PUBLIC_SUFFIX_LIST_PATH")); path != "" {
		if content, err := os.ReadFile(path); err != nil {
			log.Warn("public_suffix_list_path_unreadable path=%s error=%v", path, err)
		} else if countNonEmptyLines(content) < 100 {
			log.Warn("public_suffix_list_path_too_small path=%s", path)
		} else {
			data = content
		}
	}

	rules := parseRules(data)
	if len(rules) == 0 {
		log.Warn("public_suffix_list_unusable falling back to built-in minimal set")
		rules = parseRules([]byte(strings.Join(fallbackSuffixes, "\n")))
	}

	return &Index{byKey: rules, log: log}
}

func countNonEmptyLines(data []byte) int {
	n := 0
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			n++
		}
	}
	return n
}

func parseRules(data []byte) map[string]rule {
	out := make(map[string]rule)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		// Strip an inline comment if present (defensive; the embedded
		// snapshot doesn't use these, but a fetched real list might).
		if idx := strings.Index(line, " "); idx >= 0 {
			line = line[:idx]
		}

		kind := ruleExact
		text := line
		switch {
		case strings.HasPrefix(text, "!"):
			kind = ruleException
			text = text[1:]
		case strings.HasPrefix(text, "*."):
			kind = ruleWildcard
			text = text[2:]
		}
		text = strings.ToLower(text)
		if text == "" {
			continue
		}
		labels := strings.Split(text, ".")
		out[strings.Join(labels, ".")] = rule{kind: kind, labels: labels}
	}
	return out
}

// GetRegistrableDomain returns the eTLD+1 for a bare host or a full URL.
// Returns "" for empty/whitespace input. Returns the host unchanged if it
// does not look like a DNS name (no dot, or it's an IP literal).
func (idx *Index) GetRegistrableDomain(hostOrURL string) string {
	raw := strings.TrimSpace(hostOrURL)
	if raw == "" {
		return ""
	}

	host := raw
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		host = u.Host
	}
	host = strings.TrimSuffix(host, ".")
	host = strings.ToLower(host)
	if h, _, err := splitHostPort(host); err == nil {
		host = h
	}

	if !looksLikeDNSName(host) {
		return host
	}

	ascii, err := idna.ToASCII(host)
	if err == nil {
		host = ascii
	}

	labels := strings.Split(host, ".")
	n := len(labels)

	suffixLabelCount := -1
	for i := 0; i < n; i++ {
		candidate := strings.Join(labels[i:], ".")
		if r, ok := idx.byKey[candidate]; ok {
			switch r.kind {
			case ruleException:
				suffixLabelCount = (n - i) - 1
			case ruleExact:
				suffixLabelCount = n - i
			case ruleWildcard:
				// handled in the wildcard branch below: parseRules stores
				// "*.x" under key "x", but the wildcard probe matches that
				// key one iteration earlier (as the rest of labels[i:])
				// and breaks, so this case is unreachable in practice but
				// kept for safety.
				suffixLabelCount = n - i
			}
			break
		}
		if i+1 < n {
			rest := strings.Join(labels[i+1:], ".")
			if r, ok := idx.byKey[rest]; ok && r.kind == ruleWildcard {
				suffixLabelCount = n - i
				break
			}
		}
	}

	if suffixLabelCount < 0 {
		// Default rule "*": the last single label is always a public
		// suffix, even when no explicit rule names it.
		suffixLabelCount = 1
	}

	registrableLabelCount := suffixLabelCount + 1
	if registrableLabelCount > n {
		// Host is itself the public suffix (or shorter); there is no label
		// left to form a registrable domain from, so return it unchanged.
		return host
	}
	return strings.Join(labels[n-registrableLabelCount:], ".")
}

func looksLikeDNSName(host string) bool {
	if host == "" || !strings.Contains(host, ".") {
		return false
	}
	if ip := parseIP(host); ip {
		return false
	}
	return true
}

func parseIP(host string) bool {
	for _, c := range host {
		if c != '.' && (c < '0' || c > '9') {
			return false
		}
	}
	return strings.Count(host, ".") == 3
}

func splitHostPort(hostport string) (string, string, error) {
	if i := strings.LastIndex(hostport, ":"); i >= 0 && !strings.Contains(hostport[i+1:], ":") {
		return hostport[:i], hostport[i+1:], nil
	}
	return hostport, "", nil
}
