package suffix

import "testing"

func TestGetRegistrableDomain(t *testing.T) {
	idx := New(nil)

	cases := map[string]string{
		"www.example.com":          "example.com",
		"example.com":              "example.com",
		"a.b.co.uk":                "b.co.uk",
		"co.uk":                    "co.uk",
		"foo.bar.github.io":        "bar.github.io",
		"x.tokyo.jp":               "x.tokyo.jp",
		"a.metro.tokyo.jp":         "metro.tokyo.jp",
		"metro.tokyo.jp":           "metro.tokyo.jp",
		"foo.x.ck":                 "foo.x.ck",
		"foo.www.ck":               "www.ck",
		"www.ck":                   "www.ck",
		"  https://Sub.Example.COM/path?q=1  ": "example.com",
	}
	for in, want := range cases {
		if got := idx.GetRegistrableDomain(in); got != want {
			t.Errorf("GetRegistrableDomain(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetRegistrableDomainIdempotent(t *testing.T) {
	idx := New(nil)
	first := idx.GetRegistrableDomain("a.b.example.com")
	second := idx.GetRegistrableDomain(first)
	if first != second {
		t.Errorf("not idempotent: %q then %q", first, second)
	}
}

func TestGetRegistrableDomainEmptyInput(t *testing.T) {
	idx := New(nil)
	for _, in := range []string{"", "   ", "\t\n"} {
		if got := idx.GetRegistrableDomain(in); got != "" {
			t.Errorf("GetRegistrableDomain(%q) = %q, want empty", in, got)
		}
	}
}

func TestGetRegistrableDomainNonDNSName(t *testing.T) {
	idx := New(nil)
	cases := []string{"localhost", "192.168.1.1", "not a host at all"}
	for _, in := range cases {
		if got := idx.GetRegistrableDomain(in); got != in {
			t.Errorf("GetRegistrableDomain(%q) = %q, want unchanged", in, got)
		}
	}
}

func TestFallbackRules(t *testing.T) {
	rules := parseRules([]byte(""))
	if len(rules) != 0 {
		t.Fatalf("expected no rules from empty data, got %d", len(rules))
	}

	idx := &Index{byKey: parseRules([]byte(`
com
net
org
uk
co.uk
`))}
	if got := idx.GetRegistrableDomain("shop.example.co.uk"); got != "example.co.uk" {
		t.Errorf("fallback co.uk rule: got %q", got)
	}
	if got := idx.GetRegistrableDomain("example.org"); got != "example.org" {
		t.Errorf("fallback org rule: got %q", got)
	}
}

func TestWildcardWithoutException(t *testing.T) {
	idx := &Index{byKey: parseRules([]byte("*.ck\n!www.ck\n"))}

	if got := idx.GetRegistrableDomain("foo.bar.ck"); got != "foo.bar.ck" {
		t.Errorf("wildcard match: got %q", got)
	}
	if got := idx.GetRegistrableDomain("bar.ck"); got != "bar.ck" {
		t.Errorf("wildcard base-only: got %q", got)
	}
}
