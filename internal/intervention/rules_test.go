package intervention

import (
	"testing"

	"github.com/dronefleet/orchestrator/internal/model"
)

func TestCheckForInterventionAffirmativeFlag(t *testing.T) {
	cases := []struct {
		name    string
		traits  map[string]any
		want    bool
	}{
		{"bool_true", map[string]any{"requireIntervention": true}, true},
		{"bool_false", map[string]any{"requireIntervention": false}, false},
		{"string_true", map[string]any{"manualReview": "true"}, true},
		{"string_mixed_case", map[string]any{"manual_review": "TRUE"}, true},
		{"nonzero_number", map[string]any{"forceIntervention": 1.0}, true},
		{"zero_number", map[string]any{"forceIntervention": 0.0}, false},
		{"unrelated_key", map[string]any{"tone": "friendly"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CheckForIntervention("https://example.com/", model.NewValue(tc.traits))
			if got != tc.want {
				t.Fatalf("CheckForIntervention() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCheckForInterventionDomainMatch(t *testing.T) {
	traits := model.NewValue(map[string]any{
		"interventionDomains": []any{"bank.example.com", "payments.io"},
	})
	if !CheckForIntervention("https://secure.bank.example.com/login", traits) {
		t.Fatal("expected subdomain suffix match to trigger intervention")
	}
	if CheckForIntervention("https://unrelated.test/login", traits) {
		t.Fatal("expected no match for unrelated host")
	}
}

func TestCheckForInterventionPathMatch(t *testing.T) {
	traits := model.NewValue(map[string]any{
		"interventionPaths": []any{"/checkout", "/account/security"},
	})
	if !CheckForIntervention("https://shop.example.com/checkout/payment", traits) {
		t.Fatal("expected path substring match to trigger intervention")
	}
	if CheckForIntervention("https://shop.example.com/catalog", traits) {
		t.Fatal("expected no match for unrelated path")
	}
}

func TestCheckForInterventionKeywordMatch(t *testing.T) {
	traits := model.NewValue(map[string]any{
		"keywords": "captcha",
	})
	if !CheckForIntervention("https://example.com/verify?type=CAPTCHA", traits) {
		t.Fatal("expected case-insensitive keyword match in full URL")
	}
}

func TestCheckForInterventionNestedRulesMapping(t *testing.T) {
	traits := model.NewValue(map[string]any{
		"interventionRules": map[string]any{
			"domains": []any{"login.example.com"},
		},
	})
	if !CheckForIntervention("https://login.example.com/mfa", traits) {
		t.Fatal("expected nested interventionRules mapping to be consulted")
	}
}

func TestCheckForInterventionNestedRulesSequence(t *testing.T) {
	traits := model.NewValue(map[string]any{
		"interventionRules": []any{
			map[string]any{"paths": []any{"/2fa"}},
			map[string]any{"keywords": []any{"otp"}},
		},
	})
	if !CheckForIntervention("https://example.com/2fa/verify", traits) {
		t.Fatal("expected first rule in sequence to match")
	}
	if !CheckForIntervention("https://example.com/account?flow=otp", traits) {
		t.Fatal("expected second rule in sequence to match")
	}
	if CheckForIntervention("https://example.com/dashboard", traits) {
		t.Fatal("expected no match when neither nested rule applies")
	}
}

func TestCheckForInterventionNoMatch(t *testing.T) {
	traits := model.NewValue(map[string]any{"tone": "friendly"})
	if CheckForIntervention("https://example.com/dashboard", traits) {
		t.Fatal("expected no intervention for an unflagged persona and benign URL")
	}
}
