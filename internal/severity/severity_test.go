package severity_test

import (
	"testing"

	"github.com/raysh454/dorkrecon/internal/severity"
)

func TestClassify_KeywordOverrideBeatsCategory(t *testing.T) {
	// "documentation" is a Low category on github, but the query mentions a
	// password so the keyword override wins.
	got := severity.Classify("github", "Documentation", "org:acme password filename:.env")
	if got != severity.High {
		t.Fatalf("Classify = %s, want high", got)
	}
}

func TestClassify_PasswordAlwaysHigh(t *testing.T) {
	categories := []string{"", "Documentation", "Information Disclosure", "Dev/Test", "anything"}
	for _, cat := range categories {
		if got := severity.Classify("google", cat, `site:example.com intext:"PASSWORD"`); got != severity.High {
			t.Fatalf("category %q: Classify = %s, want high", cat, got)
		}
	}
}

func TestClassify_CategoryTables(t *testing.T) {
	tests := []struct {
		platform string
		category string
		want     severity.Tier
	}{
		{"google", "Credentials", severity.High},
		{"google", "private keys", severity.High},
		{"google", "Information Disclosure", severity.Low},
		{"google", "Technology Detection", severity.Low},
		{"github", "API Keys", severity.High},
		{"github", "tokens", severity.High},
		{"github", "Documentation", severity.Low},
		{"github", "information", severity.Low},
	}
	for _, tt := range tests {
		got := severity.Classify(tt.platform, tt.category, "site:example.com inurl:admin")
		if got != tt.want {
			t.Fatalf("Classify(%s, %s) = %s, want %s", tt.platform, tt.category, got, tt.want)
		}
	}
}

func TestClassify_DefaultsToMedium(t *testing.T) {
	if got := severity.Classify("google", "Index Pages", "site:example.com intitle:index.of"); got != severity.Medium {
		t.Fatalf("Classify = %s, want medium", got)
	}
	// Unknown platform falls through the tables too.
	if got := severity.Classify("bing", "Secrets", "site:example.com admin"); got != severity.Medium {
		t.Fatalf("unknown platform: Classify = %s, want medium", got)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	first := severity.Classify("github", "Secrets", "org:acme filename:id_rsa")
	for i := 0; i < 10; i++ {
		if got := severity.Classify("github", "Secrets", "org:acme filename:id_rsa"); got != first {
			t.Fatalf("Classify not deterministic: %s then %s", first, got)
		}
	}
}

func TestValid(t *testing.T) {
	for _, s := range []string{"high", "medium", "low"} {
		if !severity.Valid(s) {
			t.Fatalf("Valid(%q) = false", s)
		}
	}
	for _, s := range []string{"", "HIGH", "critical"} {
		if severity.Valid(s) {
			t.Fatalf("Valid(%q) = true", s)
		}
	}
}
