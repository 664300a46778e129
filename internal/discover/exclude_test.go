package discover

import "testing"

func TestMatchesAnyPathExclude(t *testing.T) {
	patterns := []string{
		"**/private/**",
		"**/*.pem",
		"fixtures/",
	}

	if !IsExcluded("src/private/token.txt", patterns) {
		t.Fatal("expected private path to match")
	}
	if !IsExcluded("tls/server.pem", patterns) {
		t.Fatal("expected pem path to match")
	}
	if !IsExcluded("fixtures/data/sample.json", patterns) {
		t.Fatal("expected fixtures/ prefix path to match")
	}
	if IsExcluded("src/public/readme.md", patterns) {
		t.Fatal("did not expect public path to match")
	}
}

func TestValidateExcludes(t *testing.T) {
	if err := ValidateExcludes([]string{"**/.git/**", "*.tmp"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateExcludes([]string{"bad/[glob"}); err == nil {
		t.Fatal("expected malformed glob to be rejected")
	}
}
