package services

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerateCandidateCodeFormat(t *testing.T) {
	for i := 0; i < 100; i++ {
		code := GenerateCandidateCode()
		if len(code) != 8 {
			t.Fatalf("expected 8 chars, got %q (%d)", code, len(code))
		}
		for _, r := range code {
			if !strings.ContainsRune(candidateCharset, r) {
				t.Fatalf("unexpected character %q in candidate %q", r, code)
			}
		}
	}
}

func TestNormalizeCode(t *testing.T) {
	cases := map[string]string{
		"  my-code_1  ": "MY-CODE_1",
		"abc":           "ABC",
		"Çödé7":         "CODE7",
		"":              "",
	}
	for in, want := range cases {
		if got := NormalizeCode(in); got != want {
			t.Errorf("NormalizeCode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidateCustomCodeRules(t *testing.T) {
	cases := []struct {
		input    string
		wantRule string
	}{
		{"AB", "length"},
		{"", "length"},
		{"TOOLONGCODE-1234", "length"},
		{"BAD CODE!", "charset"},
		{"12345", "letter"},
		{"-_-", "letter"},
		{"ADMIN1", "reserved"},
		{"XTESTX", "reserved"},
		{"MYREFERRAL", "reserved"},
	}
	for _, tc := range cases {
		_, err := ValidateCustomCode(tc.input)
		if err == nil {
			t.Errorf("ValidateCustomCode(%q): expected %s error, got nil", tc.input, tc.wantRule)
			continue
		}
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("ValidateCustomCode(%q): expected *ValidationError, got %T", tc.input, err)
			continue
		}
		if vErr.Rule != tc.wantRule {
			t.Errorf("ValidateCustomCode(%q): rule = %q, want %q", tc.input, vErr.Rule, tc.wantRule)
		}
		if vErr.Message == "" {
			t.Errorf("ValidateCustomCode(%q): empty message", tc.input)
		}
	}
}

func TestValidateCustomCodeAccepts(t *testing.T) {
	cases := map[string]string{
		"MY-CODE_1": "MY-CODE_1",
		"my-code_1": "MY-CODE_1",
		" ABC ":     "ABC",
		"X7K2M9PQ":  "X7K2M9PQ",
	}
	for in, want := range cases {
		got, err := ValidateCustomCode(in)
		if err != nil {
			t.Errorf("ValidateCustomCode(%q): unexpected error %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ValidateCustomCode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidateCustomCodeIsDeterministic(t *testing.T) {
	for i := 0; i < 5; i++ {
		if _, err := ValidateCustomCode("12345"); err == nil {
			t.Fatal("expected letter error every time")
		}
	}
}

func TestSuggestionIsUsable(t *testing.T) {
	inputs := []string{"my cool code!!", "ab", "ADMIN1", "12345"}
	for _, in := range inputs {
		_, err := ValidateCustomCode(in)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("ValidateCustomCode(%q): expected validation error, got %v", in, err)
		}
		if vErr.Suggestion == "" {
			t.Errorf("ValidateCustomCode(%q): no suggestion offered", in)
			continue
		}
		if _, err := ValidateCustomCode(vErr.Suggestion); err != nil {
			t.Errorf("suggestion %q for input %q does not validate: %v", vErr.Suggestion, in, err)
		}
	}
}
