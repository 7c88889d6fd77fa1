package parser

import (
	"regexp"
	"strings"
)

// Code is a one-time code found in a message body.
type Code struct {
	Kind  string
	Value string
}

type codeRule struct {
	kind string
	re   *regexp.Regexp
}

// CodeFinder finds one-time codes in plain text so they can be shown as
// copyable snippets above the body.
type CodeFinder struct {
	rules []codeRule
	max   int
}

// NewCodeFinder creates a finder returning at most max codes.
func NewCodeFinder(max int) *CodeFinder {
	return &CodeFinder{
		max: max,
		rules: []codeRule{
			{kind: "otp", re: regexp.MustCompile(`(?i)(?:code|код|otp|pin|пин|пароль|password)[\s:\-]*(\d{4,8})\b`)},
			{kind: "verification", re: regexp.MustCompile(`(?i)(?:verification|верификац|подтвержд|confirm|активац)[\s\p{L}]*[\s:\-]*(\d{4,8})\b`)},
			{kind: "security", re: regexp.MustCompile(`(?i)(?:security|безопасност|2fa|two.factor)[\s\p{L}]*[\s:\-]*(\d{4,8})\b`)},
			{kind: "code", re: regexp.MustCompile(`(?m)^\s*(\d{4,8})\s*$`)},
			{kind: "code", re: regexp.MustCompile(`(?:code|Code|CODE|код|Код)[\s:\-]*([A-Z0-9]{5,12})\b`)},
		},
	}
}

// Find returns the distinct codes in text in rule order. Standalone
// four-digit numbers that look like years are skipped.
func (f *CodeFinder) Find(text string) []Code {
	var out []Code
	seen := make(map[string]struct{})

	for _, rule := range f.rules {
		for _, m := range rule.re.FindAllStringSubmatch(text, -1) {
			v := strings.TrimSpace(m[1])
			if _, dup := seen[v]; dup {
				continue
			}
			if rule.kind == "code" && looksLikeYear(v) {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, Code{Kind: rule.kind, Value: v})
			if f.max > 0 && len(out) == f.max {
				return out
			}
		}
	}
	return out
}

func looksLikeYear(v string) bool {
	return len(v) == 4 && (strings.HasPrefix(v, "19") || strings.HasPrefix(v, "20"))
}
