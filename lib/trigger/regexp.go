package trigger

import (
	"log"
	"regexp"
	"strings"
)

// RegexpParams is a payload for regexp triggers. Remove patterns are applied
// as global deletions before matching; List patterns are tested in order and
// the first match wins.
type RegexpParams struct {
	CaseInsensitive bool
	Multiline       bool
	Analyze         string // content or username
	Remove          []*regexp.Regexp
	List            []*regexp.Regexp
}

// NewRegexpParams compiles remove and list patterns. All patterns get
// dot-matches-all; case-insensitive and multiline flags are per-config.
// An invalid pattern is logged and skipped, the rest of the trigger stays
// functional.
func NewRegexpParams(caseInsensitive, multiline bool, analyze string, remove, list []string) *RegexpParams {
	res := &RegexpParams{CaseInsensitive: caseInsensitive, Multiline: multiline, Analyze: analyze}
	res.Remove = compilePatterns(remove, caseInsensitive, multiline)
	res.List = compilePatterns(list, caseInsensitive, multiline)
	return res
}

func compilePatterns(patterns []string, caseInsensitive, multiline bool) []*regexp.Regexp {
	flags := "s" // dot matches newline
	if caseInsensitive {
		flags += "i"
	}
	if multiline {
		flags += "m"
	}
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?" + flags + ")" + p)
		if err != nil {
			log.Printf("[WARN] invalid regexp %q skipped: %v", p, err)
			continue
		}
		res = append(res, re)
	}
	return res
}

func (p *RegexpParams) check(req Request) Response {
	text := req.Content
	if p.Analyze == AnalyzeUsername {
		text = req.UserName
	}
	for _, re := range p.Remove {
		text = re.ReplaceAllString(text, "")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Response{}
	}
	for _, re := range p.List {
		if match := re.FindString(text); match != "" {
			return Response{Active: true, Reason: "фраза: " + match}
		}
	}
	return Response{}
}
