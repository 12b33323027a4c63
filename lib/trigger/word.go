package trigger

import "strings"

// WordParams is a payload for word triggers, activates on the first word found
// as a substring of the message content.
type WordParams struct {
	CaseInsensitive bool
	WordList        []string
}

func (p *WordParams) check(req Request) Response {
	content := req.Content
	if p.CaseInsensitive {
		content = strings.ToLower(content)
	}
	for _, word := range p.WordList {
		if word == "" {
			continue
		}
		w := word
		if p.CaseInsensitive {
			w = strings.ToLower(w)
		}
		if strings.Contains(content, w) {
			return Response{Active: true, Reason: "слово: " + word}
		}
	}
	return Response{}
}
