package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegexp(t *testing.T) {
	tests := []struct {
		name   string
		params *RegexpParams
		req    Request
		active bool
		reason string
	}{
		{
			name:   "content match",
			params: NewRegexpParams(false, false, AnalyzeContent, nil, []string{`free \w+`}),
			req:    Request{Content: "get free money now"},
			active: true,
			reason: "фраза: free money",
		},
		{
			name:   "no match",
			params: NewRegexpParams(false, false, AnalyzeContent, nil, []string{`free \w+`}),
			req:    Request{Content: "nothing here"},
		},
		{
			name:   "username analyze",
			params: NewRegexpParams(false, false, AnalyzeUsername, nil, []string{`(?i)casino`}),
			req:    Request{Content: "", UserName: "Big BigCasinoBoss"},
			active: true,
			reason: "фраза: Casino",
		},
		{
			name:   "case insensitive flag",
			params: NewRegexpParams(true, false, AnalyzeContent, nil, []string{`casino`}),
			req:    Request{Content: "CASINO"},
			active: true,
			reason: "фраза: CASINO",
		},
		{
			name:   "remove scrubs before match",
			params: NewRegexpParams(false, false, AnalyzeContent, []string{`\s+`}, []string{`freemoney`}),
			req:    Request{Content: "free money"},
			active: true,
			reason: "фраза: freemoney",
		},
		{
			name:   "empty after scrub",
			params: NewRegexpParams(false, false, AnalyzeContent, []string{`.`}, []string{`.*`}),
			req:    Request{Content: "anything"},
		},
		{
			name:   "dot matches newline",
			params: NewRegexpParams(false, false, AnalyzeContent, nil, []string{`start.end`}),
			req:    Request{Content: "start\nend"},
			active: true,
			reason: "фраза: start\nend",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &Trigger{Name: "re", Kind: Regexp, Active: true, Re: tt.params}
			resp := tr.Check(tt.req)
			assert.Equal(t, tt.active, resp.Active)
			assert.Equal(t, tt.reason, resp.Reason)
		})
	}
}

func TestRegexpScenarioUsername(t *testing.T) {
	tr := &Trigger{Name: "re", Kind: Regexp, Active: true,
		Re: NewRegexpParams(false, false, AnalyzeUsername, nil, []string{`(?i)casino`})}
	resp := tr.Check(Request{Content: "", UserName: "BigCasinoBoss"})
	require.True(t, resp.Active)
	assert.True(t, len(resp.Reason) > len("фраза: "))
	assert.Equal(t, "фраза: ", resp.Reason[:len("фраза: ")])
}

func TestRegexpInvalidPatternSkipped(t *testing.T) {
	params := NewRegexpParams(false, false, AnalyzeContent, []string{`[`}, []string{`[`, `valid`})
	assert.Empty(t, params.Remove, "invalid remove pattern dropped")
	require.Len(t, params.List, 1, "invalid list pattern dropped, valid kept")

	tr := &Trigger{Name: "re", Kind: Regexp, Active: true, Re: params}
	resp := tr.Check(Request{Content: "still valid here"})
	assert.True(t, resp.Active)
}

func TestRegexpRemoveIdempotent(t *testing.T) {
	params := NewRegexpParams(false, false, AnalyzeContent, []string{`\d+`, `bad`}, nil)
	scrub := func(s string) string {
		for _, re := range params.Remove {
			s = re.ReplaceAllString(s, "")
		}
		return s
	}
	in := "bad123 text bad 456"
	once := scrub(in)
	assert.Equal(t, once, scrub(once))
}
