// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ruleset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"l7classd/internal/markval"
)

func mustRule(t *testing.T, mark markval.Mark, method, url string) *Rule {
	t.Helper()
	r := &Rule{Protocol: HTTP, Mark: mark}
	if method != "" {
		re, err := MethodLiteral(method)
		require.NoError(t, err)
		r.Method = re
	}
	if url != "" {
		re, err := URLRegex(url)
		require.NoError(t, err)
		r.URL = re
	}
	return r
}

func TestFirstMatchWins(t *testing.T) {
	rs := New([]*Rule{
		mustRule(t, 1, "GET", ""),
		mustRule(t, 2, "", ""),
	})

	assert.Equal(t, markval.Mark(1), rs.Match(HTTP, "GET", "/"))
	assert.Equal(t, markval.Mark(2), rs.Match(HTTP, "POST", "/"))
}

func TestNoMatchReturnsSentinel(t *testing.T) {
	rs := New([]*Rule{mustRule(t, 1, "GET", "")})
	assert.Equal(t, markval.NoMatch, rs.Match(HTTP, "POST", "/"))
}

func TestMethodMatchIsCaseInsensitive(t *testing.T) {
	rs := New([]*Rule{mustRule(t, 7, "get", "")})
	assert.Equal(t, markval.Mark(7), rs.Match(HTTP, "GET", "/x"))
}

func TestProtocolMustMatch(t *testing.T) {
	r := mustRule(t, 1, "GET", "")
	r.Protocol = HTTP
	rs := New([]*Rule{r})
	assert.Equal(t, markval.NoMatch, rs.Match(Protocol(99), "GET", "/"))
}

func TestURLMaxSizeMatchesStrictlyLonger(t *testing.T) {
	re, err := URLMaxSize(4)
	require.NoError(t, err)
	r := &Rule{Protocol: HTTP, Mark: 9, URL: re}
	rs := New([]*Rule{r})

	assert.Equal(t, markval.NoMatch, rs.Match(HTTP, "GET", "/abc"))
	assert.Equal(t, markval.Mark(9), rs.Match(HTTP, "GET", "/abcde"))
}

func TestParseProtocolCaseInsensitive(t *testing.T) {
	p, err := ParseProtocol("HTTP")
	require.NoError(t, err)
	assert.Equal(t, HTTP, p)

	_, err = ParseProtocol("smtp")
	assert.Error(t, err)
}

func TestRulesReturnsCopyNotAlias(t *testing.T) {
	rs := New([]*Rule{mustRule(t, 1, "GET", "")})
	rules := rs.Rules()
	rules[0] = nil
	assert.NotNil(t, rs.Rules()[0])
}
