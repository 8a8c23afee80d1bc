package memstore

import (
	"fmt"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// matcherCache keeps compiled glob patterns; scan steps of one walk reuse
// the same pattern many times.
type matcherCache struct {
	cache *lru.Cache[string, *regexp.Regexp]
}

func newMatcherCache(size int) (*matcherCache, error) {
	c, err := lru.New[string, *regexp.Regexp](size)
	if err != nil {
		return nil, fmt.Errorf("matcher cache: %w", err)
	}
	return &matcherCache{cache: c}, nil
}

func (m *matcherCache) get(pattern string) (*regexp.Regexp, error) {
	if re, ok := m.cache.Get(pattern); ok {
		return re, nil
	}
	re, err := compileGlob(pattern)
	if err != nil {
		return nil, err
	}
	m.cache.Add(pattern, re)
	return re, nil
}

// compileGlob translates a Redis glob ("*", "?", "[a-z]", "[^x]", "\x") into
// an anchored regexp. An unterminated '[' is taken literally.
func compileGlob(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString(`(?s)^`)

	rs := []rune(pattern)
	for i := 0; i < len(rs); i++ {
		switch c := rs[i]; c {
		case '*':
			b.WriteString(`.*`)
		case '?':
			b.WriteString(`.`)
		case '\\':
			if i+1 < len(rs) {
				i++
				b.WriteString(regexp.QuoteMeta(string(rs[i])))
			} else {
				b.WriteString(`\\`)
			}
		case '[':
			end, class := globClass(rs, i)
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			b.WriteString(class)
			i = end
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString(`$`)

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	return re, nil
}

// globClass converts the bracket expression starting at rs[start] and
// returns the index of its closing ']'.
func globClass(rs []rune, start int) (int, string) {
	var b strings.Builder
	b.WriteByte('[')

	i := start + 1
	if i < len(rs) && rs[i] == '^' {
		b.WriteByte('^')
		i++
	}
	for first := true; i < len(rs); i++ {
		c := rs[i]
		switch {
		case c == ']' && !first:
			b.WriteByte(']')
			return i, b.String()
		case c == '\\' && i+1 < len(rs):
			i++
			b.WriteString(classLiteral(rs[i]))
		case c == '-':
			b.WriteByte('-')
		default:
			b.WriteString(classLiteral(c))
		}
		first = false
	}
	return -1, ""
}

func classLiteral(c rune) string {
	switch c {
	case '[', ']', '^', '\\', '-':
		return `\` + string(c)
	}
	return string(c)
}
