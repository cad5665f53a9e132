// Package locale negotiates the content locale of a request.
package locale

import (
	"net/http"

	"golang.org/x/text/language"
)

type Matcher struct {
	tags    []language.Tag
	matcher language.Matcher
}

// NewMatcher builds a matcher over supported; the first entry is the default.
func NewMatcher(supported []string) *Matcher {
	tags := make([]language.Tag, 0, len(supported))
	for _, s := range supported {
		if t, err := language.Parse(s); err == nil {
			tags = append(tags, t)
		}
	}
	if len(tags) == 0 {
		tags = append(tags, language.English)
	}
	return &Matcher{tags: tags, matcher: language.NewMatcher(tags)}
}

func (m *Matcher) Default() string {
	return base(m.tags[0])
}

// Match picks the best supported locale for the given preferences, which may be
// a bare code ("uk") or an Accept-Language header value.
func (m *Matcher) Match(prefs ...string) string {
	var wanted []language.Tag
	for _, p := range prefs {
		if p == "" {
			continue
		}
		tags, _, err := language.ParseAcceptLanguage(p)
		if err != nil {
			continue
		}
		wanted = append(wanted, tags...)
	}
	if len(wanted) == 0 {
		return m.Default()
	}
	_, idx, conf := m.matcher.Match(wanted...)
	if conf == language.No {
		return m.Default()
	}
	return base(m.tags[idx])
}

// FromRequest prefers ?locale= over the Accept-Language header.
func (m *Matcher) FromRequest(r *http.Request) string {
	return m.Match(r.URL.Query().Get("locale"), r.Header.Get("Accept-Language"))
}

func base(t language.Tag) string {
	b, _ := t.Base()
	return b.String()
}
