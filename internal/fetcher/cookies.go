package fetcher

import "strings"

// cookieJar accumulates Set-Cookie values across one redirect chain.
// Only the name=value portion of each cookie is kept; Path, Domain, Secure
// and the rest are deliberately dropped. Not RFC 6265 compliant, but it is
// what the storefront flow requires. Re-setting a name moves it to the end
// (last-set ordering).
type cookieJar struct {
	pairs []cookiePair
}

type cookiePair struct {
	name  string
	value string
}

// absorb records every Set-Cookie header value of one response.
func (j *cookieJar) absorb(setCookies []string) {
	for _, sc := range setCookies {
		nv, _, _ := strings.Cut(sc, ";")
		nv = strings.TrimSpace(nv)
		name, _, ok := strings.Cut(nv, "=")
		if !ok || name == "" {
			continue
		}
		j.set(name, nv)
	}
}

func (j *cookieJar) set(name, nameValue string) {
	for i, p := range j.pairs {
		if p.name == name {
			j.pairs = append(j.pairs[:i], j.pairs[i+1:]...)
			break
		}
	}
	j.pairs = append(j.pairs, cookiePair{name: name, value: nameValue})
}

// header renders the accumulated cookies as a single Cookie header value.
func (j *cookieJar) header() string {
	parts := make([]string, 0, len(j.pairs))
	for _, p := range j.pairs {
		parts = append(parts, p.value)
	}
	return strings.Join(parts, "; ")
}
