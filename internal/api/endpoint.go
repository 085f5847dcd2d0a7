package api

import (
	"net/url"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{([^{}/]*)\}`)

// Endpoint addresses a backend resource as /{app}/{version}/{path}. Version is
// optional and omitted from the URL when empty. Path may contain {param}
// placeholders.
type Endpoint struct {
	App     string
	Version string
	Path    string
}

// NewEndpoint returns an unversioned endpoint.
func NewEndpoint(app, path string) Endpoint {
	return Endpoint{App: app, Path: path}
}

// URLPath renders the endpoint with the given parameters.
func (e Endpoint) URLPath(params map[string]string) string {
	return ExpandPath("/"+e.App+"/"+e.Version+"/"+e.Path, params)
}

// String implements fmt.Stringer.
func (e Endpoint) String() string {
	return e.URLPath(nil)
}

// ExpandPath substitutes {param} placeholders with path-escaped values from
// params. Placeholders missing from params are replaced with the empty
// string. Runs of slashes collapse to one and a trailing slash is removed.
func ExpandPath(path string, params map[string]string) string {
	expanded := placeholderPattern.ReplaceAllStringFunc(path, func(match string) string {
		if value, ok := params[match[1:len(match)-1]]; ok {
			return url.PathEscape(value)
		}
		return ""
	})

	var b strings.Builder
	b.Grow(len(expanded))
	prevSlash := false
	for i := 0; i < len(expanded); i++ {
		ch := expanded[i]
		if ch == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteByte(ch)
	}

	out := b.String()
	if len(out) > 1 {
		out = strings.TrimSuffix(out, "/")
	}
	return out
}
