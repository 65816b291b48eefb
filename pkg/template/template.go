// Package template renders {name} placeholder tokens in response
// bodies and proxy URL templates. The token grammar is the same as in
// path templates: {identifier} with identifier matching
// [a-zA-Z_][a-zA-Z0-9_]*. Anything else in braces is left alone.
package template

import "regexp"

var tokenRe = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Render substitutes every {name} token with the value from the first
// source that binds name, trying sources in argument order. Tokens no
// source binds stay verbatim.
func Render(s string, sources ...map[string]string) string {
	out, _ := render(s, sources)
	return out
}

// RenderURL is Render plus the names of tokens left unresolved, so
// proxy targets can record a warning per dangling placeholder.
func RenderURL(s string, sources ...map[string]string) (string, []string) {
	return render(s, sources)
}

// Tokens lists the placeholder names in s, in order of appearance,
// with duplicates preserved.
func Tokens(s string) []string {
	var names []string
	for _, m := range tokenRe.FindAllStringSubmatch(s, -1) {
		names = append(names, m[1])
	}
	return names
}

func render(s string, sources []map[string]string) (string, []string) {
	var unresolved []string
	out := tokenRe.ReplaceAllStringFunc(s, func(tok string) string {
		name := tok[1 : len(tok)-1]
		for _, src := range sources {
			if v, ok := src[name]; ok {
				return v
			}
		}
		unresolved = append(unresolved, name)
		return tok
	})
	return out, unresolved
}
