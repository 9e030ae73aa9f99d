package extracthtml

import (
	"encoding/base64"
	"encoding/json"
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Dealer pages often hide the contact address behind a small inline script:
//
//	var a='k&#64;rknzcyr.pbz'; ... class="email eyJyb3QiOiJpdCJ9" ...
//
// The class list carries base64 JSON tokens describing how the address was
// scrambled: {"rot":"it"} for ROT13, {"rmv":"xyz"} for injected noise and
// single-letter pairs {"h":"m"} for a substitution (real h written as m).
var (
	reScriptAddr  = regexp.MustCompile(`\bvar\s+a\s*=\s*'([^']*)'`)
	reScriptClass = regexp.MustCompile(`\bclass\s*=\s*"([^"]+)"`)
	reEmailAddr   = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// decodeEmail reads an obfuscated address out of a script Node (its outer
// HTML) or a string. Anything that does not decode to a plausible address
// becomes Absent.
func decodeEmail(in Subject) Subject {
	conv := func(s string) any {
		if addr := DecodeScriptEmail(s); addr != "" {
			return addr
		}
		return nil
	}

	switch in.kind {
	case KindNode:
		out, err := goquery.OuterHtml(in.sel)
		if err != nil {
			return Absent()
		}
		if v := conv(out); v != nil {
			return ScalarOf(v)
		}
		return Absent()
	case KindScalar:
		s, ok := in.scalar.(string)
		if !ok {
			return Absent()
		}
		if v := conv(s); v != nil {
			return ScalarOf(v)
		}
		return Absent()
	case KindList:
		vals := make([]any, len(in.list))
		for i, v := range in.list {
			if s, ok := v.(string); ok {
				vals[i] = conv(s)
			}
		}
		return ListOf(vals)
	default:
		return in
	}
}

type emailScramble struct {
	rot13   bool
	noise   []string
	reverse map[rune]rune
}

// DecodeScriptEmail undoes the scrambling described above. It returns "" when
// script has no address or the result does not look like one.
func DecodeScriptEmail(script string) string {
	m := reScriptAddr.FindStringSubmatch(script)
	if m == nil {
		return ""
	}
	addr := strings.TrimPrefix(strings.TrimSpace(html.UnescapeString(m[1])), "mailto:")

	sc := scrambleFromClasses(script)
	for _, n := range sc.noise {
		addr = strings.ReplaceAll(addr, n, "")
	}
	if len(sc.reverse) > 0 {
		addr = strings.Map(func(r rune) rune {
			if orig, ok := sc.reverse[r]; ok {
				return orig
			}
			return r
		}, addr)
	}
	if sc.rot13 {
		addr = strings.Map(rot13, addr)
	}

	// "mailto:" only shows up in the clear after ROT13 in some variants.
	addr = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(addr), "mailto:"))
	if !reEmailAddr.MatchString(addr) {
		return ""
	}
	return addr
}

// scrambleFromClasses only looks at class lists that belong to the email
// element so ordinary CSS class names are never decoded.
func scrambleFromClasses(script string) emailScramble {
	sc := emailScramble{reverse: map[rune]rune{}}
	for _, cm := range reScriptClass.FindAllStringSubmatch(script, -1) {
		classes := cm[1]
		if !strings.Contains(classes, "email") && !strings.Contains(classes, "required") {
			continue
		}
		for _, tok := range strings.Fields(classes) {
			if len(tok) < 8 || len(tok) > 80 {
				continue
			}
			obj, ok := decodeClassToken(tok)
			if !ok {
				continue
			}
			for k, v := range obj {
				switch {
				case k == "rot":
					sc.rot13 = sc.rot13 || v == "it"
				case k == "rmv":
					if v != "" {
						sc.noise = append(sc.noise, v)
					}
				default:
					kr, vr := []rune(k), []rune(v)
					if len(kr) == 1 && len(vr) == 1 {
						sc.reverse[vr[0]] = kr[0]
					}
				}
			}
		}
	}
	return sc
}

// decodeClassToken accepts standard or URL-safe base64 with or without
// padding.
func decodeClassToken(tok string) (map[string]string, bool) {
	if r := len(tok) % 4; r != 0 {
		tok += strings.Repeat("=", 4-r)
	}
	b, err := base64.StdEncoding.DecodeString(tok)
	if err != nil {
		if b, err = base64.URLEncoding.DecodeString(tok); err != nil {
			return nil, false
		}
	}
	var obj map[string]string
	if err := json.Unmarshal(b, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func rot13(r rune) rune {
	switch {
	case r >= 'a' && r <= 'z':
		return 'a' + (r-'a'+13)%26
	case r >= 'A' && r <= 'Z':
		return 'A' + (r-'A'+13)%26
	default:
		return r
	}
}
