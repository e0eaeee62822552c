// Package security masks credentials in service URLs and messages
// before they reach logs, errors or notifications.
package security

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	secretKeyExpr        = `(?:password|passwd|secret|api[_-]?key|[a-z0-9._-]*token[a-z0-9._-]*)`
	secretParamPattern   = regexp.MustCompile(`(?i)^(?:` + secretKeyExpr + `|key|authkey|signature|sig)$`)
	kvSecretPattern      = regexp.MustCompile(`(?i)(` + secretKeyExpr + `)\s*[:=]\s*(?:"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'|[^\s"'&]+)`)
	jsonSecretPattern    = regexp.MustCompile(`(?i)("` + secretKeyExpr + `"\s*:\s*)"(?:[^"\\]|\\.)*"`)
	authorizationPattern = regexp.MustCompile(`(?i)(authorization\s*:\s*)[^\r\n]+`)
	bearerTokenPattern   = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]+`)
	userinfoPattern      = regexp.MustCompile(`(?i)(https?://[^\s/:@]+):[^\s/@]+@`)
)

const redacted = "REDACTED"

// RedactURL masks the password and secret-looking query parameters of
// raw. Unparseable input falls back to RedactMessage.
func RedactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return RedactMessage(raw)
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), redacted)
		}
	}
	q := u.Query()
	changed := false
	for key := range q {
		if secretParamPattern.MatchString(key) {
			q.Set(key, redacted)
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// RedactMessage masks credentials echoed in free text, such as a service
// exception that quotes the request.
func RedactMessage(input string) string {
	if input == "" {
		return ""
	}
	out := jsonSecretPattern.ReplaceAllString(input, `${1}"[`+redacted+`]"`)
	out = kvSecretPattern.ReplaceAllStringFunc(out, func(match string) string {
		idx := strings.IndexAny(match, ":=")
		if idx < 0 {
			return "[" + redacted + "]"
		}
		return match[:idx+1] + "[" + redacted + "]"
	})
	out = authorizationPattern.ReplaceAllString(out, `${1}[`+redacted+`]`)
	out = bearerTokenPattern.ReplaceAllString(out, "Bearer ["+redacted+"]")
	out = userinfoPattern.ReplaceAllString(out, `${1}:`+redacted+`@`)
	return out
}
