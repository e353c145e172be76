// Package redact strips credentials from free text before it reaches logs or
// persisted error fields. Vendor error bodies occasionally echo the caller's
// key back, so everything that crosses the logging boundary goes through here.
package redact

import (
	"regexp"
	"strings"
)

var sensitiveKeys = []string{
	"api_key",
	"apikey",
	"access_token",
	"refresh_token",
	"client_secret",
	"authorization",
	"token",
	"secret",
}

var (
	jsonPattern  *regexp.Regexp
	queryPattern *regexp.Regexp
	bearerRe     = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._\-/+=]+`)
)

func init() {
	keys := strings.Join(sensitiveKeys, "|")
	jsonPattern = regexp.MustCompile(`(?i)"(` + keys + `)"\s*:\s*"[^"]*"`)
	queryPattern = regexp.MustCompile(`(?i)\b(` + keys + `)=[^\s&"]+`)
}

// Text replaces credential values in s with "***". Key names are preserved so
// the redacted text stays diagnosable.
func Text(s string) string {
	if s == "" {
		return s
	}
	s = jsonPattern.ReplaceAllString(s, `"$1":"***"`)
	s = queryPattern.ReplaceAllString(s, "$1=***")
	s = bearerRe.ReplaceAllString(s, "Bearer ***")
	return s
}

// Error redacts an error's message. A nil error yields the empty string.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return Text(err.Error())
}
