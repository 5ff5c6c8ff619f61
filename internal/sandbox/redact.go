package sandbox

import "regexp"

var secretPattern = regexp.MustCompile(`(ANTHROPIC_API_KEY|OPENAI_API_KEY)=\S+`)

// Redact replaces the value half of any ANTHROPIC_API_KEY=/OPENAI_API_KEY=
// assignment with [REDACTED]. It is applied to every log line and error
// message that might echo a child process's environment or argv before
// that text leaves the sandbox package.
func Redact(s string) string {
	return secretPattern.ReplaceAllString(s, "$1=[REDACTED]")
}
