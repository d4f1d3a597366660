// Package sshx implements the SSH execution substrate: command/path
// validation, the connection pool, and the executor.
package sshx

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/wp-autohealer/engine/internal/errkind"
)

const (
	maxCommandLength = 4096
	maxPathLength    = 4096
)

// allowedCommands is the closed set of first tokens a validated command
// may start with.
var allowedCommands = map[string]struct{}{
	"ls": {}, "cat": {}, "head": {}, "tail": {}, "grep": {}, "find": {},
	"locate": {}, "which": {}, "whereis": {}, "file": {}, "stat": {}, "du": {},
	"df": {}, "awk": {}, "sed": {}, "sort": {}, "uniq": {}, "wc": {}, "cut": {},
	"ps": {}, "top": {}, "htop": {}, "free": {}, "uptime": {}, "uname": {},
	"whoami": {}, "id": {}, "groups": {}, "wp": {}, "php": {}, "mysql": {},
	"mysqldump": {}, "apache2ctl": {}, "nginx": {}, "systemctl": {}, "service": {},
	"journalctl": {}, "logrotate": {}, "tar": {}, "gzip": {}, "gunzip": {},
	"zip": {}, "unzip": {},
}

// forbiddenPatterns reject dangerous commands regardless of which token
// leads them. Order does not matter; any match rejects.
var forbiddenPatterns = []*regexp.Regexp{
	regexp.MustCompile("[;&|`$(){}\\[\\]]"),
	regexp.MustCompile(`\$\(`),
	regexp.MustCompile(">\\$\\{"),
	regexp.MustCompile(`\|\s*(sh|bash|zsh|fish)\b`),
	regexp.MustCompile(`\b(wget|curl|nc|netcat|telnet|ssh|scp|rsync)\b`),
	regexp.MustCompile(`\brm\s+-rf\s+/`),
	regexp.MustCompile(`\bchmod\s+777\b`),
	regexp.MustCompile(`\b(chown|usermod|passwd|su|sudo)\b`),
	regexp.MustCompile(`\b(kill\s+-9|killall|pkill)\b`),
	regexp.MustCompile(`\b(mount|umount|fdisk|mkfs)\b`),
	regexp.MustCompile(`\b(apt|apt-get|yum|dnf|apk)\s+install\b`),
}

var hostnameLabelRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
var usernameRe = regexp.MustCompile(`^[a-z_][a-z0-9_-]*$`)
var templateParamKeyRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
var templatePlaceholderRe = regexp.MustCompile(`\{\{(\w+)\}\}`)
var shellMetaCharRe = regexp.MustCompile("[;&|`$(){}\\[\\]<>]")

var forbiddenPathPrefixes = []string{"/dev", "/proc", "/sys"}
var forbiddenPathSuffixes = []string{"/etc/passwd", "/etc/shadow", "/etc/sudoers"}

// ValidateCommand trims and rejects empty/oversized/forbidden commands,
// then requires the first token to be allow-listed.
func ValidateCommand(s string) (string, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", errkind.ValidationError("command", s)
	}
	if len(trimmed) > maxCommandLength {
		return "", errkind.ValidationError("command", "too long")
	}
	for _, p := range forbiddenPatterns {
		if p.MatchString(trimmed) {
			return "", errkind.ValidationError("command", trimmed)
		}
	}

	first := firstToken(trimmed)
	if !isAllowedCommand(first) {
		return "", errkind.ValidationError("command", trimmed)
	}

	return trimmed, nil
}

func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// isAllowedCommand accepts exact allow-list members and dotted subpaths
// of them (e.g. "/usr/bin/php" via its basename "php").
func isAllowedCommand(token string) bool {
	base := token
	if idx := strings.LastIndex(token, "/"); idx >= 0 {
		base = token[idx+1:]
	}
	_, ok := allowedCommands[base]
	return ok
}

// ValidatePath trims, collapses slash runs, and rejects traversal or
// access to sensitive system paths.
func ValidatePath(p, scope string) (string, error) {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		return "", errkind.ValidationError("path", p)
	}
	if len(trimmed) > maxPathLength {
		return "", errkind.ValidationError("path", "too long")
	}

	collapsed := collapseSlashes(trimmed)

	if strings.Contains(collapsed, "..") {
		return "", errkind.ValidationError("path", collapsed)
	}
	for _, prefix := range forbiddenPathPrefixes {
		if collapsed == prefix || strings.HasPrefix(collapsed, prefix+"/") {
			return "", errkind.ValidationError("path", collapsed)
		}
	}
	for _, suffix := range forbiddenPathSuffixes {
		if strings.HasSuffix(collapsed, suffix) {
			return "", errkind.ValidationError("path", collapsed)
		}
	}
	if strings.Contains(collapsed, "/.ssh/") || strings.HasSuffix(collapsed, "/.ssh") {
		return "", errkind.ValidationError("path", collapsed)
	}

	return collapsed, nil
}

func collapseSlashes(p string) string {
	var b strings.Builder
	prevSlash := false
	for _, r := range p {
		if r == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ValidateHostname lowercases and requires an RFC-1123 label per segment.
func ValidateHostname(h string) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(h))
	if lower == "" || len(lower) > 253 {
		return "", errkind.ValidationError("hostname", h)
	}
	for _, label := range strings.Split(lower, ".") {
		if !hostnameLabelRe.MatchString(label) {
			return "", errkind.ValidationError("hostname", h)
		}
	}
	return lower, nil
}

// ValidatePort requires an integer in 1..65535, flooring fractional input.
func ValidatePort(n float64) (int, error) {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, errkind.ValidationError("port", fmt.Sprintf("%v", n))
	}
	port := int(math.Floor(n))
	if port < 1 || port > 65535 {
		return 0, errkind.ValidationError("port", fmt.Sprintf("%v", n))
	}
	return port, nil
}

// ValidateUsername requires 1..32 chars matching [a-z_][a-z0-9_-]*.
func ValidateUsername(u string) (string, error) {
	if len(u) < 1 || len(u) > 32 || !usernameRe.MatchString(u) {
		return "", errkind.ValidationError("username", u)
	}
	return u, nil
}

// SanitizeTemplateParameters requires identifier-shaped keys and strips
// shell metacharacters from values, truncating to 256 chars.
func SanitizeTemplateParameters(params map[string]string) (map[string]string, error) {
	return sanitizeParams(params, 256)
}

// ValidateEnvironmentVariables behaves like SanitizeTemplateParameters but
// allows values up to 1024 chars.
func ValidateEnvironmentVariables(params map[string]string) (map[string]string, error) {
	return sanitizeParams(params, 1024)
}

func sanitizeParams(params map[string]string, maxLen int) (map[string]string, error) {
	out := make(map[string]string, len(params))
	for k, v := range params {
		if !templateParamKeyRe.MatchString(k) {
			return nil, errkind.ValidationError("template_param_key", k)
		}
		clean := shellMetaCharRe.ReplaceAllString(v, "")
		if len(clean) > maxLen {
			clean = clean[:maxLen]
		}
		out[k] = clean
	}
	return out, nil
}

// CreateSafeTemplate substitutes {{name}} placeholders with sanitised
// values, then validates the result as a command.
func CreateSafeTemplate(template string, params map[string]string) (string, error) {
	sanitized, err := SanitizeTemplateParameters(params)
	if err != nil {
		return "", err
	}

	substituted := templatePlaceholderRe.ReplaceAllStringFunc(template, func(match string) string {
		name := templatePlaceholderRe.FindStringSubmatch(match)[1]
		if v, ok := sanitized[name]; ok {
			return v
		}
		return match
	})

	return ValidateCommand(substituted)
}

// ParsePortString is a convenience wrapper for config/CLI inputs given as
// strings rather than float64.
func ParsePortString(s string) (int, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errkind.ValidationError("port", s)
	}
	return ValidatePort(f)
}
