package tools

import (
	"fmt"
	"regexp"
	"strings"
)

// dangerousPatterns match commands that are rejected regardless of the
// approval mode.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`rm\s+-[rf]{1,2}\s+/(\s|$)`),
	regexp.MustCompile(`(^|\s|;|&&|\|)sudo(\s|$)`),
	regexp.MustCompile(`(^|\s|;|&&|\|)mkfs`),
	regexp.MustCompile(`dd\s+if=`),
	regexp.MustCompile(`(^|\s|;|&&|\|)shutdown(\s|$)`),
}

// CheckCommand rejects commands matching the dangerous-pattern
// deny-list, then applies the configured allow/deny lists against the
// leading program name.
func (g *CommandGuard) CheckCommand(command string) error {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return fmt.Errorf("command is required")
	}
	for _, re := range dangerousPatterns {
		if re.MatchString(trimmed) {
			return fmt.Errorf("command %q is blocked by safety policy", command)
		}
	}

	program := strings.ToLower(strings.Fields(trimmed)[0])
	for _, deny := range g.Denied {
		if program == strings.ToLower(deny) {
			return fmt.Errorf("command %q is denied", program)
		}
	}
	if len(g.Allowed) > 0 {
		for _, allow := range g.Allowed {
			if program == strings.ToLower(allow) {
				return nil
			}
		}
		return fmt.Errorf("command %q is not in allowlist", program)
	}
	return nil
}

// CommandGuard holds allow/deny lists for the shell collaborator.
type CommandGuard struct {
	Allowed []string
	Denied  []string
}
