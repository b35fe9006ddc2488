package exec

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// TrustedHostEnv must be "1" for the shell tool to be offered at all.
const TrustedHostEnv = "ECHODESK_TRUSTED_HOST"

// DefaultAllow is the allow-list used when none is configured: read-only
// inspection commands with plain arguments.
var DefaultAllow = []string{
	`^ls(\s+-[a-zA-Z]+)*(\s+[\w./-]+)*$`,
	`^pwd$`,
	`^date(\s+-u)?(\s+\+[\w%:-]+)?$`,
	`^whoami$`,
	`^uptime$`,
	`^uname(\s+-[a-zA-Z]+)?$`,
	`^df(\s+-[a-zA-Z]+)*$`,
	`^echo(\s+[\w.,:!?'" -]*)?$`,
}

// shellMetacharacters are rejected before allow-list matching so a pattern
// can never be widened by chaining, substitution or redirection.
const shellMetacharacters = ";&|><`$(){}\\\n"

// Policy gates command execution.
type Policy struct {
	allow []*regexp.Regexp
}

// NewPolicy compiles the allow-list. An empty list uses DefaultAllow.
func NewPolicy(patterns []string) (*Policy, error) {
	if len(patterns) == 0 {
		patterns = DefaultAllow
	}
	p := &Policy{allow: make([]*regexp.Regexp, 0, len(patterns))}
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid allow pattern %q: %w", pattern, err)
		}
		p.allow = append(p.allow, re)
	}
	return p, nil
}

// Allowed reports whether command may run.
func (p *Policy) Allowed(command string) bool {
	command = strings.TrimSpace(command)
	if command == "" || strings.ContainsAny(command, shellMetacharacters) {
		return false
	}
	for _, re := range p.allow {
		if re.MatchString(command) {
			return true
		}
	}
	return false
}

// TrustedHost reports whether the process runs on a host that opted in to
// command execution.
func TrustedHost() bool {
	return os.Getenv(TrustedHostEnv) == "1"
}

// Available reports whether the shell tool should be registered: it must be
// enabled in config and the host must be trusted.
func Available(enabled bool) bool {
	return enabled && TrustedHost()
}

// Patterns returns the compiled allow-list sources.
func (p *Policy) Patterns() []string {
	out := make([]string, len(p.allow))
	for i, re := range p.allow {
		out[i] = re.String()
	}
	return out
}
