package proactive

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultAssistantName is the name mentions are matched against.
const DefaultAssistantName = "echo"

var mentionPatterns = []string{
	`@%s\b`,
	`\b(?:hey|hi|hello|yo|ok|okay)[,!\s]+%s\b`,
	`^\s*%s\s*[,:!]`,
	`\b%s\s*\?`,
	`\bdeep\s+tree\s+%s\b`,
}

// MentionDetector recognizes messages addressed to the assistant by name.
type MentionDetector struct {
	name     string
	patterns []*regexp.Regexp
}

// NewMentionDetector compiles the mention patterns for name. An empty name
// uses DefaultAssistantName.
func NewMentionDetector(name string) *MentionDetector {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultAssistantName
	}
	quoted := regexp.QuoteMeta(name)
	d := &MentionDetector{name: name}
	for _, p := range mentionPatterns {
		d.patterns = append(d.patterns, regexp.MustCompile("(?i)"+fmt.Sprintf(p, quoted)))
	}
	return d
}

// Name returns the matched assistant name.
func (d *MentionDetector) Name() string {
	return d.name
}

// Detect reports whether text addresses the assistant.
func (d *MentionDetector) Detect(text string) bool {
	for _, re := range d.patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
