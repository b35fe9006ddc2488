package tools

import (
	"fmt"
	"strings"
)

// Display is a one-line human rendering of a tool call, shown by the
// interactive chat command.
type Display struct {
	Emoji  string
	Label  string
	Detail string
}

type displaySpec struct {
	emoji      string
	label      string
	detailKeys []string
}

// maxDetailLength bounds each detail value.
const maxDetailLength = 60

var displaySpecs = map[string]displaySpec{
	"send_message":     {"📤", "Sending message", []string{"chat_id", "text"}},
	"list_chats":       {"💬", "Listing chats", nil},
	"get_chat_history": {"📜", "Reading chat", []string{"chat_id"}},
	"search_contacts":  {"🔍", "Searching contacts", []string{"query"}},
	"create_chat":      {"➕", "Creating chat", []string{"contact_id"}},
	"open_chat":        {"📂", "Opening chat", []string{"chat_id"}},
	"set_draft":        {"✏️", "Drafting", []string{"chat_id", "text"}},
	"store_knowledge":  {"🧠", "Remembering", []string{"name", "type"}},
	"query_knowledge":  {"🧠", "Recalling", []string{"kind", "target"}},
	"run_inference":    {"🧠", "Reasoning", []string{"steps"}},
	"read_page":        {"🌐", "Reading page", []string{"url"}},
	"execute_command":  {"💻", "Running", []string{"command"}},
}

// ResolveDisplay renders a tool call. Unknown tools get a generic label
// derived from their name.
func ResolveDisplay(name string, input map[string]any) Display {
	spec, ok := displaySpecs[name]
	if !ok {
		spec = displaySpec{emoji: "🧩", label: titleFromName(name)}
	}
	details := make([]string, 0, len(spec.detailKeys))
	for _, key := range spec.detailKeys {
		if value := displayValue(input[key]); value != "" {
			details = append(details, value)
		}
	}
	return Display{Emoji: spec.emoji, Label: spec.label, Detail: strings.Join(details, " · ")}
}

// String formats the display as "emoji label: detail".
func (d Display) String() string {
	summary := strings.TrimSpace(d.Emoji + " " + d.Label)
	if d.Detail != "" {
		summary += ": " + d.Detail
	}
	return summary
}

func titleFromName(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' || r == '.' })
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

func displayValue(value any) string {
	var s string
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		s = v
	case float64:
		if v == float64(int64(v)) {
			s = fmt.Sprintf("%d", int64(v))
		} else {
			s = fmt.Sprintf("%g", v)
		}
	default:
		s = fmt.Sprintf("%v", v)
	}
	s = strings.Join(strings.Fields(s), " ")
	if runes := []rune(s); len(runes) > maxDetailLength {
		s = string(runes[:maxDetailLength-1]) + "…"
	}
	return s
}
