package proactive

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"strings"
	"text/template"
	"text/template/parse"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/haasonsaas/echodesk/internal/chat"
	"github.com/haasonsaas/echodesk/pkg/models"
)

// Casers carry state, so each call gets its own.
var templateFuncs = template.FuncMap{
	"title": func(s string) string { return cases.Title(language.Und).String(s) },
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	orEmptyFunc: orEmpty,
}

const orEmptyFunc = "orEmpty"

// orEmpty turns a missing or nil value into empty text.
func orEmpty(v any) any {
	if v == nil {
		return ""
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return ""
	}
	return v
}

// emptyMissing appends orEmpty to every printing action, so a missing
// key renders as nothing instead of "<no value>".
func emptyMissing(node parse.Node) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, child := range n.Nodes {
			emptyMissing(child)
		}
	case *parse.ActionNode:
		if n.Pipe == nil || len(n.Pipe.Decl) > 0 {
			return
		}
		n.Pipe.Cmds = append(n.Pipe.Cmds, &parse.CommandNode{
			NodeType: parse.NodeCommand,
			Pos:      n.Pos,
			Args:     []parse.Node{parse.NewIdentifier(orEmptyFunc).SetPos(n.Pos)},
		})
	case *parse.IfNode:
		emptyMissing(n.List)
		emptyMissing(n.ElseList)
	case *parse.RangeNode:
		emptyMissing(n.List)
		emptyMissing(n.ElseList)
	case *parse.WithNode:
		emptyMissing(n.List)
		emptyMissing(n.ElseList)
	}
}

// TemplateData is the data a message template renders against.
type TemplateData struct {
	Now     time.Time
	Date    string
	Time    string
	Chat    chat.Conversation
	Trigger *models.ProactiveTrigger
	Event   map[string]any
}

func (d TemplateData) fields() map[string]any {
	return map[string]any{
		"now":     d.Now,
		"date":    d.Date,
		"time":    d.Time,
		"chat":    d.Chat,
		"trigger": d.Trigger,
		"event":   d.Event,
	}
}

// RenderTemplate executes a message template. Data is exposed under the
// keys now, date, time, chat, trigger and event; a missing key renders
// empty.
func RenderTemplate(text string, data TemplateData) (string, error) {
	tmpl, err := template.New("message").
		Funcs(templateFuncs).
		Option("missingkey=zero").
		Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	if tmpl.Tree != nil {
		emptyMissing(tmpl.Tree.Root)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data.fields()); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

const aiSystemPrompt = "You write short, friendly proactive chat messages on behalf of an assistant named %s. " +
	"Reply with the message text only."

// compose produces the text for one target: model output when the trigger
// asks for it and a responder is available, else the template.
func (e *Engine) compose(ctx context.Context, t *models.ProactiveTrigger, data TemplateData) (string, error) {
	if t.UseAI && e.config.Responder != nil {
		text, err := e.generate(ctx, t, data)
		if err == nil && text != "" {
			return text, nil
		}
		e.logger.Warn("ai composition failed, using template",
			"trigger_id", t.ID, "chat_id", data.Chat.ID, "error", err)
	}
	if strings.TrimSpace(t.MessageTemplate) == "" {
		return "", fmt.Errorf("trigger %s has no template to fall back to", t.ID)
	}
	return RenderTemplate(t.MessageTemplate, data)
}

func (e *Engine) generate(ctx context.Context, t *models.ProactiveTrigger, data TemplateData) (string, error) {
	prompt := t.AIPrompt
	if prompt == "" {
		prompt = "Write a short message to check in."
	} else if rendered, err := RenderTemplate(prompt, data); err == nil {
		prompt = rendered
	}

	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\nContext:\n")
	fmt.Fprintf(&b, "- current time: %s\n", data.Now.Format("Monday 2006-01-02 15:04"))
	if data.Chat.Name != "" {
		fmt.Fprintf(&b, "- chat: %s\n", data.Chat.Name)
	}
	if data.Chat.Summary != "" {
		fmt.Fprintf(&b, "- last message: %s\n", data.Chat.Summary)
	}
	if text, ok := data.Event["text"].(string); ok && text != "" {
		fmt.Fprintf(&b, "- triggering message: %s\n", text)
	}

	system := fmt.Sprintf(aiSystemPrompt, e.mention().Name())
	text, err := e.config.Responder.Respond(ctx, system, b.String())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
