package agent

import (
	"testing"

	"github.com/haasonsaas/echodesk/pkg/models"
)

func TestRepairTranscriptPrunesUnansweredToolUse(t *testing.T) {
	history := []models.Message{
		models.NewTextMessage(models.RoleUser, "hi"),
		{Role: models.RoleAssistant, Content: []models.ContentBlock{
			models.TextBlock("checking"),
			models.ToolUseBlock("a", "first", nil),
			models.ToolUseBlock("b", "second", nil),
		}},
		{Role: models.RoleUser, Content: []models.ContentBlock{models.ToolResultBlock("a", "ok", false)}},
		{Role: models.RoleAssistant, Content: []models.ContentBlock{models.ToolUseBlock("c", "never", nil)}},
	}

	repaired := repairTranscript(history)
	if len(repaired) != 3 {
		t.Fatalf("len(repaired) = %d, want 3", len(repaired))
	}
	assistant := repaired[1]
	if len(assistant.Content) != 2 || assistant.Content[1].ID != "a" {
		t.Fatalf("assistant content = %+v", assistant.Content)
	}
	if len(history[1].Content) != 3 {
		t.Fatal("input history was modified")
	}
}

func TestRepairTranscriptDropsOrphanResults(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleUser, Content: []models.ContentBlock{
			models.TextBlock("context"),
			models.ToolResultBlock("ghost", "stale", false),
		}},
	}
	repaired := repairTranscript(history)
	if len(repaired) != 1 || len(repaired[0].Content) != 1 || repaired[0].Content[0].Type != models.BlockText {
		t.Fatalf("repaired = %+v", repaired)
	}
}

func TestRepairTranscriptEmpty(t *testing.T) {
	if got := repairTranscript(nil); len(got) != 0 {
		t.Fatalf("repairTranscript(nil) = %v", got)
	}
}
