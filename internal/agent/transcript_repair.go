package agent

import "github.com/haasonsaas/echodesk/pkg/models"

// repairTranscript returns an outbound copy of history with every tool_use
// that never got a tool_result removed, along with tool_results whose
// tool_use is unknown. Messages left without content are dropped. The input
// is not modified.
func repairTranscript(history []models.Message) []models.Message {
	if len(history) == 0 {
		return history
	}

	issued := make(map[string]struct{})
	answered := make(map[string]struct{})
	for _, msg := range history {
		for _, block := range msg.Content {
			switch block.Type {
			case models.BlockToolUse:
				issued[block.ID] = struct{}{}
			case models.BlockToolResult:
				if _, ok := issued[block.ToolUseID]; ok {
					answered[block.ToolUseID] = struct{}{}
				}
			}
		}
	}

	repaired := make([]models.Message, 0, len(history))
	for _, msg := range history {
		kept := make([]models.ContentBlock, 0, len(msg.Content))
		for _, block := range msg.Content {
			switch block.Type {
			case models.BlockToolUse:
				if _, ok := answered[block.ID]; !ok {
					continue
				}
			case models.BlockToolResult:
				if _, ok := answered[block.ToolUseID]; !ok {
					continue
				}
			}
			kept = append(kept, block.Clone())
		}
		if len(kept) == 0 {
			continue
		}
		copied := msg
		copied.Content = kept
		repaired = append(repaired, copied)
	}
	return repaired
}
