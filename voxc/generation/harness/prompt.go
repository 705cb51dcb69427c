package harness

import (
	"fmt"
	"strings"

	ports "github.com/ZanzyTHEbar/vox-canvas/voxc/generation/harness/ports"
)

// TurnMode distinguishes fresh generation from revision of the current artifact.
type TurnMode string

const (
	ModeGenerate TurnMode = "generate"
	ModeModify   TurnMode = "modify"
)

// CompletionRequest is the per-turn input to the completion collaborator.
type CompletionRequest struct {
	History  []DialogueTurn
	NewInput string
	Mode     TurnMode
}

const modifyTemplate = "Here's the existing HTML: ```html\n%s\n```\n\nPlease modify the HTML based on this instruction: %s"

// PromptBuilder assembles model-ready inputs from the system preamble, history and new input.
type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder { return &PromptBuilder{} }

// ModifyInput embeds the existing page verbatim ahead of the instruction.
func (b *PromptBuilder) ModifyInput(existingHTML, instruction string) string {
	return fmt.Sprintf(modifyTemplate, existingHTML, strings.TrimSpace(instruction))
}

// Build flattens system + history + new input into a Provider PromptInput.
// The system preamble never appears inside Messages. Turn contents are sent
// exactly as memory recorded them.
func (b *PromptBuilder) Build(system string, req CompletionRequest, meta map[string]string) ports.PromptInput {
	messages := make([]ports.PromptMessage, 0, len(req.History)+1)
	for _, t := range req.History {
		if t.Role == RoleSystem {
			continue
		}
		messages = append(messages, ports.PromptMessage{Role: string(t.Role), Content: t.Content})
	}
	messages = append(messages, ports.PromptMessage{Role: string(RoleUser), Content: req.NewInput})

	if meta == nil {
		meta = map[string]string{}
	}
	meta["mode"] = string(req.Mode)

	return ports.PromptInput{
		System:   system,
		Messages: messages,
		Meta:     meta,
	}
}
