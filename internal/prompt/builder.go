// Package prompt assembles ChatML prompts for the Qwen2.5 family of models.
package prompt

import (
	"strings"

	"localchat/internal/store"
)

// Build turns ordered message history (oldest first) into a single ChatML
// text blob:
//
//	<|im_start|>system\n{systemPrompt}\n<|im_end|>\n
//	<|im_start|>{role}\n{content}\n<|im_end|>\n   per message, in order
//	<|im_start|>assistant\n
//
// Content goes in verbatim, no escaping or truncation. The final assistant
// marker is left unterminated so the engine continues from there.
func Build(history []store.Message, systemPrompt string) string {
	var sb strings.Builder

	sb.WriteString("<|im_start|>system\n")
	sb.WriteString(systemPrompt)
	sb.WriteString("\n<|im_end|>\n")

	for _, msg := range history {
		sb.WriteString("<|im_start|>")
		sb.WriteString(string(msg.Role))
		sb.WriteString("\n")
		sb.WriteString(msg.Content)
		sb.WriteString("\n<|im_end|>\n")
	}

	sb.WriteString("<|im_start|>assistant\n")
	return sb.String()
}
