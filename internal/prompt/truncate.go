package prompt

import "localchat/internal/store"

// charsPerToken is the rough estimate used to keep prompts inside the model
// context window without a tokenizer on this side of the engine boundary.
const charsPerToken = 4

// EstimateTokens approximates the token count of an assembled prompt.
func EstimateTokens(text string) int {
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// Truncate drops the oldest messages until the prompt that Build would
// produce fits within contextLength minus reserve tokens for the generated
// reply. The newest message is never dropped: the current user turn must
// reach the model even when it alone blows the budget.
func Truncate(history []store.Message, systemPrompt string, contextLength, reserve int) []store.Message {
	if contextLength <= 0 {
		return history
	}
	budget := contextLength - reserve
	if budget <= 0 {
		budget = contextLength
	}

	kept := history
	for len(kept) > 1 && EstimateTokens(Build(kept, systemPrompt)) > budget {
		kept = kept[1:]
	}
	return kept
}
