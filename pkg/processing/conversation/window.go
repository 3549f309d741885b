package conversation

import (
	"slices"

	"mercator-hq/relay/pkg/conversation"
	"mercator-hq/relay/pkg/processing/tokens"
	"mercator-hq/relay/pkg/providers"
)

// BuildWindow converts stored history (oldest first) into provider messages,
// keeping the newest messages that fit within maxMessages and maxTokens.
// A non-positive bound is not enforced. A nil estimator disables the token
// bound.
func BuildWindow(history []conversation.Message, maxMessages, maxTokens int, estimator *tokens.Estimator) []providers.Message {
	window := make([]providers.Message, 0, len(history))
	usedTokens := 0

	// Walk newest to oldest and stop at the first message that does not fit,
	// so the window is always a contiguous suffix of the history.
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if m.Role == conversation.RoleAssistant && m.Provider == "" {
			continue
		}

		if maxMessages > 0 && len(window) >= maxMessages {
			break
		}
		if maxTokens > 0 && estimator != nil {
			n := estimator.EstimateText(m.Content)
			if usedTokens+n > maxTokens {
				break
			}
			usedTokens += n
		}

		window = append(window, providers.Message{
			Role:    providerRole(m.Role),
			Content: m.Content,
		})
	}

	slices.Reverse(window)
	return window
}

func providerRole(r conversation.Role) string {
	if r == conversation.RoleAssistant {
		return providers.RoleAssistant
	}
	return providers.RoleUser
}
