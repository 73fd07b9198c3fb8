package memory

import (
	"context"
	"fmt"
	"strings"
)

// ContextExcerpt retrieves the records most relevant to queryText and
// renders them as a budgeted excerpt for the model input. Results that
// would push the excerpt past the token budget are dropped, highest
// relevance kept first. Errors degrade to an empty excerpt: recall is
// enrichment, a failed search must not block the conversation.
func (s *Store) ContextExcerpt(ctx context.Context, userID, queryText string, k, tokenBudget int) string {
	results, err := s.Search(ctx, userID, queryText, k)
	if err != nil {
		s.logger.Warn("memory excerpt: search failed", "user_id", userID, "error", err)
		return ""
	}
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	remaining := tokenBudget
	for _, r := range results {
		line := fmt.Sprintf("[%s] %s\n", r.Role, r.Text)
		cost := estimateTokens(line)
		if cost > remaining {
			break
		}
		b.WriteString(line)
		remaining -= cost
	}
	return strings.TrimRight(b.String(), "\n")
}

// estimateTokens returns a rough token estimate using the len/4
// heuristic.
func estimateTokens(s string) int {
	return len(s) / 4
}
