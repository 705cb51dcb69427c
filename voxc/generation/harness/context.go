package harness

// Budget bounds how much history is sent with each turn. Zero disables a limit.
type Budget struct {
	MaxTurns         int // most recent turns kept
	MaxContextTokens int // history plus new input
}

// HistoryWindow trims the oldest exchanges so a prompt fits its budget. The
// memory itself is never truncated.
type HistoryWindow struct {
	budget Budget
	// TokenEstimator should be a fast heuristic; we avoid binding to a specific tokenizer here.
	TokenEstimator func(s string) int
}

func NewHistoryWindow(b Budget, est func(s string) int) *HistoryWindow {
	if est == nil {
		est = func(s string) int { // rough heuristic: ~4 chars per token
			l := len(s)
			if l == 0 {
				return 0
			}
			return (l + 3) / 4
		}
	}
	return &HistoryWindow{budget: b, TokenEstimator: est}
}

// Apply returns the suffix of history that fits the budget. The result always
// starts at a user turn so no answer is sent without its question.
func (w *HistoryWindow) Apply(history []DialogueTurn, newInput string) []DialogueTurn {
	start := 0
	if w.budget.MaxTurns > 0 && len(history) > w.budget.MaxTurns {
		start = len(history) - w.budget.MaxTurns
	}
	start = w.alignToUser(history, start)

	if w.budget.MaxContextTokens > 0 {
		used := w.TokenEstimator(newInput)
		for _, t := range history[start:] {
			used += w.TokenEstimator(t.Content)
		}
		for used > w.budget.MaxContextTokens && start < len(history) {
			used -= w.TokenEstimator(history[start].Content)
			start++
			for start < len(history) && history[start].Role != RoleUser {
				used -= w.TokenEstimator(history[start].Content)
				start++
			}
		}
	}

	out := make([]DialogueTurn, len(history)-start)
	copy(out, history[start:])
	return out
}

func (w *HistoryWindow) alignToUser(history []DialogueTurn, start int) int {
	for start < len(history) && history[start].Role != RoleUser {
		start++
	}
	return start
}
