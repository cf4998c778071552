package assembler

import (
	"fmt"
	"strings"

	"github.com/memstrat/memstrat-go/pkg/knowledge"
	"github.com/memstrat/memstrat-go/pkg/memory"
	"github.com/memstrat/memstrat-go/pkg/policy"
)

// Bundle is an assembled context package ready for prompt injection.
type Bundle struct {
	Strategy policy.Strategy `json:"strategy"`

	// RecentTurns holds raw transcript turns, oldest first.
	RecentTurns []TurnRef `json:"recent_turns,omitempty"`

	// Memories are ranked memory records, most relevant first.
	Memories []*memory.Record `json:"memories,omitempty"`

	// Snippets are knowledge base results, highest confidence first.
	Snippets []knowledge.Snippet `json:"snippets,omitempty"`

	// Truncated reports whether the character budget forced items out.
	Truncated bool `json:"truncated"`
}

// TurnRef is a transcript turn carried into a bundle.
type TurnRef struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Format renders the bundle as a prompt context block within the given
// character budget. When the full render exceeds the budget, whole items are
// dropped rather than cut mid-text: snippets go first, then memories, then
// the oldest turns. The latest user turn is always kept. Truncated reports
// the outcome of the most recent call.
func (b *Bundle) Format(charBudget int) string {
	b.Truncated = false
	turns := b.RecentTurns
	memories := b.Memories
	snippets := b.Snippets

	for {
		text := render(turns, memories, snippets)
		if charBudget <= 0 || len(text) <= charBudget {
			return text
		}
		b.Truncated = true
		switch {
		case len(snippets) > 0:
			snippets = snippets[:len(snippets)-1]
		case len(memories) > 0:
			memories = memories[:len(memories)-1]
		case len(turns) > 1:
			turns = turns[1:]
		default:
			return text
		}
	}
}

func render(turns []TurnRef, memories []*memory.Record, snippets []knowledge.Snippet) string {
	var parts []string

	if len(turns) > 0 {
		parts = append(parts, "Recent conversation:")
		for _, t := range turns {
			parts = append(parts, fmt.Sprintf("%s: %s", t.Role, t.Content))
		}
	}

	if len(memories) > 0 {
		if len(parts) > 0 {
			parts = append(parts, "")
		}
		parts = append(parts, "Remembered context:")
		for _, m := range memories {
			parts = append(parts, fmt.Sprintf("%s %s", weightMarker(m.RAGWeight), m.Content))
		}
	}

	if len(snippets) > 0 {
		if len(parts) > 0 {
			parts = append(parts, "")
		}
		parts = append(parts, "Knowledge base context:")
		for _, s := range snippets {
			parts = append(parts, fmt.Sprintf("- Q: %s\n  A: %s", s.Question, s.Answer))
		}
	}

	return strings.Join(parts, "\n")
}

func weightMarker(ragWeight float64) string {
	switch {
	case ragWeight > 0.8:
		return "[!]"
	case ragWeight > 0.6:
		return "[*]"
	default:
		return "-"
	}
}
