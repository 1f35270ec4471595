package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"ragchat/internal/summarizer"
)

var (
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	sentenceRanker = summarizer.NewFrequencySummarizer()
)

// highlightMatch renders text with the sentence closest to query emphasised.
func highlightMatch(text, query string) string {
	sentences, best := sentenceRanker.BestMatch(text, query)
	if len(sentences) == 0 {
		return strings.TrimSpace(text)
	}
	if best >= 0 {
		sentences[best] = highlightStyle.Render(sentences[best])
	}
	return strings.Join(sentences, " ")
}
