package summarizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize_PicksFrequentSentencesInOrder(t *testing.T) {
	text := "Raft elects a leader for the cluster.\n" +
		"The weather was pleasant that day.\n" +
		"The leader replicates log entries to every follower in the cluster.\n" +
		"Followers apply committed log entries from the leader."

	out, err := NewFrequencySummarizer().Summarize(text, 2)
	require.NoError(t, err)

	assert.NotContains(t, out, "weather")
	first := strings.Index(out, "replicates")
	second := strings.Index(out, "Followers apply")
	require.GreaterOrEqual(t, first, 0)
	require.GreaterOrEqual(t, second, 0)
	assert.Less(t, first, second, "document order is kept")
	assert.NotContains(t, out, "\n")
}

func TestSummarize_NoSentences(t *testing.T) {
	out, err := NewFrequencySummarizer().Summarize("  Chapter   One  ", 3)
	require.NoError(t, err)
	assert.Equal(t, "Chapter One", out)
}

func TestSummarize_TruncatesLongSentences(t *testing.T) {
	long := strings.Repeat("token ", 100) + "end."
	out, err := NewFrequencySummarizer().Summarize(long, 1)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "…"))
	assert.LessOrEqual(t, len([]rune(out)), maxSentenceRunes+1)
}

func TestBestMatch(t *testing.T) {
	s := NewFrequencySummarizer()

	sentences, best := s.BestMatch("Cats sleep all day. Dogs bark at the mail carrier. Dogs bark", "why do dogs bark?")
	assert.Equal(t, []string{"Cats sleep all day.", "Dogs bark at the mail carrier.", "Dogs bark"}, sentences)
	assert.Equal(t, 1, best, "ties go to the earlier sentence")

	_, best = s.BestMatch("Cats sleep all day.", "the of and")
	assert.Equal(t, -1, best)

	sentences, best = s.BestMatch("", "anything")
	assert.Empty(t, sentences)
	assert.Equal(t, -1, best)
}
