// Package ranking orders participants for leaderboards.
//
// The order is: higher score, lower effective time, fewer wrong answers, earlier finish.
// A participant that has not finished sorts after every finished one with otherwise equal stats.
package ranking

import (
	"sort"

	"live-quiz-service/internal/domain"
)

// Compare returns -1 when a ranks before b, 1 when b ranks before a and 0 when they tie.
func Compare(a, b domain.Stats) int {
	if a.Score != b.Score {
		if a.Score > b.Score {
			return -1
		}
		return 1
	}
	if a.EffectiveTimeMs != b.EffectiveTimeMs {
		if a.EffectiveTimeMs < b.EffectiveTimeMs {
			return -1
		}
		return 1
	}
	if a.Wrong != b.Wrong {
		if a.Wrong < b.Wrong {
			return -1
		}
		return 1
	}
	switch {
	case a.FinishedAt == nil && b.FinishedAt == nil:
		return 0
	case a.FinishedAt == nil:
		return 1
	case b.FinishedAt == nil:
		return -1
	case a.FinishedAt.Before(*b.FinishedAt):
		return -1
	case b.FinishedAt.Before(*a.FinishedAt):
		return 1
	}
	return 0
}

// Rank sorts entries in place and assigns 1-based positions.
// Exact ties fall back to user id so every viewer renders the same order.
func Rank(entries []domain.RankEntry) []domain.RankEntry {
	sort.SliceStable(entries, func(i, j int) bool {
		if c := Compare(entries[i].Stats, entries[j].Stats); c != 0 {
			return c < 0
		}
		return entries[i].UserID < entries[j].UserID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// Participants ranks durable participant records.
func Participants(participants []domain.Participant) []domain.RankEntry {
	entries := make([]domain.RankEntry, 0, len(participants))
	for _, p := range participants {
		entries = append(entries, domain.RankEntry{
			UserID:      p.StudentID,
			DisplayName: p.DisplayName,
			Stats:       p.Stats,
		})
	}
	return Rank(entries)
}
