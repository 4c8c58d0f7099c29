package ranking

import (
	"testing"
	"time"

	"live-quiz-service/internal/domain"
)

func TestFasterTimeWinsOnScoreTie(t *testing.T) {
	entries := Rank([]domain.RankEntry{
		{UserID: "A", Stats: domain.Stats{Score: 10, EffectiveTimeMs: 5000, Wrong: 1}},
		{UserID: "B", Stats: domain.Stats{Score: 10, EffectiveTimeMs: 4000, Wrong: 0}},
	})
	if entries[0].UserID != "B" || entries[0].Rank != 1 {
		t.Fatalf("expected B first, got %+v", entries)
	}
	if entries[1].UserID != "A" || entries[1].Rank != 2 {
		t.Fatalf("expected A second, got %+v", entries)
	}
}

func TestTieBreakOrder(t *testing.T) {
	early := time.Unix(100, 0)
	late := time.Unix(200, 0)

	tests := []struct {
		name string
		a, b domain.Stats
		want int
	}{
		{"higher score first", domain.Stats{Score: 3}, domain.Stats{Score: 2, EffectiveTimeMs: 1}, -1},
		{"lower effective time first", domain.Stats{Score: 1, EffectiveTimeMs: 10}, domain.Stats{Score: 1, EffectiveTimeMs: 20}, -1},
		{"fewer wrong first", domain.Stats{Wrong: 2}, domain.Stats{Wrong: 1}, 1},
		{"earlier finish first", domain.Stats{FinishedAt: &late}, domain.Stats{FinishedAt: &early}, 1},
		{"unfinished after finished", domain.Stats{}, domain.Stats{FinishedAt: &late}, 1},
		{"both unfinished tie", domain.Stats{Score: 1}, domain.Stats{Score: 1}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Compare(tc.a, tc.b); got != tc.want {
				t.Fatalf("Compare = %d, want %d", got, tc.want)
			}
			if got := Compare(tc.b, tc.a); got != -tc.want {
				t.Fatalf("reverse Compare = %d, want %d", got, -tc.want)
			}
		})
	}
}

func TestCompareIsATotalOrder(t *testing.T) {
	t1 := time.Unix(10, 0)
	t2 := time.Unix(20, 0)
	finishes := []*time.Time{nil, &t1, &t2}

	var tuples []domain.Stats
	for score := 0; score < 3; score++ {
		for eff := int64(0); eff < 3; eff++ {
			for wrong := 0; wrong < 2; wrong++ {
				for _, f := range finishes {
					tuples = append(tuples, domain.Stats{Score: score, EffectiveTimeMs: eff * 1000, Wrong: wrong, FinishedAt: f})
				}
			}
		}
	}

	for _, a := range tuples {
		if Compare(a, a) != 0 {
			t.Fatalf("tuple not equal to itself: %+v", a)
		}
		for _, b := range tuples {
			if Compare(a, b) < 0 && Compare(b, a) < 0 {
				t.Fatalf("antisymmetry violated: %+v %+v", a, b)
			}
			for _, c := range tuples {
				if Compare(a, b) < 0 && Compare(b, c) < 0 && Compare(a, c) >= 0 {
					t.Fatalf("transitivity violated: %+v < %+v < %+v", a, b, c)
				}
			}
		}
	}
}

func TestRankIsDeterministic(t *testing.T) {
	build := func() []domain.RankEntry {
		return []domain.RankEntry{
			{UserID: "c", Stats: domain.Stats{Score: 1}},
			{UserID: "a", Stats: domain.Stats{Score: 1}},
			{UserID: "b", Stats: domain.Stats{Score: 1}},
		}
	}
	first := Rank(build())
	for i := 0; i < 10; i++ {
		again := Rank(build())
		for j := range first {
			if first[j].UserID != again[j].UserID {
				t.Fatalf("order changed between runs: %+v vs %+v", first, again)
			}
		}
	}
	if first[0].UserID != "a" {
		t.Fatalf("expected user id fallback, got %+v", first)
	}
}
