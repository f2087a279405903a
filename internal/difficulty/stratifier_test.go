package difficulty

import (
	"fmt"
	"math/rand"
	"testing"

	"musicquiz/internal/core"
)

func rankedPool(n int) []core.Track {
	tracks := make([]core.Track, n)
	for i := range tracks {
		tracks[i] = core.Track{ID: fmt.Sprintf("t%d", i), Rank: i}
	}
	return tracks
}

func TestOrder_SortsByRankDescending(t *testing.T) {
	ordered := Order(rankedPool(6))

	for i := 1; i < len(ordered); i++ {
		if ordered[i-1].Rank < ordered[i].Rank {
			t.Fatalf("Order() not descending at %d: %d before %d", i, ordered[i-1].Rank, ordered[i].Rank)
		}
	}
	if ordered[0].ID != "t5" {
		t.Errorf("Order()[0] = %s, want t5", ordered[0].ID)
	}
}

func TestOrder_KeepsCatalogOrderForTies(t *testing.T) {
	pool := []core.Track{{ID: "a"}, {ID: "b", Rank: 3}, {ID: "c"}, {ID: "d"}}
	ordered := Order(pool)

	want := []string{"b", "a", "c", "d"}
	for i, id := range want {
		if ordered[i].ID != id {
			t.Errorf("Order()[%d] = %s, want %s", i, ordered[i].ID, id)
		}
	}
}

func TestOrder_DoesNotMutateInput(t *testing.T) {
	pool := rankedPool(3)
	_ = Order(pool)
	if pool[0].ID != "t0" {
		t.Error("Order() must not reorder its input")
	}
}

func TestPolicy_Rank(t *testing.T) {
	tests := []struct {
		name          string
		difficulty    core.Difficulty
		poolSize      int
		wantInBand    int
		wantFirstRank int
	}{
		{name: "Easy with large pool", difficulty: core.DifficultyEasy, poolSize: 20, wantInBand: 5, wantFirstRank: 19},
		{name: "Easy with tiny pool", difficulty: core.DifficultyEasy, poolSize: 3, wantInBand: 3, wantFirstRank: 2},
		{name: "Medium with large pool", difficulty: core.DifficultyMedium, poolSize: 20, wantInBand: 5, wantFirstRank: 14},
		{name: "Medium with partial band", difficulty: core.DifficultyMedium, poolSize: 7, wantInBand: 2, wantFirstRank: 1},
		{name: "Hard with large pool", difficulty: core.DifficultyHard, poolSize: 15, wantInBand: 5, wantFirstRank: 4},
		{name: "Hard with small pool", difficulty: core.DifficultyHard, poolSize: 4, wantInBand: 0, wantFirstRank: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inBand, rest := For(tt.difficulty).Rank(Order(rankedPool(tt.poolSize)))

			if len(inBand) != tt.wantInBand {
				t.Errorf("len(inBand) = %d, want %d", len(inBand), tt.wantInBand)
			}
			if len(inBand)+len(rest) != tt.poolSize {
				t.Errorf("Rank() lost candidates: %d + %d != %d", len(inBand), len(rest), tt.poolSize)
			}
			if tt.wantFirstRank >= 0 && inBand[0].Rank != tt.wantFirstRank {
				t.Errorf("inBand[0].Rank = %d, want %d", inBand[0].Rank, tt.wantFirstRank)
			}
			if len(inBand) == 0 && rest[0].Rank != tt.poolSize-1 {
				t.Errorf("fallback should start with best-ranked track, got rank %d", rest[0].Rank)
			}
		})
	}
}

func TestFor_UnknownDifficultyIsHard(t *testing.T) {
	if For("impossible") != For(core.DifficultyHard) {
		t.Error("unknown difficulty should use the hard policy")
	}
}

func TestPageRanges_DoNotOverlapAcrossDifficulties(t *testing.T) {
	difficulties := core.Difficulties()
	for i := 1; i < len(difficulties); i++ {
		prev := For(difficulties[i-1]).CorrectPage
		cur := For(difficulties[i]).CorrectPage
		if cur.Min <= prev.Max {
			t.Errorf("%s correct page %v overlaps %s page %v", difficulties[i], cur, difficulties[i-1], prev)
		}
	}
}

func TestPageRange_Pick(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	r := PageRange{Min: 200, Max: 300}

	for i := 0; i < 100; i++ {
		got := r.Pick(rng)
		if got < r.Min || got > r.Max {
			t.Fatalf("Pick() = %d, outside [%d, %d]", got, r.Min, r.Max)
		}
	}

	if got := (PageRange{Min: 5, Max: 5}).Pick(rng); got != 5 {
		t.Errorf("Pick() on degenerate range = %d, want 5", got)
	}
}
