package selection

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"sync"
	"testing"

	"go.uber.org/zap"

	"musicquiz/internal/core"
	"musicquiz/internal/history"
)

var words = []string{
	"Alpha", "Bravo", "Charlie", "Delta", "Echo", "Foxtrot", "Golf", "Hotel", "India",
	"Juliet", "Kilo", "Lima", "Mike", "November", "Oscar", "Papa", "Quebec", "Romeo",
	"Sierra", "Tango", "Uniform", "Victor", "Whiskey", "Xray", "Yankee", "Zulu",
}

// makePool builds n tracks by n distinct artists, ranked n..1
func makePool(prefix string, n int) []core.Track {
	tracks := make([]core.Track, 0, n)
	for i := 0; i < n; i++ {
		tracks = append(tracks, core.Track{
			ID:         fmt.Sprintf("%s%d", prefix, i),
			Title:      words[i%len(words)] + " " + words[(i/len(words))%len(words)] + " " + prefix,
			ArtistName: fmt.Sprintf("%s Artist %d", prefix, i),
			PreviewURL: fmt.Sprintf("https://cdn.test/%s%d.mp3", prefix, i),
			Rank:       n - i,
		})
	}
	return tracks
}

type fakeSource struct {
	mu      sync.Mutex
	correct map[string][]core.Track
	decoy   map[string][]core.Track
	calls   []core.CandidateRequest
}

func (f *fakeSource) FetchCandidates(_ context.Context, req core.CandidateRequest) []core.Track {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)

	pools := f.correct
	if req.Pool == core.PoolDecoy {
		pools = f.decoy
	}
	return append([]core.Track{}, pools[req.Style]...)
}

func (f *fakeSource) FetchArtists(context.Context, string) []core.Artist {
	return []core.Artist{}
}

type fakeChecker struct {
	mu      sync.Mutex
	broken  map[string]bool
	allBad  bool
	checked []string
}

func (f *fakeChecker) IsPlayable(_ context.Context, ref string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checked = append(f.checked, ref)
	return !f.allBad && !f.broken[ref]
}

type recordingMetrics struct {
	core.NopMetrics
	mu          sync.Mutex
	outcomes    []string
	relaxations int
}

func (m *recordingMetrics) RecordRound(_, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *recordingMetrics) RecordRelaxation(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relaxations++
}

func newTestEngine(source core.CandidateSource, checker core.PreviewChecker, metrics core.Metrics) *Engine {
	config := core.DefaultConfig().Selection
	return NewEngine(
		source,
		checker,
		history.NewTracker(core.DefaultHistoryCapacity, core.DefaultMinPoolSize),
		&config,
		rand.New(rand.NewSource(1)),
		zap.NewNop(),
		metrics,
	)
}

func rankPosition(pool []core.Track, id string) int {
	for i := range pool {
		if pool[i].ID == id {
			return i
		}
	}
	return -1
}

func assertValidRound(t *testing.T, result *core.SelectionResult) {
	t.Helper()
	if result == nil {
		t.Fatal("result is nil")
	}
	ids := make(map[string]bool, OptionCount)
	for _, option := range result.Options {
		if option.ID == "" {
			t.Fatalf("empty option in %+v", result.Options)
		}
		if ids[option.ID] {
			t.Fatalf("duplicate option id %s", option.ID)
		}
		ids[option.ID] = true
	}
	if idx := result.CorrectIndex(); idx < 0 {
		t.Fatalf("correct track %s missing from options", result.Correct.ID)
	}
}

func TestEngine_ScenarioA_EasyPicksFromTopFive(t *testing.T) {
	pool := makePool("t", 10)
	source := &fakeSource{correct: map[string][]core.Track{"rock": pool}}

	result, _, err := newTestEngine(source, &fakeChecker{}, nil).SelectRound(
		context.Background(),
		Request{Difficulty: core.DifficultyEasy, Style: "rock"},
		core.SelectionHistory{},
	)
	if err != nil {
		t.Fatalf("SelectRound() error = %v", err)
	}
	assertValidRound(t, result)

	if result.Correct.Rank < 6 {
		t.Errorf("correct rank = %d, want one of 10..6", result.Correct.Rank)
	}
	if result.Relaxed || result.Broadened {
		t.Errorf("unexpected flags: relaxed=%v broadened=%v", result.Relaxed, result.Broadened)
	}
}

func TestEngine_ScenarioB_ExactPoolUsesEveryTrack(t *testing.T) {
	pool := makePool("t", 4)
	source := &fakeSource{correct: map[string][]core.Track{"rock": pool}}

	result, _, err := newTestEngine(source, &fakeChecker{}, nil).SelectRound(
		context.Background(),
		Request{Difficulty: core.DifficultyHard, Style: "rock"},
		core.SelectionHistory{},
	)
	if err != nil {
		t.Fatalf("SelectRound() error = %v", err)
	}
	assertValidRound(t, result)

	// The hard band starts at position 10, so the best-ranked track is the fallback
	if result.Correct.ID != "t0" {
		t.Errorf("correct = %s, want t0 (top-1 fallback)", result.Correct.ID)
	}
	for _, track := range pool {
		found := false
		for _, option := range result.Options {
			if option.ID == track.ID {
				found = true
			}
		}
		if !found {
			t.Errorf("track %s missing from options", track.ID)
		}
	}
}

func TestEngine_ScenarioC_RelaxesHistory(t *testing.T) {
	pool := makePool("t", 4)
	source := &fakeSource{correct: map[string][]core.Track{"rock": pool}}
	metrics := &recordingMetrics{}
	hist := core.SelectionHistory{
		UsedTrackIDs: []string{"old1", "old2", "old3"},
		UsedArtists:  []string{pool[0].ArtistName, pool[1].ArtistName, pool[2].ArtistName},
	}

	result, updated, err := newTestEngine(source, &fakeChecker{}, metrics).SelectRound(
		context.Background(),
		Request{Difficulty: core.DifficultyEasy, Style: "rock"},
		hist,
	)
	if err != nil {
		t.Fatalf("SelectRound() error = %v", err)
	}
	assertValidRound(t, result)

	if !result.Relaxed {
		t.Error("result should report the relaxed history")
	}
	if metrics.relaxations != 1 {
		t.Errorf("relaxations = %d, want 1", metrics.relaxations)
	}
	if len(updated.UsedTrackIDs) != 4 {
		t.Errorf("updated history = %v, want only this round's 4 ids", updated.UsedTrackIDs)
	}
	for _, id := range updated.UsedTrackIDs {
		if id == "old1" {
			t.Error("relaxed history should not keep old entries")
		}
	}
}

func TestEngine_ScenarioD_NoPlayablePreview(t *testing.T) {
	// The hard band of a 30-track pool holds 20 candidates, more than one attempt budget
	source := &fakeSource{correct: map[string][]core.Track{
		"rock":        makePool("t", 30),
		core.AnyStyle: makePool("a", 30),
	}}
	checker := &fakeChecker{allBad: true}
	hist := core.SelectionHistory{UsedTrackIDs: []string{"x"}, UsedArtists: []string{"Someone"}}
	before := hist.Clone()

	result, updated, err := newTestEngine(source, checker, nil).SelectRound(
		context.Background(),
		Request{Difficulty: core.DifficultyHard, Style: "rock"},
		hist,
	)

	if !errors.Is(err, ErrNoPlayableTrack) {
		t.Fatalf("SelectRound() error = %v, want ErrNoPlayableTrack", err)
	}
	if result != nil {
		t.Error("result should be nil on failure")
	}
	if !reflect.DeepEqual(updated, before) {
		t.Errorf("history changed on failure: %v, want %v", updated, before)
	}

	var selErr *Error
	if !errors.As(err, &selErr) {
		t.Fatal("error should be a *selection.Error")
	}
	// One budget for the requested style and one for the any-genre pool
	if want := 2 * core.DefaultMaxCorrectAttempts; len(selErr.AttemptedArtists) != want {
		t.Errorf("attempted %d artists, want %d", len(selErr.AttemptedArtists), want)
	}
	if len(checker.checked) > 2*core.DefaultMaxCorrectAttempts {
		t.Errorf("checked %d previews, want at most %d", len(checker.checked), 2*core.DefaultMaxCorrectAttempts)
	}
}

func TestEngine_EmptyPoolFailsIdempotently(t *testing.T) {
	source := &fakeSource{correct: map[string][]core.Track{}}
	engine := newTestEngine(source, &fakeChecker{}, nil)
	hist := core.SelectionHistory{UsedTrackIDs: []string{"a"}, UsedArtists: []string{"A"}}

	for i := 0; i < 3; i++ {
		result, updated, err := engine.SelectRound(
			context.Background(),
			Request{Difficulty: core.DifficultyMedium, Style: "polka"},
			hist,
		)
		if !errors.Is(err, ErrNoCandidates) {
			t.Fatalf("call %d: error = %v, want ErrNoCandidates", i, err)
		}
		if result != nil {
			t.Fatalf("call %d: result should be nil", i)
		}
		if !reflect.DeepEqual(updated, hist) {
			t.Fatalf("call %d: history changed to %v", i, updated)
		}
	}
}

func TestEngine_PoolTooSmallIsExhausted(t *testing.T) {
	source := &fakeSource{correct: map[string][]core.Track{"rock": makePool("t", 3)}}

	_, _, err := newTestEngine(source, &fakeChecker{}, nil).SelectRound(
		context.Background(),
		Request{Difficulty: core.DifficultyEasy, Style: "rock"},
		core.SelectionHistory{},
	)
	if !errors.Is(err, ErrPoolExhausted) {
		t.Errorf("error = %v, want ErrPoolExhausted", err)
	}
}

func TestEngine_BandAdherence(t *testing.T) {
	tests := []struct {
		name       string
		difficulty core.Difficulty
		poolSize   int
		minPos     int
		maxPos     int
	}{
		{name: "Easy", difficulty: core.DifficultyEasy, poolSize: 15, minPos: 0, maxPos: 4},
		{name: "Medium", difficulty: core.DifficultyMedium, poolSize: 15, minPos: 5, maxPos: 9},
		{name: "Hard", difficulty: core.DifficultyHard, poolSize: 15, minPos: 10, maxPos: 14},
		{name: "Hard with small pool falls back to top-1", difficulty: core.DifficultyHard, poolSize: 8, minPos: 0, maxPos: 0},
		{name: "Medium with small pool falls back to top-1", difficulty: core.DifficultyMedium, poolSize: 5, minPos: 0, maxPos: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := makePool("t", tt.poolSize)
			source := &fakeSource{correct: map[string][]core.Track{"pop": pool}}

			result, _, err := newTestEngine(source, &fakeChecker{}, nil).SelectRound(
				context.Background(),
				Request{Difficulty: tt.difficulty, Style: "pop"},
				core.SelectionHistory{},
			)
			if err != nil {
				t.Fatalf("SelectRound() error = %v", err)
			}
			assertValidRound(t, result)

			pos := rankPosition(pool, result.Correct.ID)
			if pos < tt.minPos || pos > tt.maxPos {
				t.Errorf("correct track at position %d, want within [%d, %d]", pos, tt.minPos, tt.maxPos)
			}
		})
	}
}

func TestEngine_InvalidPreviewMovesToNextInBand(t *testing.T) {
	pool := makePool("t", 10)
	checker := &fakeChecker{broken: map[string]bool{pool[0].PreviewURL: true}}
	source := &fakeSource{correct: map[string][]core.Track{"rock": pool}}

	result, _, err := newTestEngine(source, checker, nil).SelectRound(
		context.Background(),
		Request{Difficulty: core.DifficultyEasy, Style: "rock"},
		core.SelectionHistory{},
	)
	if err != nil {
		t.Fatalf("SelectRound() error = %v", err)
	}
	if result.Correct.ID != "t1" {
		t.Errorf("correct = %s, want t1 after t0's preview failed", result.Correct.ID)
	}
	for _, option := range result.Options {
		if option.ID == "t0" {
			t.Error("a track with a broken preview must not be offered")
		}
	}
}

func TestEngine_ExhaustedBandBroadensInsteadOfLeavingBand(t *testing.T) {
	rock := makePool("t", 20)
	anyPool := makePool("a", 20)
	broken := make(map[string]bool)
	for _, track := range rock[5:10] {
		broken[track.PreviewURL] = true
	}
	source := &fakeSource{
		correct: map[string][]core.Track{"rock": rock, core.AnyStyle: anyPool},
	}

	result, _, err := newTestEngine(source, &fakeChecker{broken: broken}, nil).SelectRound(
		context.Background(),
		Request{Difficulty: core.DifficultyMedium, Style: "rock"},
		core.SelectionHistory{},
	)
	if err != nil {
		t.Fatalf("SelectRound() error = %v", err)
	}
	assertValidRound(t, result)

	if !result.Broadened {
		t.Errorf("correct = %s, want a broadened round once the medium band is exhausted", result.Correct.ID)
	}
	pos := rankPosition(anyPool, result.Correct.ID)
	if pos < 5 || pos > 9 {
		t.Errorf("correct %s at any-genre position %d, want within the medium band [5, 9]", result.Correct.ID, pos)
	}
}

func TestEngine_BroadensToAnyGenre(t *testing.T) {
	rock := makePool("r", 6)
	anyPool := makePool("a", 8)
	broken := make(map[string]bool)
	for _, track := range rock {
		broken[track.PreviewURL] = true
	}
	source := &fakeSource{
		correct: map[string][]core.Track{"rock": rock, core.AnyStyle: anyPool},
	}

	result, _, err := newTestEngine(source, &fakeChecker{broken: broken}, nil).SelectRound(
		context.Background(),
		Request{Difficulty: core.DifficultyEasy, Style: "Rock"},
		core.SelectionHistory{},
	)
	if err != nil {
		t.Fatalf("SelectRound() error = %v", err)
	}
	assertValidRound(t, result)

	if !result.Broadened {
		t.Error("result should report broadening")
	}
	if rankPosition(anyPool, result.Correct.ID) < 0 {
		t.Errorf("correct %s should come from the any-genre pool", result.Correct.ID)
	}
	for _, option := range result.Options {
		if broken[option.PreviewURL] {
			t.Errorf("option %s has a broken preview", option.ID)
		}
	}

	// The decoy page is requested for the effective style
	last := source.calls[len(source.calls)-1]
	if last.Pool != core.PoolDecoy || last.Style != core.AnyStyle {
		t.Errorf("decoy request = %+v, want any-genre decoy pool", last)
	}
}

func TestEngine_DecoysPreferDistinctArtists(t *testing.T) {
	var pool []core.Track
	for i := 0; i < 6; i++ {
		pool = append(pool, core.Track{
			ID:         fmt.Sprintf("m%d", i),
			Title:      words[i] + " Symphony",
			ArtistName: "Muse",
			PreviewURL: fmt.Sprintf("https://cdn.test/m%d.mp3", i),
			Rank:       100 - i,
		})
	}
	others := makePool("o", 3)
	pool = append(pool, others...)
	source := &fakeSource{correct: map[string][]core.Track{"rock": pool}}

	for seed := int64(1); seed <= 20; seed++ {
		engine := newTestEngine(source, &fakeChecker{}, nil)
		engine.rng = rand.New(rand.NewSource(seed))

		result, _, err := engine.SelectRound(
			context.Background(),
			Request{Difficulty: core.DifficultyEasy, Style: "rock"},
			core.SelectionHistory{},
		)
		if err != nil {
			t.Fatalf("seed %d: SelectRound() error = %v", seed, err)
		}
		assertValidRound(t, result)

		artists := map[string]bool{}
		for _, option := range result.Options {
			if artists[option.ArtistName] {
				t.Fatalf("seed %d: artist %s repeated although distinct decoys exist", seed, option.ArtistName)
			}
			artists[option.ArtistName] = true
		}
	}
}

func TestEngine_DecoysRelaxTitleGuardBeforeArtists(t *testing.T) {
	pool := []core.Track{
		{ID: "adele", Title: "Hello", ArtistName: "Adele", PreviewURL: "https://cdn.test/adele.mp3", Rank: 100},
		{ID: "richie", Title: "Hello", ArtistName: "Lionel Richie", PreviewURL: "https://cdn.test/richie.mp3", Rank: 90},
		{ID: "sub", Title: "Yellow Submarine", ArtistName: "The Beatles", PreviewURL: "https://cdn.test/sub.mp3", Rank: 80},
		{ID: "teen", Title: "Smells Like Teen Spirit", ArtistName: "Nirvana", PreviewURL: "https://cdn.test/teen.mp3", Rank: 70},
		{ID: "come", Title: "Come As You Are", ArtistName: "The Beatles", PreviewURL: "https://cdn.test/come.mp3", Rank: 60},
	}
	source := &fakeSource{correct: map[string][]core.Track{"pop": pool}}

	for seed := int64(1); seed <= 20; seed++ {
		engine := newTestEngine(source, &fakeChecker{}, nil)
		engine.rng = rand.New(rand.NewSource(seed))

		result, _, err := engine.SelectRound(
			context.Background(),
			Request{Difficulty: core.DifficultyEasy, Style: "pop"},
			core.SelectionHistory{},
		)
		if err != nil {
			t.Fatalf("seed %d: SelectRound() error = %v", seed, err)
		}
		assertValidRound(t, result)
		if result.Correct.ID != "adele" {
			t.Fatalf("seed %d: correct = %s, want adele", seed, result.Correct.ID)
		}

		artists := map[string]bool{}
		for _, option := range result.Options {
			if artists[option.ArtistName] {
				t.Fatalf("seed %d: artist %s repeated although Lionel Richie was available", seed, option.ArtistName)
			}
			artists[option.ArtistName] = true
		}
		if !artists["Lionel Richie"] {
			t.Errorf("seed %d: options %v should include the same-titled decoy", seed, result.Options)
		}
	}
}

func TestEngine_DecoysAllowRepeatedArtistsWhenNeeded(t *testing.T) {
	pool := []core.Track{
		{ID: "c", Title: "Alpha", ArtistName: "Solo", PreviewURL: "https://cdn.test/c.mp3", Rank: 10},
		{ID: "d1", Title: "Bravo", ArtistName: "Duo", PreviewURL: "https://cdn.test/d1.mp3", Rank: 5},
		{ID: "d2", Title: "Charlie", ArtistName: "Duo", PreviewURL: "https://cdn.test/d2.mp3", Rank: 4},
		{ID: "d3", Title: "Delta", ArtistName: "Duo", PreviewURL: "https://cdn.test/d3.mp3", Rank: 3},
	}
	source := &fakeSource{correct: map[string][]core.Track{"rock": pool}}

	result, _, err := newTestEngine(source, &fakeChecker{}, nil).SelectRound(
		context.Background(),
		Request{Difficulty: core.DifficultyEasy, Style: "rock"},
		core.SelectionHistory{},
	)
	if err != nil {
		t.Fatalf("SelectRound() error = %v", err)
	}
	assertValidRound(t, result)
	if result.Correct.ID != "c" {
		t.Errorf("correct = %s, want c", result.Correct.ID)
	}
}

func TestEngine_DecoysFromDecoyPool(t *testing.T) {
	pool := makePool("t", 4)
	checker := &fakeChecker{broken: map[string]bool{
		pool[1].PreviewURL: true,
		pool[2].PreviewURL: true,
	}}
	source := &fakeSource{
		correct: map[string][]core.Track{"rock": pool},
		decoy:   map[string][]core.Track{"rock": makePool("d", 5)},
	}

	result, _, err := newTestEngine(source, checker, nil).SelectRound(
		context.Background(),
		Request{Difficulty: core.DifficultyEasy, Style: "rock"},
		core.SelectionHistory{},
	)
	if err != nil {
		t.Fatalf("SelectRound() error = %v", err)
	}
	assertValidRound(t, result)
}

func TestEngine_InsufficientOptions(t *testing.T) {
	pool := makePool("t", 4)
	checker := &fakeChecker{broken: map[string]bool{
		pool[1].PreviewURL: true,
		pool[2].PreviewURL: true,
		pool[3].PreviewURL: true,
	}}
	source := &fakeSource{correct: map[string][]core.Track{"rock": pool}}
	hist := core.SelectionHistory{UsedTrackIDs: []string{"x"}, UsedArtists: []string{"X"}}

	result, updated, err := newTestEngine(source, checker, nil).SelectRound(
		context.Background(),
		Request{Difficulty: core.DifficultyEasy, Style: "rock"},
		hist,
	)
	if !errors.Is(err, ErrInsufficientOptions) {
		t.Fatalf("error = %v, want ErrInsufficientOptions", err)
	}
	if result != nil {
		t.Error("result should be nil on failure")
	}
	if !reflect.DeepEqual(updated, hist) {
		t.Errorf("history changed on failure: %v", updated)
	}
}

func TestEngine_DecoyProbeBudget(t *testing.T) {
	pool := makePool("t", 4)
	decoys := makePool("d", 50)
	broken := make(map[string]bool)
	for _, track := range append(pool[1:], decoys...) {
		broken[track.PreviewURL] = true
	}
	checker := &fakeChecker{broken: broken}
	source := &fakeSource{
		correct: map[string][]core.Track{"rock": pool},
		decoy:   map[string][]core.Track{"rock": decoys},
	}

	_, _, err := newTestEngine(source, checker, nil).SelectRound(
		context.Background(),
		Request{Difficulty: core.DifficultyEasy, Style: "rock"},
		core.SelectionHistory{},
	)
	if !errors.Is(err, ErrInsufficientOptions) {
		t.Fatalf("error = %v, want ErrInsufficientOptions", err)
	}
	// One correct-track probe plus the decoy budget
	if limit := 1 + core.DefaultMaxDecoyProbes; len(checker.checked) > limit {
		t.Errorf("checked %d previews, want at most %d", len(checker.checked), limit)
	}
}

func TestEngine_HistoryMonotonicity(t *testing.T) {
	pool := makePool("t", 300)
	source := &fakeSource{correct: map[string][]core.Track{"rock": pool}}
	engine := newTestEngine(source, &fakeChecker{}, nil)

	hist := core.SelectionHistory{}
	for round := 0; round < 40; round++ {
		result, updated, err := engine.SelectRound(
			context.Background(),
			Request{Difficulty: core.DifficultyEasy, Style: "rock"},
			hist,
		)
		if err != nil {
			t.Fatalf("round %d: error = %v", round, err)
		}
		assertValidRound(t, result)

		if len(updated.UsedTrackIDs) > core.DefaultHistoryCapacity {
			t.Fatalf("round %d: history grew to %d entries", round, len(updated.UsedTrackIDs))
		}

		got := make(map[string]bool, len(updated.UsedTrackIDs))
		for _, id := range updated.UsedTrackIDs {
			got[id] = true
		}
		for _, option := range result.Options {
			if !got[option.ID] {
				t.Fatalf("round %d: option %s not recorded", round, option.ID)
			}
		}
		if len(hist.UsedTrackIDs)+OptionCount <= core.DefaultHistoryCapacity {
			for _, id := range hist.UsedTrackIDs {
				if !got[id] {
					t.Fatalf("round %d: history lost %s before reaching capacity", round, id)
				}
			}
		}
		for _, option := range result.Options {
			for _, id := range hist.UsedTrackIDs {
				if option.ID == id {
					t.Fatalf("round %d: %s repeated from history", round, id)
				}
			}
		}

		hist = updated
	}
}

func TestEngine_RelaxationNeverReturnsShortRound(t *testing.T) {
	pool := makePool("t", 6)
	source := &fakeSource{correct: map[string][]core.Track{"rock": pool}}
	engine := newTestEngine(source, &fakeChecker{}, nil)

	// History holds pool size - 3 artists
	hist := core.SelectionHistory{
		UsedTrackIDs: []string{pool[0].ID, pool[1].ID, pool[2].ID},
		UsedArtists:  []string{pool[0].ArtistName, pool[1].ArtistName, pool[2].ArtistName},
	}

	result, _, err := engine.SelectRound(
		context.Background(),
		Request{Difficulty: core.DifficultyEasy, Style: "rock"},
		hist,
	)
	if err != nil {
		if !errors.Is(err, ErrPoolExhausted) {
			t.Fatalf("error = %v, want success or ErrPoolExhausted", err)
		}
		return
	}
	if !result.Relaxed {
		t.Error("a round from a 3-fresh pool must come from a relaxed history")
	}
	assertValidRound(t, result)
}

func TestEngine_ConcurrentRounds(t *testing.T) {
	source := &fakeSource{correct: map[string][]core.Track{"rock": makePool("t", 40)}}
	metrics := &recordingMetrics{}
	engine := newTestEngine(source, &fakeChecker{}, metrics)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, _, err := engine.SelectRound(
				context.Background(),
				Request{Difficulty: core.DifficultyMedium, Style: "rock"},
				core.SelectionHistory{},
			)
			if err == nil && result.CorrectIndex() < 0 {
				err = errors.New("correct track missing from options")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent round failed: %v", err)
		}
	}
	if len(metrics.outcomes) != 16 {
		t.Errorf("recorded %d outcomes, want 16", len(metrics.outcomes))
	}
}

func TestReason(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{err: nil, expected: "success"},
		{err: &Error{Kind: ErrNoCandidates}, expected: "no_candidates"},
		{err: &Error{Kind: ErrPoolExhausted}, expected: "pool_exhausted"},
		{err: fmt.Errorf("wrapped: %w", &Error{Kind: ErrNoPlayableTrack}), expected: "no_playable_track"},
		{err: &Error{Kind: ErrInsufficientOptions}, expected: "insufficient_options"},
		{err: errors.New("boom"), expected: "internal"},
	}

	for _, tt := range tests {
		if got := Reason(tt.err); got != tt.expected {
			t.Errorf("Reason(%v) = %s, want %s", tt.err, got, tt.expected)
		}
	}
}
