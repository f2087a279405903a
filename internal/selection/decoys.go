package selection

import (
	"context"

	"go.uber.org/zap"

	"musicquiz/internal/core"
)

// pickDecoys draws three playable wrong answers from what is left of the correct pool plus
// a decoy page. Tracks the player has not heard recently are tried first. The first pass
// wants a distinct artist per option and a title that cannot be mistaken for the correct
// one. The second pass drops the title guard and the third accepts repeated artists, so
// artist diversity is the last thing given up. A track id is never offered twice.
func (e *Engine) pickDecoys(
	ctx context.Context,
	r *round,
	correct core.Track,
	remaining []core.Track,
) ([]core.Track, error) {
	seen := map[string]struct{}{correct.ID: {}}
	var fresh, stale []core.Track
	add := func(tracks []core.Track) {
		for i := range tracks {
			if _, dup := seen[tracks[i].ID]; dup {
				continue
			}
			seen[tracks[i].ID] = struct{}{}
			if e.tracker.IsAvailable(tracks[i], r.history) {
				fresh = append(fresh, tracks[i])
			} else {
				stale = append(stale, tracks[i])
			}
		}
	}

	add(remaining)
	add(e.source.FetchCandidates(ctx, e.candidateRequest(r.req, r.style, core.PoolDecoy)))

	e.shuffle(fresh)
	e.shuffle(stale)
	candidates := append(fresh, stale...)

	picker := &decoyPicker{
		engine:      e,
		round:       r,
		correct:     correct,
		correctKey:  e.normalizer.ArtistKey(correct.ArtistName),
		correctSong: e.normalizer.TitleKey(correct.Title),
		chosen:      make([]core.Track, 0, decoyCount),
		ids:         make(map[string]struct{}, decoyCount),
		artists:     map[string]struct{}{e.normalizer.ArtistKey(correct.ArtistName): {}},
	}

	picker.pass(ctx, candidates, true, true)
	if len(picker.chosen) < decoyCount {
		picker.pass(ctx, candidates, true, false)
	}
	if len(picker.chosen) < decoyCount {
		e.logger.Debug("Too few distinct-artist decoys, allowing repeated artists",
			zap.Int("found", len(picker.chosen)),
			zap.Int("candidates", len(candidates)))
		picker.pass(ctx, candidates, false, false)
	}

	if len(picker.chosen) < decoyCount {
		return nil, r.fail(ErrInsufficientOptions)
	}
	return picker.chosen, nil
}

type decoyPicker struct {
	engine      *Engine
	round       *round
	correct     core.Track
	correctKey  string
	correctSong string
	chosen      []core.Track
	ids         map[string]struct{}
	artists     map[string]struct{}
	probes      int
}

func (p *decoyPicker) pass(ctx context.Context, candidates []core.Track, distinctArtists, titleGuard bool) {
	e := p.engine
	for i := range candidates {
		if len(p.chosen) == decoyCount {
			return
		}

		c := candidates[i]
		if _, used := p.ids[c.ID]; used {
			continue
		}

		key := e.normalizer.ArtistKey(c.ArtistName)
		// Another release of the correct song would make two right answers
		if key == p.correctKey && e.normalizer.TitleKey(c.Title) == p.correctSong {
			continue
		}
		if distinctArtists {
			if _, taken := p.artists[key]; taken {
				continue
			}
		}
		if titleGuard && e.normalizer.TitleSimilarity(c.Title, p.correct.Title) >= titleSimilarityLimit {
			continue
		}

		if _, known := p.round.verdicts[c.PreviewURL]; !known {
			if p.probes >= e.config.MaxDecoyProbes {
				return
			}
			p.probes++
		}
		if !e.playable(ctx, p.round, &c) {
			continue
		}

		p.chosen = append(p.chosen, c)
		p.ids[c.ID] = struct{}{}
		p.artists[key] = struct{}{}
	}
}
