package selection

import (
	"errors"
	"fmt"
	"strings"

	"musicquiz/internal/core"
)

// Terminal selection failures. Callers should ask the player to change filters or retry.
var (
	ErrNoCandidates        = errors.New("no candidates for the requested filters")
	ErrPoolExhausted       = errors.New("candidate pool exhausted")
	ErrNoPlayableTrack     = errors.New("no track with a playable preview")
	ErrInsufficientOptions = errors.New("not enough decoy options")
)

// Error describes a failed round. It unwraps to one of the sentinel errors above.
type Error struct {
	Kind             error
	Difficulty       core.Difficulty
	Style            string
	AttemptedArtists []string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s (difficulty=%s, style=%s)", e.Kind, e.Difficulty, e.Style)
	if len(e.AttemptedArtists) > 0 {
		msg += ": attempted " + strings.Join(e.AttemptedArtists, ", ")
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Reason returns a stable tag for an error, used as metric label and message key
func Reason(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNoCandidates):
		return "no_candidates"
	case errors.Is(err, ErrPoolExhausted):
		return "pool_exhausted"
	case errors.Is(err, ErrNoPlayableTrack):
		return "no_playable_track"
	case errors.Is(err, ErrInsufficientOptions):
		return "insufficient_options"
	default:
		return "internal"
	}
}
