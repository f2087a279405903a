package i18n

// englishMessages contains all English translations.
var englishMessages = map[string]string{
	// Round failures
	"error.no_candidates":        "No tracks found for this style. Try another style or difficulty.",
	"error.pool_exhausted":       "You've heard everything we have here. Try another style or difficulty.",
	"error.no_playable_track":    "Couldn't find a track with a working preview. Please try again.",
	"error.insufficient_options": "Couldn't put together four answer options. Please try again.",
	"error.internal":             "Something went wrong. Please try again.",

	// Request problems
	"error.bad_difficulty": "Unknown difficulty %q. Choose easy, medium or hard.",
	"error.missing_player": "A player id is required.",
	"error.flood":          "Slow down! Try again in %d seconds.",

	// Round presentation
	"round.prompt": "Which track is playing? You have %d seconds.",
}
