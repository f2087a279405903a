package i18n

// russianMessages contains all Russian translations.
var russianMessages = map[string]string{
	// Round failures
	"error.no_candidates":        "Для этого стиля треков не нашлось. Попробуйте другой стиль или уровень сложности.",
	"error.pool_exhausted":       "Вы уже слышали всё, что у нас есть. Попробуйте другой стиль или уровень сложности.",
	"error.no_playable_track":    "Не удалось найти трек с рабочим превью. Попробуйте ещё раз.",
	"error.insufficient_options": "Не удалось подобрать четыре варианта ответа. Попробуйте ещё раз.",
	"error.internal":             "Что-то пошло не так. Попробуйте ещё раз.",

	// Request problems
	"error.bad_difficulty": "Неизвестная сложность %q. Выберите easy, medium или hard.",
	"error.missing_player": "Нужен идентификатор игрока.",
	"error.flood":          "Не так быстро! Попробуйте снова через %d сек.",

	// Round presentation
	"round.prompt": "Какой трек играет? У вас %d секунд.",
}
