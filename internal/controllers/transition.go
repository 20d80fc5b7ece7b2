package controllers

import "github.com/amaumene/malsync/internal/models"

// NextStatus decides the list status to write after the viewer finished
// currentEpisode. It reports false when nothing should be written.
//
// Completed, dropped and unlisted titles are never touched. A title is only
// completed once its episode count is known (totalEpisodes > 0).
func NextStatus(current models.ListStatus, currentEpisode, episodesWatched, totalEpisodes int) (models.ListStatus, bool) {
	if !current.Progressable() {
		return current, false
	}
	if totalEpisodes > 0 && currentEpisode == totalEpisodes {
		return models.ListStatusCompleted, true
	}
	if currentEpisode > episodesWatched {
		return models.ListStatusWatching, true
	}
	// Re-watch of an already counted episode, or out of order
	return current, false
}

// DetermineDates returns the start and finish dates to store alongside a
// status change. A date that is already set is returned unchanged.
func DetermineDates(today models.Date, existingStart, existingFinish *models.Date, episodesWatched, currentEpisode, totalEpisodes int) (start, finish *models.Date) {
	start, finish = existingStart, existingFinish

	if existingStart == nil && currentEpisode == 1 && episodesWatched == 0 {
		d := today
		start = &d
	}
	if existingFinish == nil && currentEpisode == totalEpisodes {
		d := today
		finish = &d
	}
	return start, finish
}
