package mal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/malsync/internal/models"
)

// animeDetails is the subset of GET /anime/{id} this client reads
type animeDetails struct {
	ID           int    `json:"id"`
	Title        string `json:"title"`
	NumEpisodes  int    `json:"num_episodes"`
	MyListStatus *struct {
		Status             string  `json:"status"`
		NumEpisodesWatched int     `json:"num_episodes_watched"`
		StartDate          *string `json:"start_date"`
		FinishDate         *string `json:"finish_date"`
	} `json:"my_list_status"`
}

// GetEntry retrieves the user's list entry for a title. A title that is on
// none of the user's lists yields an entry with ListStatusAbsent.
func (c *Client) GetEntry(ctx context.Context, accessToken string, id models.NativeID) (*models.ListEntry, error) {
	path := fmt.Sprintf("/anime/%d", id)
	query := url.Values{"fields": {"num_episodes,my_list_status"}}

	var details animeDetails
	if err := c.doRequest(ctx, http.MethodGet, path, accessToken, query, nil, &details); err != nil {
		return nil, fmt.Errorf("failed to get anime details: %w", err)
	}

	entry := &models.ListEntry{
		TotalEpisodes: details.NumEpisodes,
	}
	if status := details.MyListStatus; status != nil {
		entry.Status = models.ListStatus(status.Status)
		entry.EpisodesWatched = status.NumEpisodesWatched
		entry.StartDate = toDate(status.StartDate)
		entry.FinishDate = toDate(status.FinishDate)
	}

	return entry, nil
}

// Update is a write to a user's list entry
type Update struct {
	Status     models.ListStatus
	Episode    int // becomes the watched-episode count
	StartDate  *models.Date
	FinishDate *models.Date
}

// SetEntry writes a status change to the user's list
func (c *Client) SetEntry(ctx context.Context, accessToken string, id models.NativeID, update Update) error {
	path := fmt.Sprintf("/anime/%d/my_list_status", id)

	form := url.Values{}
	form.Set("status", string(update.Status))
	form.Set("num_watched_episodes", strconv.Itoa(update.Episode))
	if update.StartDate != nil {
		form.Set("start_date", string(*update.StartDate))
	}
	if update.FinishDate != nil {
		form.Set("finish_date", string(*update.FinishDate))
	}

	if err := c.doRequest(ctx, http.MethodPut, path, accessToken, nil, form, nil); err != nil {
		return fmt.Errorf("failed to update list status: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"anime_id": id,
		"status":   update.Status,
		"episode":  update.Episode,
	}).Debug("Updated MyAnimeList list status")

	return nil
}

func toDate(s *string) *models.Date {
	if s == nil || *s == "" {
		return nil
	}
	d := models.Date(*s)
	return &d
}
