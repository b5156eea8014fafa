// Package omdb fetches movie metadata and ratings from the OMDb API.
package omdb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrNotFound is returned when OMDb has no movie with the given title.
var ErrNotFound = errors.New("movie not found")

// ErrNoAPIKey is returned by every call on a client built without a key.
var ErrNoAPIKey = errors.New("omdb api key not configured")

type Rating struct {
	Source string `json:"Source"`
	Value  string `json:"Value"`
}

// Movie is the subset of the OMDb response the bot shows.
type Movie struct {
	Title      string   `json:"Title"`
	Year       string   `json:"Year"`
	Rated      string   `json:"Rated"`
	Runtime    string   `json:"Runtime"`
	Genre      string   `json:"Genre"`
	Director   string   `json:"Director"`
	Actors     string   `json:"Actors"`
	Plot       string   `json:"Plot"`
	Language   string   `json:"Language"`
	IMDBRating string   `json:"imdbRating"`
	Ratings    []Rating `json:"Ratings"`
}

// Rating returns the value reported by source, or "".
func (m *Movie) Rating(source string) string {
	for _, r := range m.Ratings {
		if strings.EqualFold(r.Source, source) {
			return r.Value
		}
	}
	return ""
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "https://www.omdbapi.com/"
	}
	return &Client{baseURL: baseURL, apiKey: apiKey, http: &http.Client{Timeout: 10 * time.Second}}
}

type response struct {
	Movie
	Response string `json:"Response"`
	Error    string `json:"Error"`
}

// MovieInfo looks a movie up by exact title with the full plot.
func (c *Client) MovieInfo(ctx context.Context, title string) (*Movie, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	q := url.Values{}
	q.Set("t", strings.TrimSpace(title))
	q.Set("plot", "full")
	q.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build omdb request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "omdb request")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("omdb: unexpected status %d", resp.StatusCode)
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "decode omdb response")
	}
	if !strings.EqualFold(body.Response, "True") {
		if strings.Contains(strings.ToLower(body.Error), "not found") {
			return nil, ErrNotFound
		}
		return nil, errors.Newf("omdb: %s", body.Error)
	}
	m := body.Movie
	return &m, nil
}
