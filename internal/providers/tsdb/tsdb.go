// Package tsdb adapts TheSportsDB v1 JSON API. The free tier (key "3")
// rate-limits hard and omits some leagues; a paid key flips the provider to
// premium and unlocks full schedules.
package tsdb

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/snapetech/eventarr/internal/httpclient"
	"github.com/snapetech/eventarr/internal/sports"
)

const (
	Name    = "thesportsdb"
	FreeKey = "3"
)

// leagueIDs maps our league codes to TheSportsDB numeric league ids. Lookups
// by id are stable across the API's frequent league-name edits.
var leagueIDs = map[string]string{
	"nfl":            "4391",
	"ncaaf":          "4479",
	"nba":            "4387",
	"wnba":           "4516",
	"mlb":            "4424",
	"nhl":            "4380",
	"ufc":            "4443",
	"bellator":       "4445",
	"boxing":         "4445",
	"eng.1":          "4328",
	"eng.2":          "4329",
	"esp.1":          "4335",
	"ger.1":          "4331",
	"ita.1":          "4332",
	"fra.1":          "4334",
	"usa.1":          "4346",
	"mex.1":          "4350",
	"uefa.champions": "4480",
	"uefa.europa":    "4481",
}

type Client struct {
	base    string
	key     string
	http    *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
	retry   httpclient.RetryPolicy
}

func New(key string, log zerolog.Logger) *Client {
	if key == "" {
		key = FreeKey
	}
	// Free tier is documented at 30 req/min; paid keys get 100.
	limit := rate.Limit(0.5)
	if key != FreeKey {
		limit = rate.Limit(1.5)
	}
	return &Client{
		base:    "https://www.thesportsdb.com/api/v1/json",
		key:     key,
		http:    httpclient.WithTimeout(httpclient.ProviderTimeout),
		limiter: rate.NewLimiter(limit, 2),
		log:     log.With().Str("component", "thesportsdb").Logger(),
		retry:   httpclient.DefaultRetryPolicy,
	}
}

func (c *Client) Name() string  { return Name }
func (c *Client) Premium() bool { return c.key != FreeKey }

func (c *Client) SupportsLeague(league string) bool {
	_, ok := leagueIDs[league]
	return ok
}

func (c *Client) SupportedLeagues(_ context.Context) ([]string, error) {
	out := make([]string, 0, len(leagueIDs))
	for code := range leagueIDs {
		out = append(out, code)
	}
	return out, nil
}

func (c *Client) Events(ctx context.Context, league string, date time.Time) ([]sports.Event, error) {
	id, ok := leagueIDs[league]
	if !ok {
		return nil, fmt.Errorf("thesportsdb: unsupported league %q", league)
	}
	q := url.Values{"d": {date.Format("2006-01-02")}, "id": {id}}
	var body struct {
		Events []rawEvent `json:"events"`
	}
	if err := c.getJSON(ctx, "eventsday.php", q, &body); err != nil {
		return nil, err
	}
	events := make([]sports.Event, 0, len(body.Events))
	for _, raw := range body.Events {
		if ev, ok := c.parseEvent(raw, league); ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

func (c *Client) Event(ctx context.Context, id, league string) (*sports.Event, error) {
	var body struct {
		Events []rawEvent `json:"events"`
	}
	if err := c.getJSON(ctx, "lookupevent.php", url.Values{"id": {id}}, &body); err != nil {
		return nil, err
	}
	if len(body.Events) == 0 {
		return nil, nil
	}
	ev, ok := c.parseEvent(body.Events[0], league)
	if !ok {
		return nil, nil
	}
	return &ev, nil
}

func (c *Client) Team(ctx context.Context, id, _ string) (*sports.Team, error) {
	var body struct {
		Teams []rawTeam `json:"teams"`
	}
	if err := c.getJSON(ctx, "lookupteam.php", url.Values{"id": {id}}, &body); err != nil {
		return nil, err
	}
	if len(body.Teams) == 0 {
		return nil, nil
	}
	t := body.Teams[0].toTeam()
	return &t, nil
}

func (c *Client) LeagueTeams(ctx context.Context, league string) ([]sports.Team, error) {
	id, ok := leagueIDs[league]
	if !ok {
		return nil, fmt.Errorf("thesportsdb: unsupported league %q", league)
	}
	var body struct {
		Teams []rawTeam `json:"teams"`
	}
	if err := c.getJSON(ctx, "lookup_all_teams.php", url.Values{"id": {id}}, &body); err != nil {
		return nil, err
	}
	out := make([]sports.Team, 0, len(body.Teams))
	for _, t := range body.Teams {
		out = append(out, t.toTeam())
	}
	return out, nil
}

// SearchTeams finds teams by name across all leagues. Used by the cache
// refresher to backfill leagues ESPN does not carry.
func (c *Client) SearchTeams(ctx context.Context, name string) ([]sports.Team, error) {
	var body struct {
		Teams []rawTeam `json:"teams"`
	}
	if err := c.getJSON(ctx, "searchteams.php", url.Values{"t": {name}}, &body); err != nil {
		return nil, err
	}
	out := make([]sports.Team, 0, len(body.Teams))
	for _, t := range body.Teams {
		out = append(out, t.toTeam())
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, q url.Values, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	u := fmt.Sprintf("%s/%s/%s?%s", c.base, c.key, endpoint, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", httpclient.AcceptEncoding)
	resp, err := httpclient.DoWithRetry(ctx, c.http, req, c.retry)
	if err != nil {
		return fmt.Errorf("thesportsdb: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("thesportsdb: http %d for %s", resp.StatusCode, endpoint)
	}
	body, err := httpclient.DecodeBody(resp)
	if err != nil {
		return fmt.Errorf("thesportsdb: decode body: %w", err)
	}
	defer body.Close()
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return fmt.Errorf("thesportsdb: parse %s: %w", endpoint, err)
	}
	return nil
}
