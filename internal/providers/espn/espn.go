// Package espn adapts ESPN's public site API to the SportsProvider
// capability. Free, no key, but unannounced shape changes and aggressive
// rate limiting; every parse is defensive and every call goes through the
// shared retry layer with a local rate limiter in front.
package espn

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/snapetech/eventarr/internal/httpclient"
	"github.com/snapetech/eventarr/internal/sports"
)

const (
	Name    = "espn"
	baseURL = "https://site.api.espn.com/apis/site/v2/sports"
)

// leaguePaths maps league codes to ESPN's sport/league URL segments. Soccer
// league codes (eng.1, uefa.champions, ...) are passed through under the
// soccer segment and are not listed here.
var leaguePaths = map[string]string{
	"nfl":      "football/nfl",
	"ncaaf":    "football/college-football",
	"nba":      "basketball/nba",
	"wnba":     "basketball/wnba",
	"ncaab":    "basketball/mens-college-basketball",
	"mlb":      "baseball/mlb",
	"nhl":      "hockey/nhl",
	"ufc":      "mma/ufc",
	"pfl":      "mma/pfl",
	"bellator": "mma/bellator",
	"boxing":   "boxing/boxing",
}

// collegeGroups narrows NCAA scoreboards to the top division; without the
// groups param ESPN returns a tiny default slice of games.
var collegeGroups = map[string]string{
	"ncaaf": "80",
	"ncaab": "50",
}

// teamIDCorrections patches IDs the scoreboard reports differently from the
// teams listing. Keyed league|scoreboardID.
var teamIDCorrections = map[string]string{
	"nhl|129764": "124292", // Utah, scoreboard kept the relocation-era id
}

type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
	retry   httpclient.RetryPolicy
}

func New(log zerolog.Logger) *Client {
	return &Client{
		base: baseURL,
		http: httpclient.WithTimeout(httpclient.ProviderTimeout),
		// ESPN tolerates short bursts; sustained load trips 429s.
		limiter: rate.NewLimiter(rate.Limit(4), 8),
		log:     log.With().Str("component", "espn").Logger(),
		retry:   httpclient.DefaultRetryPolicy,
	}
}

func (c *Client) Name() string  { return Name }
func (c *Client) Premium() bool { return true } // full coverage without a key

func (c *Client) SupportsLeague(league string) bool {
	if _, ok := leaguePaths[league]; ok {
		return true
	}
	return isSoccerCode(league)
}

// isSoccerCode: ESPN soccer league codes are dotted (eng.1, usa.1,
// uefa.champions).
func isSoccerCode(league string) bool {
	return strings.Contains(league, ".")
}

func (c *Client) path(league string) (string, bool) {
	if p, ok := leaguePaths[league]; ok {
		return p, true
	}
	if isSoccerCode(league) {
		return "soccer/" + league, true
	}
	return "", false
}

func (c *Client) SupportedLeagues(_ context.Context) ([]string, error) {
	out := make([]string, 0, len(leaguePaths))
	for code := range leaguePaths {
		out = append(out, code)
	}
	return out, nil
}

func (c *Client) Events(ctx context.Context, league string, date time.Time) ([]sports.Event, error) {
	p, ok := c.path(league)
	if !ok {
		return nil, fmt.Errorf("espn: unsupported league %q", league)
	}
	q := url.Values{"dates": {date.Format("20060102")}}
	if g, ok := collegeGroups[league]; ok {
		q.Set("groups", g)
	}
	var body scoreboardResponse
	if err := c.getJSON(ctx, fmt.Sprintf("%s/%s/scoreboard?%s", c.base, p, q.Encode()), &body); err != nil {
		return nil, err
	}
	events := make([]sports.Event, 0, len(body.Events))
	for _, raw := range body.Events {
		ev, ok := c.parseEvent(raw, league)
		if !ok {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func (c *Client) Event(ctx context.Context, id, league string) (*sports.Event, error) {
	events, err := c.eventsByQuery(ctx, league, url.Values{"event": {id}})
	if err != nil {
		return nil, err
	}
	for i := range events {
		if events[i].ID == id {
			return &events[i], nil
		}
	}
	return nil, nil
}

func (c *Client) eventsByQuery(ctx context.Context, league string, q url.Values) ([]sports.Event, error) {
	p, ok := c.path(league)
	if !ok {
		return nil, fmt.Errorf("espn: unsupported league %q", league)
	}
	var body scoreboardResponse
	if err := c.getJSON(ctx, fmt.Sprintf("%s/%s/scoreboard?%s", c.base, p, q.Encode()), &body); err != nil {
		return nil, err
	}
	out := make([]sports.Event, 0, len(body.Events))
	for _, raw := range body.Events {
		if ev, ok := c.parseEvent(raw, league); ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (c *Client) Team(ctx context.Context, id, league string) (*sports.Team, error) {
	p, ok := c.path(league)
	if !ok {
		return nil, fmt.Errorf("espn: unsupported league %q", league)
	}
	var body struct {
		Team rawTeam `json:"team"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("%s/%s/teams/%s", c.base, p, url.PathEscape(id)), &body); err != nil {
		return nil, err
	}
	if body.Team.ID == "" {
		return nil, nil
	}
	t := body.Team.toTeam()
	return &t, nil
}

func (c *Client) LeagueTeams(ctx context.Context, league string) ([]sports.Team, error) {
	p, ok := c.path(league)
	if !ok {
		return nil, fmt.Errorf("espn: unsupported league %q", league)
	}
	var body teamsResponse
	if err := c.getJSON(ctx, fmt.Sprintf("%s/%s/teams?limit=500", c.base, p), &body); err != nil {
		return nil, err
	}
	var out []sports.Team
	for _, s := range body.Sports {
		for _, l := range s.Leagues {
			for _, entry := range l.Teams {
				out = append(out, entry.Team.toTeam())
			}
		}
	}
	return out, nil
}

// SoccerLeagues discovers the soccer league codes ESPN currently serves.
// The cache refresher merges them with the configured mappings.
func (c *Client) SoccerLeagues(ctx context.Context) ([]sports.LeagueInfo, error) {
	var body struct {
		Sports []struct {
			Leagues []struct {
				Slug string `json:"slug"`
				Name string `json:"name"`
			} `json:"leagues"`
		} `json:"sports"`
	}
	if err := c.getJSON(ctx, c.base+"/soccer/scoreboard?limit=1", &body); err != nil {
		return nil, err
	}
	var out []sports.LeagueInfo
	for _, s := range body.Sports {
		for _, l := range s.Leagues {
			if l.Slug == "" {
				continue
			}
			out = append(out, sports.LeagueInfo{Code: l.Slug, Name: l.Name, Sport: "soccer"})
		}
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", httpclient.AcceptEncoding)
	resp, err := httpclient.DoWithRetry(ctx, c.http, req, c.retry)
	if err != nil {
		return fmt.Errorf("espn: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("espn: http %d for %s", resp.StatusCode, req.URL.Path)
	}
	body, err := httpclient.DecodeBody(resp)
	if err != nil {
		return fmt.Errorf("espn: decode body: %w", err)
	}
	defer body.Close()
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return fmt.Errorf("espn: parse %s: %w", req.URL.Path, err)
	}
	return nil
}
