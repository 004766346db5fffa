package tsdb

import (
	"strings"
	"time"

	"github.com/snapetech/eventarr/internal/sports"
)

// TheSportsDB serialises nearly everything as strings, null included.
type rawEvent struct {
	ID        string `json:"idEvent"`
	Name      string `json:"strEvent"`
	Sport     string `json:"strSport"`
	League    string `json:"strLeague"`
	Season    string `json:"strSeason"`
	HomeTeam  string `json:"strHomeTeam"`
	AwayTeam  string `json:"strAwayTeam"`
	HomeID    string `json:"idHomeTeam"`
	AwayID    string `json:"idAwayTeam"`
	HomeScore string `json:"intHomeScore"`
	AwayScore string `json:"intAwayScore"`
	Date      string `json:"dateEvent"`
	Time      string `json:"strTime"`
	Timestamp string `json:"strTimestamp"`
	Status    string `json:"strStatus"`
	Venue     string `json:"strVenue"`
	TV        string `json:"strTVStation"`
}

type rawTeam struct {
	ID        string `json:"idTeam"`
	Name      string `json:"strTeam"`
	ShortName string `json:"strTeamShort"`
	AltNames  string `json:"strAlternate"`
	Sport     string `json:"strSport"`
	League    string `json:"strLeague"`
	Badge     string `json:"strBadge"`
}

func (t rawTeam) toTeam() sports.Team {
	return sports.Team{
		ID:           t.ID,
		Name:         t.Name,
		ShortName:    t.ShortName,
		Abbreviation: firstAlternate(t.AltNames),
		LogoURL:      t.Badge,
	}
}

// firstAlternate takes the first comma-separated alternate as the closest
// thing the API has to an abbreviation.
func firstAlternate(s string) string {
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

var statusMap = map[string]sports.EventStatus{
	"NS":             sports.StatusScheduled,
	"not started":    sports.StatusScheduled,
	"1H":             sports.StatusLive,
	"2H":             sports.StatusLive,
	"HT":             sports.StatusLive,
	"live":           sports.StatusLive,
	"in play":        sports.StatusLive,
	"FT":             sports.StatusFinal,
	"AOT":            sports.StatusFinal,
	"match finished": sports.StatusFinal,
	"finished":       sports.StatusFinal,
	"PST":            sports.StatusPostponed,
	"postponed":      sports.StatusPostponed,
	"CANC":           sports.StatusCancelled,
	"cancelled":      sports.StatusCancelled,
}

func parseStatus(s string) sports.EventStatus {
	if st, ok := statusMap[s]; ok {
		return st
	}
	if st, ok := statusMap[strings.ToLower(s)]; ok {
		return st
	}
	return sports.StatusScheduled
}

// eventStart prefers the combined timestamp; date plus time is the fallback,
// date alone yields midnight UTC.
func eventStart(raw rawEvent) (time.Time, bool) {
	if raw.Timestamp != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, raw.Timestamp); err == nil {
				return t.UTC(), true
			}
		}
	}
	if raw.Date == "" {
		return time.Time{}, false
	}
	if raw.Time != "" {
		if t, err := time.Parse("2006-01-02 15:04:05", raw.Date+" "+raw.Time); err == nil {
			return t.UTC(), true
		}
	}
	t, err := time.Parse("2006-01-02", raw.Date)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func (c *Client) parseEvent(raw rawEvent, league string) (sports.Event, bool) {
	start, ok := eventStart(raw)
	if !ok {
		c.log.Debug().Str("event", raw.ID).Msg("event has no usable start time")
		return sports.Event{}, false
	}
	ev := sports.Event{
		ID:        raw.ID,
		Provider:  Name,
		League:    league,
		Sport:     sports.NormalizeSport(raw.Sport),
		Name:      raw.Name,
		Start:     start,
		Status:    parseStatus(raw.Status),
		Venue:     raw.Venue,
		Broadcast: raw.TV,
		Season:    raw.Season,
		HomeScore: raw.HomeScore,
		AwayScore: raw.AwayScore,
	}
	if raw.HomeTeam != "" {
		ev.Home = &sports.Team{ID: raw.HomeID, Name: raw.HomeTeam}
	}
	if raw.AwayTeam != "" {
		ev.Away = &sports.Team{ID: raw.AwayID, Name: raw.AwayTeam}
	}
	return ev, true
}
