package espn

import (
	"strings"
	"time"

	"github.com/snapetech/eventarr/internal/sports"
)

type scoreboardResponse struct {
	Events []rawEvent `json:"events"`
}

type rawEvent struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"shortName"`
	Date      string `json:"date"`
	Season    struct {
		Year int    `json:"year"`
		Slug string `json:"slug"`
	} `json:"season"`
	Status struct {
		Type struct {
			Name      string `json:"name"`
			Completed bool   `json:"completed"`
			Detail    string `json:"detail"`
		} `json:"type"`
	} `json:"status"`
	Competitions []rawCompetition `json:"competitions"`
}

type rawCompetition struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	Venue       struct {
		FullName string `json:"fullName"`
	} `json:"venue"`
	Competitors []struct {
		HomeAway string  `json:"homeAway"`
		Score    string  `json:"score"`
		Team     rawTeam `json:"team"`
	} `json:"competitors"`
	Broadcasts []struct {
		Names []string `json:"names"`
	} `json:"broadcasts"`
	// MMA cards only: which slice of the card this fight belongs to.
	CardSegment struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"cardSegment"`
}

type rawTeam struct {
	ID               string `json:"id"`
	DisplayName      string `json:"displayName"`
	ShortDisplayName string `json:"shortDisplayName"`
	Abbreviation     string `json:"abbreviation"`
	Name             string `json:"name"`
	Location         string `json:"location"`
	Logo             string `json:"logo"`
	Logos            []struct {
		Href string `json:"href"`
	} `json:"logos"`
}

func (t rawTeam) toTeam() sports.Team {
	name := t.DisplayName
	if name == "" {
		name = strings.TrimSpace(t.Location + " " + t.Name)
	}
	logo := t.Logo
	if logo == "" && len(t.Logos) > 0 {
		logo = t.Logos[0].Href
	}
	return sports.Team{
		ID:           t.ID,
		Name:         name,
		ShortName:    t.ShortDisplayName,
		Abbreviation: t.Abbreviation,
		LogoURL:      logo,
	}
}

type teamsResponse struct {
	Sports []struct {
		Leagues []struct {
			Teams []struct {
				Team rawTeam `json:"team"`
			} `json:"teams"`
		} `json:"leagues"`
	} `json:"sports"`
}

var statusNames = map[string]sports.EventStatus{
	"STATUS_SCHEDULED":          sports.StatusScheduled,
	"STATUS_IN_PROGRESS":        sports.StatusLive,
	"STATUS_HALFTIME":           sports.StatusLive,
	"STATUS_END_PERIOD":         sports.StatusLive,
	"STATUS_FINAL":              sports.StatusFinal,
	"STATUS_FULL_TIME":          sports.StatusFinal,
	"STATUS_POSTPONED":          sports.StatusPostponed,
	"STATUS_CANCELED":           sports.StatusCancelled,
	"STATUS_DELAYED":            sports.StatusDelayed,
	"STATUS_RAIN_DELAY":         sports.StatusDelayed,
	"STATUS_PRE_FIGHT":          sports.StatusScheduled,
	"STATUS_FIGHTS_IN_PROGRESS": sports.StatusLive,
}

func parseStatus(name string, completed bool) sports.EventStatus {
	if s, ok := statusNames[name]; ok {
		return s
	}
	if completed {
		return sports.StatusFinal
	}
	return sports.StatusScheduled
}

// espnTime handles both second and minute precision ("2006-01-02T15:04Z").
func espnTime(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04Z07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func (c *Client) parseEvent(raw rawEvent, league string) (sports.Event, bool) {
	start, ok := espnTime(raw.Date)
	if !ok {
		c.log.Debug().Str("event", raw.ID).Str("date", raw.Date).Msg("unparseable event date")
		return sports.Event{}, false
	}
	ev := sports.Event{
		ID:       raw.ID,
		Provider: Name,
		League:   league,
		Sport:    sportForLeague(league),
		Name:     raw.Name,
		Short:    raw.ShortName,
		Start:    start,
		Status:   parseStatus(raw.Status.Type.Name, raw.Status.Type.Completed),
		Detail:   raw.Status.Type.Detail,
	}
	if raw.Season.Year > 0 {
		ev.Season = raw.Season.Slug
	}
	if ev.Sport == "mma" {
		c.parseCardSegments(&ev, raw.Competitions)
		return ev, true
	}
	if len(raw.Competitions) == 0 {
		return ev, true
	}
	comp := raw.Competitions[0]
	ev.Venue = comp.Venue.FullName
	if len(comp.Broadcasts) > 0 && len(comp.Broadcasts[0].Names) > 0 {
		ev.Broadcast = strings.Join(comp.Broadcasts[0].Names, ", ")
	}
	for _, c2 := range comp.Competitors {
		team := c2.Team.toTeam()
		if fix, ok := teamIDCorrections[league+"|"+team.ID]; ok {
			team.ID = fix
		}
		switch c2.HomeAway {
		case "home":
			home := team
			ev.Home = &home
			ev.HomeScore = c2.Score
		case "away":
			away := team
			ev.Away = &away
			ev.AwayScore = c2.Score
		}
	}
	return ev, true
}

// parseCardSegments derives per-segment start times from the individual
// fights: the earliest fight time within each card segment is that
// segment's start.
func (c *Client) parseCardSegments(ev *sports.Event, comps []rawCompetition) {
	times := make(map[sports.Segment]time.Time)
	for _, comp := range comps {
		if len(comp.Venue.FullName) > 0 && ev.Venue == "" {
			ev.Venue = comp.Venue.FullName
		}
		seg, ok := segmentFromCard(comp.CardSegment.Name, comp.CardSegment.Description)
		if !ok {
			continue
		}
		t, ok := espnTime(comp.Date)
		if !ok {
			continue
		}
		if cur, exists := times[seg]; !exists || t.Before(cur) {
			times[seg] = t
		}
	}
	if len(times) > 0 {
		ev.SegmentTimes = times
	}
	if mc, ok := times[sports.SegmentMainCard]; ok {
		ev.MainCardStart = mc
	}
}

func segmentFromCard(name, description string) (sports.Segment, bool) {
	key := strings.ToLower(name + " " + description)
	switch {
	case strings.Contains(key, "early"):
		return sports.SegmentEarlyPrelims, true
	case strings.Contains(key, "prelim"):
		return sports.SegmentPrelims, true
	case strings.Contains(key, "main"):
		return sports.SegmentMainCard, true
	}
	return "", false
}

func sportForLeague(league string) string {
	if p, ok := leaguePaths[league]; ok {
		return sports.NormalizeSport(strings.SplitN(p, "/", 2)[0])
	}
	if isSoccerCode(league) {
		return "soccer"
	}
	return ""
}
