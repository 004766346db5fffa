package epg

import (
	"strings"
	"time"
)

// Vars are the substitution values available to the title, description, and
// filler templates. Unknown {tokens} in a template render as empty.
type Vars struct {
	Matchup     string
	HomeTeam    string
	AwayTeam    string
	League      string
	LeagueName  string
	Sport       string
	Venue       string
	Broadcast   string
	EventName   string
	TimeLocal   string
	DateLocal   string
	Segment     string
	ChannelName string
}

var tokenFields = []struct {
	token string
	get   func(Vars) string
}{
	{"{matchup}", func(v Vars) string { return v.Matchup }},
	{"{home_team}", func(v Vars) string { return v.HomeTeam }},
	{"{away_team}", func(v Vars) string { return v.AwayTeam }},
	{"{league}", func(v Vars) string { return v.League }},
	{"{league_name}", func(v Vars) string { return v.LeagueName }},
	{"{sport}", func(v Vars) string { return v.Sport }},
	{"{venue}", func(v Vars) string { return v.Venue }},
	{"{broadcast}", func(v Vars) string { return v.Broadcast }},
	{"{event_name}", func(v Vars) string { return v.EventName }},
	{"{time_local}", func(v Vars) string { return v.TimeLocal }},
	{"{date_local}", func(v Vars) string { return v.DateLocal }},
	{"{segment}", func(v Vars) string { return v.Segment }},
	{"{channel_name}", func(v Vars) string { return v.ChannelName }},
}

// Render substitutes every known token and tidies the residue of empty ones:
// doubled spaces and dangling separators from an empty {venue} or
// {broadcast} would otherwise leak into the guide.
func Render(template string, v Vars) string {
	out := template
	for _, f := range tokenFields {
		out = strings.ReplaceAll(out, f.token, f.get(v))
	}
	out = strings.Join(strings.Fields(out), " ")
	out = strings.TrimRight(out, " -:,@")
	return strings.TrimSpace(out)
}

// BuildVars fills the substitution set from event facts.
func BuildVars(home, away, league, leagueName, sport, venue, broadcast, eventName, segment, channelName string, start time.Time, loc *time.Location) Vars {
	v := Vars{
		HomeTeam:    home,
		AwayTeam:    away,
		League:      league,
		LeagueName:  leagueName,
		Sport:       sport,
		Venue:       venue,
		Broadcast:   broadcast,
		EventName:   eventName,
		Segment:     segmentLabel(segment),
		ChannelName: channelName,
	}
	if v.LeagueName == "" {
		v.LeagueName = strings.ToUpper(league)
	}
	if home != "" && away != "" {
		v.Matchup = away + " at " + home
	} else {
		v.Matchup = eventName
	}
	if !start.IsZero() && loc != nil {
		local := start.In(loc)
		v.TimeLocal = local.Format("3:04 PM")
		v.DateLocal = local.Format("Mon Jan 2")
	}
	return v
}

var segmentNames = map[string]string{
	"early_prelims": "Early Prelims",
	"prelims":       "Prelims",
	"main_card":     "Main Card",
}

func segmentLabel(segment string) string {
	if label, ok := segmentNames[segment]; ok {
		return label
	}
	return segment
}
