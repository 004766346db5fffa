// Package epg renders the engine's guide data into XMLTV documents: one
// event programme per managed channel slot, filler programmes padding the
// output window, and per-team schedule guides for tracked teams.
package epg

import (
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/snapetech/eventarr/internal/lifecycle"
	"github.com/snapetech/eventarr/internal/sports"
	"github.com/snapetech/eventarr/internal/store"
	"github.com/snapetech/eventarr/internal/xmltv"
)

type Generator struct {
	cfg store.EPGSettings
	pol *lifecycle.Policy
	loc *time.Location
	log zerolog.Logger

	// LeagueName resolves a league code to its display name; nil falls
	// back to the uppercased code.
	LeagueName func(code string) string

	Now func() time.Time
}

func NewGenerator(cfg store.EPGSettings, pol *lifecycle.Policy, loc *time.Location, log zerolog.Logger) *Generator {
	return &Generator{
		cfg: cfg,
		pol: pol,
		loc: loc,
		log: log.With().Str("component", "epg").Logger(),
		Now: time.Now,
	}
}

// window is the guide span: lookback behind now through output-days ahead.
func (g *Generator) window() (time.Time, time.Time) {
	now := g.Now().UTC()
	lookback := time.Duration(g.cfg.EPGLookbackHours) * time.Hour
	ahead := time.Duration(g.cfg.EPGOutputDaysAhead) * 24 * time.Hour
	return now.Add(-lookback), now.Add(ahead)
}

func (g *Generator) leagueName(code string) string {
	if g.LeagueName != nil {
		if name := g.LeagueName(code); name != "" {
			return name
		}
	}
	return strings.ToUpper(code)
}

// ForChannels renders the group-mode guide: one XMLTV channel per managed
// channel, its event programme, and filler around it.
func (g *Generator) ForChannels(chs []store.Channel) *xmltv.Document {
	doc := xmltv.New()
	w0, w1 := g.window()
	for _, ch := range chs {
		xc := xmltv.Channel{ID: ch.TVGID, Display: ch.Name}
		if ch.LogoURL != "" {
			xc.Icon = &xmltv.Icon{Src: ch.LogoURL}
		}
		doc.Channels = append(doc.Channels, xc)

		start := ch.EventStart
		stop := start.Add(g.pol.Duration(ch.Sport))
		if !ch.SegmentStart.IsZero() {
			start = ch.SegmentStart
		}
		if !ch.SegmentEnd.IsZero() {
			stop = ch.SegmentEnd
		}

		vars := BuildVars(ch.HomeTeam, ch.AwayTeam, ch.League, g.leagueName(ch.League), ch.Sport,
			ch.Venue, ch.Broadcast, ch.EventName, ch.Segment, ch.Name, start, g.loc)
		var slots []slot
		if stop.After(w0) && start.Before(w1) {
			doc.Programmes = append(doc.Programmes, xmltv.Programme{
				Start:    xmltv.FormatTime(start),
				Stop:     xmltv.FormatTime(stop),
				Channel:  ch.TVGID,
				Title:    xmltv.Text(Render(g.cfg.EventTitleTemplate, vars)),
				Desc:     xmltv.TextPtr(Render(g.cfg.EventDescTemplate, vars)),
				Category: xmltv.TextPtr(sportCategory(ch.Sport)),
			})
			slots = append(slots, slot{start, stop})
		}
		doc.Programmes = append(doc.Programmes, g.filler(ch.TVGID, ch.Name, slots, w0, w1)...)
	}
	return doc
}

// ForTeam renders a tracked team's schedule as one channel carrying every
// upcoming event.
func (g *Generator) ForTeam(team store.TrackedTeam, events []sports.Event) *xmltv.Document {
	doc := xmltv.New()
	id := teamChannelID(team)
	doc.Channels = append(doc.Channels, xmltv.Channel{ID: id, Display: team.Name})

	w0, w1 := g.window()
	sorted := append([]sports.Event(nil), events...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	var slots []slot
	for _, ev := range sorted {
		stop := ev.Start.Add(g.pol.Duration(ev.Sport))
		if !stop.After(w0) || !ev.Start.Before(w1) {
			continue
		}
		home, away := "", ""
		if ev.Home != nil {
			home = ev.Home.Name
		}
		if ev.Away != nil {
			away = ev.Away.Name
		}
		vars := BuildVars(home, away, ev.League, g.leagueName(ev.League), ev.Sport,
			ev.Venue, ev.Broadcast, ev.Name, "", team.Name, ev.Start, g.loc)
		doc.Programmes = append(doc.Programmes, xmltv.Programme{
			Start:    xmltv.FormatTime(ev.Start),
			Stop:     xmltv.FormatTime(stop),
			Channel:  id,
			Title:    xmltv.Text(Render(g.cfg.EventTitleTemplate, vars)),
			Desc:     xmltv.TextPtr(Render(g.cfg.EventDescTemplate, vars)),
			Category: xmltv.TextPtr(sportCategory(ev.Sport)),
		})
		slots = append(slots, slot{ev.Start, stop})
	}
	doc.Programmes = append(doc.Programmes, g.filler(id, team.Name, slots, w0, w1)...)
	return doc
}

// ForRegularTV renders a static passthrough channel: filler only, no events.
func (g *Generator) ForRegularTV(id, name string) *xmltv.Document {
	doc := xmltv.New()
	doc.Channels = append(doc.Channels, xmltv.Channel{ID: id, Display: name})
	w0, w1 := g.window()
	doc.Programmes = append(doc.Programmes, g.filler(id, name, nil, w0, w1)...)
	return doc
}

type slot struct{ start, stop time.Time }

// filler pads the gaps between event slots across the whole window. slots
// must be sorted by start.
func (g *Generator) filler(channelID, channelName string, slots []slot, w0, w1 time.Time) []xmltv.Programme {
	title := Render(g.cfg.FillerTitleTemplate, Vars{ChannelName: channelName})
	if title == "" {
		title = channelName
	}
	var out []xmltv.Programme
	cursor := w0
	emit := func(from, to time.Time) {
		for _, block := range g.fillerBlocks(from, to) {
			out = append(out, xmltv.Programme{
				Start:   xmltv.FormatTime(block.start),
				Stop:    xmltv.FormatTime(block.stop),
				Channel: channelID,
				Title:   xmltv.Text(title),
			})
		}
	}
	for _, s := range slots {
		from := s.start
		if from.After(w1) {
			break
		}
		if cursor.Before(from) {
			emit(cursor, from)
		}
		if s.stop.After(cursor) {
			cursor = s.stop
		}
	}
	if cursor.Before(w1) {
		emit(cursor, w1)
	}
	return out
}

// fillerBlocks splits one gap per the midnight crossover mode: split mode
// breaks at every local midnight so no programme spans a date boundary,
// float mode keeps the gap as one block.
func (g *Generator) fillerBlocks(from, to time.Time) []slot {
	if !from.Before(to) {
		return nil
	}
	if g.cfg.MidnightCrossoverMode != "split" {
		return []slot{{from, to}}
	}
	var out []slot
	cursor := from
	for cursor.Before(to) {
		local := cursor.In(g.loc)
		y, m, d := local.Date()
		next := time.Date(y, m, d, 0, 0, 0, 0, g.loc).AddDate(0, 0, 1)
		if next.After(to) {
			next = to
		}
		out = append(out, slot{cursor, next})
		cursor = next
	}
	return out
}

func teamChannelID(team store.TrackedTeam) string {
	return "eventarr.team." + sanitizeID(team.Name)
}

func sanitizeID(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_', r == '.':
			b.WriteByte('-')
		}
	}
	return b.String()
}

var sportCategories = map[string]string{
	"football":   "Football",
	"basketball": "Basketball",
	"baseball":   "Baseball",
	"hockey":     "Hockey",
	"soccer":     "Soccer",
	"mma":        "Martial Arts",
	"boxing":     "Boxing",
}

func sportCategory(sport string) string {
	if c, ok := sportCategories[sports.NormalizeSport(sport)]; ok {
		return c
	}
	return "Sports"
}
