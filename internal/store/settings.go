package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Settings is the singleton behavior configuration, stored as one JSON body
// in the settings row and edited section-by-section over the API.
type Settings struct {
	Dispatcharr    DispatcharrSettings    `json:"dispatcharr"`
	Lifecycle      LifecycleSettings      `json:"lifecycle"`
	Scheduler      SchedulerSettings      `json:"scheduler"`
	EPG            EPGSettings            `json:"epg"`
	Durations      DurationSettings       `json:"durations"`
	Reconciliation ReconciliationSettings `json:"reconciliation"`
}

type DispatcharrSettings struct {
	Enabled                  bool    `json:"enabled"`
	URL                      string  `json:"url"`
	Username                 string  `json:"username"`
	Password                 string  `json:"password"`
	EPGID                    int64   `json:"epg_id"`
	DefaultChannelProfileIDs []int64 `json:"default_channel_profile_ids"`
}

type LifecycleSettings struct {
	ChannelCreateTiming string `json:"channel_create_timing"` // stream_available|same_day|day_before|2_days_before|3_days_before|1_week_before
	ChannelDeleteTiming string `json:"channel_delete_timing"` // stream_removed|6_hours_after|same_day|day_after|2_days_after|3_days_after|1_week_after
	ChannelRangeStart   int    `json:"channel_range_start"`
	ChannelRangeEnd     int    `json:"channel_range_end"`
}

type SchedulerSettings struct {
	Enabled         bool   `json:"enabled"`
	IntervalMinutes int    `json:"interval_minutes"`
	CronExpression  string `json:"cron_expression"`
}

type EPGSettings struct {
	TeamScheduleDaysAhead int    `json:"team_schedule_days_ahead"`
	EventMatchDaysAhead   int    `json:"event_match_days_ahead"`
	EPGOutputDaysAhead    int    `json:"epg_output_days_ahead"`
	EPGLookbackHours      int    `json:"epg_lookback_hours"`
	Timezone              string `json:"epg_timezone"`
	OutputPath            string `json:"epg_output_path"`
	IncludeFinalEvents    bool   `json:"include_final_events"`
	MidnightCrossoverMode string `json:"midnight_crossover_mode"` // split|float
	EventTitleTemplate    string `json:"event_title_template"`
	EventDescTemplate     string `json:"event_desc_template"`
	FillerTitleTemplate   string `json:"filler_title_template"`
}

// DurationSettings are hours per sport; zero means use the built-in default.
type DurationSettings struct {
	Default    float64 `json:"default"`
	Basketball float64 `json:"basketball"`
	Football   float64 `json:"football"`
	Hockey     float64 `json:"hockey"`
	Baseball   float64 `json:"baseball"`
	Soccer     float64 `json:"soccer"`
	MMA        float64 `json:"mma"`
	Rugby      float64 `json:"rugby"`
	Boxing     float64 `json:"boxing"`
	Tennis     float64 `json:"tennis"`
	Golf       float64 `json:"golf"`
	Racing     float64 `json:"racing"`
	Cricket    float64 `json:"cricket"`
}

type ReconciliationSettings struct {
	ReconcileOnEPGGeneration    bool   `json:"reconcile_on_epg_generation"`
	ReconcileOnStartup          bool   `json:"reconcile_on_startup"`
	AutoFixOrphanEngine         bool   `json:"auto_fix_orphan_teamarr"`
	AutoFixOrphanDownstream     bool   `json:"auto_fix_orphan_dispatcharr"`
	AutoFixDuplicates           bool   `json:"auto_fix_duplicates"`
	DefaultDuplicateMode        string `json:"default_duplicate_event_handling"`
	ChannelHistoryRetentionDays int    `json:"channel_history_retention_days"`
}

// DefaultSettings fill any section the stored body omits.
func DefaultSettings() Settings {
	return Settings{
		Lifecycle: LifecycleSettings{
			ChannelCreateTiming: "same_day",
			ChannelDeleteTiming: "day_after",
			ChannelRangeStart:   1,
			ChannelRangeEnd:     9999,
		},
		Scheduler: SchedulerSettings{Enabled: true, IntervalMinutes: 15},
		EPG: EPGSettings{
			TeamScheduleDaysAhead: 14,
			EventMatchDaysAhead:   3,
			EPGOutputDaysAhead:    3,
			EPGLookbackHours:      6,
			Timezone:              "America/New_York",
			OutputPath:            "eventarr.xml",
			MidnightCrossoverMode: "split",
			EventTitleTemplate:    "{matchup}",
			EventDescTemplate:     "{league_name}: {matchup} at {venue}",
			FillerTitleTemplate:   "{channel_name}",
		},
		Reconciliation: ReconciliationSettings{
			ReconcileOnStartup:          true,
			AutoFixDuplicates:           true,
			DefaultDuplicateMode:        "consolidate",
			ChannelHistoryRetentionDays: 30,
		},
	}
}

// GetSettings reads the settings body, filling defaults for missing fields.
func (s *Store) GetSettings() (Settings, error) {
	out := DefaultSettings()
	var body string
	err := s.db.QueryRow(`SELECT body FROM settings WHERE id = 1`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return out, nil
	}
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return DefaultSettings(), fmt.Errorf("settings body: %w", err)
	}
	return out, nil
}

func (s *Store) SaveSettings(cfg Settings) error {
	body, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`UPDATE settings SET body = ? WHERE id = 1`, string(body))
	return err
}
