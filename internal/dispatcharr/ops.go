package dispatcharr

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Channel is a downstream managed channel.
type Channel struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	ChannelNumber float64 `json:"channel_number"`
	ChannelGroup  int64   `json:"channel_group_id"`
	TVGID         string  `json:"tvg_id"`
	TVCGuideID    int64   `json:"epg_data_id"`
	Streams       []int64 `json:"streams"`
	LogoID        int64   `json:"logo_id"`
	Profiles      []int64 `json:"channel_profile_ids"`
}

// Stream is one playable stream from a downstream M3U account.
type Stream struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	M3UAccount  int64  `json:"m3u_account"`
	GroupName   string `json:"group_name"`
	TVGID       string `json:"tvg_id"`
	LastSeen    string `json:"last_seen"`
	IsCustom    bool   `json:"is_custom"`
	ChannelName string `json:"channel_name"`
}

type M3UAccount struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	IsActive  bool   `json:"is_active"`
	UpdatedAt string `json:"updated_at"`
}

type ChannelGroup struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type EPGSource struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// EPGData is one downstream guide entry, used to associate managed channels
// with their tvg ids after an EPG refresh.
type EPGData struct {
	ID    int64  `json:"id"`
	TVGID string `json:"tvg_id"`
}

// OperationResult is the API-facing report of a downstream call. Operations
// themselves return (T, error); handlers wrap with Report.
type OperationResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func Report(data any, err error) OperationResult {
	if err != nil {
		return OperationResult{Error: err.Error()}
	}
	return OperationResult{Success: true, Data: data}
}

func (c *Client) ListChannels(ctx context.Context) ([]Channel, error) {
	return getPaginated[Channel](ctx, c, "list_channels", "/api/channels/channels/")
}

func (c *Client) GetChannel(ctx context.Context, id int64) (Channel, error) {
	var ch Channel
	err := c.doJSON(ctx, "get_channel", http.MethodGet, fmt.Sprintf("/api/channels/channels/%d/", id), nil, &ch)
	return ch, err
}

// ChannelInput carries the writable channel fields. Pointers distinguish
// omitted from zero on PATCH.
type ChannelInput struct {
	Name          *string  `json:"name,omitempty"`
	ChannelNumber *float64 `json:"channel_number,omitempty"`
	ChannelGroup  *int64   `json:"channel_group_id,omitempty"`
	TVGID         *string  `json:"tvg_id,omitempty"`
	EPGDataID     *int64   `json:"epg_data_id,omitempty"`
	Streams       []int64  `json:"streams,omitempty"`
	Profiles      []int64  `json:"channel_profile_ids,omitempty"`
}

func (c *Client) CreateChannel(ctx context.Context, in ChannelInput) (Channel, error) {
	var ch Channel
	err := c.doJSON(ctx, "create_channel", http.MethodPost, "/api/channels/channels/", in, &ch)
	return ch, err
}

func (c *Client) UpdateChannel(ctx context.Context, id int64, in ChannelInput) (Channel, error) {
	var ch Channel
	err := c.doJSON(ctx, "update_channel", http.MethodPatch, fmt.Sprintf("/api/channels/channels/%d/", id), in, &ch)
	return ch, err
}

func (c *Client) DeleteChannel(ctx context.Context, id int64) error {
	return c.doJSON(ctx, "delete_channel", http.MethodDelete, fmt.Sprintf("/api/channels/channels/%d/", id), nil, nil)
}

// ListStreams filters server-side by source group name and M3U account when
// given; zero values mean no filter.
func (c *Client) ListStreams(ctx context.Context, group string, account int64) ([]Stream, error) {
	q := url.Values{}
	if group != "" {
		q.Set("channel_group", group)
	}
	if account > 0 {
		q.Set("m3u_account", strconv.FormatInt(account, 10))
	}
	return getPaginated[Stream](ctx, c, "list_streams", withQuery("/api/channels/streams/", q))
}

func (c *Client) ListM3UAccounts(ctx context.Context) ([]M3UAccount, error) {
	return getPaginated[M3UAccount](ctx, c, "list_m3u_accounts", "/api/m3u/accounts/")
}

func (c *Client) ListChannelGroups(ctx context.Context) ([]ChannelGroup, error) {
	return getPaginated[ChannelGroup](ctx, c, "list_channel_groups", "/api/channels/groups/")
}

func (c *Client) ListEPGSources(ctx context.Context) ([]EPGSource, error) {
	return getPaginated[EPGSource](ctx, c, "list_epg_sources", "/api/epg/sources/")
}

// ListEPGData returns the downstream guide entries for one EPG source.
func (c *Client) ListEPGData(ctx context.Context, sourceID int64) ([]EPGData, error) {
	q := url.Values{}
	if sourceID > 0 {
		q.Set("epg_source", strconv.FormatInt(sourceID, 10))
	}
	return getPaginated[EPGData](ctx, c, "list_epg_data", withQuery("/api/epg/data/", q))
}

// refreshSkipWindow: an account updated this recently is considered current
// and its refresh is skipped.
const refreshSkipWindow = 60 * time.Minute

// RefreshM3U asks the downstream to re-pull one M3U account, skipping
// accounts refreshed inside the skip window. Returns whether a refresh was
// actually triggered.
func (c *Client) RefreshM3U(ctx context.Context, account M3UAccount) (bool, error) {
	if t, err := time.Parse(time.RFC3339, account.UpdatedAt); err == nil {
		if time.Since(t) < refreshSkipWindow {
			c.log.Debug().Str("account", account.Name).Time("updated", t).Msg("m3u recently refreshed, skipping")
			return false, nil
		}
	}
	err := c.doJSON(ctx, "refresh_m3u", http.MethodPost, fmt.Sprintf("/api/m3u/refresh/%d/", account.ID), nil, nil)
	if err != nil {
		return false, err
	}
	return true, nil
}

// TriggerEPGRefresh asks the downstream to re-import one EPG source.
func (c *Client) TriggerEPGRefresh(ctx context.Context, sourceID int64) error {
	return c.doJSON(ctx, "refresh_epg", http.MethodPost, fmt.Sprintf("/api/epg/import/%d/", sourceID), nil, nil)
}

// AssociateEPG points a managed channel at a downstream guide entry.
func (c *Client) AssociateEPG(ctx context.Context, channelID, epgDataID int64) error {
	in := ChannelInput{EPGDataID: &epgDataID}
	_, err := c.UpdateChannel(ctx, channelID, in)
	return err
}

// Test verifies connectivity and credentials with one authenticated call.
func (c *Client) Test(ctx context.Context) error {
	if _, err := c.baseURL(); err != nil {
		return err
	}
	if err := c.login(ctx); err != nil {
		return err
	}
	var out struct {
		Count int `json:"count"`
	}
	return c.doJSON(ctx, "test", http.MethodGet, "/api/channels/channels/?page_size=1", nil, &out)
}
