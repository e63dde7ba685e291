// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package immich

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"

	"github.com/ManuGH/immich-gate/internal/dialect"
	gatelog "github.com/ManuGH/immich-gate/internal/log"
	"github.com/ManuGH/immich-gate/internal/resilience"
	"github.com/ManuGH/immich-gate/internal/session"
)

const defaultSearchSize = 100

// SessionSource yields the pinned session.
type SessionSource interface {
	Current() (*session.Session, bool)
}

// QueryClient runs read-only queries against the pinned dialect. It
// rebuilds its HTTP client when a forced re-init changes the connection.
type QueryClient struct {
	source SessionSource
	opts   Options
	logger zerolog.Logger

	mu     sync.Mutex
	client *Client
}

// NewQueryClient returns a client bound to source.
func NewQueryClient(source SessionSource, opts Options) *QueryClient {
	return &QueryClient{
		source: source,
		opts:   opts.withDefaults(),
		logger: gatelog.WithComponent("immich"),
	}
}

func (q *QueryClient) pinned() (*session.Session, *Client, error) {
	s, ok := q.source.Current()
	if !ok {
		return nil, nil, session.ErrNotReady
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.client == nil || q.client.Connection() != s.Connection {
		q.client = NewClient(s.Connection, q.opts)
	}
	return s, q.client, nil
}

// BreakerState reports the upstream query breaker; closed before the
// first query.
func (q *QueryClient) BreakerState() resilience.State {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.client == nil {
		return resilience.StateClosed
	}
	return q.client.breaker.State()
}

// endpoint resolves op for the pinned dialect.
func (q *QueryClient) endpoint(op dialect.Operation, id string) (*session.Session, *Client, string, error) {
	s, c, err := q.pinned()
	if err != nil {
		return nil, nil, "", err
	}
	u, err := s.URL(op, id)
	if err != nil {
		return nil, nil, "", err
	}
	return s, c, u, nil
}

// Albums lists all albums visible to the API key.
func (q *QueryClient) Albums(ctx context.Context) ([]Album, error) {
	_, c, u, err := q.endpoint(dialect.OpAlbums, "")
	if err != nil {
		return nil, err
	}
	var raw []albumJSON
	if err := c.getJSON(ctx, string(dialect.OpAlbums), u, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]Album, 0, len(raw))
	for _, a := range raw {
		out = append(out, Album{ID: a.ID, Name: norm.NFC.String(a.displayName()), AssetCount: a.AssetCount})
	}
	return out, nil
}

// AlbumNameToID maps NFC-normalised album names to IDs. Unnamed albums
// are skipped; on duplicate names the last album wins.
func (q *QueryClient) AlbumNameToID(ctx context.Context) (map[string]string, error) {
	albums, err := q.Albums(ctx)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, len(albums))
	for _, a := range albums {
		if a.Name != "" {
			m[a.Name] = a.ID
		}
	}
	return m, nil
}

// FindAlbumIDs resolves album names (case-sensitive) in input order.
// Unknown names are logged and skipped.
func (q *QueryClient) FindAlbumIDs(ctx context.Context, names []string) ([]string, error) {
	m, err := q.AlbumNameToID(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(names))
	for _, name := range names {
		if id, ok := m[norm.NFC.String(name)]; ok {
			ids = append(ids, id)
			continue
		}
		q.logger.Warn().
			Str(gatelog.FieldEvent, "immich.album_unknown").
			Str("album", name).
			Msg("no album with this name (case sensitive)")
	}
	return ids, nil
}

// AlbumAssets returns the assets of one album, each stamped with the
// album name.
func (q *QueryClient) AlbumAssets(ctx context.Context, albumID string) ([]Asset, error) {
	_, c, u, err := q.endpoint(dialect.OpAlbumInfo, albumID)
	if err != nil {
		return nil, err
	}
	var album albumJSON
	if err := c.getJSON(ctx, string(dialect.OpAlbumInfo), u, nil, &album); err != nil {
		return nil, err
	}
	name := norm.NFC.String(album.displayName())
	for i := range album.Assets {
		album.Assets[i].AlbumName = name
	}
	return album.Assets, nil
}

// AlbumAssetsFor concatenates AlbumAssets over ids. Failing albums are
// logged and skipped; an error is returned only if every album failed.
func (q *QueryClient) AlbumAssetsFor(ctx context.Context, ids []string) ([]Asset, error) {
	var (
		out  []Asset
		errs []error
	)
	for _, id := range ids {
		assets, err := q.AlbumAssets(ctx, id)
		if err != nil {
			if errors.Is(err, session.ErrNotReady) {
				return nil, err
			}
			errs = append(errs, fmt.Errorf("album %s: %w", id, err))
			continue
		}
		out = append(out, assets...)
	}
	if len(ids) > 0 && len(errs) == len(ids) {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// MemoryLane collects "on this day" assets for today and the days-1
// days before it, newest day first.
func (q *QueryClient) MemoryLane(ctx context.Context, days int, now time.Time) ([]Asset, error) {
	if days <= 0 {
		return nil, nil
	}
	s, c, u, err := q.endpoint(dialect.OpMemoryLane, "")
	if err != nil {
		return nil, err
	}

	local := now.In(q.opts.Location)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, q.opts.Location)

	var (
		out    []Asset
		failed int
		last   error
	)
	for i := 0; i < days; i++ {
		d := day.AddDate(0, 0, -i)
		var memories []memoryJSON
		if err := c.getJSON(ctx, string(dialect.OpMemoryLane), u, memoryParams(s.Dialect.MemoryQuery, d), &memories); err != nil {
			failed++
			last = err
			continue
		}
		for _, m := range memories {
			out = append(out, m.Assets...)
		}
	}
	if failed == days {
		return nil, last
	}
	return out, nil
}

func memoryParams(style dialect.MemoryQuery, day time.Time) url.Values {
	v := url.Values{}
	switch style {
	case dialect.MemoryQueryOnThisDay:
		v.Set("for", day.UTC().Format(isoMillis))
		v.Set("type", "on_this_day")
	default:
		v.Set("day", strconv.Itoa(day.Day()))
		v.Set("month", strconv.Itoa(int(day.Month())))
	}
	return v
}

// isoMillis matches JavaScript's Date.toISOString.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Search runs a smart (CLIP) search. size <= 0 selects 100 and always
// overrides a size inside query.
func (q *QueryClient) Search(ctx context.Context, query map[string]any, size int) ([]Asset, error) {
	_, c, u, err := q.endpoint(dialect.OpSearch, "")
	if err != nil {
		return nil, err
	}
	body := make(map[string]any, len(query)+1)
	for k, v := range query {
		body[k] = v
	}
	body["size"] = sizeOrDefault(size)

	var resp searchResponse
	if err := c.postJSON(ctx, string(dialect.OpSearch), u, body, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// RandomSearch returns random assets. A size inside query overrides size.
func (q *QueryClient) RandomSearch(ctx context.Context, size int, query map[string]any) ([]Asset, error) {
	_, c, u, err := q.endpoint(dialect.OpRandomSearch, "")
	if err != nil {
		return nil, err
	}
	return q.randomSearch(ctx, c, u, randomBody(size, query))
}

func (q *QueryClient) randomSearch(ctx context.Context, c *Client, u string, body map[string]any) ([]Asset, error) {
	var resp searchResponse
	if err := c.postJSON(ctx, string(dialect.OpRandomSearch), u, body, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func randomBody(size int, query map[string]any) map[string]any {
	body := make(map[string]any, len(query)+1)
	body["size"] = sizeOrDefault(size)
	for k, v := range query {
		body[k] = v
	}
	return body
}

func sizeOrDefault(size int) int {
	if size <= 0 {
		return defaultSearchSize
	}
	return size
}

// AssetInfo returns exif data and recognised people for an asset.
func (q *QueryClient) AssetInfo(ctx context.Context, id string) (AssetInfo, error) {
	_, c, u, err := q.endpoint(dialect.OpAssetInfo, id)
	if err != nil {
		return AssetInfo{}, err
	}
	var info AssetInfo
	if err := c.getJSON(ctx, string(dialect.OpAssetInfo), u, nil, &info); err != nil {
		return AssetInfo{}, err
	}
	if info.ExifInfo == nil {
		info.ExifInfo = map[string]any{}
	}
	if info.People == nil {
		info.People = []Person{}
	}
	return info, nil
}

// InlineAsset downloads the thumbnail-tier rendition of an asset and
// returns it as a data URI.
func (q *QueryClient) InlineAsset(ctx context.Context, id string) (string, error) {
	_, c, u, err := q.endpoint(dialect.OpThumbnail, id)
	if err != nil {
		return "", err
	}
	data, contentType, err := c.getBinary(ctx, "inline_asset", u, q.opts.MaxInlineBytes)
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	q.logger.Debug().
		Str(gatelog.FieldAssetID, id).
		Str(gatelog.FieldContentType, contentType).
		Str(gatelog.FieldBytes, humanize.Bytes(uint64(len(data)))).
		Msg("inlined asset")
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
