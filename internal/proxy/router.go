// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package proxy serves Immich asset bytes through per-class candidate
// chains that hide dialect differences and upstream misses.
package proxy

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	gatelog "github.com/ManuGH/immich-gate/internal/log"
	"github.com/ManuGH/immich-gate/internal/metrics"
	"github.com/ManuGH/immich-gate/internal/session"
)

// Route prefixes. Each is followed by the escaped asset ID.
const (
	ImagePrefix       = "/image-proxy/"
	VideoPrefix       = "/video-proxy/"
	PreviewPrefix     = "/preview-proxy/"
	LegacyImagePrefix = "/immichtilesslideshow/"
	LegacyVideoPrefix = "/immichtilesslideshow-video/"
)

// Prefixes lists every prefix the router answers, for mounting.
var Prefixes = []string{ImagePrefix, VideoPrefix, PreviewPrefix, LegacyImagePrefix, LegacyVideoPrefix}

const defaultRetryAfter = 5 * time.Second

// ImageLink returns the proxy path for an image asset.
func ImageLink(id string) string { return ImagePrefix + url.PathEscape(id) }

// VideoLink returns the proxy path for a video asset.
func VideoLink(id string) string { return VideoPrefix + url.PathEscape(id) }

// PreviewLink returns the proxy path for the preview tier of an asset.
func PreviewLink(id string) string { return PreviewPrefix + url.PathEscape(id) }

// SessionSource yields the pinned session.
type SessionSource interface {
	Current() (*session.Session, bool)
}

// RouterOptions tunes the router. Zero values select defaults.
type RouterOptions struct {
	CacheMaxAge time.Duration
	RetryAfter  time.Duration
}

// Router answers 503 until Register publishes the route table, then
// dispatches to the streamer. The session is read per request so a
// forced re-init applies to the next request.
type Router struct {
	streamer *Streamer
	source   SessionSource
	opts     RouterOptions
	logger   zerolog.Logger

	once    sync.Once
	handler atomic.Pointer[http.Handler]
}

// NewRouter returns an unpublished router.
func NewRouter(streamer *Streamer, source SessionSource, opts RouterOptions) *Router {
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = defaultRetryAfter
	}
	return &Router{
		streamer: streamer,
		source:   source,
		opts:     opts,
		logger:   gatelog.WithComponent("proxy"),
	}
}

// Register builds and publishes the route table. Only the first call has
// an effect; it is meant as a session.Negotiator OnReady hook.
func (rt *Router) Register(s *session.Session) {
	rt.once.Do(func() {
		mux := chi.NewRouter()
		mux.Get(ImagePrefix+"{id}", rt.handle(ClassImage))
		mux.Get(VideoPrefix+"{id}", rt.handle(ClassVideo))
		mux.Get(PreviewPrefix+"{id}", rt.handle(ClassPreview))
		mux.Get(LegacyImagePrefix+"{id}", rt.handle(ClassImage))
		mux.Get(LegacyVideoPrefix+"{id}", rt.handle(ClassVideo))

		var h http.Handler = mux
		rt.handler.Store(&h)

		rt.logger.Info().
			Str(gatelog.FieldEvent, "proxy.routes_registered").
			Str(gatelog.FieldDialect, s.Dialect.ID).
			Strs("prefixes", Prefixes).
			Msg("asset proxy routes published")
	})
}

// Ready reports whether the route table is published.
func (rt *Router) Ready() bool { return rt.handler.Load() != nil }

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h := rt.handler.Load()
	if h == nil {
		rt.unavailable(w)
		return
	}
	(*h).ServeHTTP(w, r)
}

func (rt *Router) unavailable(w http.ResponseWriter) {
	w.Header().Set("Retry-After", strconv.Itoa(int(rt.opts.RetryAfter/time.Second)))
	w.Header().Set("Cache-Control", "no-store")
	http.Error(w, "upstream dialect not negotiated yet", http.StatusServiceUnavailable)
}

func (rt *Router) handle(class Class) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		s, ok := rt.source.Current()
		if !ok {
			rt.unavailable(w)
			return
		}
		id, err := assetID(r)
		if err != nil || id == "" {
			http.Error(w, "invalid asset id", http.StatusBadRequest)
			return
		}

		chain, err := BuildChain(s, class, id)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, ErrEmptyChain) {
				status = http.StatusNotFound
			}
			logger := gatelog.WithContext(r.Context(), rt.logger)
			logger.Error().Err(err).
				Str(gatelog.FieldEvent, "proxy.chain_failed").
				Str(gatelog.FieldAssetID, id).
				Msg("cannot build candidate chain")
			writeTerminal(w, status)
			metrics.RecordProxyResult(string(class), status, 0, false, time.Since(start))
			return
		}

		res := rt.streamer.Stream(w, r, StreamRequest{
			Class:       class,
			AssetID:     id,
			Chain:       chain,
			Header:      forwardHeaders(r, class),
			APIKey:      s.Connection.APIKey,
			Timeout:     s.Connection.Timeout,
			CacheMaxAge: rt.opts.CacheMaxAge,
		})
		metrics.RecordProxyResult(string(class), res.Status, res.Bytes, res.Aborted, time.Since(start))
		if res.Aborted {
			// headers are gone; only a broken connection tells the client
			panic(http.ErrAbortHandler)
		}
	}
}

// assetID returns the decoded {id} segment. chi matches against RawPath
// when it is set, leaving the segment escaped; otherwise it is already
// decoded and must not be unescaped again.
func assetID(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	if r.URL.RawPath == "" {
		return id, nil
	}
	return url.PathUnescape(id)
}
