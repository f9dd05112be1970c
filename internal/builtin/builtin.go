// Package builtin implements the six built-in tool handlers: web search,
// HTTP proxy, JSON transform, text processing, math, and datetime.
//
// All handlers share the [Handler] signature and return the uniform
// [tool.Result] envelope. Each handler measures only its own body — the
// execution time excludes validation, authorization, and usage logging.
// Handlers never panic and never return errors past their own boundary;
// every failure is converted into a Success:false envelope.
package builtin

import (
	"context"
	"net/http"
	"time"

	"github.com/jbb-kryo/hive-protocol-sub002/internal/resilience"
	"github.com/jbb-kryo/hive-protocol-sub002/internal/tool"
)

// Handler executes one built-in tool with the caller-supplied parameter bag.
// Implementations must be safe for concurrent use and must respect context
// cancellation on outbound calls.
type Handler func(ctx context.Context, params map[string]any) tool.Result

// Default limits. The search and HTTP timeouts bound the only suspension
// points in the built-in handlers; every outbound call has an explicit upper
// bound.
const (
	defaultSearchTimeout  = 10 * time.Second
	defaultHTTPTimeout    = 15 * time.Second
	defaultMaxBodyChars   = 10_000
	defaultSearchEndpoint = "https://api.duckduckgo.com/"
	defaultMaxResults     = 5
)

// Config carries the knobs shared by the networked handlers. The zero value
// is usable; empty fields fall back to the defaults above.
type Config struct {
	// Client performs all outbound HTTP. Defaults to a dedicated client
	// with no global timeout (per-call contexts bound each request).
	Client *http.Client

	// Breakers guards outbound hosts. When nil, breaker checks are skipped.
	Breakers *resilience.HostSet

	// SearchEndpoint is the instant-answer search API base URL.
	SearchEndpoint string

	SearchTimeout time.Duration
	HTTPTimeout   time.Duration

	// MaxBodyChars caps non-JSON proxy response bodies before truncation.
	MaxBodyChars int
}

// Tools bundles the built-in handlers around one shared configuration.
type Tools struct {
	client         *http.Client
	breakers       *resilience.HostSet
	searchEndpoint string
	searchTimeout  time.Duration
	httpTimeout    time.Duration
	maxBodyChars   int
}

// New creates the built-in handler set, filling unset config fields with
// defaults.
func New(cfg Config) *Tools {
	t := &Tools{
		client:         cfg.Client,
		breakers:       cfg.Breakers,
		searchEndpoint: cfg.SearchEndpoint,
		searchTimeout:  cfg.SearchTimeout,
		httpTimeout:    cfg.HTTPTimeout,
		maxBodyChars:   cfg.MaxBodyChars,
	}
	if t.client == nil {
		t.client = &http.Client{}
	}
	if t.searchEndpoint == "" {
		t.searchEndpoint = defaultSearchEndpoint
	}
	if t.searchTimeout <= 0 {
		t.searchTimeout = defaultSearchTimeout
	}
	if t.httpTimeout <= 0 {
		t.httpTimeout = defaultHTTPTimeout
	}
	if t.maxBodyChars <= 0 {
		t.maxBodyChars = defaultMaxBodyChars
	}
	return t
}

// Registry returns the dispatch table from resolved tool kind to handler.
// [tool.KindCustom] and [tool.KindUnknown] are deliberately absent: custom
// tools route to the sandbox and unknown kinds are an explicit executor-level
// failure, not a default handler.
func (t *Tools) Registry() map[tool.Kind]Handler {
	return map[tool.Kind]Handler{
		tool.KindWebSearch:     t.WebSearch,
		tool.KindHTTPRequest:   t.HTTPRequest,
		tool.KindJSONTransform: t.JSONTransform,
		tool.KindTextProcess:   t.TextProcess,
		tool.KindMathCalculate: t.MathCalculate,
		tool.KindDatetime:      t.Datetime,
	}
}
