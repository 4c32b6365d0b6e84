// Package provider wraps the remote device-management API: paginated
// fleet and SIM listing, SMS-style command submission and command-log
// retrieval.  Every request carries a 20s timeout, a bearer token from
// the per-tenant token cache and bounded retry on transport failure.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/velosim/sim-fleet-console/internal/retry"
)

const (
	requestTimeout  = 20 * time.Second
	defaultPageSize = 100
)

// simsEndpoint is one candidate request shape for listing SIMs.  The
// remote API's endpoint path and query-parameter casing vary by tenant
// configuration, so ListSims probes these in order.
type simsEndpoint struct {
	name  string // for logging
	path  string // request path; {fleet} is substituted when present
	param string // query parameter carrying the fleet ref, if any
}

// simsEndpoints is the ordered probe list.  ListSims advances to the
// next entry only on a 404/400 response or an empty result; any other
// HTTP error aborts immediately.
var simsEndpoints = []simsEndpoint{
	{name: "sims-Fleet", path: "/v1/Sims", param: "Fleet"},
	{name: "sims-fleet", path: "/v1/Sims", param: "fleet"},
	{name: "sims-FleetSid", path: "/v1/Sims", param: "FleetSid"},
	{name: "sims-fleet_sid", path: "/v1/Sims", param: "fleet_sid"},
	{name: "fleet-nested", path: "/v1/Fleets/{fleet}/Sims"},
}

// ListLogsOptions parameterizes a single-page command-log fetch.
type ListLogsOptions struct {
	SimSid       string
	CreatedAfter *time.Time
	Cursor       string // opaque continuation token from a previous page
	PageSize     int
}

// LogsPage is one page of command-log entries plus the continuation
// token for the next page ('' when exhausted).
type LogsPage struct {
	Entries    []CommandLogEntry
	NextCursor string
}

// Client is the typed wrapper over the provider API.  It is safe for
// concurrent use; per-tenant credentials are passed per call.
type Client struct {
	http    *resty.Client
	tokens  *TokenCache
	baseURL string
	logger  *zap.Logger
}

// NewClient builds a client rooted at baseURL, acquiring bearer tokens
// through tokens.
func NewClient(baseURL string, tokens *TokenCache, logger *zap.Logger) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(requestTimeout).
			SetHeader("Accept", "application/json"),
		tokens:  tokens,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// ListFleets follows pagination links until exhausted and returns every
// fleet entry with a resolvable external id; entries without one are
// skipped.
func (c *Client) ListFleets(ctx context.Context, tenant Tenant) ([]RemoteFleet, error) {
	var fleets []RemoteFleet
	pageURL := fmt.Sprintf("/v1/Fleets?PageSize=%d", defaultPageSize)
	visited := map[string]bool{}

	for pageURL != "" && !visited[pageURL] {
		visited[pageURL] = true
		env, err := c.getPage(ctx, tenant, pageURL)
		if err != nil {
			return nil, err
		}
		for _, raw := range env.items() {
			var f rawFleet
			if err := json.Unmarshal(raw, &f); err != nil {
				continue
			}
			sid := f.sid()
			if sid == "" {
				c.logger.Debug("skipping fleet entry without external id",
					zap.String("account", tenant.Label))
				continue
			}
			fleets = append(fleets, RemoteFleet{Sid: sid, Name: f.name()})
		}
		pageURL = c.stripBase(env.next())
	}
	return fleets, nil
}

// ListSims lists the SIMs of one fleet, probing the candidate endpoint
// shapes in order.  A candidate is abandoned on 404/400 or when it
// yields no matching data; the first candidate returning at least one
// SIM wins and its pagination is followed to the end.  Visited page URLs
// are tracked so a misbehaving continuation link cannot loop forever.
func (c *Client) ListSims(ctx context.Context, tenant Tenant, fleetRef string) ([]RemoteSim, error) {
	var lastNotFound error
	sawSuccess := false
	for _, ep := range simsEndpoints {
		sims, err := c.listSimsVia(ctx, tenant, ep, fleetRef)
		if err != nil {
			if IsNotFound(err) {
				c.logger.Debug("sims endpoint candidate rejected, trying next",
					zap.String("candidate", ep.name),
					zap.String("account", tenant.Label))
				lastNotFound = err
				continue
			}
			return nil, err
		}
		sawSuccess = true
		if len(sims) > 0 {
			return sims, nil
		}
	}
	// Every candidate 404'd: the fleet itself is gone remotely.  Surface
	// that so the sync can skip the fleet instead of recording it empty.
	if !sawSuccess && lastNotFound != nil {
		return nil, lastNotFound
	}
	return nil, nil
}

func (c *Client) listSimsVia(ctx context.Context, tenant Tenant, ep simsEndpoint, fleetRef string) ([]RemoteSim, error) {
	path := strings.ReplaceAll(ep.path, "{fleet}", url.PathEscape(fleetRef))
	pageURL := fmt.Sprintf("%s?PageSize=%d", path, defaultPageSize)
	if ep.param != "" {
		pageURL += "&" + ep.param + "=" + url.QueryEscape(fleetRef)
	}

	var sims []RemoteSim
	visited := map[string]bool{}
	for pageURL != "" && !visited[pageURL] {
		visited[pageURL] = true
		env, err := c.getPage(ctx, tenant, pageURL)
		if err != nil {
			return nil, err
		}
		for _, raw := range env.items() {
			var s rawSim
			if err := json.Unmarshal(raw, &s); err != nil {
				continue
			}
			sim := s.toRemote()
			if sim.Sid == "" {
				continue
			}
			sims = append(sims, sim)
		}
		pageURL = c.stripBase(env.next())
	}
	return sims, nil
}

// SendCommand submits a form-encoded command to one SIM.  The payload
// field is always present, even when empty, because the provider rejects
// bodies without it.
func (c *Client) SendCommand(ctx context.Context, tenant Tenant, simSid, payload string) (CommandResponse, error) {
	token, err := c.tokens.Get(ctx, tenant)
	if err != nil {
		return CommandResponse{}, err
	}

	var out CommandResponse
	var raw struct {
		Sid    string `json:"sid"`
		Status string `json:"status"`
	}
	resp, err := retry.Value(ctx, retry.DefaultRetries, retry.DefaultBaseDelay, func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetFormData(map[string]string{
				"Sim":     simSid,
				"Payload": payload,
			}).
			SetResult(&raw).
			Post("/v1/SmsCommands")
	})
	if err != nil {
		return out, fmt.Errorf("send command to %s: %w", simSid, err)
	}
	if resp.IsError() {
		return out, &HTTPError{Status: resp.StatusCode(), Body: errorBody(resp.Body())}
	}
	out.Sid, out.Status = raw.Sid, raw.Status
	return out, nil
}

// ListCommandLogs fetches a single page of command-log entries for one
// SIM.  The returned cursor is the provider's continuation URL stripped
// of its base, ready to be passed back in a follow-up call.
func (c *Client) ListCommandLogs(ctx context.Context, tenant Tenant, opts ListLogsOptions) (LogsPage, error) {
	pageURL := opts.Cursor
	if pageURL == "" {
		size := opts.PageSize
		if size <= 0 {
			size = defaultPageSize
		}
		q := url.Values{}
		q.Set("Sim", opts.SimSid)
		q.Set("PageSize", fmt.Sprintf("%d", size))
		if opts.CreatedAfter != nil {
			q.Set("CreatedAfter", opts.CreatedAfter.UTC().Format(time.RFC3339))
		}
		pageURL = "/v1/SmsCommands?" + q.Encode()
	}

	env, err := c.getPage(ctx, tenant, pageURL)
	if err != nil {
		return LogsPage{}, err
	}
	page := LogsPage{NextCursor: c.stripBase(env.next())}
	for _, raw := range env.items() {
		var cmd rawCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			continue
		}
		page.Entries = append(page.Entries, cmd.toEntry())
	}
	return page, nil
}

// getPage performs one authenticated GET and decodes the list envelope.
func (c *Client) getPage(ctx context.Context, tenant Tenant, pageURL string) (listEnvelope, error) {
	var env listEnvelope

	token, err := c.tokens.Get(ctx, tenant)
	if err != nil {
		return env, err
	}

	resp, err := retry.Value(ctx, retry.DefaultRetries, retry.DefaultBaseDelay, func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetResult(&env).
			Get(pageURL)
	})
	if err != nil {
		return env, fmt.Errorf("provider GET %s: %w", pageURL, err)
	}
	if resp.IsError() {
		return env, &HTTPError{Status: resp.StatusCode(), Body: errorBody(resp.Body())}
	}
	return env, nil
}

// stripBase turns an absolute continuation URL into a path+query form
// relative to the client's base URL so it can be requested directly.
func (c *Client) stripBase(next string) string {
	if next == "" {
		return ""
	}
	if strings.HasPrefix(next, c.baseURL) {
		return strings.TrimPrefix(next, c.baseURL)
	}
	if u, err := url.Parse(next); err == nil && u.IsAbs() {
		out := u.Path
		if u.RawQuery != "" {
			out += "?" + u.RawQuery
		}
		return out
	}
	return next
}
