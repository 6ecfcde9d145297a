package heroku

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/client-go/util/flowcontrol"
)

const (
	// DefaultBaseURL is the production Platform API endpoint.
	DefaultBaseURL = "https://api.heroku.com"

	// DefaultTimeout bounds a single request.
	DefaultTimeout = 30 * time.Second

	acceptHeader = "application/vnd.heroku+json; version=3"
)

// Client is the HTTP implementation of API.
// All requests go through a token bucket sized from the requests-per-minute budget.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	userAgent  string

	mu      sync.Mutex
	limiter flowcontrol.RateLimiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRateBudget throttles the client to callsPerMinute. Zero or negative disables throttling.
func WithRateBudget(callsPerMinute int) Option {
	return func(c *Client) { c.SetRateBudget(callsPerMinute) }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient creates a new Platform API client.
func NewClient(baseURL, token string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		baseURL:   strings.TrimRight(baseURL, "/"),
		token:     token,
		userAgent: "hero-scout",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetRateBudget replaces the token bucket, so requests already waiting keep the old
// rate. Zero or negative disables throttling.
func (c *Client) SetRateBudget(callsPerMinute int) {
	var next flowcontrol.RateLimiter
	if callsPerMinute > 0 {
		burst := max(callsPerMinute/10, 1)
		next = flowcontrol.NewTokenBucketRateLimiter(float32(callsPerMinute)/60, burst)
	}

	c.mu.Lock()
	prev := c.limiter
	c.limiter = next
	c.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}
}

// Close releases the rate limiter.
func (c *Client) Close() {
	c.SetRateBudget(0)
}

// List fetches a whole collection into out (a pointer to a slice). Paged responses
// (206 with a Next-Range header) are followed until the last page.
func (c *Client) List(ctx context.Context, coll Collection, parentID string, out any) error {
	p, err := collectionPath(coll, parentID)
	if err != nil {
		return err
	}
	dst := reflect.ValueOf(out)
	if dst.Kind() != reflect.Pointer || dst.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("list %s: out must be a pointer to a slice, got %T", coll, out)
	}

	all := reflect.MakeSlice(dst.Elem().Type(), 0, 0)
	var rng string
	for {
		page := reflect.New(dst.Elem().Type())
		var header http.Header
		if rng != "" {
			header = http.Header{"Range": []string{rng}}
		}
		resp, err := c.roundTrip(ctx, http.MethodGet, p, header, nil, page.Interface())
		if err != nil {
			return err
		}
		all = reflect.AppendSlice(all, page.Elem())

		next := resp.Header.Get("Next-Range")
		if resp.StatusCode != http.StatusPartialContent || next == "" {
			break
		}
		if next == rng {
			return fmt.Errorf("list %s: server repeated range %q", coll, next)
		}
		rng = next
	}
	dst.Elem().Set(all)
	return nil
}

// Get fetches a single record.
func (c *Client) Get(ctx context.Context, coll Collection, parentID, id string, out any) error {
	p, err := collectionPath(coll, parentID)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodGet, p+"/"+url.PathEscape(id), nil, out)
}

// Create posts body to a collection.
func (c *Client) Create(ctx context.Context, coll Collection, parentID string, body, out any) error {
	p, err := collectionPath(coll, parentID)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, p, body, out)
}

// Update patches a single record.
func (c *Client) Update(ctx context.Context, coll Collection, parentID, id string, body, out any) error {
	p, err := collectionPath(coll, parentID)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPatch, p+"/"+url.PathEscape(id), body, out)
}

// Delete removes a record. An empty id deletes the whole collection (used to restart all dynos).
func (c *Client) Delete(ctx context.Context, coll Collection, parentID, id string) error {
	p, err := collectionPath(coll, parentID)
	if err != nil {
		return err
	}
	if id != "" {
		p += "/" + url.PathEscape(id)
	}
	return c.do(ctx, http.MethodDelete, p, nil, nil)
}

func list[T any](ctx context.Context, c *Client, coll Collection, parentID string) ([]T, error) {
	var out []T
	if err := c.List(ctx, coll, parentID, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListApps(ctx context.Context) ([]App, error) {
	return list[App](ctx, c, Apps, "")
}

func (c *Client) ListDynos(ctx context.Context, appID string) ([]Dyno, error) {
	return list[Dyno](ctx, c, Dynos, appID)
}

func (c *Client) ListAddons(ctx context.Context, appID string) ([]Addon, error) {
	return list[Addon](ctx, c, Addons, appID)
}

func (c *Client) ListPipelines(ctx context.Context) ([]Pipeline, error) {
	return list[Pipeline](ctx, c, Pipelines, "")
}

func (c *Client) ListCouplings(ctx context.Context, pipelineID string) ([]Coupling, error) {
	return list[Coupling](ctx, c, Couplings, pipelineID)
}

func (c *Client) CreateApp(ctx context.Context, name string) (App, error) {
	var app App
	if err := c.Create(ctx, Apps, "", map[string]string{"name": name}, &app); err != nil {
		return App{}, err
	}
	return app, nil
}

func (c *Client) DeleteApp(ctx context.Context, appID string) error {
	return c.Delete(ctx, Apps, "", appID)
}

func (c *Client) CreateDyno(ctx context.Context, appID, command string) (Dyno, error) {
	var dyno Dyno
	if err := c.Create(ctx, Dynos, appID, map[string]string{"command": command}, &dyno); err != nil {
		return Dyno{}, err
	}
	return dyno, nil
}

// RestartDyno restarts one dyno. The API models restart as DELETE.
func (c *Client) RestartDyno(ctx context.Context, appID, dyno string) error {
	return c.Delete(ctx, Dynos, appID, dyno)
}

func (c *Client) RestartAllDynos(ctx context.Context, appID string) error {
	return c.Delete(ctx, Dynos, appID, "")
}

func (c *Client) StopDyno(ctx context.Context, appID, dyno string) error {
	p, err := collectionPath(Dynos, appID)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, p+"/"+url.PathEscape(dyno)+"/actions/stop", nil, nil)
}

func (c *Client) ListFormation(ctx context.Context, appID string) ([]Formation, error) {
	return list[Formation](ctx, c, Formations, appID)
}

func (c *Client) ScaleFormation(ctx context.Context, appID, formationType string, quantity int) (Formation, error) {
	var f Formation
	if err := c.Update(ctx, Formations, appID, formationType, map[string]int{"quantity": quantity}, &f); err != nil {
		return Formation{}, err
	}
	return f, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	_, err := c.roundTrip(ctx, method, path, nil, body, out)
	return err
}

// roundTrip sends one request and decodes a 2xx body into out. The returned response
// is closed; only its status and headers are meant to be read.
func (c *Client) roundTrip(ctx context.Context, method, path string, header http.Header, body, out any) (*http.Response, error) {
	c.mu.Lock()
	limiter := c.limiter
	c.mu.Unlock()
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		req.Header[k] = vs
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Request-Id", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if len(data) > 0 && json.Unmarshal(data, apiErr) != nil {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return nil, apiErr
	}

	if out == nil {
		return resp, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return resp, nil
}

// collectionPath maps a collection to its URL path.
func collectionPath(coll Collection, parentID string) (string, error) {
	switch coll {
	case Apps:
		return "/apps", nil
	case Pipelines:
		return "/pipelines", nil
	case Dynos, Addons, Formations:
		if parentID == "" {
			return "", fmt.Errorf("%s requires an app id", coll)
		}
		return "/apps/" + url.PathEscape(parentID) + "/" + string(coll), nil
	case Couplings:
		if parentID == "" {
			return "", fmt.Errorf("%s requires a pipeline id", coll)
		}
		return "/pipelines/" + url.PathEscape(parentID) + "/" + string(coll), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownCollection, coll)
	}
}
