package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mvailla/spantree"
)

// ErrNotReady is returned by WaitReady when the server did not come up
// within the deadline.
var ErrNotReady = errors.New("span server not ready")

// readyPollInterval is the spacing between readiness probes.
const readyPollInterval = 50 * time.Millisecond

// Client is a synchronous client for the span API. Steady-state calls are
// not retried: the server lives on the same machine (usually the same
// process), so a failure is a bug or a teardown, not weather.
type Client struct {
	r    *resty.Client
	base string
}

// NewClient creates a client for the server at baseURL, e.g.
// "http://127.0.0.1:8123".
func NewClient(baseURL string) *Client {
	r := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second)
	return &Client{r: r, base: baseURL}
}

// BaseURL returns the server URL this client talks to.
func (c *Client) BaseURL() string { return c.base }

// WaitReady polls the readiness endpoint until the server answers or the
// deadline passes. Start-up is the one moment polling is legitimate; after
// that every call is expected to succeed on the first try.
func (c *Client) WaitReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		probe, cancel := context.WithTimeout(ctx, readyPollInterval)
		resp, err := c.r.R().SetContext(probe).Get("/api/status/ready")
		cancel()
		if err == nil && resp.IsSuccess() {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("wait ready: %w", ctx.Err())
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("wait ready after %v: %w", timeout, ErrNotReady)
		}
		time.Sleep(readyPollInterval)
	}
}

// PutSpan upserts a span. hasParent distinguishes a root from a child of the
// zero id.
func (c *Client) PutSpan(ctx context.Context, id spantree.ID, name, dataJSON string, parent spantree.ID, hasParent bool) error {
	p := spanPayload{Name: name, DataJSON: dataJSON}
	if hasParent {
		ps := parent.String()
		p.ParentID = &ps
	}
	resp, err := c.r.R().SetContext(ctx).SetBody(p).Put("/api/span/" + id.String())
	if err != nil {
		return fmt.Errorf("put span: %w", err)
	}
	return c.check(resp)
}

// PatchSpan merge-patches patchJSON into the span's data.
func (c *Client) PatchSpan(ctx context.Context, id spantree.ID, patchJSON string) error {
	resp, err := c.r.R().SetContext(ctx).SetBody(patchPayload{DataJSON: patchJSON}).Patch("/api/span/" + id.String())
	if err != nil {
		return fmt.Errorf("patch span: %w", err)
	}
	return c.check(resp)
}

// GetSpan fetches one span.
func (c *Client) GetSpan(ctx context.Context, id spantree.ID) (name, dataJSON string, parent spantree.ID, hasParent bool, err error) {
	var p spanPayload
	resp, err := c.r.R().SetContext(ctx).SetResult(&p).Get("/api/span/" + id.String())
	if err != nil {
		return "", "", spantree.ID{}, false, fmt.Errorf("get span: %w", err)
	}
	if err := c.check(resp); err != nil {
		return "", "", spantree.ID{}, false, err
	}
	if p.ParentID != nil && *p.ParentID != "" {
		if parent, err = spantree.ParseID(*p.ParentID); err != nil {
			return "", "", spantree.ID{}, false, fmt.Errorf("get span: %w", err)
		}
		hasParent = true
	}
	return p.Name, p.DataJSON, parent, hasParent, nil
}

// Children lists the ids of a span's direct children.
func (c *Client) Children(ctx context.Context, id spantree.ID) ([]spantree.ID, error) {
	var raw []string
	resp, err := c.r.R().SetContext(ctx).SetResult(&raw).Get("/api/span/" + id.String() + "/children")
	if err != nil {
		return nil, fmt.Errorf("children: %w", err)
	}
	if err := c.check(resp); err != nil {
		return nil, err
	}
	ids, err := parseIDs(raw)
	if err != nil {
		return nil, fmt.Errorf("children: %w", err)
	}
	return ids, nil
}

// RootIDs lists the ids of the trace roots. A tracing owns exactly one, so
// the list has one element once the owner is up.
func (c *Client) RootIDs(ctx context.Context) ([]spantree.ID, error) {
	var raw []string
	resp, err := c.r.R().SetContext(ctx).SetResult(&raw).Get("/api/tracing/root")
	if err != nil {
		return nil, fmt.Errorf("roots: %w", err)
	}
	if err := c.check(resp); err != nil {
		return nil, err
	}
	ids, err := parseIDs(raw)
	if err != nil {
		return nil, fmt.Errorf("roots: %w", err)
	}
	return ids, nil
}

func parseIDs(raw []string) ([]spantree.ID, error) {
	ids := make([]spantree.ID, len(raw))
	var err error
	for i, s := range raw {
		if ids[i], err = spantree.ParseID(s); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// check maps non-2xx responses to typed errors. A 404 keeps its
// ErrNotFound identity across the wire.
func (c *Client) check(resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	if resp.StatusCode() == 404 {
		return fmt.Errorf("%s: %w", string(resp.Body()), spantree.ErrNotFound)
	}
	return &spantree.ErrHTTP{Status: resp.StatusCode(), Body: string(resp.Body())}
}
