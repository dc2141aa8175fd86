// Package httpapi implements the driver's JSON-over-HTTP API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/harvestbot/harvester/internal/transport"
	"github.com/harvestbot/harvester/pkg/core"
)

// ErrBadStatus is returned when a response carries a status other than "ok".
var ErrBadStatus = errors.New("bad response status")

// DefaultServer is the public contest server.
const DefaultServer = "https://contest.2021-autumn.gbc.tenka1.klab.jp"

// Client handles communication with the game server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ transport.Transport = (*Client)(nil)

// New creates a new API client. A zero timeout defaults to 30s.
func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type gameResponse struct {
	Status string `json:"status"`
	core.Game
}

type moveResponse struct {
	Status string `json:"status"`
	core.MoveLog
}

type resourcesResponse struct {
	Status    string                    `json:"status"`
	Resources []core.ResourceWithAmount `json:"resource"`
}

// Name implements transport.Transport.
func (c *Client) Name() string {
	return "http"
}

// Game implements transport.Transport.
func (c *Client) Game(ctx context.Context) (*core.Game, error) {
	var resp gameResponse
	if err := c.call(ctx, "/api/game/"+c.token, &resp.Status, &resp); err != nil {
		return nil, err
	}
	g := resp.Game
	return core.NewGame(g.Now, g.Agents, g.Resources, g.NextResource, g.OwnedResources), nil
}

// Move implements transport.Transport.
func (c *Client) Move(ctx context.Context, agent, x, y int) (core.MoveLog, error) {
	var resp moveResponse
	path := fmt.Sprintf("/api/move/%s/%d-%d-%d", c.token, agent, x, y)
	if err := c.call(ctx, path, &resp.Status, &resp); err != nil {
		return core.MoveLog{}, err
	}
	return resp.MoveLog, nil
}

// WillMove implements transport.Transport.
func (c *Client) WillMove(ctx context.Context, agent, x, y, t int) (core.MoveLog, error) {
	var resp moveResponse
	path := fmt.Sprintf("/api/will_move/%s/%d-%d-%d-%d", c.token, agent, x, y, t)
	if err := c.call(ctx, path, &resp.Status, &resp); err != nil {
		return core.MoveLog{}, err
	}
	return resp.MoveLog, nil
}

// Resources implements transport.Transport.
func (c *Client) Resources(ctx context.Context, ids []int) ([]core.ResourceWithAmount, error) {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	var resp resourcesResponse
	path := fmt.Sprintf("/api/resources/%s/%s", c.token, strings.Join(parts, "-"))
	if err := c.call(ctx, path, &resp.Status, &resp); err != nil {
		return nil, err
	}
	return resp.Resources, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// call performs a GET and decodes the body into out. status must point at
// the decoded status field of out.
func (c *Client) call(ctx context.Context, path string, status *string, out any) error {
	// the token is part of the path; keep it out of errors
	name := path
	if c.token != "" {
		name = strings.Replace(path, c.token, "{token}", 1)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", name, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", name, err)
	}
	if *status != "ok" {
		return fmt.Errorf("%s: %w: %q", name, ErrBadStatus, *status)
	}
	return nil
}
