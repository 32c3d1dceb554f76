package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/okian/hoops/internal/domain/aggregate"
	"github.com/okian/hoops/internal/domain/model"
	"github.com/okian/hoops/internal/domain/types"
)

// Client talks to the scorebook HTTP API.
type Client struct {
	http *http.Client
	base string
}

// NewClient creates a client with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}, base: baseURL}
}

// StatusError is an unexpected HTTP status.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// do sends body as JSON and decodes the response into out when the status
// is one of ok.
func (c *Client) do(ctx context.Context, method, path string, body, out any, ok ...int) (int, error) {
	var rd io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	for _, code := range ok {
		if resp.StatusCode == code {
			if out == nil {
				return resp.StatusCode, nil
			}
			return resp.StatusCode, json.Unmarshal(data, out)
		}
	}
	return resp.StatusCode, &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: string(data)}
}

// Ready checks /readyz.
func (c *Client) Ready(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/readyz", nil, nil, http.StatusOK)
	return err
}

// CreateTeam posts a team.
func (c *Client) CreateTeam(ctx context.Context, t model.Team) (model.Team, error) {
	var out model.Team
	_, err := c.do(ctx, http.MethodPost, "/teams", t, &out, http.StatusCreated)
	return out, err
}

// CreatePlayer posts a player.
func (c *Client) CreatePlayer(ctx context.Context, p model.Player) (model.Player, error) {
	var out model.Player
	_, err := c.do(ctx, http.MethodPost, "/players", p, &out, http.StatusCreated)
	return out, err
}

// CreateGame posts a game between a and b.
func (c *Client) CreateGame(ctx context.Context, a, b int64) (model.Game, error) {
	var out model.Game
	body := map[string]any{"team_a_id": a, "team_b_id": b, "date": time.Now().Format(time.DateOnly)}
	_, err := c.do(ctx, http.MethodPost, "/games", body, &out, http.StatusCreated)
	return out, err
}

// Receipt is the response to an event submission.
type Receipt struct {
	Status    string             `json:"status"`
	Duplicate bool               `json:"duplicate"`
	Events    []model.ScoreEvent `json:"events"`
}

// Submit posts s and returns the receipt. A 201 is a commit and a 200 a
// replay of an earlier key.
func (c *Client) Submit(ctx context.Context, s Submission) (Receipt, error) {
	var out Receipt
	path := "/games/" + strconv.FormatInt(s.GameID, 10) + "/events"
	_, err := c.do(ctx, http.MethodPost, path, s, &out, http.StatusCreated, http.StatusOK)
	return out, err
}

// Scoreboard fetches the box score of a game.
func (c *Client) Scoreboard(ctx context.Context, gameID int64) (aggregate.Snapshot, error) {
	var out aggregate.Snapshot
	_, err := c.do(ctx, http.MethodGet, "/games/"+strconv.FormatInt(gameID, 10)+"/scoreboard", nil, &out, http.StatusOK)
	return out, err
}

// Rankings fetches a leaderboard.
func (c *Client) Rankings(ctx context.Context, category types.Category, limit int) ([]types.Entry, error) {
	q := url.Values{}
	q.Set("category", string(category))
	q.Set("limit", strconv.Itoa(limit))
	var out []types.Entry
	_, err := c.do(ctx, http.MethodGet, "/rankings?"+q.Encode(), nil, &out, http.StatusOK)
	return out, err
}
