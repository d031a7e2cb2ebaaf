package questmillsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Questmill HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, bearerToken string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BearerToken: bearerToken,
		Timeout:     10 * time.Second,
	}
}

// Mission represents the API mission model (partial).
type Mission struct {
	Code           string         `json:"code"`
	Title          string         `json:"title"`
	Category       string         `json:"category"`
	Repeatable     bool           `json:"repeatable"`
	Status         string         `json:"status"`
	Progress       map[string]any `json:"progress,omitempty"`
	StreakCounter  int            `json:"streak_counter"`
	Attempts       int            `json:"attempts"`
	StartedAt      *string        `json:"started_at,omitempty"`
	CompletedAt    *string        `json:"completed_at,omitempty"`
	NextEligibleAt *string        `json:"next_eligible_at,omitempty"`
}

// MissionState is the lifecycle slice returned by start and claim.
type MissionState struct {
	MissionCode    string         `json:"mission_code"`
	Status         string         `json:"status"`
	Progress       map[string]any `json:"progress,omitempty"`
	StreakCounter  int            `json:"streak_counter"`
	Attempts       int            `json:"attempts"`
	StartedAt      *string        `json:"started_at,omitempty"`
	CompletedAt    *string        `json:"completed_at,omitempty"`
	NextEligibleAt *string        `json:"next_eligible_at,omitempty"`
}

// RewardGrant is one reward credited by a claim.
type RewardGrant struct {
	ID          string `json:"id"`
	MissionCode string `json:"mission_code"`
	Kind        string `json:"kind"`
	Amount      int    `json:"amount"`
	GrantedAt   string `json:"granted_at"`
}

// ClaimResult pairs the post-claim state with the granted rewards.
type ClaimResult struct {
	Mission MissionState  `json:"mission"`
	Rewards []RewardGrant `json:"rewards"`
}

// ProgressEvent is one audit trail entry.
type ProgressEvent struct {
	ID          string         `json:"id"`
	MissionCode string         `json:"mission_code"`
	EventType   string         `json:"event_type"`
	Payload     map[string]any `json:"payload,omitempty"`
	OccurredAt  string         `json:"occurred_at"`
}

// Event is a domain event submitted to the ingest endpoint.
type Event struct {
	Type       string         `json:"type"`
	ProfileID  string         `json:"profile_id"`
	OccurredAt string         `json:"occurred_at,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// ProcessReport summarizes the dispatcher's fan-out for one event.
type ProcessReport struct {
	Applied []string          `json:"applied,omitempty"`
	Skipped []string          `json:"skipped,omitempty"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ListMissions returns the caller's visible missions.
func (c *Client) ListMissions(ctx context.Context) ([]Mission, error) {
	var resp []Mission
	err := c.do(ctx, http.MethodGet, "v0/missions", nil, &resp)
	return resp, err
}

// GetMission fetches one mission by code.
func (c *Client) GetMission(ctx context.Context, code string) (Mission, error) {
	var resp Mission
	endpoint := fmt.Sprintf("v0/missions/%s", url.PathEscape(code))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// StartMission marks an available mission as started.
func (c *Client) StartMission(ctx context.Context, code string) (MissionState, error) {
	var resp MissionState
	endpoint := fmt.Sprintf("v0/missions/%s/start", url.PathEscape(code))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// ClaimMission converts a claimable mission into granted rewards.
func (c *Client) ClaimMission(ctx context.Context, code string) (ClaimResult, error) {
	var resp ClaimResult
	endpoint := fmt.Sprintf("v0/missions/%s/claim", url.PathEscape(code))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// MissionLog returns recent audit entries for a mission.
func (c *Client) MissionLog(ctx context.Context, code string, limit int) ([]ProgressEvent, error) {
	endpoint := fmt.Sprintf("v0/missions/%s/log", url.PathEscape(code))
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []ProgressEvent
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// EmitEvent submits a domain event. Requires a service-scope token.
func (c *Client) EmitEvent(ctx context.Context, ev Event) (ProcessReport, error) {
	var resp ProcessReport
	err := c.do(ctx, http.MethodPost, "v0/events", ev, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
