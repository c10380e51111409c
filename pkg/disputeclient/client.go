// Package disputeclient is an HTTP client for the dispute API that keeps a
// provisional tally per dispute. Votes are applied to the local tally before
// the request is sent and rolled back if the server refuses them; the server
// response always replaces the provisional state.
package disputeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/chore-dispute-api/internal/models"
	appErrors "github.com/noah-isme/chore-dispute-api/pkg/errors"
)

// ErrTransient marks failures worth retrying: network errors, 429 and 5xx.
var ErrTransient = errors.New("transient dispute api failure")

// Snapshot is the client's view of one dispute.
type Snapshot struct {
	Status models.VoteStatus
	// MyVote is the caller's vote as last known, nil when they have not voted.
	MyVote *models.VoteChoice
	// Provisional is set while an optimistic change awaits the server.
	Provisional bool
	// Stale is set when the last refresh failed transiently and the cached state was kept.
	Stale bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.http = httpClient
		}
	}
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// Client talks to one dispute API base URL, e.g. http://host:8080/api/v1.
type Client struct {
	baseURL string
	token   string
	http    *http.Client

	mu        sync.Mutex
	snapshots map[string]Snapshot
}

// New constructs a client.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: 10 * time.Second},
		snapshots: make(map[string]Snapshot),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Data  json.RawMessage  `json:"data"`
	Error *appErrors.Error `json:"error"`
}

// Cached returns the last known snapshot without a request.
func (c *Client) Cached(disputeID string) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.snapshots[disputeID]
	return snap, ok
}

// Forget drops the cached snapshot.
func (c *Client) Forget(disputeID string) {
	c.mu.Lock()
	delete(c.snapshots, disputeID)
	c.mu.Unlock()
}

// CreateDispute opens a dispute.
func (c *Client) CreateDispute(ctx context.Context, choreID, reason string, evidenceURL *string) (*models.Dispute, error) {
	body := map[string]interface{}{"choreId": choreID, "reason": reason}
	if evidenceURL != nil {
		body["evidenceUrl"] = *evidenceURL
	}
	var dispute models.Dispute
	if err := c.do(ctx, http.MethodPost, "/disputes", body, &dispute); err != nil {
		return nil, err
	}
	return &dispute, nil
}

// GetDispute fetches a dispute.
func (c *Client) GetDispute(ctx context.Context, disputeID string) (*models.Dispute, error) {
	var dispute models.Dispute
	if err := c.do(ctx, http.MethodGet, "/disputes/"+url.PathEscape(disputeID), nil, &dispute); err != nil {
		return nil, err
	}
	return &dispute, nil
}

// Refresh polls the vote status. A 404 triggers a refetch of the dispute so
// a resolved dispute yields its terminal status instead of an error. On a
// transient failure the cached snapshot is returned marked Stale.
func (c *Client) Refresh(ctx context.Context, disputeID string) (Snapshot, error) {
	var status models.VoteStatus
	err := c.do(ctx, http.MethodGet, "/disputes/"+url.PathEscape(disputeID)+"/status", nil, &status)
	switch {
	case err == nil:
		return c.store(disputeID, status), nil
	case errors.Is(err, ErrTransient):
		return c.keepStale(disputeID, err)
	case errors.Is(err, appErrors.ErrNotFound), errors.Is(err, appErrors.ErrDisputeResolved):
		return c.refetchTerminal(ctx, disputeID)
	default:
		return Snapshot{}, err
	}
}

// Vote casts choice optimistically and reconciles with the server's tally.
func (c *Client) Vote(ctx context.Context, disputeID string, choice models.VoteChoice) (Snapshot, error) {
	previous, had := c.applyOptimistic(disputeID, &choice)

	var status models.VoteStatus
	err := c.do(ctx, http.MethodPost, "/disputes/"+url.PathEscape(disputeID)+"/vote", map[string]string{"choice": string(choice)}, &status)
	if err != nil {
		c.rollback(disputeID, previous, had)
		return c.current(disputeID), err
	}
	c.store(disputeID, status)
	return c.setMyVote(disputeID, &choice), nil
}

// Unvote withdraws the caller's vote optimistically.
func (c *Client) Unvote(ctx context.Context, disputeID string) (Snapshot, error) {
	previous, had := c.applyOptimistic(disputeID, nil)

	var status models.VoteStatus
	err := c.do(ctx, http.MethodPost, "/disputes/"+url.PathEscape(disputeID)+"/unvote", nil, &status)
	if err != nil {
		c.rollback(disputeID, previous, had)
		return c.current(disputeID), err
	}
	c.store(disputeID, status)
	return c.setMyVote(disputeID, nil), nil
}

func (c *Client) refetchTerminal(ctx context.Context, disputeID string) (Snapshot, error) {
	dispute, err := c.GetDispute(ctx, disputeID)
	if err != nil {
		if errors.Is(err, ErrTransient) {
			return c.keepStale(disputeID, err)
		}
		if errors.Is(err, appErrors.ErrNotFound) {
			c.Forget(disputeID)
		}
		return Snapshot{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.snapshots[disputeID]
	snap.Status.DisputeID = dispute.ID
	snap.Status.Status = dispute.Status
	snap.Status.Resolved = dispute.Status.Terminal()
	snap.Provisional = false
	snap.Stale = false
	c.snapshots[disputeID] = snap
	return snap, nil
}

func (c *Client) applyOptimistic(disputeID string, choice *models.VoteChoice) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	previous, had := c.snapshots[disputeID]
	next := previous
	next.Status = adjustTally(previous.Status, previous.MyVote, choice)
	next.MyVote = choice
	next.Provisional = true
	c.snapshots[disputeID] = next
	return previous, had
}

func (c *Client) rollback(disputeID string, previous Snapshot, had bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !had {
		delete(c.snapshots, disputeID)
		return
	}
	c.snapshots[disputeID] = previous
}

func (c *Client) store(disputeID string, status models.VoteStatus) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.snapshots[disputeID]
	snap.Status = status
	snap.Provisional = false
	snap.Stale = false
	c.snapshots[disputeID] = snap
	return snap
}

func (c *Client) setMyVote(disputeID string, choice *models.VoteChoice) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.snapshots[disputeID]
	snap.MyVote = choice
	c.snapshots[disputeID] = snap
	return snap
}

func (c *Client) keepStale(disputeID string, cause error) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.snapshots[disputeID]
	if !ok {
		return Snapshot{}, cause
	}
	snap.Stale = true
	c.snapshots[disputeID] = snap
	return snap, nil
}

func (c *Client) current(disputeID string) Snapshot {
	snap, _ := c.Cached(disputeID)
	return snap
}

// adjustTally moves one vote from previous to next. Either may be nil.
func adjustTally(status models.VoteStatus, previous, next *models.VoteChoice) models.VoteStatus {
	if previous != nil {
		switch *previous {
		case models.VoteChoiceApprove:
			status.ApproveVotes--
		case models.VoteChoiceReject:
			status.RejectVotes--
		}
	}
	if next != nil {
		switch *next {
		case models.VoteChoiceApprove:
			status.ApproveVotes++
		case models.VoteChoiceReject:
			status.RejectVotes++
		}
	}
	if status.ApproveVotes < 0 {
		status.ApproveVotes = 0
	}
	if status.RejectVotes < 0 {
		status.RejectVotes = 0
	}
	status.TotalVotes = status.ApproveVotes + status.RejectVotes
	return status
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrTransient, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrTransient, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %s %s returned %d", ErrTransient, method, path, resp.StatusCode)
	}

	var env envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		if env.Error != nil {
			return env.Error
		}
		return appErrors.New(http.StatusText(resp.StatusCode), resp.StatusCode, "request failed")
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}
