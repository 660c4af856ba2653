// Package apiclient talks to the Pathways account service over HTTP. Client
// implements account.Remote and adds the read endpoints the terminal client
// needs.
package apiclient

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"pathways/internal/account"
	"pathways/internal/apperr"
	"pathways/internal/catalog"
	"pathways/internal/onboarding"
	"pathways/internal/progress"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "http://localhost:8080/api/v1"

// Client is an account service client. Reads are retried on transport
// errors; writes are sent once.
type Client struct {
	read  *resty.Client
	write *resty.Client
	log   *zap.Logger
}

var _ account.Remote = (*Client)(nil)

// New creates a client for the service at baseURL. Every request is bounded
// by timeout.
func New(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	base := func() *resty.Client {
		return resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json")
	}
	return &Client{
		read: base().
			SetRetryCount(2).
			SetRetryWaitTime(200 * time.Millisecond).
			SetRetryMaxWaitTime(2 * time.Second),
		write: base(),
		log:   logger,
	}
}

// errorBody accepts the error shapes the service and its proxies produce.
type errorBody struct {
	Error   string `json:"error"`
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

func (b *errorBody) text() string {
	switch {
	case b == nil:
		return ""
	case b.Error != "":
		return b.Error
	case b.Detail != "":
		return b.Detail
	default:
		return b.Message
	}
}

func (c *Client) get(ctx context.Context, token string) *resty.Request {
	return prepare(ctx, c.read.R(), token)
}

func (c *Client) send(ctx context.Context, token string) *resty.Request {
	return prepare(ctx, c.write.R(), token)
}

func prepare(ctx context.Context, r *resty.Request, token string) *resty.Request {
	r.SetContext(ctx).SetError(&errorBody{})
	if token != "" {
		r.SetAuthToken(token)
	}
	return r
}

// classify turns a resty outcome into nil or a typed error. authCall marks
// the sign-up and sign-in endpoints: any refusal from them that carries a
// message is an Auth error, whatever the status.
func (c *Client) classify(op string, resp *resty.Response, err error, authCall bool) error {
	if err != nil {
		c.log.Debug("account service unreachable", zap.String("op", op), zap.Error(err))
		return apperr.Network(op, err)
	}
	if !resp.IsError() {
		return nil
	}

	status := resp.StatusCode()
	body, _ := resp.Error().(*errorBody)
	msg := body.text()
	c.log.Debug("account service error",
		zap.String("op", op),
		zap.Int("status", status),
		zap.String("message", msg),
	)
	if msg == "" {
		return apperr.Network(op, fmt.Errorf("unexpected status %d", status))
	}

	switch {
	case authCall, status == 401:
		return apperr.Auth(op, msg)
	case status == 404:
		return apperr.NotFound(op, msg)
	case status == 400 || status == 422:
		return apperr.Validation(op, msg)
	case status == 409:
		return apperr.State(op, msg)
	default:
		return apperr.Network(op, fmt.Errorf("status %d: %s", status, msg))
	}
}

// Signup creates an account and returns its first session.
func (c *Client) Signup(ctx context.Context, email, password string, name *string) (*account.Session, error) {
	body := map[string]any{"email": email, "password": password}
	if name != nil {
		body["name"] = *name
	}
	var out account.Session
	resp, err := c.send(ctx, "").SetBody(body).SetResult(&out).Post("/auth/signup")
	if err := c.classify("signup", resp, err, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, email, password string) (*account.Session, error) {
	var out account.Session
	resp, err := c.send(ctx, "").
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&out).
		Post("/auth/login")
	if err := c.classify("login", resp, err, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me returns the account that owns token.
func (c *Client) Me(ctx context.Context, token string) (*account.User, error) {
	var out account.User
	resp, err := c.get(ctx, token).SetResult(&out).Get("/auth/me")
	if err := c.classify("me", resp, err, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes token.
func (c *Client) Logout(ctx context.Context, token string) error {
	resp, err := c.send(ctx, token).Post("/auth/logout")
	return c.classify("logout", resp, err, false)
}

// UpdateProfile sends only the fields set in upd. An empty, non-nil
// CompletedMilestones clears every milestone.
func (c *Client) UpdateProfile(ctx context.Context, token string, upd account.ProfileUpdate) (*account.User, error) {
	body := map[string]any{}
	if upd.Name != nil {
		body["name"] = *upd.Name
	}
	if upd.Email != nil {
		body["email"] = *upd.Email
	}
	if upd.RecommendedStageID != nil {
		body["recommendedStageId"] = *upd.RecommendedStageID
	}
	if upd.CompletedMilestones != nil {
		body["completedMilestones"] = upd.CompletedMilestones
	}

	var out account.User
	resp, err := c.send(ctx, token).SetBody(body).SetResult(&out).Patch("/users/me")
	if err := c.classify("update profile", resp, err, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChangePassword replaces the account password after checking the current one.
func (c *Client) ChangePassword(ctx context.Context, token, current, next string) error {
	resp, err := c.send(ctx, token).
		SetBody(map[string]string{"current_password": current, "new_password": next}).
		Patch("/users/me/password")
	return c.classify("change password", resp, err, false)
}

// OnboardingResponse is a stored questionnaire submission.
type OnboardingResponse struct {
	ID string `json:"id"`
	onboarding.Answers
	RecommendedStageID catalog.StageID `json:"recommendedStageId"`
	CreatedAt          time.Time       `json:"createdAt"`
}

// SubmitOnboarding stores answers and returns the stage the service recommends.
func (c *Client) SubmitOnboarding(ctx context.Context, token string, a onboarding.Answers) (catalog.StageID, error) {
	var out OnboardingResponse
	resp, err := c.send(ctx, token).SetBody(a).SetResult(&out).Post("/onboarding")
	if err := c.classify("submit onboarding", resp, err, false); err != nil {
		return "", err
	}
	return out.RecommendedStageID, nil
}

// LatestOnboarding returns the most recent submission.
func (c *Client) LatestOnboarding(ctx context.Context, token string) (*OnboardingResponse, error) {
	var out OnboardingResponse
	resp, err := c.get(ctx, token).SetResult(&out).Get("/onboarding")
	if err := c.classify("get onboarding", resp, err, false); err != nil {
		return nil, err
	}
	return &out, nil
}

type toggleResponse struct {
	MilestoneID string `json:"milestone_id"`
	IsComplete  bool   `json:"isComplete"`
	Message     string `json:"message"`
}

// ToggleMilestone flips a milestone and returns its new state.
func (c *Client) ToggleMilestone(ctx context.Context, token, milestoneID string) (bool, error) {
	var out toggleResponse
	resp, err := c.send(ctx, token).
		SetPathParam("id", milestoneID).
		SetResult(&out).
		Post("/progress/milestones/{id}/toggle")
	if err := c.classify("toggle milestone", resp, err, false); err != nil {
		return false, err
	}
	return out.IsComplete, nil
}

// ResetProgress clears every completed milestone on the account.
func (c *Client) ResetProgress(ctx context.Context, token string) error {
	resp, err := c.send(ctx, token).Delete("/progress")
	return c.classify("reset progress", resp, err, false)
}

// ProgressResponse is the service's view of an account's progress.
type ProgressResponse struct {
	CompletedMilestoneIDs []string `json:"completed_milestone_ids"`
	progress.Report
}

// Progress fetches progress as computed by the service.
func (c *Client) Progress(ctx context.Context, token string) (*ProgressResponse, error) {
	var out ProgressResponse
	resp, err := c.get(ctx, token).SetResult(&out).Get("/progress")
	if err := c.classify("get progress", resp, err, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// HistoryEntry is one recorded milestone change.
type HistoryEntry struct {
	ID                    string                   `json:"id"`
	MilestoneID           string                   `json:"milestone_id"`
	StageID               catalog.StageID          `json:"stage_id"`
	Action                string                   `json:"action"`
	CompletedMilestoneIDs []string                 `json:"completed_milestone_ids"`
	StageProgress         []progress.StageProgress `json:"stage_progress"`
	Timestamp             time.Time                `json:"timestamp"`
}

type historyResponse struct {
	History      []HistoryEntry `json:"history"`
	TotalEntries int            `json:"total_entries"`
}

// History returns up to limit recent changes, newest first.
func (c *Client) History(ctx context.Context, token string, limit int) ([]HistoryEntry, error) {
	var out historyResponse
	r := c.get(ctx, token).SetResult(&out)
	if limit > 0 {
		r.SetQueryParam("limit", strconv.Itoa(limit))
	}
	resp, err := r.Get("/progress/history")
	if err := c.classify("get history", resp, err, false); err != nil {
		return nil, err
	}
	return out.History, nil
}

// Stages lists the journey stages known to the service.
func (c *Client) Stages(ctx context.Context) ([]catalog.Stage, error) {
	var out []catalog.Stage
	resp, err := c.get(ctx, "").SetResult(&out).Get("/stages")
	if err := c.classify("list stages", resp, err, false); err != nil {
		return nil, err
	}
	return out, nil
}

// Resources lists directory entries matching f.
func (c *Client) Resources(ctx context.Context, f catalog.ResourceFilter) ([]catalog.Resource, error) {
	var out []catalog.Resource
	r := c.get(ctx, "").SetResult(&out)
	if f.Category != "" {
		r.SetQueryParam("category", string(f.Category))
	}
	if f.Search != "" {
		r.SetQueryParam("search", f.Search)
	}
	resp, err := r.Get("/resources")
	if err := c.classify("list resources", resp, err, false); err != nil {
		return nil, err
	}
	return out, nil
}
