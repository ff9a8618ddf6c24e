// Package canvas talks to the Canvas LMS REST API on behalf of chat users.
package canvas

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/easely-bot/internal/config"
	"github.com/ashureev/easely-bot/internal/domain"
	"github.com/ashureev/easely-bot/internal/metrics"
	"github.com/go-resty/resty/v2"
)

// Course is the subset of a Canvas course the assistant reads.
type Course struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	CourseCode string `json:"course_code"`
}

// Assignment is the subset of a Canvas assignment the assistant reads.
type Assignment struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	DueAt          *time.Time `json:"due_at"`
	PointsPossible float64    `json:"points_possible"`
	HTMLURL        string     `json:"html_url"`
	CourseID       int64      `json:"course_id"`
}

// CalendarEvent is a personal calendar entry.
type CalendarEvent struct {
	ID          int64     `json:"id,omitempty"`
	ContextCode string    `json:"context_code"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
	HTMLURL     string    `json:"html_url,omitempty"`
}

type self struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	PrimaryEmail string `json:"primary_email"`
}

// Client is a thin Canvas API client. Every call carries the caller's own
// token and base URL because each chat user connects their own account.
type Client struct {
	http       *resty.Client
	apiVersion string
}

// NewClient creates a Canvas client with bounded retry on idempotent reads.
func NewClient(cfg config.CanvasConfig) *Client {
	client := resty.New().
		SetHeader("User-Agent", "Easely-Bot/1.0").
		SetHeader("Accept", "application/json").
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(retryableRead)

	return &Client{
		http:       client,
		apiVersion: cfg.APIVersion,
	}
}

// retryableRead retries GETs on transport errors, 429 and 5xx.
func retryableRead(r *resty.Response, err error) bool {
	if r == nil || r.Request == nil {
		return err != nil
	}
	if r.Request.Method != http.MethodGet {
		return false
	}
	if err != nil {
		return true
	}
	code := r.StatusCode()
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func (c *Client) endpoint(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + "/api/" + c.apiVersion + "/" + strings.TrimLeft(path, "/")
}

// GetSelf returns the profile that owns token. A 401 maps to
// domain.ErrCredentialRejected.
func (c *Client) GetSelf(ctx context.Context, baseURL, token string) (*domain.Identity, error) {
	var result self
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&result).
		Get(c.endpoint(baseURL, "users/self"))
	if err := check("users_self", resp, err); err != nil {
		return nil, err
	}

	return &domain.Identity{
		ID:           strconv.FormatInt(result.ID, 10),
		Name:         result.Name,
		PrimaryEmail: result.PrimaryEmail,
	}, nil
}

// ListCourses returns the user's active enrolments.
func (c *Client) ListCourses(ctx context.Context, baseURL, token string) ([]Course, error) {
	var result []Course
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParams(map[string]string{
			"enrollment_state": "active",
			"per_page":         "100",
		}).
		SetResult(&result).
		Get(c.endpoint(baseURL, "courses"))
	if err := check("list_courses", resp, err); err != nil {
		return nil, err
	}
	return result, nil
}

// ListAssignments returns a course's assignments ordered by due date.
func (c *Client) ListAssignments(ctx context.Context, baseURL, token string, courseID int64) ([]Assignment, error) {
	var result []Assignment
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParams(map[string]string{
			"per_page": "100",
			"order_by": "due_at",
		}).
		SetResult(&result).
		Get(c.endpoint(baseURL, fmt.Sprintf("courses/%d/assignments", courseID)))
	if err := check("list_assignments", resp, err); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateCalendarEvent adds a personal event to the user's calendar.
func (c *Client) CreateCalendarEvent(ctx context.Context, baseURL, token string, event CalendarEvent) (*CalendarEvent, error) {
	if event.ContextCode == "" {
		event.ContextCode = "user_self"
	}

	var result CalendarEvent
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(map[string]any{"calendar_event": event}).
		SetResult(&result).
		Post(c.endpoint(baseURL, "calendar_events"))
	if err := check("create_calendar_event", resp, err); err != nil {
		return nil, err
	}
	return &result, nil
}

func check(op string, resp *resty.Response, err error) error {
	if err != nil {
		metrics.CanvasRequestsTotal.WithLabelValues(op, "error").Inc()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("canvas %s: %w", op, err)
		}
		return fmt.Errorf("failed to reach Canvas (%s): %w", op, err)
	}

	metrics.CanvasRequestsTotal.WithLabelValues(op, strconv.Itoa(resp.StatusCode())).Inc()

	switch {
	case resp.StatusCode() == http.StatusUnauthorized:
		return fmt.Errorf("canvas %s: %w", op, domain.ErrCredentialRejected)
	case resp.IsError():
		return fmt.Errorf("canvas %s error (status %d): %s", op, resp.StatusCode(), truncate(resp.String(), 200))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
