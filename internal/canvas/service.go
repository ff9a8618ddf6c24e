package canvas

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/ashureev/easely-bot/internal/config"
	"github.com/ashureev/easely-bot/internal/domain"
	"github.com/ashureev/easely-bot/internal/metrics"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sourcegraph/conc/pool"
)

// Store is the persistence the records service needs.
type Store interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	CreateTask(ctx context.Context, task *domain.Task) error
	ListTasks(ctx context.Context, userID string, from, to time.Time) ([]*domain.Task, error)
}

// API is the subset of Client used by Service.
type API interface {
	GetSelf(ctx context.Context, baseURL, token string) (*domain.Identity, error)
	ListCourses(ctx context.Context, baseURL, token string) ([]Course, error)
	ListAssignments(ctx context.Context, baseURL, token string, courseID int64) ([]Assignment, error)
	CreateCalendarEvent(ctx context.Context, baseURL, token string, event CalendarEvent) (*CalendarEvent, error)
}

var _ API = (*Client)(nil)

// Service resolves a chat user's credential and serves their assignments.
// Canvas assignments are cached per user and credential; manual tasks are
// read from the store on every call.
type Service struct {
	api            API
	store          Store
	cache          *expirable.LRU[string, []domain.Assignment]
	defaultBaseURL string
	concurrency    int
	loc            *time.Location
	now            func() time.Time
}

// NewService creates the user-level records service.
func NewService(api API, store Store, cfg config.CanvasConfig, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	concurrency := cfg.CourseConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Service{
		api:            api,
		store:          store,
		cache:          expirable.NewLRU[string, []domain.Assignment](cfg.CacheSize, nil, cfg.CacheTTL),
		defaultBaseURL: cfg.BaseURL,
		concurrency:    concurrency,
		loc:            loc,
		now:            time.Now,
	}
}

// TestCredential validates token against baseURL (or the default instance).
func (s *Service) TestCredential(ctx context.Context, token, baseURL string) (*domain.Identity, error) {
	if baseURL == "" {
		baseURL = s.defaultBaseURL
	}
	return s.api.GetSelf(ctx, baseURL, token)
}

// FetchAssignments returns every dated item due inside w, earliest first.
func (s *Service) FetchAssignments(ctx context.Context, userID string, w domain.Window) ([]domain.Assignment, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil || !user.HasCredential() {
		return nil, domain.ErrNotConnected
	}

	all, err := s.canvasAssignments(ctx, user)
	if err != nil {
		return nil, err
	}

	var out []domain.Assignment
	for _, a := range all {
		if w.Contains(a.DueAt) {
			out = append(out, a)
		}
	}

	tasks, err := s.store.ListTasks(ctx, userID, w.From, w.To)
	if err != nil {
		return nil, fmt.Errorf("list manual tasks: %w", err)
	}
	for _, t := range tasks {
		out = append(out, domain.Assignment{
			ID:          t.ID,
			Title:       t.Title,
			CourseName:  "Personal",
			DueAt:       t.DueAt.In(s.loc),
			Description: t.Description,
			Source:      domain.SourceManual,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, nil
}

func (s *Service) canvasAssignments(ctx context.Context, user *domain.User) ([]domain.Assignment, error) {
	key := cacheKey(user)
	if cached, ok := s.cache.Get(key); ok {
		metrics.CanvasCacheTotal.WithLabelValues("hit").Inc()
		return cached, nil
	}
	metrics.CanvasCacheTotal.WithLabelValues("miss").Inc()

	baseURL := s.baseURL(user)
	courses, err := s.api.ListCourses(ctx, baseURL, user.Credential)
	if err != nil {
		return nil, err
	}

	p := pool.NewWithResults[[]domain.Assignment]().
		WithContext(ctx).
		WithMaxGoroutines(s.concurrency)
	for _, course := range courses {
		course := course
		p.Go(func(ctx context.Context) ([]domain.Assignment, error) {
			items, err := s.api.ListAssignments(ctx, baseURL, user.Credential, course.ID)
			if errors.Is(err, domain.ErrCredentialRejected) {
				return nil, err
			}
			if err != nil {
				// One unreadable course should not hide the rest.
				slog.Warn("Failed to fetch course assignments",
					"user_id", user.UserID,
					"course_id", course.ID,
					"error", err)
				return nil, nil
			}
			return convertAssignments(course, items, s.loc), nil
		})
	}

	perCourse, err := p.Wait()
	if err != nil {
		return nil, fmt.Errorf("fetch assignments: %w", err)
	}

	var all []domain.Assignment
	for _, items := range perCourse {
		all = append(all, items...)
	}
	s.cache.Add(key, all)
	return all, nil
}

// CreateTask stores a manual task and, when the user is connected, mirrors it
// to their Canvas calendar first so a Canvas failure leaves nothing behind.
func (s *Service) CreateTask(ctx context.Context, userID string, draft domain.TaskDraft) (*domain.CreatedTask, error) {
	due, err := draft.DueAt(s.loc)
	if err != nil {
		return nil, err
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("create task for %s: %w", userID, domain.ErrUserNotFound)
	}

	created := &domain.CreatedTask{
		Task: domain.Task{
			ID:          uuid.NewString(),
			UserID:      userID,
			Title:       draft.Title,
			Description: draft.Description,
			DueAt:       due,
			CreatedAt:   s.now(),
		},
	}

	if user.HasCredential() {
		event, err := s.api.CreateCalendarEvent(ctx, s.baseURL(user), user.Credential, CalendarEvent{
			ContextCode: "user_self",
			Title:       draft.Title,
			Description: draft.Description,
			StartAt:     due,
			EndAt:       due,
		})
		if err != nil {
			return nil, err
		}
		created.CanvasEventID = strconv.FormatInt(event.ID, 10)
		created.Synced = true
	}

	if err := s.store.CreateTask(ctx, &created.Task); err != nil {
		if created.Synced {
			slog.Error("Canvas event created but local task save failed",
				"user_id", userID,
				"canvas_event_id", created.CanvasEventID,
				"error", err)
		}
		return nil, fmt.Errorf("save task: %w", err)
	}

	return created, nil
}

func (s *Service) baseURL(user *domain.User) string {
	if user.CredentialBaseURL != "" {
		return user.CredentialBaseURL
	}
	return s.defaultBaseURL
}

// cacheKey changes whenever the user's credential or instance changes.
func cacheKey(user *domain.User) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(user.CredentialBaseURL))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(user.Credential))
	return user.UserID + ":" + strconv.FormatUint(h.Sum64(), 36)
}

func convertAssignments(course Course, items []Assignment, loc *time.Location) []domain.Assignment {
	out := make([]domain.Assignment, 0, len(items))
	for _, a := range items {
		if a.DueAt == nil {
			continue
		}
		out = append(out, domain.Assignment{
			ID:          strconv.FormatInt(a.ID, 10),
			Title:       a.Name,
			CourseName:  course.Name,
			CourseCode:  course.CourseCode,
			DueAt:       a.DueAt.In(loc),
			URL:         a.HTMLURL,
			Description: a.Description,
			Points:      a.PointsPossible,
			Source:      domain.SourceCanvas,
		})
	}
	return out
}
