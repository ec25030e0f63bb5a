package handlers

import (
	"bytes"
	"context"
	"mime/multipart"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/pipeline"
	"server/internal/storage"
)

// fakeProjects is a map-backed domain.ProjectRepository.
type fakeProjects struct {
	mu        sync.Mutex
	projects  map[string]*domain.Project
	createErr error
}

func newFakeProjects() *fakeProjects {
	return &fakeProjects{projects: map[string]*domain.Project{}}
}

func (f *fakeProjects) Create(_ context.Context, p *domain.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	cp := *p
	f.projects[p.ID] = &cp
	return nil
}

func (f *fakeProjects) GetByID(_ context.Context, id string) (*domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProjects) Update(_ context.Context, id string, _ domain.ProjectUpdate) (*domain.Project, error) {
	return f.GetByID(context.Background(), id)
}

func (f *fakeProjects) UpdateStatusIf(_ context.Context, id string, _ []domain.ProjectStatus, _ domain.ProjectUpdate) (*domain.Project, error) {
	return f.GetByID(context.Background(), id)
}

func (f *fakeProjects) FindByTaskID(_ context.Context, _ string) (*domain.Project, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeProjects) FindLatestAwaiting(_ context.Context, _ domain.ProjectKind, _ domain.ProjectStatus) (*domain.Project, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeProjects) ListAwaiting(_ context.Context, _ []domain.ProjectStatus, _ time.Time) ([]domain.Project, error) {
	return nil, nil
}

// fakeAnalytics records counter increments.
type fakeAnalytics struct {
	mu       sync.Mutex
	counters map[string]int
	summary  domain.AnalyticsDaily
	err      error
}

func newFakeAnalytics() *fakeAnalytics {
	return &fakeAnalytics{counters: map[string]int{}}
}

func (f *fakeAnalytics) IncrementCounters(_ context.Context, _ string, counters map[string]int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for k, v := range counters {
		f.counters[k] += v
	}
	return nil
}

func (f *fakeAnalytics) GetSummary(_ context.Context) (*domain.AnalyticsDaily, error) {
	if f.err != nil {
		return nil, f.err
	}
	cp := f.summary
	return &cp, nil
}

// fakePipeline records orchestration calls made by the handlers.
type fakePipeline struct {
	mu       sync.Mutex
	started  []string
	webhooks []pipeline.TaskOutcome
	expects  []pipeline.Expectation
	pollRes  *pipeline.PollResult
	pollErr  error
}

func (f *fakePipeline) Start(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, id)
}

func (f *fakePipeline) Poll(_ context.Context, _ string) (*pipeline.PollResult, error) {
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	if f.pollRes != nil {
		return f.pollRes, nil
	}
	return &pipeline.PollResult{State: pipeline.PollProcessing, ProjectStatus: domain.StatusPending}, nil
}

func (f *fakePipeline) ResolveWebhook(_ context.Context, outcome pipeline.TaskOutcome, expect pipeline.Expectation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.webhooks = append(f.webhooks, outcome)
	f.expects = append(f.expects, expect)
}

type testApp struct {
	app       *App
	projects  *fakeProjects
	analytics *fakeAnalytics
	pipeline  *fakePipeline
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	ta := &testApp{
		projects:  newFakeProjects(),
		analytics: newFakeAnalytics(),
		pipeline:  &fakePipeline{},
	}
	ta.app = &App{
		Logger: zerolog.Nop(),
		Config: &infra.Config{
			StorageBaseURL:  "http://localhost:8080/static",
			AllowedOrigins:  []string{"http://localhost:3000"},
			RateLimitPerMin: 100,
		},
		Projects:  ta.projects,
		Analytics: ta.analytics,
		Pipeline:  ta.pipeline,
		Store:     store,
	}
	return ta
}

// multipartBody builds a project creation form with an attached PNG.
func multipartBody(t *testing.T, fields map[string]string, filename string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("image", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write([]byte("\x89PNG fake image bytes")); err != nil {
			t.Fatalf("write image: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return buf, mw.FormDataContentType()
}

func seedProject(t *testing.T, ta *testApp, p *domain.Project) *domain.Project {
	t.Helper()
	if err := ta.projects.Create(context.Background(), p); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return p
}
