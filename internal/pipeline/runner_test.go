package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appforge-labs/appforge-backend/internal/notify"
	"github.com/appforge-labs/appforge-backend/internal/projects/domain"
	"github.com/appforge-labs/appforge-backend/internal/projects/storetest"
)

// stubHandler is a configurable stage for exercising the runner contract.
type stubHandler struct {
	stage    Stage
	pending  domain.Status
	complete domain.Status
	next     Stage

	checkInput func(p *domain.Project) error
	execute    func(ctx context.Context, p *domain.Project) (*Result, error)

	mu        sync.Mutex
	execCalls int
}

func (h *stubHandler) Stage() Stage            { return h.stage }
func (h *stubHandler) DisplayName() string     { return string(h.stage) }
func (h *stubHandler) Pending() domain.Status  { return h.pending }
func (h *stubHandler) Complete() domain.Status { return h.complete }
func (h *stubHandler) StartMessage() string    { return "working..." }
func (h *stubHandler) StartSummary() string    { return "working" }
func (h *stubHandler) Next() Stage             { return h.next }

func (h *stubHandler) CheckInput(p *domain.Project) error {
	if h.checkInput != nil {
		return h.checkInput(p)
	}
	return nil
}

func (h *stubHandler) Execute(ctx context.Context, p *domain.Project) (*Result, error) {
	h.mu.Lock()
	h.execCalls++
	h.mu.Unlock()
	if h.execute != nil {
		return h.execute(ctx, p)
	}
	return &Result{Summary: "done", Apply: func(p *domain.Project) { p.StatusMessage = "done" }}, nil
}

func (h *stubHandler) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.execCalls
}

// recordQueue records enqueued tasks without executing them.
type recordQueue struct {
	mu    sync.Mutex
	tasks []Task
}

func (q *recordQueue) Enqueue(_ context.Context, stage Stage, projectID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, Task{Stage: stage, ProjectID: projectID})
	return nil
}

func (q *recordQueue) all() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Task(nil), q.tasks...)
}

// recordBus records every published event kind in order.
type recordBus struct {
	mu     sync.Mutex
	kinds  []string
	status []domain.Status
}

func (b *recordBus) PublishStatus(_ context.Context, p *domain.Project) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.kinds = append(b.kinds, notify.KindStatusUpdate)
	b.status = append(b.status, p.Status)
}

func (b *recordBus) PublishStageStarted(_ context.Context, _, _, _ string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.kinds = append(b.kinds, notify.KindStageStarted)
}

func (b *recordBus) PublishStageCompleted(_ context.Context, _, _, _ string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.kinds = append(b.kinds, notify.KindStageCompleted)
}

func (b *recordBus) events() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.kinds...)
}

func designStub() *stubHandler {
	return &stubHandler{
		stage:    StageDesign,
		pending:  domain.StatusDesignPending,
		complete: domain.StatusDesignComplete,
		next:     StageCodeGen,
	}
}

func seedProject(store *storetest.MemStore, status domain.Status) *domain.Project {
	p := &domain.Project{
		ID:          "p1",
		OwnerID:     "owner",
		Name:        "Test App",
		Status:      status,
		SourceInput: "https://example.com",
	}
	store.Seed(p)
	return p
}

func TestRunner_HappyPath(t *testing.T) {
	store := storetest.NewMemStore()
	queue := &recordQueue{}
	bus := &recordBus{}
	h := designStub()
	seedProject(store, domain.StatusAnalysisComplete)

	r := NewRunner(store, queue, bus, Options{MaxAttempts: 3}, h)
	err := r.Run(context.Background(), StageDesign, "p1")
	require.NoError(t, err)

	p, err := store.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDesignComplete, p.Status)
	assert.Equal(t, 1, h.calls())

	// next stage enqueued exactly once, after commit
	require.Len(t, queue.all(), 1)
	assert.Equal(t, Task{Stage: StageCodeGen, ProjectID: "p1"}, queue.all()[0])

	assert.Equal(t, []string{
		notify.KindStatusUpdate, // entered pending
		notify.KindStageStarted,
		notify.KindStatusUpdate, // committed complete
		notify.KindStageCompleted,
	}, bus.events())
}

func TestRunner_RetriesExactlyMaxAttempts(t *testing.T) {
	store := storetest.NewMemStore()
	queue := &recordQueue{}
	h := designStub()
	h.execute = func(context.Context, *domain.Project) (*Result, error) {
		return nil, errors.New("upstream unavailable")
	}
	seedProject(store, domain.StatusAnalysisComplete)

	r := NewRunner(store, queue, &recordBus{}, Options{MaxAttempts: 3}, h)
	err := r.Run(context.Background(), StageDesign, "p1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream unavailable")

	assert.Equal(t, 3, h.calls())

	p, _ := store.Get(context.Background(), "p1")
	assert.Equal(t, domain.StatusFailed, p.Status)
	assert.Contains(t, p.StatusMessage, "upstream unavailable")

	// nothing chained after a failure
	assert.Empty(t, queue.all())
}

func TestRunner_TransientErrorThenSuccess(t *testing.T) {
	store := storetest.NewMemStore()
	h := designStub()
	var n int
	h.execute = func(context.Context, *domain.Project) (*Result, error) {
		n++
		if n < 3 {
			return nil, errors.New("flaky")
		}
		return &Result{Summary: "ok", Apply: func(p *domain.Project) { p.StatusMessage = "ok" }}, nil
	}
	seedProject(store, domain.StatusAnalysisComplete)

	r := NewRunner(store, &recordQueue{}, &recordBus{}, Options{MaxAttempts: 3}, h)
	require.NoError(t, r.Run(context.Background(), StageDesign, "p1"))

	p, _ := store.Get(context.Background(), "p1")
	assert.Equal(t, domain.StatusDesignComplete, p.Status)
	assert.Equal(t, 3, h.calls())
}

func TestRunner_PreconditionFailureIsFatal(t *testing.T) {
	store := storetest.NewMemStore()
	h := designStub()
	h.checkInput = func(*domain.Project) error {
		return &domain.PreconditionError{Stage: "design", Reason: "persona document not found"}
	}
	seedProject(store, domain.StatusAnalysisComplete)

	r := NewRunner(store, &recordQueue{}, &recordBus{}, Options{MaxAttempts: 3}, h)
	err := r.Run(context.Background(), StageDesign, "p1")
	require.Error(t, err)

	p, _ := store.Get(context.Background(), "p1")
	assert.Equal(t, domain.StatusFailed, p.Status)
	assert.Contains(t, p.StatusMessage, "persona document not found")

	// the generation call never ran: retrying cannot fix missing input
	assert.Equal(t, 0, h.calls())
}

func TestRunner_DuplicateDeliveryIsIdempotent(t *testing.T) {
	store := storetest.NewMemStore()
	queue := &recordQueue{}
	bus := &recordBus{}
	h := designStub()
	seedProject(store, domain.StatusQAComplete) // already past DESIGN_COMPLETE

	r := NewRunner(store, queue, bus, Options{MaxAttempts: 3}, h)
	require.NoError(t, r.Run(context.Background(), StageDesign, "p1"))

	assert.Equal(t, 0, h.calls())
	assert.Empty(t, queue.all())

	// the current snapshot is re-emitted for listeners that missed it
	assert.Equal(t, []string{notify.KindStatusUpdate}, bus.events())

	p, _ := store.Get(context.Background(), "p1")
	assert.Equal(t, domain.StatusQAComplete, p.Status)
}

func TestRunner_SkipsFailedProject(t *testing.T) {
	store := storetest.NewMemStore()
	h := designStub()
	seedProject(store, domain.StatusFailed)

	r := NewRunner(store, &recordQueue{}, &recordBus{}, Options{MaxAttempts: 3}, h)
	require.NoError(t, r.Run(context.Background(), StageDesign, "p1"))
	assert.Equal(t, 0, h.calls())
}

func TestRunner_StaleDispatchAborts(t *testing.T) {
	store := storetest.NewMemStore()
	h := designStub()
	seedProject(store, domain.StatusPending) // cannot reach DESIGN_PENDING from here

	r := NewRunner(store, &recordQueue{}, &recordBus{}, Options{MaxAttempts: 3}, h)
	err := r.Run(context.Background(), StageDesign, "p1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStaleTransition)

	p, _ := store.Get(context.Background(), "p1")
	assert.Equal(t, domain.StatusPending, p.Status)
}

func TestRunner_ResumesOwnPendingState(t *testing.T) {
	// a redelivered task whose first delivery died mid-flight finds the
	// project already in the stage's pending state and picks it up
	store := storetest.NewMemStore()
	h := designStub()
	seedProject(store, domain.StatusDesignPending)

	r := NewRunner(store, &recordQueue{}, &recordBus{}, Options{MaxAttempts: 3}, h)
	require.NoError(t, r.Run(context.Background(), StageDesign, "p1"))

	p, _ := store.Get(context.Background(), "p1")
	assert.Equal(t, domain.StatusDesignComplete, p.Status)
	assert.Equal(t, 1, h.calls())
}

func TestRunner_UnknownStage(t *testing.T) {
	r := NewRunner(storetest.NewMemStore(), &recordQueue{}, &recordBus{}, Options{})
	err := r.Run(context.Background(), Stage("bogus"), "p1")
	require.Error(t, err)
}

// fakeGenClient answers palette prompts with JSON and everything else with a
// Markdown document.
type fakeGenClient struct{}

func (fakeGenClient) Generate(_ context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "color palette") {
		return `{"primary":"#0062FF","secondary":"#FFC107","text_light":"#FFFFFF","text_dark":"#212121","background":"#F5F5F5"}`, nil
	}
	return "# Report\n\nEverything checks out.", nil
}

type fakeObjectStore struct{}

func (fakeObjectStore) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	return fmt.Sprintf("https://bucket.s3.us-east-1.amazonaws.com/%s", key), nil
}

func TestPipeline_EndToEnd(t *testing.T) {
	store := storetest.NewMemStore()
	bus := &recordBus{}
	client := fakeGenClient{}

	queue := NewMemoryQueue()
	r := NewRunner(store, queue, bus, Options{MaxAttempts: 3},
		NewAnalysisHandler(client),
		NewDesignHandler(client),
		NewCodeGenHandler(client, fakeObjectStore{}),
		NewQAHandler(client),
		NewSecurityHandler(client),
		NewDeploymentHandler(client),
	)
	queue.Bind(r)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx, 2)

	seedProject(store, domain.StatusPending)

	// source input arrives, analysis is dispatched
	_, err := store.Mutate(ctx, "p1", func(p *domain.Project) error {
		p.SourceInput = "https://example.com"
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, queue.Enqueue(ctx, StageAnalysis, "p1"))

	waitForStatus(t, store, "p1", domain.StatusAnalysisComplete)

	p, _ := store.Get(ctx, "p1")
	require.NotNil(t, p.PersonaDocument)
	require.NotNil(t, p.BrandPalette)
	assert.Equal(t, "#0062FF", p.BrandPalette.Primary)

	// the pipeline parks here: nothing further runs without approval
	time.Sleep(50 * time.Millisecond)
	p, _ = store.Get(ctx, "p1")
	assert.Equal(t, domain.StatusAnalysisComplete, p.Status)

	// approval releases design; the remaining stages chain on their own
	_, err = store.Mutate(ctx, "p1", func(p *domain.Project) error {
		p.Status = domain.StatusDesignPending
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, queue.Enqueue(ctx, StageDesign, "p1"))

	waitForStatus(t, store, "p1", domain.StatusCompleted)

	p, _ = store.Get(ctx, "p1")
	require.NotNil(t, p.GeneratedCodeRef)
	assert.Contains(t, *p.GeneratedCodeRef, "source_code.md")
	require.NotNil(t, p.QAReport)
	require.NotNil(t, p.SecurityReport)
	assert.Contains(t, p.StatusMessage, "Deployment successful")
	assert.Contains(t, p.StatusMessage, *p.GeneratedCodeRef)
	assert.Equal(t, 100, p.Status.Progress())
}

// failingGenClient always errors, as an unreachable provider would.
type failingGenClient struct{}

func (failingGenClient) Generate(context.Context, string) (string, error) {
	return "", errors.New("provider unreachable")
}

func TestPipeline_DesignFailureAfterApproval(t *testing.T) {
	store := storetest.NewMemStore()
	queue := &recordQueue{}

	persona := "# Persona"
	store.Seed(&domain.Project{
		ID:              "p1",
		OwnerID:         "owner",
		Status:          domain.StatusDesignPending, // approved at the gate
		SourceInput:     "https://example.com",
		PersonaDocument: &persona,
		BrandPalette:    &domain.BrandPalette{Primary: "#0062FF"},
	})

	h := NewDesignHandler(failingGenClient{})
	r := NewRunner(store, queue, &recordBus{}, Options{MaxAttempts: 3}, h)

	err := r.Run(context.Background(), StageDesign, "p1")
	require.Error(t, err)

	p, _ := store.Get(context.Background(), "p1")
	assert.Equal(t, domain.StatusFailed, p.Status)
	assert.Contains(t, p.StatusMessage, "provider unreachable")

	// the failure leaves earlier artifacts intact and queues nothing
	assert.NotNil(t, p.PersonaDocument)
	assert.Empty(t, queue.all())
}

func waitForStatus(t *testing.T, store *storetest.MemStore, id string, want domain.Status) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		p, err := store.Get(context.Background(), id)
		require.NoError(t, err)
		if p.Status == want {
			return
		}
		if p.Status == domain.StatusFailed {
			t.Fatalf("project failed while waiting for %s: %s", want, p.StatusMessage)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for status %s", want)
}
