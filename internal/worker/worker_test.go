package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/agentflow/internal/domain"
	"github.com/shaiso/agentflow/internal/engine"
	"github.com/shaiso/agentflow/internal/mq"
	"github.com/shaiso/agentflow/internal/orchestrator"
	"github.com/shaiso/agentflow/internal/tasks"
)

// --- fakes ---

type memoryStore struct {
	mu         sync.Mutex
	executions map[uuid.UUID]*domain.Execution
	failCreate error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{executions: make(map[uuid.UUID]*domain.Execution)}
}

func (s *memoryStore) CreatePending(_ context.Context, workflowType string, initial map[string]any, jobID string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate != nil {
		return uuid.Nil, s.failCreate
	}
	e := domain.NewExecution(workflowType, initial, jobID)
	s.executions[e.ID] = e
	return e.ID, nil
}

func (s *memoryStore) MarkRunning(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.executions[id]
	if !ok {
		return fmt.Errorf("execution %s not found", id)
	}
	e.MarkRunning()
	return nil
}

func (s *memoryStore) Finalize(_ context.Context, id uuid.UUID, result *domain.WorkflowResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.executions[id]
	if !ok {
		return fmt.Errorf("execution %s not found", id)
	}
	e.ApplyResult(result)
	return nil
}

func (s *memoryStore) Fail(_ context.Context, id uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.executions[id]
	if !ok {
		return fmt.Errorf("execution %s not found", id)
	}
	e.MarkFailed(reason)
	return nil
}

func (s *memoryStore) get(id uuid.UUID) *domain.Execution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executions[id]
}

// fakePublisher гоняет сообщение через JSON, как настоящая очередь.
type fakePublisher struct {
	messages []*mq.Message
	err      error
}

func (p *fakePublisher) PublishJob(_ context.Context, jobID string, payload mq.JobPayload) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	msg, err := mq.NewMessage(jobID, mq.MessageTypeWorkflowJob, payload)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	var received mq.Message
	if err := json.Unmarshal(body, &received); err != nil {
		return "", err
	}
	p.messages = append(p.messages, &received)
	return msg.ID, nil
}

type user struct {
	ID    string
	Email string
}

func (u *user) Reference() Ref { return Ref{Kind: "user", ID: u.ID} }

type fixture struct {
	orch      *orchestrator.Orchestrator
	catalog   *engine.Catalog
	store     *memoryStore
	publisher *fakePublisher
	client    *Client
	job       *Job
	locator   *Locator
}

func newFixture(t *testing.T, defs ...*engine.Definition) *fixture {
	t.Helper()

	registry := tasks.DefaultRegistry(tasks.Deps{})
	catalog := engine.NewCatalog(registry)
	for _, def := range defs {
		if err := catalog.Register(def); err != nil {
			t.Fatalf("register %s: %v", def.Name, err)
		}
	}

	orch := orchestrator.New(orchestrator.Config{Resolver: registry, Catalog: catalog})
	store := newMemoryStore()
	publisher := &fakePublisher{}
	locator := NewLocator()
	locator.Register("user", func(_ context.Context, id string) (any, error) {
		if id == "missing" {
			return nil, errors.New("no such user")
		}
		return &user{ID: id, Email: id + "@example.com"}, nil
	})

	return &fixture{
		orch:      orch,
		catalog:   catalog,
		store:     store,
		publisher: publisher,
		client:    NewClient(ClientConfig{Catalog: catalog, Publisher: publisher, Store: store}),
		job:       NewJob(JobConfig{Executor: orch, Locator: locator, Store: store}),
		locator:   locator,
	}
}

// deliver достаёт последний payload из fakePublisher.
func (f *fixture) deliver(t *testing.T) mq.JobPayload {
	t.Helper()
	if len(f.publisher.messages) == 0 {
		t.Fatal("no published messages")
	}
	payload, err := mq.ParsePayload[mq.JobPayload](f.publisher.messages[len(f.publisher.messages)-1])
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	return payload
}

func direct(fn func(c *engine.Context) (any, error)) engine.Config {
	return engine.Config{"with": tasks.HandlerFunc(func(_ context.Context, c *engine.Context) (any, error) {
		return fn(c)
	})}
}

func mathWorkflow() *engine.Definition {
	return engine.NewDefinition("math",
		engine.Step("double", tasks.TypeDirectHandler, direct(func(c *engine.Context) (any, error) {
			n, ok := c.Get("input").(int)
			if !ok {
				return nil, fmt.Errorf("input is %T", c.Get("input"))
			}
			return n * 2, nil
		})),
		engine.Step("maybe", tasks.TypeDirectHandler, engine.Config{"with": "skipped"}, engine.If("verbose")),
		engine.Step("add_ten", tasks.TypeDirectHandler, direct(func(c *engine.Context) (any, error) {
			return c.Get("double").(int) + 10, nil
		})),
		engine.Step("scale", tasks.TypeDirectHandler, direct(func(c *engine.Context) (any, error) {
			ratio, ok := c.Get("ratio").(float64)
			if !ok {
				return nil, fmt.Errorf("ratio is %T", c.Get("ratio"))
			}
			return float64(c.Get("add_ten").(int)) * ratio, nil
		})),
	)
}

// --- Ref Tests ---

func TestParseRef(t *testing.T) {
	tests := []struct {
		in      string
		want    Ref
		isRef   bool
		wantErr bool
	}{
		{"plain", Ref{}, false, false},
		{"ref://user/42", Ref{Kind: "user", ID: "42"}, true, false},
		{"ref://file/dir/a.txt", Ref{Kind: "file", ID: "dir/a.txt"}, true, false},
		{"ref://user", Ref{}, true, true},
		{"ref://User/1", Ref{}, true, true},
		{"ref:///1", Ref{}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, isRef, err := ParseRef(tt.in)
			if isRef != tt.isRef {
				t.Errorf("isRef = %v, want %v", isRef, tt.isRef)
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}

	if s := (Ref{Kind: "user", ID: "7"}).String(); s != "ref://user/7" {
		t.Errorf("unexpected token %s", s)
	}
}

func TestLocator(t *testing.T) {
	loc := NewLocator()
	loc.Register("b", func(context.Context, string) (any, error) { return nil, nil })
	loc.Register("a", func(_ context.Context, id string) (any, error) { return "a:" + id, nil })

	if !reflect.DeepEqual(loc.Kinds(), []string{"a", "b"}) {
		t.Errorf("unexpected kinds %v", loc.Kinds())
	}

	v, err := loc.Resolve(context.Background(), Ref{Kind: "a", ID: "1"})
	if err != nil || v != "a:1" {
		t.Errorf("Resolve = %v, %v", v, err)
	}

	if _, err := loc.Resolve(context.Background(), Ref{Kind: "c", ID: "1"}); !errors.Is(err, ErrUnknownRefKind) {
		t.Errorf("expected ErrUnknownRefKind, got %v", err)
	}

	var nilLoc *Locator
	if _, err := nilLoc.Resolve(context.Background(), Ref{Kind: "a", ID: "1"}); !errors.Is(err, ErrUnknownRefKind) {
		t.Errorf("nil locator should report unknown kind, got %v", err)
	}
}

// --- Codec Tests ---

func TestEncodeContext(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	type point struct {
		X int `json:"x"`
		Y int `json:"y"`
	}

	c := engine.NewContext(map[string]any{
		"user":   &user{ID: "42"},
		"ref":    Ref{Kind: "doc", ID: "9"},
		"at":     at,
		"n":      5,
		"f":      1.5,
		"nested": map[string]any{"list": []any{&user{ID: "1"}, "x"}},
		"point":  point{X: 1, Y: 2},
		"ints":   []int{1, 2},
	})

	out, err := EncodeContext(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out["user"] != "ref://user/42" || out["ref"] != "ref://doc/9" {
		t.Errorf("references not tokenized: %v / %v", out["user"], out["ref"])
	}
	if out["at"] != "2026-01-02T03:04:05Z" {
		t.Errorf("unexpected time encoding %v", out["at"])
	}
	if out["n"] != 5 || out["f"] != json.Number("1.5") {
		t.Errorf("numbers changed: %v %v", out["n"], out["f"])
	}
	nested := out["nested"].(map[string]any)["list"].([]any)
	if nested[0] != "ref://user/1" {
		t.Errorf("nested reference not tokenized: %v", nested[0])
	}
	pt, ok := out["point"].(map[string]any)
	if !ok || pt["x"] != json.Number("1") {
		t.Errorf("struct should become a map: %#v", out["point"])
	}

	if _, err := json.Marshal(out); err != nil {
		t.Errorf("encoded context must be JSON-serializable: %v", err)
	}
}

func TestEncodeContext_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"func", func() {}},
		{"chan", make(chan int)},
		{"complex", complex(1, 2)},
		{"nan", math.NaN()},
		{"inf", math.Inf(1)},
		{"nested func", map[string]any{"cb": func() {}}},
		{"func in list", []any{1, func() {}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeContext(engine.NewContext(map[string]any{"bad": tt.value, "ok": 1}))
			var se *engine.SerializationError
			if !errors.As(err, &se) {
				t.Fatalf("expected SerializationError, got %v", err)
			}
			if se.Key != "bad" {
				t.Errorf("expected key bad, got %s", se.Key)
			}
			if !errors.Is(err, ErrUnsupportedValue) {
				t.Errorf("expected ErrUnsupportedValue in chain: %v", err)
			}
		})
	}
}

func TestDecodeContext(t *testing.T) {
	loc := NewLocator()
	loc.Register("user", func(_ context.Context, id string) (any, error) { return &user{ID: id}, nil })

	data := map[string]any{
		"owner": "ref://user/42",
		"count": json.Number("3"),
		"ratio": json.Number("0.5"),
		"items": []any{"ref://user/1", json.Number("2")},
		"meta":  map[string]any{"by": "ref://user/7"},
		"text":  "hello",
	}

	c, err := DecodeContext(context.Background(), data, loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if u, ok := c.Get("owner").(*user); !ok || u.ID != "42" {
		t.Errorf("owner not rehydrated: %#v", c.Get("owner"))
	}
	if c.Get("count") != 3 || c.Get("ratio") != 0.5 {
		t.Errorf("numbers: %#v %#v", c.Get("count"), c.Get("ratio"))
	}
	items := c.Get("items").([]any)
	if _, ok := items[0].(*user); !ok || items[1] != 2 {
		t.Errorf("items: %#v", items)
	}
	if _, ok := c.Get("meta").(map[string]any)["by"].(*user); !ok {
		t.Errorf("nested ref not rehydrated")
	}
	if c.Get("text") != "hello" {
		t.Errorf("plain string changed")
	}
}

func TestDecodeContext_Errors(t *testing.T) {
	loc := NewLocator()
	loc.Register("user", func(context.Context, string) (any, error) { return nil, errors.New("db down") })

	tests := []struct {
		name string
		data map[string]any
		want error
	}{
		{"unknown kind", map[string]any{"x": "ref://order/1"}, ErrUnknownRefKind},
		{"invalid token", map[string]any{"x": "ref://user"}, ErrInvalidRef},
		{"resolver error", map[string]any{"x": "ref://user/1"}, ErrRehydration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeContext(context.Background(), tt.data, loc)
			if !errors.Is(err, ErrRehydration) {
				t.Errorf("expected ErrRehydration, got %v", err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v in chain, got %v", tt.want, err)
			}
		})
	}
}

// --- Client Tests ---

func TestClient_RunLater(t *testing.T) {
	f := newFixture(t, mathWorkflow())

	handle, err := f.client.RunLater(context.Background(), "math", engine.NewContext(map[string]any{"input": 5, "ratio": 0.5}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if handle.JobID == "" || handle.ExecutionID == nil {
		t.Fatalf("incomplete handle: %+v", handle)
	}
	if f.publisher.messages[0].ID != handle.JobID {
		t.Errorf("message id %s != job id %s", f.publisher.messages[0].ID, handle.JobID)
	}

	exec := f.store.get(*handle.ExecutionID)
	if exec.Status != domain.ExecutionStatusPending || exec.JobID != handle.JobID {
		t.Errorf("unexpected execution: %+v", exec)
	}

	payload := f.deliver(t)
	if payload.WorkflowType != "math" || *payload.ExecutionID != *handle.ExecutionID {
		t.Errorf("unexpected payload %+v", payload)
	}
}

func TestClient_RunLater_Errors(t *testing.T) {
	f := newFixture(t, mathWorkflow())

	_, err := f.client.RunLater(context.Background(), "unknown", nil)
	if !errors.Is(err, ErrUnknownWorkflow) {
		t.Errorf("expected ErrUnknownWorkflow, got %v", err)
	}

	_, err = f.client.RunLater(context.Background(), "math", engine.NewContext(map[string]any{"cb": func() {}}))
	var se *engine.SerializationError
	if !errors.As(err, &se) {
		t.Fatalf("expected SerializationError, got %v", err)
	}
	if len(f.publisher.messages) != 0 || len(f.store.executions) != 0 {
		t.Error("nothing may be enqueued or stored after a serialization error")
	}

	if _, err := NewClient(ClientConfig{}).RunLater(context.Background(), "math", nil); !errors.Is(err, ErrNoPublisher) {
		t.Errorf("expected ErrNoPublisher, got %v", err)
	}
}

func TestClient_RunLater_PublishFailure(t *testing.T) {
	f := newFixture(t, mathWorkflow())
	f.publisher.err = errors.New("broker down")

	_, err := f.client.RunLater(context.Background(), "math", nil)
	if err == nil || !strings.Contains(err.Error(), "broker down") {
		t.Fatalf("expected publish error, got %v", err)
	}

	for _, exec := range f.store.executions {
		if exec.Status != domain.ExecutionStatusFailed {
			t.Errorf("execution should be failed after publish error, got %s", exec.Status)
		}
	}
}

// --- Job Tests ---

func TestJob_Perform(t *testing.T) {
	f := newFixture(t, mathWorkflow())

	handle, err := f.client.RunLater(context.Background(), "math", engine.NewContext(map[string]any{"input": 5, "ratio": 0.5}))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	result, err := f.job.Perform(context.Background(), f.deliver(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Completed() || result.FinalOutput != 10.0 {
		t.Errorf("unexpected result %s / %v", result.Status, result.FinalOutput)
	}

	exec := f.store.get(*handle.ExecutionID)
	if exec.Status != domain.ExecutionStatusCompleted {
		t.Errorf("expected completed execution, got %s", exec.Status)
	}
	if exec.StartedAt == nil || exec.FinishedAt == nil || exec.RunID == nil {
		t.Errorf("execution timestamps/run id not set: %+v", exec)
	}
	if len(exec.Trace) != 3 {
		t.Errorf("expected trace of 3, got %d", len(exec.Trace))
	}
}

func TestJob_Perform_FailedWorkflowIsNotJobError(t *testing.T) {
	def := engine.NewDefinition("boom",
		engine.Step("explode", tasks.TypeDirectHandler, direct(func(*engine.Context) (any, error) {
			return nil, errors.New("boom")
		})),
	)
	f := newFixture(t, def)

	handle, _ := f.client.RunLater(context.Background(), "boom", nil)
	result, err := f.job.Perform(context.Background(), f.deliver(t))
	if err != nil {
		t.Fatalf("failed workflow must not fail the job: %v", err)
	}
	if !result.Failed() {
		t.Error("expected failed result")
	}

	exec := f.store.get(*handle.ExecutionID)
	if exec.Status != domain.ExecutionStatusFailed || exec.FailedStep != "explode" {
		t.Errorf("unexpected execution %+v", exec)
	}
}

func TestJob_Perform_RehydrationFailure(t *testing.T) {
	f := newFixture(t, mathWorkflow())

	handle, err := f.client.RunLater(context.Background(), "math",
		engine.NewContext(map[string]any{"owner": Ref{Kind: "user", ID: "missing"}}))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	_, err = f.job.Perform(context.Background(), f.deliver(t))
	if !errors.Is(err, ErrRehydration) {
		t.Fatalf("expected ErrRehydration, got %v", err)
	}
	if mq.Decide(err, false) != mq.OutcomeDeadLettered {
		t.Error("rehydration failure must dead-letter without retry")
	}

	exec := f.store.get(*handle.ExecutionID)
	if exec.Status != domain.ExecutionStatusFailed || exec.StartedAt != nil {
		t.Errorf("execution should fail before running: %+v", exec)
	}
}

func TestJob_Perform_UnknownWorkflow(t *testing.T) {
	f := newFixture(t)

	_, err := f.job.Perform(context.Background(), mq.JobPayload{WorkflowType: "gone", Context: map[string]any{}})
	if !errors.Is(err, ErrUnknownWorkflow) {
		t.Fatalf("expected ErrUnknownWorkflow, got %v", err)
	}
	if !mq.IsPermanent(err) {
		t.Error("unknown workflow should be permanent")
	}
}

type panickingExecutor struct{}

func (panickingExecutor) ExecuteType(context.Context, string, *engine.Context, orchestrator.StepCallback) (*domain.WorkflowResult, error) {
	panic("dispatch bug")
}

func TestJob_Perform_EnginePanic(t *testing.T) {
	store := newMemoryStore()
	id, _ := store.CreatePending(context.Background(), "x", nil, "job")
	job := NewJob(JobConfig{Executor: panickingExecutor{}, Store: store})

	_, err := job.Perform(context.Background(), mq.JobPayload{ExecutionID: &id, WorkflowType: "x"})
	if err == nil || !strings.Contains(err.Error(), "dispatch bug") {
		t.Fatalf("expected panic error, got %v", err)
	}
	if mq.Decide(err, false) != mq.OutcomeRequeued {
		t.Error("engine error should be retried once by the queue")
	}
	if store.get(id).Status != domain.ExecutionStatusFailed {
		t.Error("execution should be marked failed")
	}
}

// --- Round trip ---

func TestRoundTrip_MatchesSyncRun(t *testing.T) {
	f := newFixture(t, mathWorkflow())
	initial := engine.NewContext(map[string]any{"input": 7, "ratio": 2.0, "verbose": false})

	syncResult := f.orch.Execute(context.Background(), mathWorkflow(), initial, nil)
	if !syncResult.Completed() {
		t.Fatalf("sync run failed: %s", syncResult.ErrorMessage())
	}

	if _, err := f.client.RunLater(context.Background(), "math", initial); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	asyncResult, err := f.job.Perform(context.Background(), f.deliver(t))
	if err != nil {
		t.Fatalf("perform: %v", err)
	}

	type stepView struct {
		Name   string
		Status domain.StepStatus
		Output any
		Error  string
	}
	type view struct {
		Status  domain.RunStatus
		Final   any
		Skipped []string
		Steps   []stepView
	}
	project := func(r *domain.WorkflowResult) view {
		v := view{Status: r.Status, Final: r.FinalOutput, Skipped: r.SkippedSteps}
		for _, s := range r.Trace {
			v.Steps = append(v.Steps, stepView{s.StepName, s.Status, s.Output, s.Error})
		}
		return v
	}

	if !reflect.DeepEqual(project(syncResult), project(asyncResult)) {
		t.Errorf("async result differs:\n sync %#v\nasync %#v", project(syncResult), project(asyncResult))
	}
	if asyncResult.FinalOutput != 48.0 {
		t.Errorf("unexpected final output %#v", asyncResult.FinalOutput)
	}
}

func TestCodec_PreservesNumericTypes(t *testing.T) {
	c := engine.NewContext(map[string]any{
		"int":      5,
		"whole":    5.0,
		"float":    2.5,
		"big":      float64(1e21),
		"nested":   map[string]any{"n": 3, "f": 1.0},
		"list":     []any{1, 2.0},
		"negative": -4,
	})

	encoded, err := EncodeContext(c)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	data, err := json.Marshal(encoded)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var wire map[string]any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	decoded, err := DecodeContext(context.Background(), wire, NewLocator())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(decoded.ToMap(), c.ToMap()) {
		t.Errorf("numeric types changed:\n got %#v\nwant %#v", decoded.ToMap(), c.ToMap())
	}
}

func TestRoundTrip_RehydratesReference(t *testing.T) {
	var seen *user
	def := engine.NewDefinition("greet_user",
		engine.Step("greet", tasks.TypeDirectHandler, direct(func(c *engine.Context) (any, error) {
			u, ok := c.Get("user").(*user)
			if !ok {
				return nil, fmt.Errorf("user is %T, not rehydrated", c.Get("user"))
			}
			seen = u
			return "hello " + u.Email, nil
		})),
	)
	f := newFixture(t, def)

	if _, err := f.client.RunLater(context.Background(), "greet_user",
		engine.NewContext(map[string]any{"user": &user{ID: "42"}})); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	payload := f.deliver(t)
	if payload.Context["user"] != "ref://user/42" {
		t.Errorf("reference should travel as token, got %v", payload.Context["user"])
	}

	result, err := f.job.Perform(context.Background(), payload)
	if err != nil {
		t.Fatalf("perform: %v", err)
	}
	if !result.Completed() {
		t.Fatalf("workflow failed: %s", result.ErrorMessage())
	}
	if seen == nil || seen.Email != "42@example.com" {
		t.Errorf("handler did not receive live user: %+v", seen)
	}
	if result.FinalOutput != "hello 42@example.com" {
		t.Errorf("unexpected output %v", result.FinalOutput)
	}
}

// --- Worker Tests ---

type countingObserver struct {
	outcomes []string
}

func (o *countingObserver) JobProcessed(outcome string) { o.outcomes = append(o.outcomes, outcome) }

func TestWorker_HandleJob(t *testing.T) {
	f := newFixture(t, mathWorkflow())
	obs := &countingObserver{}
	w := New(Config{Job: f.job, Observer: obs})

	if _, err := f.client.RunLater(context.Background(), "math", engine.NewContext(map[string]any{"input": 1, "ratio": 1.0})); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := w.handleJob(context.Background(), &mq.Delivery{Message: *f.publisher.messages[0]}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	err := w.handleJob(context.Background(), &mq.Delivery{Message: mq.Message{Type: "other"}})
	if !errors.Is(err, ErrUnexpectedMessage) || !mq.IsPermanent(err) {
		t.Errorf("expected permanent ErrUnexpectedMessage, got %v", err)
	}

	err = w.handleJob(context.Background(), &mq.Delivery{Message: mq.Message{Type: mq.MessageTypeWorkflowJob, Payload: []byte("{")}})
	if !mq.IsPermanent(err) {
		t.Errorf("malformed payload should be permanent, got %v", err)
	}

	w.recordOutcome(mq.OutcomeAcked)
	if !reflect.DeepEqual(obs.outcomes, []string{"completed"}) {
		t.Errorf("unexpected outcomes %v", obs.outcomes)
	}
}

func TestWorker_New(t *testing.T) {
	w := New(Config{})
	if w.concurrency != defaultConcurrency {
		t.Errorf("expected default concurrency, got %d", w.concurrency)
	}
	if w.IsStopped() {
		t.Error("new worker should not be stopped")
	}

	w.Stop()
	if !w.IsStopped() {
		t.Error("worker should be stopped")
	}
	if err := w.Start(context.Background()); !errors.Is(err, ErrWorkerStopped) {
		t.Errorf("expected ErrWorkerStopped, got %v", err)
	}
}
