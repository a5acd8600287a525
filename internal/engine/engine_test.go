package engine

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/compute"
	"inferd/internal/pipeline"
	"inferd/internal/registry"
	"inferd/pkg/types"
)

// fakeBackend is a controllable compute.Backend: it records concurrency and
// call order, and can block until released or until its context ends.
type fakeBackend struct {
	mu      sync.Mutex
	order   []float32 // first input element of each call, in execution order
	release chan struct{}
	blockN  int32 // number of leading calls that block on release/ctx

	calls      atomic.Int32
	inFlight   atomic.Int32
	maxFlight  atomic.Int32
	execErr    error
	awaitStart chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		release:    make(chan struct{}),
		awaitStart: make(chan struct{}, 64),
	}
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Execute(ctx context.Context, spec compute.ExecSpec, input []float32) ([]float32, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		max := f.maxFlight.Load()
		if n <= max || f.maxFlight.CompareAndSwap(max, n) {
			break
		}
	}
	f.mu.Lock()
	if len(input) > 0 {
		f.order = append(f.order, input[0])
	}
	f.mu.Unlock()

	seq := f.calls.Add(1)
	select {
	case f.awaitStart <- struct{}{}:
	default:
	}
	if seq <= f.blockN {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.execErr != nil {
		return nil, f.execErr
	}
	out := make([]float32, outLen(spec.OutputShape))
	for i := range out {
		out[i] = float32(i)
	}
	return out, nil
}

func (f *fakeBackend) Close() error { return nil }

func (f *fakeBackend) executionOrder() []float32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float32(nil), f.order...)
}

func outLen(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func classifierModel(id string) types.Model {
	return types.Model{
		ID:          id,
		Name:        id,
		Type:        types.ModelClassification,
		InputShape:  []int{4, 4, 1},
		OutputShape: []int{3},
	}
}

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	if cfg.Registry == nil {
		cfg.Registry = registry.New()
	}
	cfg.Logger = zerolog.Nop()
	e := New(cfg)
	t.Cleanup(e.Dispose)
	if err := e.RegisterModel(classifierModel("m")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := e.LoadModel("m", []float32{0.5, -0.2, 0.1}); err != nil {
		t.Fatalf("load: %v", err)
	}
	return e
}

func testRequest(first float32) types.InferenceRequest {
	buf := make([]float32, 16)
	buf[0] = first
	for i := 1; i < len(buf); i++ {
		buf[i] = float32(i) * 0.5
	}
	return types.InferenceRequest{
		ModelID: "m",
		Input: types.InputData{
			Kind:    types.InputSingle,
			Buffers: [][]float32{buf},
			Dims:    []int{4, 4, 1},
		},
	}
}

func awaitResult(t *testing.T, ticket *Ticket) types.InferenceResult {
	t.Helper()
	select {
	case res, ok := <-ticket.Done:
		if !ok {
			t.Fatalf("result channel closed without a result")
		}
		return res
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for result")
	}
	panic("unreachable")
}

func TestSubmitUnknownModelFailsSynchronously(t *testing.T) {
	e := newTestEngine(t, Config{Backend: newFakeBackend()})
	req := testRequest(1)
	req.ModelID = "ghost"
	if _, err := e.Submit(req); !registry.IsModelNotFound(err) {
		t.Fatalf("expected model-not-found, got %v", err)
	}
	if m := e.Metrics(); m.TotalInferences != 0 {
		t.Fatalf("rejected submission must not count: %+v", m)
	}
}

func TestSubmitUnloadedModelFailsSynchronously(t *testing.T) {
	e := newTestEngine(t, Config{Backend: newFakeBackend()})
	if err := e.RegisterModel(classifierModel("cold")); err != nil {
		t.Fatalf("register: %v", err)
	}
	req := testRequest(1)
	req.ModelID = "cold"
	if _, err := e.Submit(req); !registry.IsModelNotLoaded(err) {
		t.Fatalf("expected model-not-loaded, got %v", err)
	}
}

func TestSubmitShapeMismatchFailsSynchronously(t *testing.T) {
	e := newTestEngine(t, Config{Backend: newFakeBackend()})
	req := testRequest(1)
	req.Input.Dims = []int{3, 3}
	req.Input.Buffers = [][]float32{make([]float32, 9)}
	if _, err := e.Submit(req); !pipeline.IsPreprocess(err) {
		t.Fatalf("expected preprocess error, got %v", err)
	}
}

func TestInferenceSuccessEndToEnd(t *testing.T) {
	// Real CPU backend: exercises preprocess -> kernels -> postprocess.
	e := newTestEngine(t, Config{})
	ticket, err := e.Submit(testRequest(1))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	res := awaitResult(t, ticket)
	if res.Status != types.StatusSuccess {
		t.Fatalf("status: got %s (%s)", res.Status, res.Error)
	}
	if res.RequestID != ticket.ID || res.ModelID != "m" {
		t.Fatalf("result identity: %+v", res)
	}
	cls := res.Output.Classification
	if cls == nil || len(cls.Probabilities) != 3 {
		t.Fatalf("expected 3-class output, got %+v", res.Output)
	}
	var sum float64
	for _, p := range cls.Probabilities {
		sum += p
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("probabilities sum to %v", sum)
	}
	if res.Confidence != cls.TopK[0].Probability {
		t.Fatalf("confidence %v != top probability %v", res.Confidence, cls.TopK[0].Probability)
	}
	if res.Metrics.TotalTime <= 0 {
		t.Fatalf("total time not recorded: %+v", res.Metrics)
	}
	if res.CompletedAt.IsZero() {
		t.Fatalf("completed-at not set")
	}

	m := e.Metrics()
	if m.TotalInferences != 1 || m.SuccessfulInferences != 1 || m.FailedInferences != 0 {
		t.Fatalf("metrics: %+v", m)
	}
	if m.AvgInferenceMS <= 0 {
		t.Fatalf("average inference time not recorded: %+v", m)
	}
}

func TestExplainIncludedOnlyWhenRequestedAndAllowed(t *testing.T) {
	reg := registry.New()
	e := newTestEngine(t, Config{Registry: reg})
	explModel := classifierModel("expl")
	explModel.Compliance.Explainability = types.ExplainabilityFull
	if err := e.RegisterModel(explModel); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := e.LoadModel("expl", []float32{0.1}); err != nil {
		t.Fatalf("load: %v", err)
	}

	req := testRequest(1)
	req.ModelID = "expl"
	req.Explain = true
	res := awaitResult(t, mustSubmit(t, e, req))
	if res.Explanation == nil || res.Explanation.Method != "gradient_saliency" {
		t.Fatalf("expected saliency explanation, got %+v", res.Explanation)
	}

	// Same model, explanation not requested.
	req.Explain = false
	res = awaitResult(t, mustSubmit(t, e, req))
	if res.Explanation != nil {
		t.Fatalf("unexpected explanation: %+v", res.Explanation)
	}

	// Model that disallows explanations ignores the flag.
	req = testRequest(1)
	req.Explain = true
	res = awaitResult(t, mustSubmit(t, e, req))
	if res.Explanation != nil {
		t.Fatalf("explanation must be nil for explainability none, got %+v", res.Explanation)
	}
}

func mustSubmit(t *testing.T, e *Engine, req types.InferenceRequest) *Ticket {
	t.Helper()
	ticket, err := e.Submit(req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return ticket
}

func TestConcurrencyNeverExceedsMaxBatchSize(t *testing.T) {
	fb := newFakeBackend()
	fb.blockN = 6
	e := newTestEngine(t, Config{Backend: fb, MaxBatchSize: 2})

	tickets := make([]*Ticket, 0, 6)
	for i := 0; i < 6; i++ {
		tickets = append(tickets, mustSubmit(t, e, testRequest(float32(i))))
	}
	// Wait until the cap is reached, then release everyone.
	for i := 0; i < 2; i++ {
		select {
		case <-fb.awaitStart:
		case <-time.After(5 * time.Second):
			t.Fatalf("backend never reached %d concurrent calls", i+1)
		}
	}
	close(fb.release)
	for _, tk := range tickets {
		if res := awaitResult(t, tk); res.Status != types.StatusSuccess {
			t.Fatalf("status: %s (%s)", res.Status, res.Error)
		}
	}
	if max := fb.maxFlight.Load(); max > 2 {
		t.Fatalf("observed %d concurrent executions, cap is 2", max)
	}
	if m := e.Metrics(); m.TotalInferences != 6 {
		t.Fatalf("metrics: %+v", m)
	}
}

func TestPriorityOrderWithFIFOTies(t *testing.T) {
	fb := newFakeBackend()
	fb.blockN = 1
	e := newTestEngine(t, Config{Backend: fb, MaxBatchSize: 1})

	// Occupy the single slot so later submissions queue up.
	blocker := mustSubmit(t, e, testRequest(0))
	select {
	case <-fb.awaitStart:
	case <-time.After(5 * time.Second):
		t.Fatalf("blocker never started")
	}

	submit := func(first float32, prio types.Priority) *Ticket {
		req := testRequest(first)
		req.Priority = prio
		return mustSubmit(t, e, req)
	}
	t1 := submit(1, types.PriorityLow)
	t2 := submit(2, types.PriorityNormal)
	t3 := submit(3, types.PriorityUrgent)
	t4 := submit(4, types.PriorityNormal)

	close(fb.release)
	for _, tk := range []*Ticket{blocker, t1, t2, t3, t4} {
		awaitResult(t, tk)
	}

	order := fb.executionOrder()
	want := []float32{0, 3, 2, 4, 1} // blocker, urgent, normal FIFO, low
	if len(order) != len(want) {
		t.Fatalf("execution order length: got %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("execution order: got %v want %v", order, want)
		}
	}
}

func TestTimeoutFreesSlotAndReportsStatus(t *testing.T) {
	fb := newFakeBackend()
	fb.blockN = 1 // first call blocks until its context expires
	e := newTestEngine(t, Config{Backend: fb, MaxBatchSize: 1})

	req := testRequest(1)
	req.Timeout = 30 * time.Millisecond
	res := awaitResult(t, mustSubmit(t, e, req))
	if res.Status != types.StatusTimeout {
		t.Fatalf("status: got %s want timeout", res.Status)
	}

	// The slot must be free for the next request.
	res = awaitResult(t, mustSubmit(t, e, testRequest(2)))
	if res.Status != types.StatusSuccess {
		t.Fatalf("follow-up status: %s (%s)", res.Status, res.Error)
	}

	m := e.Metrics()
	if m.TotalInferences != 2 || m.SuccessfulInferences != 1 || m.FailedInferences != 1 {
		t.Fatalf("metrics: %+v", m)
	}
}

func TestCancelQueuedRequest(t *testing.T) {
	fb := newFakeBackend()
	fb.blockN = 1
	e := newTestEngine(t, Config{Backend: fb, MaxBatchSize: 1})

	blocker := mustSubmit(t, e, testRequest(0))
	select {
	case <-fb.awaitStart:
	case <-time.After(5 * time.Second):
		t.Fatalf("blocker never started")
	}
	queued := mustSubmit(t, e, testRequest(1))

	if err := e.Cancel(queued.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	res := awaitResult(t, queued)
	if res.Status != types.StatusCancelled {
		t.Fatalf("status: got %s want cancelled", res.Status)
	}
	// The request is gone; a second cancel is not found.
	if err := e.Cancel(queued.ID); !IsRequestNotFound(err) {
		t.Fatalf("expected request-not-found, got %v", err)
	}

	close(fb.release)
	awaitResult(t, blocker)

	// The cancelled request never reached the backend.
	for _, v := range fb.executionOrder() {
		if v == 1 {
			t.Fatalf("cancelled request was executed")
		}
	}
}

func TestCancelRunningRequest(t *testing.T) {
	fb := newFakeBackend()
	fb.blockN = 1
	e := newTestEngine(t, Config{Backend: fb, MaxBatchSize: 1})

	running := mustSubmit(t, e, testRequest(1))
	select {
	case <-fb.awaitStart:
	case <-time.After(5 * time.Second):
		t.Fatalf("request never started")
	}
	if err := e.Cancel(running.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	res := awaitResult(t, running)
	if res.Status != types.StatusCancelled {
		t.Fatalf("status: got %s want cancelled", res.Status)
	}
}

func TestCancelUnknownRequest(t *testing.T) {
	e := newTestEngine(t, Config{Backend: newFakeBackend()})
	if err := e.Cancel("ghost"); !IsRequestNotFound(err) {
		t.Fatalf("expected request-not-found, got %v", err)
	}
}

func TestQueueFullRejectsSynchronously(t *testing.T) {
	fb := newFakeBackend()
	fb.blockN = 1
	e := newTestEngine(t, Config{Backend: fb, MaxBatchSize: 1, MaxQueueDepth: 1})

	blocker := mustSubmit(t, e, testRequest(0))
	select {
	case <-fb.awaitStart:
	case <-time.After(5 * time.Second):
		t.Fatalf("blocker never started")
	}
	queued := mustSubmit(t, e, testRequest(1))

	if _, err := e.Submit(testRequest(2)); !IsQueueFull(err) {
		t.Fatalf("expected queue-full, got %v", err)
	}

	close(fb.release)
	awaitResult(t, blocker)
	awaitResult(t, queued)
}

func TestResultDeliveredExactlyOnce(t *testing.T) {
	e := newTestEngine(t, Config{Backend: newFakeBackend()})
	ticket := mustSubmit(t, e, testRequest(1))
	res := awaitResult(t, ticket)
	if res.Status != types.StatusSuccess {
		t.Fatalf("status: %s", res.Status)
	}
	// The channel is closed after the single delivery.
	if _, ok := <-ticket.Done; ok {
		t.Fatalf("second receive must report a closed channel")
	}
}

func TestDisposeCancelsQueuedAndRejectsNewWork(t *testing.T) {
	fb := newFakeBackend()
	fb.blockN = 1
	e := newTestEngine(t, Config{Backend: fb, MaxBatchSize: 1})

	running := mustSubmit(t, e, testRequest(0))
	select {
	case <-fb.awaitStart:
	case <-time.After(5 * time.Second):
		t.Fatalf("request never started")
	}
	queued := mustSubmit(t, e, testRequest(1))

	e.Dispose()

	if res := awaitResult(t, queued); res.Status != types.StatusCancelled {
		t.Fatalf("queued status: got %s want cancelled", res.Status)
	}
	if res := awaitResult(t, running); res.Status != types.StatusCancelled {
		t.Fatalf("running status: got %s want cancelled", res.Status)
	}
	if _, err := e.Submit(testRequest(2)); !IsEngineClosed(err) {
		t.Fatalf("expected engine-closed, got %v", err)
	}
	if e.Ready() {
		t.Fatalf("disposed engine must not report ready")
	}
	if m := e.Metrics(); m.TotalInferences != 0 {
		t.Fatalf("dispose must reset lifetime counters: %+v", m)
	}

	// Idempotent.
	e.Dispose()
}

func TestStatusSnapshot(t *testing.T) {
	fb := newFakeBackend()
	fb.blockN = 1
	e := newTestEngine(t, Config{Backend: fb, MaxBatchSize: 1})

	running := mustSubmit(t, e, testRequest(0))
	select {
	case <-fb.awaitStart:
	case <-time.After(5 * time.Second):
		t.Fatalf("request never started")
	}
	queued := mustSubmit(t, e, testRequest(1))

	st := e.Status()
	if st.Backend != "fake" {
		t.Fatalf("backend: %q", st.Backend)
	}
	if st.Running != 1 || st.QueueLen != 1 {
		t.Fatalf("status: running=%d queue=%d", st.Running, st.QueueLen)
	}
	if st.MaxBatchSize != 1 || st.ModelsLoaded != 1 || st.ModelsRegistered != 1 {
		t.Fatalf("status: %+v", st)
	}

	close(fb.release)
	awaitResult(t, running)
	awaitResult(t, queued)
}

func TestBackendErrorBecomesFailedResult(t *testing.T) {
	fb := newFakeBackend()
	fb.execErr = compute.ErrExecution("execute", "device lost")
	e := newTestEngine(t, Config{Backend: fb})

	res := awaitResult(t, mustSubmit(t, e, testRequest(1)))
	if res.Status != types.StatusError {
		t.Fatalf("status: got %s want error", res.Status)
	}
	if res.Error == "" {
		t.Fatalf("error message missing")
	}
	m := e.Metrics()
	if m.FailedInferences != 1 || m.SuccessfulInferences != 0 {
		t.Fatalf("metrics: %+v", m)
	}
}
