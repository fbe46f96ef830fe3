package runtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/warriorguo/flowcanvas/store/mem"
	"github.com/warriorguo/flowcanvas/types"
)

type relayCall struct {
	endpoint string
	chat     *types.ChatRequest
	image    *types.ImageRequest
	headers  map[string]string
}

/**
 * fakeRelay answers chat and vision calls with reply (or fragments), image
 * calls with imageURL. The first blockCalls streams emit their fragments,
 * signal started and then hang until their context is cancelled.
 */
type fakeRelay struct {
	mu    sync.Mutex
	calls []relayCall

	fragments  []string
	reply      func(req *types.ChatRequest) []string
	err        error
	imageURL   string
	panicMsg   string
	blockCalls int
	delay      time.Duration

	started  chan struct{}
	inflight int32
	maxSeen  int32
}

func newFakeRelay(fragments ...string) *fakeRelay {
	return &fakeRelay{fragments: fragments, started: make(chan struct{}, 16)}
}

func (r *fakeRelay) record(call relayCall) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	return len(r.calls)
}

func (r *fakeRelay) Calls() []relayCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	calls := make([]relayCall, len(r.calls))
	copy(calls, r.calls)
	return calls
}

func (r *fakeRelay) enter() func() {
	n := atomic.AddInt32(&r.inflight, 1)
	for {
		seen := atomic.LoadInt32(&r.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&r.maxSeen, seen, n) {
			break
		}
	}
	return func() { atomic.AddInt32(&r.inflight, -1) }
}

func (r *fakeRelay) Stream(ctx context.Context, endpoint string, payload any, headers map[string]string,
	onFragment func(fragment string)) error {
	defer r.enter()()

	req, _ := payload.(*types.ChatRequest)
	nth := r.record(relayCall{endpoint: endpoint, chat: req, headers: headers})

	if r.panicMsg != "" {
		panic(r.panicMsg)
	}
	if r.err != nil {
		return r.err
	}

	fragments := r.fragments
	if r.reply != nil {
		fragments = r.reply(req)
	}
	for _, f := range fragments {
		if ctx.Err() != nil {
			return types.ErrStopped
		}
		onFragment(f)
	}
	select {
	case r.started <- struct{}{}:
	default:
	}

	if nth <= r.blockCalls {
		<-ctx.Done()
		return types.ErrStopped
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	return nil
}

func (r *fakeRelay) GenerateImage(ctx context.Context, endpoint string, payload *types.ImageRequest,
	headers map[string]string) (string, error) {
	defer r.enter()()

	r.record(relayCall{endpoint: endpoint, image: payload, headers: headers})
	if r.err != nil {
		return "", r.err
	}
	return r.imageURL, nil
}

type notice struct {
	level   types.NoticeLevel
	nodeID  string
	message string
}

type recordingNotifier struct {
	mu          sync.Mutex
	notices     []notice
	credentials []string
}

func (n *recordingNotifier) Notify(level types.NoticeLevel, nodeID string, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{level, nodeID, message})
}

func (n *recordingNotifier) RequestCredentials(provider string, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.credentials = append(n.credentials, provider)
}

func (n *recordingNotifier) Notices() []notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notice(nil), n.notices...)
}

func (n *recordingNotifier) Credentials() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.credentials...)
}

func newOptions(relay types.Relay, notifier types.Notifier) *types.EngineOptions {
	opts := types.NewEngineOptions()
	opts.MemStore = true
	opts.RunAsync = false
	opts.StaggerDelay = 0
	opts.Relay = relay
	opts.Notifier = notifier
	return opts
}

func newTestEngine(relay types.Relay, notifier types.Notifier) *engine {
	return newEngine(mem.NewMemStore(), newOptions(relay, notifier))
}

func mustAdd(e *engine, id string, kind types.NodeKind, data types.Data) {
	if _, err := e.AddNode(&types.Node{ID: id, Kind: kind, Data: data}); err != nil {
		panic(err)
	}
}

func mustConnect(e *engine, source, target, handle string) {
	if _, err := e.Connect(&types.Edge{Source: source, Target: target, SourceHandle: handle}); err != nil {
		panic(err)
	}
}

func nodeData(e *engine, id string) types.Data {
	n, exists := e.Node(id)
	if !exists {
		return nil
	}
	return n.Data
}

func waitStarted(r *fakeRelay) bool {
	select {
	case <-r.started:
		return true
	case <-time.After(5 * time.Second):
		return false
	}
}
