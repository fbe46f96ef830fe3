package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warriorguo/flowcanvas/types"
)

// fakeProvider speaks just enough of the OpenAI wire format.
type fakeProvider struct {
	mu       sync.Mutex
	bodies   []map[string]any
	auth     []string
	failWith int
}

func (p *fakeProvider) record(r *http.Request) map[string]any {
	body := map[string]any{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bodies = append(p.bodies, body)
	p.auth = append(p.auth, r.Header.Get("Authorization"))
	return body
}

func (p *fakeProvider) last() (map[string]any, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bodies[len(p.bodies)-1], p.auth[len(p.auth)-1]
}

func (p *fakeProvider) handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		p.record(r)
		if p.failWith != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(p.failWith)
			fmt.Fprint(w, `{"error":{"message":"quota exceeded","type":"insufficient_quota"}}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, piece := range []string{"", "Hel", "lo"} {
			fmt.Fprintf(w, `data: {"id":"c1","object":"chat.completion.chunk","model":"m","choices":[{"index":0,"delta":{"content":%q}}]}`+"\n\n", piece)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	r.Post("/images/generations", func(w http.ResponseWriter, r *http.Request) {
		p.record(r)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"created":1,"data":[{"url":"https://img.test/1.png"}]}`)
	})
	return r
}

func newRelayPair(t *testing.T, cfg *ServerConfig) (*fakeProvider, *httptest.Server) {
	provider := &fakeProvider{}
	upstream := httptest.NewServer(provider.handler())
	t.Cleanup(upstream.Close)

	if cfg == nil {
		cfg = NewServerConfig()
	}
	cfg.BaseURL = upstream.URL
	relay := httptest.NewServer(NewServer(cfg).Handler())
	t.Cleanup(relay.Close)
	return provider, relay
}

func TestServerConfigDefaults(t *testing.T) {
	cfg := NewServerConfig()
	assert.Equal(t, ":4000", cfg.Addr)
	assert.Equal(t, "deepseek-chat", cfg.ChatModel)
	assert.Equal(t, "gpt-4o-mini", cfg.VisionModel)
	assert.Equal(t, "dall-e-3", cfg.ImageModel)
}

func TestServerChatStream(t *testing.T) {
	cfg := NewServerConfig()
	cfg.APIKey = "server-key"
	cfg.ModelAliases = map[string]string{"GPT-4o": "gpt-4o"}
	provider, relay := newRelayPair(t, cfg)

	var fragments []string
	err := NewClient(nil).Stream(context.Background(), relay.URL+"/api/chat",
		&types.ChatRequest{Model: "GPT-4o", Prompt: "say hello"}, nil,
		func(f string) { fragments = append(fragments, f) })
	require.Nil(t, err)
	assert.Equal(t, "Hello", strings.Join(fragments, ""))

	body, auth := provider.last()
	assert.Equal(t, "gpt-4o", body["model"])
	assert.Equal(t, true, body["stream"])
	assert.Equal(t, "Bearer server-key", auth)
	messages := body["messages"].([]any)
	require.Len(t, messages, 1)
	assert.Equal(t, "say hello", messages[0].(map[string]any)["content"])

	// caller credential wins, unknown label falls back to the default model
	err = NewClient(nil).Stream(context.Background(), relay.URL+"/api/chat",
		&types.ChatRequest{Model: "whatever", Messages: []types.ChatMessage{{Role: "user", Content: "x"}}},
		map[string]string{types.HeaderAPIKey: "caller-key"}, func(string) {})
	require.Nil(t, err)
	body, auth = provider.last()
	assert.Equal(t, "deepseek-chat", body["model"])
	assert.Equal(t, "Bearer caller-key", auth)
}

func TestServerVision(t *testing.T) {
	provider, relay := newRelayPair(t, nil)

	var text string
	err := NewClient(nil).Stream(context.Background(), relay.URL+"/api/vision",
		&types.ChatRequest{Prompt: "describe", ImageURL: "https://img.test/1.png"}, nil,
		func(f string) { text += f })
	require.Nil(t, err)
	assert.Equal(t, "Hello", text)

	body, _ := provider.last()
	assert.Equal(t, "gpt-4o-mini", body["model"])
	raw, _ := json.Marshal(body["messages"])
	assert.Contains(t, string(raw), "https://img.test/1.png")
	assert.Contains(t, string(raw), "describe")

	err = NewClient(nil).Stream(context.Background(), relay.URL+"/api/vision",
		&types.ChatRequest{Prompt: "describe"}, nil, func(string) {})
	pe := providerError(t, err)
	assert.Equal(t, http.StatusBadRequest, pe.StatusCode)
	assert.Equal(t, "imageUrl is required", pe.Error())
}

func TestServerImage(t *testing.T) {
	provider, relay := newRelayPair(t, nil)
	client := NewClient(nil)

	url, err := client.GenerateImage(context.Background(), relay.URL+"/api/image", &types.ImageRequest{Prompt: "a cat"}, nil)
	require.Nil(t, err)
	assert.Equal(t, "https://img.test/1.png", url)
	body, _ := provider.last()
	assert.Equal(t, "a cat", body["prompt"])
	assert.Equal(t, "dall-e-3", body["model"])

	_, err = client.GenerateImage(context.Background(), relay.URL+"/api/image", &types.ImageRequest{}, nil)
	pe := providerError(t, err)
	assert.Equal(t, http.StatusBadRequest, pe.StatusCode)
	assert.Equal(t, "prompt is required", pe.Error())
}

func TestServerRejectsBadRequests(t *testing.T) {
	_, relay := newRelayPair(t, nil)

	for _, path := range []string{"/api/chat", "/api/vision", "/api/image"} {
		resp, err := http.Post(relay.URL+path, "application/json", strings.NewReader("{nope"))
		require.Nil(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}

	resp, err := http.Post(relay.URL+"/api/chat", "application/json", strings.NewReader(`{"messages":[]}`))
	require.Nil(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(relay.URL + "/api/chat")
	require.Nil(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServerHidesProviderErrors(t *testing.T) {
	provider, relay := newRelayPair(t, nil)
	provider.failWith = http.StatusTooManyRequests

	err := NewClient(nil).Stream(context.Background(), relay.URL+"/api/chat",
		&types.ChatRequest{Prompt: "hi"}, map[string]string{types.HeaderProvider: "deepseek"}, func(string) {})
	pe := providerError(t, err)
	assert.Equal(t, http.StatusInternalServerError, pe.StatusCode)
	assert.Equal(t, genericServerError, pe.Error())
	assert.Equal(t, "deepseek", pe.Provider)
}

func TestServerCORS(t *testing.T) {
	_, relay := newRelayPair(t, nil)

	req, err := http.NewRequest(http.MethodOptions, relay.URL+"/api/chat", nil)
	require.Nil(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type,x-api-key")

	resp, err := http.DefaultClient.Do(req)
	require.Nil(t, err)
	resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServerConfigValidate(t *testing.T) {
	cfg := NewServerConfig()
	assert.Nil(t, cfg.Validate())

	cfg.BaseURL = "not a url"
	assert.NotNil(t, cfg.Validate())

	cfg = NewServerConfig()
	cfg.ChatModel = ""
	assert.NotNil(t, cfg.Validate())

	cfg = NewServerConfig()
	cfg.BreakerFailures = 0
	assert.NotNil(t, cfg.Validate())
}

func TestServerBreakerOpens(t *testing.T) {
	cfg := NewServerConfig()
	cfg.BreakerFailures = 2
	cfg.BreakerTimeout = time.Minute
	provider, relay := newRelayPair(t, cfg)
	provider.failWith = http.StatusInternalServerError

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		err := NewClient(nil).Stream(context.Background(), relay.URL+"/api/chat",
			&types.ChatRequest{Prompt: "hi"}, nil, func(string) {})
		statuses = append(statuses, providerError(t, err).StatusCode)
	}
	assert.Equal(t, []int{500, 500, 503}, statuses)

	provider.mu.Lock()
	calls := len(provider.bodies)
	provider.mu.Unlock()
	assert.Equal(t, 2, calls)
}

func TestServerMetrics(t *testing.T) {
	_, relay := newRelayPair(t, nil)

	err := NewClient(nil).Stream(context.Background(), relay.URL+"/api/chat",
		&types.ChatRequest{Prompt: "hi"}, nil, func(string) {})
	require.Nil(t, err)

	scrape := func() string {
		resp, err := http.Get(relay.URL + "/metrics")
		if err != nil {
			return ""
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return string(b)
	}

	// the request counter is bumped after the handler returns
	assert.Eventually(t, func() bool {
		return strings.Contains(scrape(), `relay_http_requests_total{path="/api/chat",status="200"} 1`)
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, scrape(), `relay_stream_fragments_total{model="deepseek-chat"} 2`)
}
