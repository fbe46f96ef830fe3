package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/juju/errors"
	"github.com/mcuadros/go-defaults"
	"github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/warriorguo/flowcanvas/types"
)

const (
	genericServerError = "the relay failed to reach the provider"
	unavailableError   = "the provider is unavailable, retry later"
)

// ServerConfig configures the reference relay. Credentials sent by the
// caller in X-Api-Key take precedence over APIKey.
type ServerConfig struct {
	Addr    string `default:":4000" validate:"required"`
	APIKey  string
	BaseURL string `default:"https://api.deepseek.com" validate:"required,url"`

	ChatModel   string `default:"deepseek-chat" validate:"required"`
	VisionModel string `default:"gpt-4o-mini" validate:"required"`
	ImageModel  string `default:"dall-e-3" validate:"required"`

	/**
	 * default: 5 consecutive failures open the breaker, which rejects
	 * provider calls for BreakerTimeout before letting one through again.
	 */
	BreakerFailures int           `default:"5" validate:"gte=1"`
	BreakerTimeout  time.Duration `default:"30s"`

	// ModelAliases maps the model labels chosen on nodes to provider model names.
	// Labels without an alias fall back to the endpoint's default model.
	ModelAliases map[string]string
}

func NewServerConfig() *ServerConfig {
	cfg := &ServerConfig{}
	defaults.SetDefaults(cfg)
	return cfg
}

var validate = validator.New()

func (c *ServerConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.NewNotValid(err, "relay config")
	}
	return nil
}

func NewServer(cfg *ServerConfig) *Server {
	if cfg == nil {
		cfg = NewServerConfig()
	}
	s := &Server{cfg: cfg, metrics: newMetrics()}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "provider",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(max(cfg.BreakerFailures, 1))
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("breaker %s: %v -> %v", name, from, to)
		},
		// cancelled callers do not count against the provider
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return s
}

type Server struct {
	cfg     *ServerConfig
	breaker *gobreaker.CircuitBreaker
	metrics *metrics
}

func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(s.requestLogger)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", types.HeaderProvider, types.HeaderAPIKey},
		MaxAge:         300,
	}))

	router.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Post("/vision", s.handleVision)
		r.Post("/image", s.handleImage)
	})
	router.Method(http.MethodGet, "/metrics", s.metrics.handler())
	return router
}

func (s *Server) ListenAndServe() error {
	if err := s.cfg.Validate(); err != nil {
		return errors.Trace(err)
	}
	log.Infof("relay listening on %s", s.cfg.Addr)
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return errors.Trace(srv.ListenAndServe())
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.metrics.observeRequest(r.URL.Path, ww.Status())

		log.WithFields(log.Fields{
			"method":    r.Method,
			"path":      r.URL.Path,
			"status":    ww.Status(),
			"provider":  r.Header.Get(types.HeaderProvider),
			"requestID": chimiddleware.GetReqID(r.Context()),
			"duration":  time.Since(start),
		}).Info("relay request")
	})
}

func (s *Server) clientFor(r *http.Request) *openai.Client {
	apiKey := r.Header.Get(types.HeaderAPIKey)
	if apiKey == "" {
		apiKey = s.cfg.APIKey
	}
	config := openai.DefaultConfig(apiKey)
	if s.cfg.BaseURL != "" {
		config.BaseURL = s.cfg.BaseURL
	}
	return openai.NewClientWithConfig(config)
}

func (s *Server) modelFor(label, fallback string) string {
	if alias, exists := s.cfg.ModelAliases[label]; exists {
		return alias
	}
	return fallback
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req := &types.ChatRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	if len(messages) == 0 && req.Prompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})
	}
	if len(messages) == 0 {
		writeJSONError(w, http.StatusBadRequest, "messages are empty")
		return
	}

	s.stream(w, r, openai.ChatCompletionRequest{
		Model:    s.modelFor(req.Model, s.cfg.ChatModel),
		Messages: messages,
		Stream:   true,
	})
}

func (s *Server) handleVision(w http.ResponseWriter, r *http.Request) {
	req := &types.ChatRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ImageURL == "" {
		writeJSONError(w, http.StatusBadRequest, "imageUrl is required")
		return
	}

	parts := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
		{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
			URL:    req.ImageURL,
			Detail: openai.ImageURLDetailAuto,
		}},
	}
	s.stream(w, r, openai.ChatCompletionRequest{
		Model: s.modelFor(req.Model, s.cfg.VisionModel),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
		Stream: true,
	})
}

/**
 * stream relays a provider completion stream as "data: {content}" lines
 * terminated by [DONE]. Errors before the first byte become a JSON error.
 */
func (s *Server) stream(w http.ResponseWriter, r *http.Request, creq openai.ChatCompletionRequest) {
	result, err := s.breaker.Execute(func() (any, error) {
		return s.clientFor(r).CreateChatCompletionStream(r.Context(), creq)
	})
	if err != nil {
		log.Errorf("create completion stream with %s failed: %v", creq.Model, err)
		s.providerFailed(w, "chat", err)
		return
	}
	completion := result.(*openai.ChatCompletionStream)
	defer completion.Close()

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for {
		chunk, err := completion.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// headers are gone, ending the stream early is all that is left
			log.Warnf("completion stream of %s broke: %v", creq.Model, err)
			return
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		if err := writeEvent(w, &types.StreamChunk{Content: chunk.Choices[0].Delta.Content}); err != nil {
			log.Debugf("client left: %v", err)
			return
		}
		s.metrics.fragments.WithLabelValues(creq.Model).Inc()
		if flusher != nil {
			flusher.Flush()
		}
	}

	fmt.Fprint(w, dataPrefix+doneSentinel+"\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	req := &types.ImageRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Prompt == "" {
		writeJSONError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	result, err := s.breaker.Execute(func() (any, error) {
		return s.clientFor(r).CreateImage(r.Context(), openai.ImageRequest{
			Prompt:         req.Prompt,
			Model:          s.modelFor(req.Model, s.cfg.ImageModel),
			N:              1,
			Size:           openai.CreateImageSize1024x1024,
			ResponseFormat: openai.CreateImageResponseFormatURL,
		})
	})
	if err != nil {
		log.Errorf("create image failed: %v", err)
		s.providerFailed(w, "image", err)
		return
	}
	resp := result.(openai.ImageResponse)
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		writeJSONError(w, http.StatusInternalServerError, "provider returned no image")
		return
	}
	writeJSON(w, http.StatusOK, &types.ImageResponse{ImageURL: resp.Data[0].URL})
}

// providerFailed answers 503 while the breaker is open and 500 otherwise.
func (s *Server) providerFailed(w http.ResponseWriter, call string, err error) {
	s.metrics.providerErrors.WithLabelValues(call).Inc()
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		writeJSONError(w, http.StatusServiceUnavailable, unavailableError)
		return
	}
	writeJSONError(w, http.StatusInternalServerError, genericServerError)
}

func writeEvent(w io.Writer, chunk *types.StreamChunk) error {
	b, err := json.Marshal(chunk)
	if err != nil {
		return errors.Trace(err)
	}
	_, err = fmt.Fprintf(w, "%s%s\n\n", dataPrefix, b)
	return errors.Trace(err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugf("write response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, &types.ImageResponse{Error: message})
}
