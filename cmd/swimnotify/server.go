package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"swimnotify/internal/constants"
	"swimnotify/internal/errors"
	"swimnotify/internal/gateway"
	"swimnotify/internal/middleware"
	"swimnotify/internal/models"
	"swimnotify/internal/service"
	"swimnotify/internal/tracing"
	"swimnotify/pkg/whatsapp"
	"swimnotify/pkg/whatsapp/types"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// WebhookHandler consumes decoded WAHA webhook events
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, event *types.WebhookEvent) error
}

// StatsSource aggregates the message log
type StatsSource interface {
	Stats(ctx context.Context) (*models.MessageStats, error)
}

// JobRegistry looks up scheduled jobs by name
type JobRegistry interface {
	Job(name string) (*service.Job, bool)
	Schedule() []service.JobSchedule
}

// ServerDeps wires the HTTP surface. Webhook is nil for providers that do
// not receive webhooks; Jobs and Stats may be nil.
type ServerDeps struct {
	Provider      gateway.Provider
	Stats         StatsSource
	Jobs          JobRegistry
	Webhook       WebhookHandler
	WebhookSecret string
	Config        models.ServerConfig
	// JobContext bounds job runs started over HTTP
	JobContext context.Context
}

type Server struct {
	router    *mux.Router
	logger    *logrus.Logger
	deps      ServerDeps
	keepalive time.Duration
	server    *http.Server
}

func NewServer(deps ServerDeps, logger *logrus.Logger) *Server {
	if deps.JobContext == nil {
		deps.JobContext = context.Background()
	}
	if deps.Config.WebhookMaxBodyBytes <= 0 {
		deps.Config.WebhookMaxBodyBytes = constants.DefaultWebhookMaxBodyBytes
	}
	keepalive := time.Duration(deps.Config.StatusStreamKeepalive) * time.Second
	if keepalive <= 0 {
		keepalive = constants.DefaultStatusStreamKeepaliveSec * time.Second
	}

	s := &Server{
		router:    mux.NewRouter(),
		logger:    logger,
		deps:      deps,
		keepalive: keepalive,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Observability(s.logger))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/whatsapp").Subrouter()
	api.HandleFunc("/status", s.handleStatus()).Methods(http.MethodGet)
	api.HandleFunc("/status/stream", s.handleStatusStream()).Methods(http.MethodGet)
	api.HandleFunc("/status/ws", s.handleStatusSocket()).Methods(http.MethodGet)
	api.HandleFunc("/initialize", s.handleInitialize()).Methods(http.MethodPost)
	api.HandleFunc("/disconnect", s.handleDisconnect()).Methods(http.MethodPost)
	api.HandleFunc("/send", s.handleSend()).Methods(http.MethodPost)
	api.HandleFunc("/send-bulk", s.handleSendBulk()).Methods(http.MethodPost)
	api.HandleFunc("/stats", s.handleStats()).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{name}/run", s.handleRunJob()).Methods(http.MethodPost)

	s.router.HandleFunc("/webhook/waha", s.handleWebhook()).Methods(http.MethodPost)
}

func (s *Server) Start() error {
	cfg := s.deps.Config
	port := cfg.Port
	if port <= 0 {
		port = constants.DefaultServerPort
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  secondsOr(cfg.ReadTimeoutSec, constants.DefaultServerReadTimeoutSec),
		WriteTimeout: secondsOr(cfg.WriteTimeoutSec, constants.DefaultServerWriteTimeoutSec),
		IdleTimeout:  secondsOr(cfg.IdleTimeoutSec, constants.DefaultServerIdleTimeoutSec),
	}

	s.logger.Infof("Starting server on port %d", port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func secondsOr(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, r, http.StatusOK, map[string]interface{}{
			"status":   "ok",
			"provider": s.deps.Provider.Name(),
			"ready":    s.deps.Provider.IsReady(),
		})
	}
}

func (s *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, r, http.StatusOK, s.deps.Provider.GetStatus())
	}
}

func (s *Server) handleInitialize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.deps.Provider.Initialize(r.Context()); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, r, http.StatusOK, s.deps.Provider.GetStatus())
	}
}

func (s *Server) handleDisconnect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.deps.Provider.Disconnect(r.Context()); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, r, http.StatusOK, s.deps.Provider.GetStatus())
	}
}

func (s *Server) handleSend() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var msg gateway.OutboundMessage
		if err := s.decodeJSON(w, r, &msg); err != nil {
			s.writeError(w, r, err)
			return
		}
		if msg.Category == "" {
			msg.Category = models.CategoryManual
		}

		result, err := s.deps.Provider.SendMessage(r.Context(), msg)
		switch {
		case err == nil:
			s.writeJSON(w, r, http.StatusOK, result)
		case result != nil && result.Queued:
			s.writeJSON(w, r, http.StatusAccepted, result)
		default:
			s.writeError(w, r, err)
		}
	}
}

type bulkRequest struct {
	Messages []gateway.OutboundMessage `json:"messages"`
}

type bulkResponse struct {
	Results []gateway.DeliveryResult `json:"results"`
	Sent    int                      `json:"sent"`
	Failed  int                      `json:"failed"`
}

func (s *Server) handleSendBulk() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bulkRequest
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if len(req.Messages) == 0 {
			s.writeJSON(w, r, http.StatusOK, bulkResponse{Results: []gateway.DeliveryResult{}})
			return
		}
		for i := range req.Messages {
			if req.Messages[i].Category == "" {
				req.Messages[i].Category = models.CategoryBroadcast
			}
		}

		// Bulk sends are paced and can outlast the server write timeout
		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

		resp := bulkResponse{Results: s.deps.Provider.SendBulkMessages(r.Context(), req.Messages)}
		for _, result := range resp.Results {
			if result.Success {
				resp.Sent++
			} else {
				resp.Failed++
			}
		}
		s.writeJSON(w, r, http.StatusOK, resp)
	}
}

type statsResponse struct {
	Provider gateway.Status        `json:"provider"`
	Messages *models.MessageStats  `json:"messages,omitempty"`
	Jobs     []service.JobSchedule `json:"jobs,omitempty"`
}

func (s *Server) handleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := statsResponse{Provider: s.deps.Provider.GetStatus()}
		if s.deps.Stats != nil {
			stats, err := s.deps.Stats.Stats(r.Context())
			if err != nil {
				s.writeError(w, r, errors.NewDatabaseError("stats", err))
				return
			}
			resp.Messages = stats
		}
		if s.deps.Jobs != nil {
			resp.Jobs = s.deps.Jobs.Schedule()
		}
		s.writeJSON(w, r, http.StatusOK, resp)
	}
}

func (s *Server) handleRunJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]

		var job *service.Job
		ok := false
		if s.deps.Jobs != nil {
			job, ok = s.deps.Jobs.Job(name)
		}
		if !ok {
			s.writeError(w, r, errors.New(errors.ErrCodeNotFound, "unknown job").
				WithContext("job", name).
				WithUserMessage(fmt.Sprintf("Job %s is not registered", name)))
			return
		}

		if !job.Start(s.deps.JobContext) {
			conflict := errors.New(errors.ErrCodeInvalidInput, "job already running").
				WithContext("job", name).
				WithUserMessage(fmt.Sprintf("Job %s is already running", name))
			s.writeJSON(w, r, http.StatusConflict, errors.ToHTTPResponse(conflict, tracing.RequestID(r.Context())))
			return
		}

		s.writeJSON(w, r, http.StatusAccepted, map[string]string{
			"job":    name,
			"status": "started",
		})
	}
}

func (s *Server) handleWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Webhook == nil {
			s.writeError(w, r, errors.New(errors.ErrCodeNotFound, "webhook not available").
				WithUserMessage(fmt.Sprintf("Provider %s does not receive webhooks", s.deps.Provider.Name())))
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, int64(s.deps.Config.WebhookMaxBodyBytes))
		body, err := verifySignature(r, s.deps.WebhookSecret)
		if err != nil {
			s.writeError(w, r, errors.Wrap(err, errors.ErrCodeAuthentication, "webhook signature verification failed").
				WithUserMessage("Unauthorized"))
			return
		}

		var event types.WebhookEvent
		if err := json.Unmarshal(body, &event); err != nil {
			s.writeError(w, r, errors.NewValidationError("body", "", "invalid JSON"))
			return
		}

		if err := s.deps.Webhook.HandleWebhook(r.Context(), &event); err != nil {
			if stderrors.Is(err, whatsapp.ErrNoHandler) {
				s.logger.WithFields(logrus.Fields{
					service.LogFieldRequestID: tracing.RequestID(r.Context()),
					"event":                   event.Event,
				}).Debug("Ignoring unhandled webhook event")
				s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ignored"})
				return
			}
			s.writeError(w, r, err)
			return
		}

		s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.deps.Config.WebhookMaxBodyBytes))
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.NewValidationError("body", "", "invalid JSON")
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithFields(logrus.Fields{
			service.LogFieldRequestID: tracing.RequestID(r.Context()),
			service.LogFieldError:     err,
		}).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatusCode(err)
	logger := s.logger.WithField(service.LogFieldRequestID, tracing.RequestID(r.Context()))
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway && status != http.StatusServiceUnavailable {
		errors.LogError(logger, err, "Request failed")
	} else {
		errors.LogWarn(logger, err, "Request rejected")
	}
	s.writeJSON(w, r, status, errors.ToHTTPResponse(err, tracing.RequestID(r.Context())))
}
