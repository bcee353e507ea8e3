package resume

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"

	"github.com/playbookrun/controller/common/gerror"
	"github.com/playbookrun/controller/common/logger"
)

// webhookPayload is the shape of a single Firestore-write notification for an
// `…/inputs/*` document, as delivered by the Eventarc/Cloud Function push subscription this
// handler stands in for.
type webhookPayload struct {
	OrgID      string `json:"orgId"`
	RunID      string `json:"runId"`
	StepID     string `json:"stepId"`
	QuestionID string `json:"questionId"`
}

// Server is the resume trigger's standalone HTTP surface: one webhook route plus a /healthz
// liveness endpoint. It serves no readiness or metrics endpoint.
type Server struct {
	httpServer *http.Server
	log        logger.Log
}

func NewServer(addr string, namespace string, trigger *Trigger, logFactory logger.LogFactory) *Server {
	log := logFactory("resume-http")

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"POST"}}))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		render.JSON(w, req, map[string]string{"status": "ok"})
	})

	r.Post("/webhooks/input-written", func(w http.ResponseWriter, req *http.Request) {
		var payload webhookPayload
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeErr(w, req, log, gerror.NewErrValidationFailed("malformed webhook payload").Wrap(err))
			return
		}
		n := Notification{
			OrgID:      payload.OrgID,
			RunID:      payload.RunID,
			StepID:     payload.StepID,
			QuestionID: payload.QuestionID,
			Namespace:  namespace,
		}
		if err := trigger.HandleInputWritten(req.Context(), n); err != nil {
			writeErr(w, req, log, err)
			return
		}
		render.Status(req, http.StatusAccepted)
		render.JSON(w, req, map[string]string{"status": "accepted"})
	})

	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second},
		log:        log,
	}
}

func (s *Server) Start() {
	s.log.WithField("address", s.httpServer.Addr).Info("resume trigger listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.log.WithField("error", err).Error("resume trigger exited")
	}
}

func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeErr(w http.ResponseWriter, r *http.Request, log logger.Log, err error) {
	var gerr gerror.Error
	if !stderrors.As(err, &gerr) {
		gerr = gerror.NewErrInternal().Wrap(err)
	}
	log.WithField("error", err).WithField("code", gerr.Code()).Warn("resume webhook request failed")
	render.Status(r, gerr.HTTPStatusCode())
	render.JSON(w, r, map[string]string{"error": gerr.Message()})
}
