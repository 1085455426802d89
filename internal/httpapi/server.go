package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/service"
	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/types"
)

// Probe reports whether the backing stores are reachable.
type Probe func(ctx context.Context) error

type Dependencies struct {
	Logger           *slog.Logger
	Addr             string
	HeartbeatService *service.HeartbeatService
	AccessService    *service.AccessService
	Health           Probe

	// KioskRate is the sustained requests per second allowed per kiosk.
	// Zero disables rate limiting.
	KioskRate  float64
	KioskBurst int
}

type Server struct {
	httpServer       *http.Server
	logger           *slog.Logger
	router           chi.Router
	heartbeatService *service.HeartbeatService
	accessService    *service.AccessService
	health           Probe
}

func NewServer(d Dependencies) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		logger:           logger.With("component", "httpapi"),
		router:           chi.NewRouter(),
		heartbeatService: d.HeartbeatService,
		accessService:    d.AccessService,
		health:           d.Health,
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(requestLogger(s.logger))

	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/v1", func(r chi.Router) {
		r.Use(kioskRateLimit(newKioskLimiter(d.KioskRate, d.KioskBurst)))
		r.Post("/checkin", s.handleCheckIn)
		r.Post("/kiosks/heartbeat", s.handleHeartbeat)
		r.Get("/members/{externalKey}/usage", s.handleUsage)
	})

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.logger.Warn("health probe failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req types.HeartbeatRequest
	if isProtobuf(r) {
		msg, err := readStruct(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_protobuf", "invalid protobuf body")
			return
		}
		req = heartbeatRequestFromStruct(msg)
	} else if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	resp, err := s.heartbeatService.Record(r.Context(), req)
	if err != nil {
		s.writeAppError(w, "heartbeat", err)
		return
	}

	if isProtobuf(r) {
		writeStruct(w, http.StatusOK, heartbeatResponseToMap(resp))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	var req types.CheckInRequest
	if isProtobuf(r) {
		msg, err := readStruct(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_protobuf", "invalid protobuf body")
			return
		}
		req = checkInRequestFromStruct(msg)
	} else if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	status := http.StatusOK
	resp, err := s.accessService.CheckIn(r.Context(), req)
	if err != nil {
		var appErr *types.AppError
		if !errors.As(err, &appErr) || resp.ReasonCode != types.ReasonSystemError {
			s.writeAppError(w, "checkin", err)
			return
		}
		// Infrastructure failures still carry a renderable denial.
		status = appErr.HTTPStatus()
	}

	if isProtobuf(r) {
		writeStruct(w, status, checkInResponseToMap(resp))
		return
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	resp, err := s.accessService.Usage(r.Context(), chi.URLParam(r, "externalKey"))
	if err != nil {
		s.writeAppError(w, "usage", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeAppError maps a service error onto the wire. Anything that is not an
// AppError is reported as an opaque 500.
func (s *Server) writeAppError(w http.ResponseWriter, op string, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		if appErr.HTTPStatus() >= http.StatusInternalServerError {
			s.logger.Error(op+" failed", "code", appErr.Code, "error", err)
		}
		writeError(w, appErr.HTTPStatus(), string(appErr.Code), appErr.Message)
		return
	}
	s.logger.Error(op+" error", "error", err)
	writeError(w, http.StatusInternalServerError, string(types.ErrCodeInternalUnexpected), "unexpected server error")
}
