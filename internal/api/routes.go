package api

import (
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/hanifka/lentera/internal/auth"
	"github.com/hanifka/lentera/internal/session"
	"github.com/hanifka/lentera/internal/websocket"
	"github.com/hanifka/lentera/usecase"
)

// Server binds the HTTP surface to the live session and the history store.
type Server struct {
	orchestrator *session.Orchestrator
	history      *usecase.HistoryService
	hub          *websocket.Hub
	logger       *zap.Logger
}

// NewServer creates the API server
func NewServer(
	orchestrator *session.Orchestrator,
	history *usecase.HistoryService,
	hub *websocket.Hub,
	logger *zap.Logger,
) *Server {
	return &Server{
		orchestrator: orchestrator,
		history:      history,
		hub:          hub,
		logger:       logger,
	}
}

// InitRoutes initializes all API routes
func (s *Server) InitRoutes(e *echo.Echo) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "lentera-server",
		})
	})

	// API v1 routes
	v1 := e.Group("/api/v1")

	// Observer and admin auth
	v1.POST("/auth/observer", s.observerAuth)
	v1.POST("/auth/admin", s.adminAuth)

	// Live session control
	v1.GET("/session", s.sessionStatus)
	v1.POST("/session/start", s.startSession)
	v1.POST("/session/stop", s.stopSession)
	v1.POST("/session/text", s.sendText)
	v1.POST("/session/camera", s.switchCamera)
	v1.GET("/session/cameras", s.listCameras)

	// Saved session history; reads are open to any authenticated role,
	// deletion requires an admin token.
	v1.GET("/sessions", s.listSessions, s.requireRole("observer", "admin"))
	v1.GET("/sessions/:id", s.getSession, s.requireRole("observer", "admin"))
	v1.DELETE("/sessions/:id", s.deleteSession, s.requireRole("admin"))

	// WebSocket endpoint with JWT validation
	e.GET("/ws", s.websocketWithAuth)
}

func (s *Server) observerAuth(c echo.Context) error {
	var req ObserverAuthRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Error("Failed to bind observer auth request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if req.ObserverID == "" || req.AccessKey == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Observer ID and access key are required",
		})
	}

	expected := os.Getenv("OBSERVER_ACCESS_KEY")
	if expected == "" || req.AccessKey != expected {
		s.logger.Warn("Observer authentication failed",
			zap.String("observer_id", req.ObserverID))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "Invalid observer credentials",
		})
	}

	token, err := auth.GenerateObserverToken(req.ObserverID)
	if err != nil {
		s.logger.Error("Failed to generate observer token",
			zap.String("observer_id", req.ObserverID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	// Expiration matches the token claims.
	expiresAt := time.Now().Add(24 * time.Hour)

	s.logger.Info("Observer authenticated successfully",
		zap.String("observer_id", req.ObserverID))

	return c.JSON(http.StatusOK, ObserverAuthResponse{
		Token:      token,
		ExpiresAt:  expiresAt,
		ObserverID: req.ObserverID,
	})
}

func (s *Server) adminAuth(c echo.Context) error {
	var req AdminAuthRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Error("Failed to bind admin auth request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if req.ObserverID == "" || req.AccessKey == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Observer ID and access key are required",
		})
	}

	expected := os.Getenv("ADMIN_ACCESS_KEY")
	if expected == "" || req.AccessKey != expected {
		s.logger.Warn("Admin authentication failed",
			zap.String("observer_id", req.ObserverID))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "Invalid admin credentials",
		})
	}

	token, err := auth.GenerateAdminToken(req.ObserverID)
	if err != nil {
		s.logger.Error("Failed to generate admin token",
			zap.String("observer_id", req.ObserverID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	// Expiration matches the token claims.
	expiresAt := time.Now().Add(7 * 24 * time.Hour)

	s.logger.Info("Admin authenticated successfully",
		zap.String("observer_id", req.ObserverID))

	return c.JSON(http.StatusOK, ObserverAuthResponse{
		Token:      token,
		ExpiresAt:  expiresAt,
		ObserverID: req.ObserverID,
	})
}

// requireRole validates the bearer token and checks its role claim
// against the allowed set.
func (s *Server) requireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var token string
			authHeader := c.Request().Header.Get("Authorization")
			if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
				token = authHeader[7:]
			}
			if token == "" {
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "missing_token",
					Message: "JWT token is required",
				})
			}

			claims, err := auth.ValidateToken(token)
			if err != nil {
				s.logger.Warn("Request rejected: invalid token", zap.Error(err))
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "invalid_token",
					Message: "Invalid or expired JWT token",
				})
			}

			allowed := false
			for _, role := range roles {
				if claims.Role == role {
					allowed = true
					break
				}
			}
			if !allowed {
				s.logger.Warn("Request rejected: insufficient role",
					zap.String("observer_id", claims.ObserverID),
					zap.String("role", claims.Role))
				return c.JSON(http.StatusForbidden, ErrorResponse{
					Error:   "forbidden",
					Message: "Token role is not permitted for this endpoint",
				})
			}
			return next(c)
		}
	}
}

func (s *Server) sessionStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, SessionStatusResponse{
		State:     string(s.orchestrator.State()),
		SessionID: s.orchestrator.SessionID(),
		Speaking:  s.orchestrator.Speaking(),
		Quality:   s.orchestrator.Quality(),
		Observers: s.hub.ObserverCount(),
	})
}

func (s *Server) startSession(c echo.Context) error {
	if err := s.orchestrator.Start(c.Request().Context()); err != nil {
		if err == session.ErrSessionActive {
			return c.JSON(http.StatusConflict, ErrorResponse{
				Error:   "session_active",
				Message: "A session is already connecting or connected",
			})
		}
		s.logger.Error("Failed to start session", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "start_failed",
			Message: err.Error(),
		})
	}
	return s.sessionStatus(c)
}

func (s *Server) stopSession(c echo.Context) error {
	sessionID := s.orchestrator.SessionID()
	messages := s.orchestrator.Transcript()
	s.orchestrator.Stop()

	if _, err := s.history.SaveConversation(c.Request().Context(), sessionID, messages); err != nil {
		s.logger.Error("Failed to save stopped session",
			zap.String("sessionID", sessionID),
			zap.Error(err))
		// The session is stopped regardless; report the save failure.
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "save_failed",
			Message: "Session stopped but could not be saved",
		})
	}
	return s.sessionStatus(c)
}

func (s *Server) sendText(c echo.Context) error {
	var req SendTextRequest
	if err := c.Bind(&req); err != nil || req.Text == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Text is required",
		})
	}

	if err := s.orchestrator.SendText(req.Text); err != nil {
		if err == session.ErrNotConnected {
			return c.JSON(http.StatusConflict, ErrorResponse{
				Error:   "not_connected",
				Message: "No connected session",
			})
		}
		s.logger.Error("Failed to send text turn", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "send_failed",
			Message: err.Error(),
		})
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) switchCamera(c echo.Context) error {
	var req SwitchCameraRequest
	if err := c.Bind(&req); err != nil || req.DeviceID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Device ID is required",
		})
	}

	if err := s.orchestrator.SwitchCamera(c.Request().Context(), req.DeviceID); err != nil {
		if err == session.ErrNotConnected {
			return c.JSON(http.StatusConflict, ErrorResponse{
				Error:   "not_connected",
				Message: "No connected session",
			})
		}
		s.logger.Error("Failed to switch camera",
			zap.String("deviceID", req.DeviceID),
			zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "switch_failed",
			Message: err.Error(),
		})
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listCameras(c echo.Context) error {
	devices, err := s.orchestrator.Cameras(c.Request().Context())
	if err != nil {
		s.logger.Error("Failed to enumerate cameras", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "enumeration_failed",
			Message: err.Error(),
		})
	}
	return c.JSON(http.StatusOK, devices)
}

func (s *Server) listSessions(c echo.Context) error {
	sessions, err := s.history.List(c.Request().Context())
	if err != nil {
		s.logger.Error("Failed to list sessions", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "list_failed",
			Message: "Failed to list saved sessions",
		})
	}

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, saved := range sessions {
		summaries = append(summaries, SessionSummary{
			ID:        saved.ID,
			Timestamp: saved.Timestamp,
			Preview:   saved.Preview,
			Summary:   saved.Summary,
			Messages:  len(saved.Messages),
		})
	}
	return c.JSON(http.StatusOK, summaries)
}

func (s *Server) getSession(c echo.Context) error {
	saved, err := s.history.Resume(c.Request().Context(), c.Param("id"))
	if err != nil {
		s.logger.Error("Failed to load session",
			zap.String("sessionID", c.Param("id")),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "load_failed",
			Message: "Failed to load saved session",
		})
	}
	if saved == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "No such session",
		})
	}
	return c.JSON(http.StatusOK, saved)
}

func (s *Server) deleteSession(c echo.Context) error {
	if err := s.history.Delete(c.Request().Context(), c.Param("id")); err != nil {
		s.logger.Error("Failed to delete session",
			zap.String("sessionID", c.Param("id")),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "delete_failed",
			Message: "Failed to delete saved session",
		})
	}
	return c.NoContent(http.StatusNoContent)
}

// websocketWithAuth handles observer WebSocket connections with JWT
// authentication
func (s *Server) websocketWithAuth(c echo.Context) error {
	// Extract JWT token from Authorization header or query parameter;
	// browser WebSocket clients cannot set headers.
	var token string
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader != "" && len(authHeader) > 7 && authHeader[:7] == "Bearer " {
		token = authHeader[7:]
	}
	if token == "" {
		token = c.QueryParam("token")
	}

	if token == "" {
		s.logger.Warn("WebSocket connection rejected: missing token")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required",
		})
	}

	claims, err := auth.ValidateToken(token)
	if err != nil {
		s.logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}

	observerID := claims.ObserverID
	if observerID == "" {
		s.logger.Error("WebSocket connection rejected: missing observer ID in token")
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_token_claims",
			Message: "Observer ID not found in token",
		})
	}

	s.logger.Info("WebSocket connection authenticated",
		zap.String("observer_id", observerID),
		zap.String("role", claims.Role))

	return websocket.HandleWebSocket(s.hub, c, observerID, s.logger)
}
