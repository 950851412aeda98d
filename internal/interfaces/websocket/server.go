package websocket

import (
	"net/http"
	"slices"

	"coauthor-backend/pkg/auth"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ServerConfig holds WebSocket server configuration.
type ServerConfig struct {
	ReadBufferSize           int
	WriteBufferSize          int
	SendBufferSize           int
	AllowedOrigins           []string
	MaxConnections           int
	MaxConnectionsPerSubject int
}

// DefaultServerConfig returns default WebSocket server configuration.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadBufferSize:           1024,
		WriteBufferSize:          1024,
		SendBufferSize:           defaultSendBufferSize,
		AllowedOrigins:           []string{"*"},
		MaxConnections:           10000,
		MaxConnectionsPerSubject: 10,
	}
}

// Server upgrades HTTP requests to hub connections.
type Server struct {
	hub       *Hub
	upgrader  websocket.Upgrader
	config    *ServerConfig
	validator *auth.Validator
	logger    *zap.Logger
}

// NewServer creates the upgrade handler. A nil validator accepts anonymous
// connections.
func NewServer(hub *Hub, validator *auth.Validator, config *ServerConfig, logger *zap.Logger) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	return &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     originChecker(config.AllowedOrigins),
		},
		config:    config,
		validator: validator,
		logger:    logger.Named("websocket"),
	}
}

// HandleWebSocket handles WebSocket upgrade requests.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	subject, err := s.authenticate(r)
	if err != nil {
		s.logger.Warn("WebSocket authentication failed",
			zap.Error(err),
			zap.String("remoteAddr", r.RemoteAddr),
		)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if s.config.MaxConnections > 0 && s.hub.Count() >= s.config.MaxConnections {
		s.logger.Warn("Connection limit reached", zap.Int("limit", s.config.MaxConnections))
		http.Error(w, "Connection limit exceeded", http.StatusServiceUnavailable)
		return
	}
	if subject != "" && s.config.MaxConnectionsPerSubject > 0 && s.hub.SubjectCount(subject) >= s.config.MaxConnectionsPerSubject {
		s.logger.Warn("Connection limit exceeded for participant",
			zap.String("participantID", subject),
			zap.Int("currentConnections", s.hub.SubjectCount(subject)),
		)
		http.Error(w, "Connection limit exceeded", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			zap.Error(err),
			zap.String("remoteAddr", r.RemoteAddr),
		)
		return
	}

	client := NewClient(subject, s.hub, conn, s.config.SendBufferSize, s.logger)
	client.Start()

	s.logger.Info("New WebSocket connection established",
		zap.String("participantID", subject),
		zap.String("connectionID", client.ID()),
		zap.String("remoteAddr", r.RemoteAddr),
	)
}

func (s *Server) authenticate(r *http.Request) (string, error) {
	if s.validator == nil {
		return "", nil
	}
	claims, err := s.validator.Validate(auth.TokenFromRequest(r))
	if err != nil {
		return "", err
	}
	return claims.ParticipantID(), nil
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
