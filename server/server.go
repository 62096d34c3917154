package server

import (
	"context"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"pixgate/audit"
	"pixgate/dashboard"
	"pixgate/internal"
	"pixgate/internal/config"
	"pixgate/payments"
	"pixgate/providers"
	"pixgate/security"
	"pixgate/utility"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

const (
	wsEndpoint    = "/ws/dashboard"
	sessionCookie = "pix_session"
)

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	upgrader   websocket.Upgrader
	logger     internal.LogHandler
	database   internal.Database
	tokens     *security.TokenService
	payments   *payments.Service
	audit      *audit.Service
	dashboard  *dashboard.Builder
	manager    *providers.Manager
	health     *providers.HealthMonitor
	hub        *Hub
	limiter    *rateLimiter
	proxies    trustedProxies
	pages      *template.Template
	location   *time.Location
	now        func() time.Time
}

type WebSocket struct {
	conn  *websocket.Conn
	id    string
	scope dashboard.Scope
	send  chan []byte
}

func (ws *WebSocket) ID() string {
	return ws.id
}

func NewServer(conf *config.Config, database internal.Database, tokens *security.TokenService) *Server {
	server := Server{
		conf:     conf,
		database: database,
		tokens:   tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		limiter:  newRateLimiter(conf.RateLimit.Rps, conf.RateLimit.Burst),
		proxies:  parseTrustedProxies(conf.Listen.TrustedProxies),
		pages:    parsePages(),
		location: time.UTC,
		now:      time.Now,
	}
	if loc, err := time.LoadLocation(conf.TimeZone); err == nil {
		server.location = loc
	}
	// the feed authenticates with the session cookie, so foreign pages must not open it
	server.upgrader.CheckOrigin = func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || server.originAllowed(r, origin)
	}
	// register itself as a router for httpServer handler
	router := httprouter.New()
	server.Register(router)
	server.httpServer = &http.Server{
		Handler:      server.chain(router),
		ReadTimeout:  conf.Listen.ReadTimeout,
		WriteTimeout: conf.Listen.WriteTimeout,
	}
	return &server
}

func (s *Server) SetLogger(logger internal.LogHandler) {
	s.logger = logger
}

func (s *Server) SetPaymentService(service *payments.Service) {
	s.payments = service
}

func (s *Server) SetAuditService(service *audit.Service) {
	s.audit = service
}

func (s *Server) SetDashboard(builder *dashboard.Builder) {
	s.dashboard = builder
}

func (s *Server) SetProviders(manager *providers.Manager, health *providers.HealthMonitor) {
	s.manager = manager
	s.health = health
}

func (s *Server) SetHub(hub *Hub) {
	s.hub = hub
}

// Handler is the full middleware chain around the router
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Register(router *httprouter.Router) {
	s.registerWeb(router)
	s.registerApi(router)
	router.GET(wsEndpoint, s.handleWsRequest)
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

func (s *Server) handleWsRequest(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	identity, err := s.sessionIdentity(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "session required")
		return
	}
	if !identity.IsAdmin() && identity.MerchantId == "" {
		writeError(w, http.StatusForbidden, "merchant is required")
		return
	}
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "dashboard feed is not available")
		return
	}
	s.logger.Debug(fmt.Sprintf("dashboard feed initiated from remote %s", r.RemoteAddr))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("upgrade failed: ", err)
		return
	}

	ws := &WebSocket{
		conn:  conn,
		id:    identity.UserId,
		scope: identity.Scope(),
		send:  make(chan []byte, 8),
	}
	s.hub.Join(ws)
	go s.messageWriter(ws)
	go s.messageReader(ws)
}

// messageReader drains client frames; the feed is server push only
func (s *Server) messageReader(ws *WebSocket) {
	conn := ws.conn
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug(fmt.Sprintf("user %s leaving dashboard feed", ws.id))
			} else {
				s.logger.Debug(fmt.Sprintf("user %s is closing dashboard feed %s", ws.id, err))
			}
			s.hub.Leave(ws)
			return
		}
		s.logger.RawDataEvent("IN", string(message))
	}
}

func (s *Server) messageWriter(ws *WebSocket) {
	defer func() {
		if err := ws.conn.Close(); err != nil {
			s.logger.Warn(fmt.Sprintf("error while closing socket %s %s", ws.id, err))
		}
	}()
	for data := range ws.send {
		_ = ws.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := ws.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.logger.Warn(fmt.Sprintf("sending dashboard update to %s: %s", ws.id, err))
			s.hub.Leave(ws)
			return
		}
	}
	_ = ws.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (s *Server) Start() error {
	if s.conf == nil {
		return utility.Err("configuration not loaded")
	}
	serverAddress := fmt.Sprintf("%s:%s", s.conf.Listen.BindIP, s.conf.Listen.Port)
	s.logger.Debug(fmt.Sprintf("starting server on %s", serverAddress))
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}
	if s.conf.Listen.TLS {
		s.logger.Debug("starting https TLS server")
		err = s.httpServer.ServeTLS(listener, s.conf.Listen.CertFile, s.conf.Listen.KeyFile)
	} else {
		s.logger.Debug("starting http server")
		err = s.httpServer.Serve(listener)
	}
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
