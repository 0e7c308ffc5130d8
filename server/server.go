package server

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/wfunc/petlobby/auth"
	"github.com/wfunc/petlobby/broadcast"
	"github.com/wfunc/petlobby/config"
	"github.com/wfunc/petlobby/coordinator"
	"github.com/wfunc/petlobby/logger"
	"github.com/wfunc/petlobby/monitor"
	"github.com/wfunc/petlobby/network"
	"github.com/wfunc/petlobby/persistence"
	"github.com/wfunc/petlobby/room"
	"github.com/wfunc/petlobby/rpc"
	"github.com/wfunc/petlobby/services"
	"github.com/wfunc/petlobby/session"
	"github.com/wfunc/petlobby/timer"
)

type GameServer struct {
	cfg            *config.Config
	upgrader       websocket.Upgrader
	router         *mux.Router
	gatekeeper     *auth.Gatekeeper
	roomManager    *room.Manager
	sessionManager *session.Manager
	entityService  *services.EntityService
	coordinator    *coordinator.Coordinator
	monitor        *monitor.Monitor
	timers         *timer.TimerManager
	httpServer     *http.Server
	rpcServer      *rpc.Server
	shutdownOnce   sync.Once
	shutdownChan   chan struct{}
}

func NewGameServer(cfg *config.Config, db persistence.Database) *GameServer {
	s := &GameServer{
		cfg:            cfg,
		gatekeeper:     auth.NewGatekeeper(auth.NewCookieVerifier(cfg.Auth.CookieName)),
		roomManager:    room.NewRoomManager(),
		sessionManager: session.NewManager(),
		entityService:  services.NewEntityService(db),
		monitor:        monitor.NewMonitor(cfg.Monitor.Namespace),
		timers:         timer.NewTimerManager(100 * time.Millisecond),
		shutdownChan:   make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	// 初始化广播器
	broadcaster := broadcast.NewRoomBroadcaster(s.roomManager, s.sessionManager)
	broadcaster.OnSendError(func(connID string, err error) {
		if errors.Is(err, network.ErrSendBufferFull) {
			// 在房间读锁内回调，断开必须异步
			go s.dropSlowConnection(connID)
		}
	})

	s.coordinator = coordinator.New(coordinator.Options{
		Rooms:            s.roomManager,
		Sessions:         s.sessionManager,
		Broadcaster:      broadcaster,
		Entities:         s.entityService,
		Recorder:         s.entityService,
		Timers:           s.timers,
		Monitor:          s.monitor,
		ChallengeTimeout: cfg.Lobby.ChallengeTimeout,
	})

	s.router = s.routes()
	return s
}

func (s *GameServer) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	r.HandleFunc("/api/socket/emit/{event}", s.handleAdminEmit).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.monitor.Handler())
	r.Handle("/debug/vars", expvar.Handler())
	return r
}

// Handler exposes the HTTP routes.
func (s *GameServer) Handler() http.Handler {
	return s.router
}

func (s *GameServer) Coordinator() *coordinator.Coordinator {
	return s.coordinator
}

// Start serves gRPC in the background and HTTP until Shutdown.
func (s *GameServer) Start() error {
	rpcServer, err := rpc.NewServer(s.cfg.Server.RPCAddress, s.coordinator, s.cfg.Admin.Token)
	if err != nil {
		return err
	}
	s.rpcServer = rpcServer
	go s.rpcServer.Start()

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.HTTPAddress,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Log.Infof("Game server listening on %s", s.cfg.Server.HTTPAddress)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and closes every live one.
func (s *GameServer) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
		if s.rpcServer != nil {
			s.rpcServer.Stop()
		}
		if s.httpServer != nil {
			err = s.httpServer.Shutdown(ctx)
		}
		// 升级后的连接不受 http.Server 管理
		for _, sess := range s.sessionManager.All() {
			shutdownConn(sess.Conn)
		}
		s.timers.Stop()
	})
	return err
}

func (s *GameServer) checkOrigin(r *http.Request) bool {
	allowed := s.cfg.Server.AllowedOrigins
	if len(allowed) == 0 {
		return true // 允许所有跨域请求
	}
	origin := r.Header.Get("Origin")
	return origin == "" || lo.Contains(allowed, origin)
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity, err := s.gatekeeper.Admit(r)
	if err != nil {
		reason := "invalid_session"
		if errors.Is(err, auth.ErrAuthenticationRequired) {
			reason = "authentication_required"
		}
		s.monitor.IncRejectedConnection(reason)
		logger.Log.Debugw("connection rejected", "remote", r.RemoteAddr, "error", err)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.monitor.IncRejectedConnection("upgrade")
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn, identity)
}

func (s *GameServer) handleConnection(conn *websocket.Conn, identity auth.Identity) {
	wsConn := network.NewWSConnection(conn, s.cfg.Server.SendBuffer, s.cfg.Server.MaxMessageSize)
	wsConn.SetHeartbeat(s.cfg.Server.HeartbeatInterval)

	sess := session.NewSession(uuid.New().String(), wsConn)
	sess.SessionID = identity.SessionID
	sess.Authenticated = identity.Authenticated

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		wsConn.WritePump()
	}()

	s.coordinator.Connect(sess)
	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		s.coordinator.Disconnect(sess.GetID())
		wsConn.Close()
		select {
		case <-pumpDone:
		case <-time.After(time.Second):
		}
		_ = wsConn.Shutdown()
		logger.Log.Infof("Connection closed from %s, session ID: %s, lasted %s",
			wsConn.RemoteAddr(), sess.GetID(), time.Since(sess.CreatedAt).Round(time.Millisecond))
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
		}

		packet, err := wsConn.ReadPacket()
		if err != nil {
			if errors.Is(err, network.ErrMalformedFrame) {
				logger.Log.Debugw("malformed frame", "conn", sess.GetID(), "error", err)
				s.replyError(sess, coordinator.ErrInvalidPayload)
				continue
			}
			return
		}
		s.handlePacket(sess, packet)
	}
}

func (s *GameServer) dropSlowConnection(connID string) {
	sess, ok := s.sessionManager.Get(connID)
	if !ok {
		return
	}
	logger.Log.Warnw("dropping slow connection", "conn", connID)
	shutdownConn(sess.Conn)
}

// shutdownConn closes the socket so the read loop ends and cleanup runs.
func shutdownConn(conn network.Connection) {
	if ws, ok := conn.(*network.WSConnection); ok {
		_ = ws.Shutdown()
		return
	}
	_ = conn.Close()
}

func (s *GameServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
