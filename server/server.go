// Package server implements the gateway: connection lifecycle, session
// registry, command dispatch and disconnect recovery.
//
// Each connection runs one read pump and one write pump. Messages on a
// connection are handled one at a time in arrival order; handling may
// await a backend call. Across connections handling interleaves freely:
// the registry is the only shared state and cross-connection operations
// (KILL, broadcast, QUIT) read-then-act, so a concurrently departed
// target simply turns into a no-op.
package server

import (
	"context"
	"log"
	"sync"

	"dronegate/client/wheatley"
	"dronegate/config"
	"dronegate/geo"
)

// Server is the gateway process state.
type Server struct {
	cfg      *config.Config
	backend  *wheatley.Client
	registry *Registry
	hq       geo.Coordinate
	handlers map[string]handlerFunc

	mtx    sync.RWMutex
	conns  map[string]*conn
	closed bool

	done     chan struct{}
	shutdown sync.Once
}

// New wires a server to its backend client and configuration.
func New(cfg *config.Config, backend *wheatley.Client) *Server {
	s := &Server{
		cfg:      cfg,
		backend:  backend,
		registry: NewRegistry(),
		hq:       geo.Coordinate{Lat: cfg.Geofence.HQLat, Lng: cfg.Geofence.HQLng},
		conns:    make(map[string]*conn),
		done:     make(chan struct{}),
	}
	backend.Observe = func(op string, err error) {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		backendRequests.WithLabelValues(op, outcome).Inc()
	}
	s.handlers = map[string]handlerFunc{
		"LOGIN":                s.handleLogin,
		"KILL":                 s.handleKill,
		"CREATE_ORDER":         s.handleCreateOrder,
		"CREATE_DRONE":         s.handleCreateDrone,
		"UPDATE_ORDER":         s.handleUpdateOrder,
		"UPDATE_DRONE":         s.handleUpdateDrone,
		"GET_ALL_ORDERS":       s.handleGetAllOrders,
		"CURRENTLY DELIVERING": s.handleCurrentlyDelivering,
		"DRONE STATUS":         s.handleDroneStatus,
		"GET_ALL_DRONES":       s.handleGetAllDrones,
		"GET_USER":             s.handleGetUser,
		"QUIT":                 s.handleQuit,
	}
	return s
}

// Registry exposes the session table for health reporting and tests.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Done is closed once the server has shut down (QUIT or signal).
func (s *Server) Done() <-chan struct{} {
	return s.done
}

func (s *Server) addConn(c *conn) {
	s.mtx.Lock()
	s.conns[c.id] = c
	s.mtx.Unlock()
}

func (s *Server) removeConn(c *conn) {
	s.mtx.Lock()
	delete(s.conns, c.id)
	s.mtx.Unlock()
}

func (s *Server) connByID(id string) *conn {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.conns[id]
}

func (s *Server) closing() bool {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.closed
}

// Broadcast sends one reply to every registered session. Sends are best
// effort and isolated: one slow or closed connection never stops the rest.
func (s *Server) Broadcast(r *Reply) {
	s.registry.ForEach(func(id string, _ *Session) {
		if c := s.connByID(id); c != nil {
			c.send(r)
		}
	})
}

// Shutdown broadcasts SERVER_SHUTDOWN, closes every connection and stops
// accepting new ones. Every session receives the broadcast before its
// connection closes: close only seals the outbound buffer, and the write
// pump flushes queued frames first.
func (s *Server) Shutdown() {
	s.shutdown.Do(func() {
		s.mtx.Lock()
		s.closed = true
		conns := make([]*conn, 0, len(s.conns))
		for _, c := range s.conns {
			conns = append(conns, c)
		}
		s.mtx.Unlock()

		s.Broadcast(&Reply{Status: StatusInfo, Cmd: "SERVER_SHUTDOWN"})
		for _, c := range conns {
			c.close()
		}

		log.Printf("[server] shutting down, closed %d connections", len(conns))
		close(s.done)
	})
}

// handleDisconnect removes the departing session and recovers an
// abandoned delivery. A connection that never logged in, or whose entry
// was already removed by KILL, is a no-op.
func (s *Server) handleDisconnect(c *conn) {
	sess, ok := s.registry.Remove(c.id)
	if !ok {
		return
	}
	sessionsActive.Dec()
	s.recoverDelivery(context.Background(), sess)
}
