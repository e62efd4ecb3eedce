package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"dronegate/client/wheatley"
	"dronegate/geo"
)

// handlerFunc handles one decoded command on one connection.
type handlerFunc func(ctx context.Context, c *conn, cmd *Command)

// dispatch processes one inbound envelope. It is the last line of defense:
// nothing a handler does may take down the connection, so decode failures
// and panics degrade to an ERROR reply and the loop moves on.
func (s *Server) dispatch(c *conn, raw []byte) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		protocolErrors.Inc()
		c.send(&Reply{Status: StatusError, Message: "Bad message format: " + err.Error()})
		return
	}

	h, ok := s.handlers[cmd.Cmd]
	if !ok {
		protocolErrors.Inc()
		c.send(&Reply{Status: StatusError, Message: "Unknown command"})
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[server] %s handler panic: %v", cmd.Cmd, r)
			c.send(&Reply{Status: StatusError, Message: "internal error"})
		}
	}()

	commandsTotal.WithLabelValues(cmd.Cmd).Inc()
	h(context.Background(), c, &cmd)
}

// okReply builds a success reply, leaving data out when the backend sent
// none.
func okReply(label string, data json.RawMessage) *Reply {
	r := &Reply{Status: StatusOK, Cmd: label}
	if data != nil {
		r.Data = data
	}
	return r
}

// backendError converts a backend failure into an ERROR reply carrying
// the backend's own payload when there is one.
func backendError(label string, err error) *Reply {
	var apiErr *wheatley.APIError
	if errors.As(err, &apiErr) && apiErr.Body != nil {
		return &Reply{Status: StatusError, Cmd: label, Data: apiErr.Body}
	}
	return &Reply{Status: StatusError, Cmd: label, Message: err.Error()}
}

func (s *Server) handleLogin(ctx context.Context, c *conn, cmd *Command) {
	username := cmd.str("username")
	password := cmd.str("password")
	studentnum := cmd.str("studentnum")

	cred, err := s.backend.Login(ctx, username, password, studentnum)
	if err != nil {
		if errors.Is(err, wheatley.ErrNoUser) {
			c.send(&Reply{Status: StatusError, Message: "Login failed: no user found"})
			return
		}
		c.send(backendError("", err))
		return
	}

	s.registry.Register(c.id, &Session{
		Username:   username,
		APIKey:     cred.APIKey,
		Role:       Role(cred.Type),
		StudentNum: studentnum,
	})
	sessionsActive.Inc()
	log.Printf("[server] %s logged in as %s (%s)", username, cred.Type, c.id)

	c.send(&Reply{Status: StatusOK, Cmd: "LOGGED IN " + username + " AS " + cred.Type})
}

// handleKill disconnects the session matching targetUsername. No match
// silently completes. The entry is removed before the target's read pump
// notices the close, so recovery runs exactly once, here.
func (s *Server) handleKill(ctx context.Context, c *conn, cmd *Command) {
	target := cmd.str("targetUsername")
	id, sess, ok := s.registry.FindByUsername(target)
	if !ok {
		return
	}

	if tc := s.connByID(id); tc != nil {
		tc.send(&Reply{Status: StatusInfo, Cmd: "KILLED"})
		tc.close()
	}
	if removed, ok := s.registry.Remove(id); ok {
		sessionsActive.Dec()
		s.recoverDelivery(ctx, removed)
	}

	c.sendText(fmt.Sprintf("User %s disconnected.\n", sess.Username))
}

func (s *Server) handleCreateOrder(ctx context.Context, c *conn, cmd *Command) {
	rsp, err := s.backend.Call(ctx, wheatley.OpCreateOrder, map[string]any{
		"apikey":      cmd.field("apikey"),
		"studentnum":  cmd.field("studentnum"),
		"customer_id": cmd.field("customer_id"),
	})
	if err != nil {
		c.send(backendError("CREATE_ORDER_RESULT", err))
		return
	}
	c.send(okReply("CREATE_ORDER_RESULT", rsp.Body))
}

func (s *Server) handleCreateDrone(ctx context.Context, c *conn, cmd *Command) {
	rsp, err := s.backend.Call(ctx, wheatley.OpCreateDrone, map[string]any{
		"apikey":     cmd.field("apikey"),
		"studentnum": cmd.field("studentnum"),
	})
	if err != nil {
		c.send(backendError("CREATE_DRONE_RESULT", err))
		return
	}
	c.send(okReply("CREATE_DRONE_RESULT", rsp.Body))
}

// handleUpdateOrder gates "Out for delivery" behind the geofence before
// any backend call, then keeps the courier's delivery tracking current so
// a dropped connection can be recovered.
func (s *Server) handleUpdateOrder(ctx context.Context, c *conn, cmd *Command) {
	state := cmd.str("state")
	destLat, _ := cmd.num("dest_lat")
	destLng, _ := cmd.num("dest_lng")

	if state == wheatley.StateOutForDelivery {
		dest := geo.Coordinate{Lat: destLat, Lng: destLng}
		if !geo.WithinDeliveryRadius(s.hq, dest, s.cfg.Geofence.MaxKm) {
			geofenceRejections.Inc()
			c.send(&Reply{
				Status: StatusError,
				Cmd:    "UPDATE_ORDER_RESULT",
				Message: fmt.Sprintf("Cannot deliver %.2f km away, max is %g km.",
					geo.Distance(s.hq, dest), s.cfg.Geofence.MaxKm),
			})
			return
		}
	}

	rsp, err := s.backend.UpdateOrder(ctx, wheatley.OrderUpdate{
		APIKey:     cmd.str("apikey"),
		StudentNum: cmd.str("studentnum"),
		OrderID:    cmd.field("order_id"),
		DestLat:    destLat,
		DestLng:    destLng,
		State:      state,
	})
	if err != nil {
		c.send(backendError("UPDATE_ORDER_RESULT", err))
		return
	}
	c.send(okReply("UPDATE_ORDER_RESULT", rsp.Body))

	s.registry.Update(c.id, func(sess *Session) {
		if !sess.IsCourier() {
			return
		}
		d := sess.delivery()
		d.Lat, d.Lng = destLat, destLng
		switch state {
		case wheatley.StateOutForDelivery:
			d.OnDelivery = true
			d.OrderID = cmd.field("order_id")
			if v := cmd.field("drone_id"); v != nil {
				d.DroneID = v
			}
			if v, ok := cmd.num("battery"); ok {
				d.Battery = v
			}
			if v, ok := cmd.num("altitude"); ok {
				d.Altitude = v
			}
		case wheatley.StateDelivered, wheatley.StateStorage:
			d.OnDelivery = false
		}
	})
}

func (s *Server) handleUpdateDrone(ctx context.Context, c *conn, cmd *Command) {
	fields := make(map[string]any)
	for _, k := range []string{
		"apikey", "studentnum", "id", "current_operator_id", "is_available",
		"latest_lat", "latest_lng", "altitude", "battery_level",
	} {
		fields[k] = cmd.field(k)
	}

	rsp, err := s.backend.Call(ctx, wheatley.OpUpdateDrone, fields)
	if err != nil {
		c.send(backendError("UPDATE_DRONE_RESULT", err))
		return
	}
	c.send(okReply("UPDATE_DRONE_RESULT", rsp.Body))
}

// query runs a credential-carrying backend read and relays the result.
// unwrap selects between the full payload and the inner data array.
func (s *Server) query(ctx context.Context, c *conn, cmd *Command, op, label string, unwrap bool) {
	fields := map[string]any{
		"apikey":     cmd.field("apikey"),
		"studentnum": cmd.field("studentnum"),
	}
	if v := cmd.field("user_id"); v != nil {
		fields["user_id"] = v
	}

	rsp, err := s.backend.Call(ctx, op, fields)
	if err != nil {
		c.send(backendError(label, err))
		return
	}

	data := rsp.Body
	if unwrap {
		data = rsp.Data
	}
	c.send(okReply(label, data))
}

func (s *Server) handleGetAllOrders(ctx context.Context, c *conn, cmd *Command) {
	s.query(ctx, c, cmd, wheatley.OpGetAllOrders, "GET_ALL_ORDERS_RESULT", true)
}

func (s *Server) handleCurrentlyDelivering(ctx context.Context, c *conn, cmd *Command) {
	s.query(ctx, c, cmd, wheatley.OpGetOutForDelivery, "CURRENTLY_DELIVERING_RESULT", true)
}

// DRONE STATUS relays the full backend payload; GET_ALL_DRONES unwraps it.
func (s *Server) handleDroneStatus(ctx context.Context, c *conn, cmd *Command) {
	s.query(ctx, c, cmd, wheatley.OpGetAllDrones, "DRONE_STATUS_RESULT", false)
}

func (s *Server) handleGetAllDrones(ctx context.Context, c *conn, cmd *Command) {
	s.query(ctx, c, cmd, wheatley.OpGetAllDrones, "GET_ALL_DRONES_RESULT", true)
}

func (s *Server) handleGetUser(ctx context.Context, c *conn, cmd *Command) {
	s.query(ctx, c, cmd, wheatley.OpGetUser, "GET_USER_RESULT", true)
}

func (s *Server) handleQuit(ctx context.Context, c *conn, cmd *Command) {
	s.Shutdown()
}
