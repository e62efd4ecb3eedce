package server

import (
	"context"
	"fmt"
	"log"

	"dronegate/client/wheatley"
)

// recoverDelivery returns an abandoned delivery to a safe backend state
// after its courier's connection is gone: the remaining sessions are told,
// the order goes back to storage at the courier's last known coordinates,
// and the drone is released where it was, climbed clear of the ground.
//
// Both backend calls are best effort. There is no connection left to
// report to and nothing to retry against, so failures are only logged and
// the session is discarded regardless.
func (s *Server) recoverDelivery(ctx context.Context, sess *Session) {
	if sess == nil || !sess.onDelivery() {
		return
	}
	d := sess.Delivery
	recoveriesTotal.Inc()
	log.Printf("[recovery] courier %s dropped mid-delivery (order %v, drone %v)",
		sess.Username, d.OrderID, d.DroneID)

	s.Broadcast(&Reply{
		Status:  StatusInfo,
		Cmd:     "DELIVERY_POSTPONED",
		Message: fmt.Sprintf("Courier %s disconnected—delivery postponed.", sess.Username),
	})

	if _, err := s.backend.UpdateOrder(ctx, wheatley.OrderUpdate{
		APIKey:     sess.APIKey,
		StudentNum: sess.StudentNum,
		OrderID:    d.OrderID,
		DestLat:    d.Lat,
		DestLng:    d.Lng,
		State:      wheatley.StateStorage,
	}); err != nil {
		log.Printf("[recovery] return order %v to storage: %v", d.OrderID, err)
	}

	if _, err := s.backend.UpdateDrone(ctx, wheatley.DroneUpdate{
		APIKey:     sess.APIKey,
		StudentNum: sess.StudentNum,
		DroneID:    d.DroneID,
		OperatorID: nil,
		Available:  false,
		Lat:        d.Lat,
		Lng:        d.Lng,
		Altitude:   d.Altitude + 5,
		Battery:    d.Battery,
	}); err != nil {
		log.Printf("[recovery] release drone %v: %v", d.DroneID, err)
	}
}
