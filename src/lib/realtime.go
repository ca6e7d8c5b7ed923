package lib

import (
	"fmt"
	"log"

	"github.com/pusher/pusher-http-go/v5"
	"github.com/zishang520/socket.io/v2/socket"
)

// UserRoom names the per-owner channel a client joins at session start.
func UserRoom(userID uint) string {
	return fmt.Sprintf("user_%d", userID)
}

// EventSink delivers one named event, either to every connected client or to
// a single owner room. Implementations wrap a concrete push transport.
type EventSink interface {
	EmitToAll(event string, payload any) error
	EmitToUser(userID uint, event string, payload any) error
}

type broadcast struct {
	event   string
	payload any
	userID  uint
	toAll   bool
}

// Hub fans booking lifecycle events out to the configured sink. Delivery is
// best effort and at most once: a single worker drains the queue so events
// keep their submission order, full-queue submissions are dropped, and sink
// failures are logged but never surfaced to the triggering operation.
type Hub struct {
	sink  EventSink
	queue chan broadcast
}

func newHub(sink EventSink) *Hub {
	h := &Hub{
		sink:  sink,
		queue: make(chan broadcast, 256),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for b := range h.queue {
		var err error
		if b.toAll {
			err = h.sink.EmitToAll(b.event, b.payload)
		} else {
			err = h.sink.EmitToUser(b.userID, b.event, b.payload)
		}
		if err != nil {
			log.Printf("[realtime] Could not deliver %s: %s\n", b.event, err.Error())
		}
	}
}

func (h *Hub) enqueue(b broadcast) {
	select {
	case h.queue <- b:
	default:
		log.Printf("[realtime] Queue full, dropping %s\n", b.event)
	}
}

func (h *Hub) BroadcastAll(event string, payload any) {
	h.enqueue(broadcast{event: event, payload: payload, toAll: true})
}

func (h *Hub) BroadcastToUser(userID uint, event string, payload any) {
	h.enqueue(broadcast{event: event, payload: payload, userID: userID})
}

func (h *Hub) Close() {
	close(h.queue)
}

var hub *Hub

func GetHub() *Hub {
	if hub != nil {
		return hub
	}
	hub = newHub(discardSink{})
	return hub
}

// NewHub replaces the hub with one backed by the given sink
func NewHub(sink EventSink) *Hub {
	hub = newHub(sink)
	return hub
}

// discardSink drops everything; the default until a transport is wired.
type discardSink struct{}

func (discardSink) EmitToAll(event string, payload any) error {
	return nil
}
func (discardSink) EmitToUser(userID uint, event string, payload any) error {
	return nil
}

type socketSink struct {
	wss *socket.Server
}

// NewSocketSink adapts the socket.io server. Owner rooms are joined by the
// client emitting join_room with its user id after connecting.
func NewSocketSink(wss *socket.Server) EventSink {
	return &socketSink{wss: wss}
}

func (s *socketSink) EmitToAll(event string, payload any) error {
	s.wss.Emit(event, payload)
	return nil
}

func (s *socketSink) EmitToUser(userID uint, event string, payload any) error {
	return s.wss.To(socket.Room(UserRoom(userID))).Emit(event, payload)
}

type pusherSink struct {
	client *pusher.Client
}

// NewPusherSink adapts Pusher Channels. Broadcast-to-all uses a shared
// channel every client subscribes to.
func NewPusherSink() EventSink {
	return &pusherSink{client: GetPusherClient()}
}

func (p *pusherSink) EmitToAll(event string, payload any) error {
	return p.client.Trigger("bookings", event, payload)
}

func (p *pusherSink) EmitToUser(userID uint, event string, payload any) error {
	return p.client.Trigger(UserRoom(userID), event, payload)
}
