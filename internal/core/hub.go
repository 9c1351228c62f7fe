// Package core relays presence messages between the live channels of each
// sleep group. All room state is owned by the goroutine running Hub.Run.
package core

import (
	"context"

	"github.com/rs/zerolog"
)

const inboxSize = 64

type registration struct {
	client *Client
	quit   chan struct{}
}

type clientCommand struct {
	client *Client
	cmd    *Command
}

// Stats is a snapshot of the hub.
type Stats struct {
	Groups  int
	Clients int
}

// Hub coordinates clients and group rooms.
type Hub struct {
	register   chan registration
	unregister chan *Client
	closeGroup chan string
	inbox      chan clientCommand
	stats      chan chan Stats
	done       chan struct{}
	log        *zerolog.Logger

	// Owned by Run.
	rooms   map[string]*Room
	clients map[*Client]chan struct{}
}

// NewHub creates a hub. Run must be started before clients register.
func NewHub(logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		register:   make(chan registration),
		unregister: make(chan *Client),
		closeGroup: make(chan string),
		inbox:      make(chan clientCommand, inboxSize),
		stats:      make(chan chan Stats),
		done:       make(chan struct{}),
		log:        logger,
		rooms:      make(map[string]*Room),
		clients:    make(map[*Client]chan struct{}),
	}
}

// Run processes registrations and commands until ctx is cancelled. On exit
// every client's Events channel is closed.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for c, quit := range h.clients {
			h.drop(c, quit)
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case reg := <-h.register:
			h.add(reg)
		case c := <-h.unregister:
			if quit, ok := h.clients[c]; ok {
				h.drop(c, quit)
				h.log.Debug().Str("client_id", c.ID).Str("group", c.Group).Msg("client unregistered")
			}
		case group := <-h.closeGroup:
			h.dissolve(group)
		case in := <-h.inbox:
			h.handle(in.client, in.cmd)
		case reply := <-h.stats:
			reply <- Stats{Groups: len(h.rooms), Clients: len(h.clients)}
		}
	}
}

// RegisterClient adds c to the room of its group and starts draining its
// commands.
func (h *Hub) RegisterClient(c *Client) error {
	reg := registration{client: c, quit: make(chan struct{})}
	select {
	case h.register <- reg:
	case <-h.done:
		return ErrHubStopped
	}
	go h.pump(reg)
	return nil
}

// UnregisterClient removes c and closes its Events channel.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// CloseGroup disconnects every client of group, for instance after the group
// was dissolved.
func (h *Hub) CloseGroup(group string) {
	select {
	case h.closeGroup <- group:
	case <-h.done:
	}
}

// Stats returns the number of live groups and clients.
func (h *Hub) Stats() Stats {
	reply := make(chan Stats, 1)
	select {
	case h.stats <- reply:
	case <-h.done:
		return Stats{}
	}
	select {
	case s := <-reply:
		return s
	case <-h.done:
		return Stats{}
	}
}

func (h *Hub) pump(reg registration) {
	for {
		select {
		case cmd := <-reg.client.Commands:
			if cmd == nil {
				continue
			}
			select {
			case h.inbox <- clientCommand{client: reg.client, cmd: cmd}:
			case <-reg.quit:
				return
			case <-h.done:
				return
			}
		case <-reg.quit:
			return
		case <-h.done:
			return
		}
	}
}

func (h *Hub) add(reg registration) {
	c := reg.client
	h.clients[c] = reg.quit

	room, ok := h.rooms[c.Group]
	if !ok {
		room = NewRoom(c.Group)
		h.rooms[c.Group] = room
	}
	room.AddClient(c)
	h.log.Debug().Str("client_id", c.ID).Str("user", c.Name).Str("group", c.Group).Int("members_online", room.Len()).Msg("client registered")
}

func (h *Hub) drop(c *Client, quit chan struct{}) {
	delete(h.clients, c)
	close(quit)
	close(c.Events)

	if room, ok := h.rooms[c.Group]; ok {
		room.RemoveClient(c)
		if room.Empty() {
			delete(h.rooms, c.Group)
		}
	}
}

func (h *Hub) dissolve(group string) {
	room, ok := h.rooms[group]
	if !ok {
		return
	}
	for _, c := range room.Clients() {
		if quit, ok := h.clients[c]; ok {
			h.drop(c, quit)
		}
	}
	delete(h.rooms, group)
	h.log.Info().Str("group", group).Msg("group channels closed")
}

func (h *Hub) handle(c *Client, cmd *Command) {
	if _, ok := h.clients[c]; !ok {
		h.log.Debug().Str("client_id", c.ID).Err(ErrUnknownClient).Msg("dropping command")
		return
	}

	switch cmd.Kind {
	case CommandPublish:
		room, ok := h.rooms[c.Group]
		if !ok {
			return
		}
		msg := cmd.Message
		msg.From = c.Name
		delivered := room.Broadcast(&Event{Kind: EventPresence, Group: c.Group, Message: msg}, c)
		h.log.Debug().
			Str("user", c.Name).
			Str("group", c.Group).
			Str("operation", msg.Operation).
			Int("delivered", delivered).
			Msg("presence relayed")
	}
}
