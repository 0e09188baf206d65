package handlers

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/wanotify/backend/internal/auth"
	"github.com/wanotify/backend/internal/config"
	"github.com/wanotify/backend/internal/events"
	"github.com/wanotify/backend/internal/http/dto"
	"github.com/wanotify/backend/internal/repositories"
	"go.uber.org/zap"
)

// wsClient wraps a connection with a write lock: the room broadcast goroutine
// and the client's own read loop both write to the socket.
type wsClient struct {
	conn   *websocket.Conn
	userID uuid.UUID
	mu     sync.Mutex
}

func (c *wsClient) writeEvent(event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WSHub fans campaign events out to websocket clients. Clients authenticate
// once on connect, then join and leave per-campaign rooms explicitly. Events
// arrive from the workers over Redis pub/sub, so the hub works no matter
// which process produced them.
type WSHub struct {
	cfg        *config.Config
	subscriber events.Subscriber
	campaigns  *repositories.CampaignRepo
	log        *zap.Logger

	mu    sync.RWMutex
	rooms map[uuid.UUID]map[*wsClient]bool
}

func NewWSHub(cfg *config.Config, subscriber events.Subscriber, campaigns *repositories.CampaignRepo, log *zap.Logger) *WSHub {
	return &WSHub{
		cfg:        cfg,
		subscriber: subscriber,
		campaigns:  campaigns,
		log:        log,
		rooms:      make(map[uuid.UUID]map[*wsClient]bool),
	}
}

func (h *WSHub) Start(ctx context.Context) {
	err := h.subscriber.PSubscribe(ctx, events.CampaignChannelPattern(), func(channel string, event events.Event) {
		campaignID, err := campaignFromChannel(channel)
		if err != nil {
			return
		}
		h.broadcast(campaignID, event)
	})
	if err != nil {
		h.log.Error("failed to subscribe to campaign events", zap.Error(err))
	}
}

func campaignFromChannel(channel string) (uuid.UUID, error) {
	idx := strings.LastIndex(channel, ":")
	return uuid.Parse(channel[idx+1:])
}

// broadcast delivers an event to every member of a campaign room. Writing is
// per-client and errors only drop that client, so one stuck connection never
// affects the rest.
func (h *WSHub) broadcast(campaignID uuid.UUID, event events.Event) {
	h.mu.RLock()
	members := make([]*wsClient, 0, len(h.rooms[campaignID]))
	for client := range h.rooms[campaignID] {
		members = append(members, client)
	}
	h.mu.RUnlock()

	for _, client := range members {
		if err := client.writeEvent(event); err != nil {
			h.log.Debug("dropping unwritable ws client", zap.Error(err))
			h.removeClient(client)
			client.conn.Close()
		}
	}
}

func (h *WSHub) joinRoom(campaignID uuid.UUID, client *wsClient) {
	h.mu.Lock()
	if h.rooms[campaignID] == nil {
		h.rooms[campaignID] = make(map[*wsClient]bool)
	}
	h.rooms[campaignID][client] = true
	h.mu.Unlock()
}

func (h *WSHub) leaveRoom(campaignID uuid.UUID, client *wsClient) {
	h.mu.Lock()
	delete(h.rooms[campaignID], client)
	if len(h.rooms[campaignID]) == 0 {
		delete(h.rooms, campaignID)
	}
	h.mu.Unlock()
}

func (h *WSHub) removeClient(client *wsClient) {
	h.mu.Lock()
	for campaignID, members := range h.rooms {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, campaignID)
		}
	}
	h.mu.Unlock()
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *WSHub) HandleWS(conn *websocket.Conn) {
	tokenStr := conn.Query("token")
	if tokenStr == "" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"missing token"}`))
		conn.Close()
		return
	}

	claims, err := auth.ParseJWT(h.cfg.JWTSecret, tokenStr)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		conn.Close()
		return
	}

	client := &wsClient{conn: conn, userID: claims.UserID}
	defer func() {
		h.removeClient(client)
		conn.Close()
	}()

	_ = client.writeEvent(events.Event{
		Type:    events.EventConnectionStatus,
		Payload: map[string]any{"connected": true, "userId": claims.UserID.String()},
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg dto.WSClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		campaignID, err := uuid.Parse(msg.CampaignID)
		if err != nil {
			continue
		}

		switch msg.Type {
		case "join_campaign":
			h.handleJoin(client, campaignID)
		case "leave_campaign":
			h.leaveRoom(campaignID, client)
		}
	}
}

// handleJoin admits the client to the room and immediately pushes a snapshot
// so a late joiner sees current state without waiting for the next increment.
func (h *WSHub) handleJoin(client *wsClient, campaignID uuid.UUID) {
	campaign, err := h.campaigns.GetByID(context.Background(), campaignID)
	if err != nil || campaign.UserID != client.userID {
		_ = client.writeEvent(events.Event{
			Type:    events.EventSystemMessage,
			Payload: map[string]any{"error": "campaña no encontrada", "campaignId": campaignID.String()},
		})
		return
	}

	h.joinRoom(campaignID, client)
	_ = client.writeEvent(events.NewCurrentStatusEvent(campaign))
}
