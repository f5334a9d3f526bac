package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"skillpair-backend/internal/middleware"
	"skillpair-backend/internal/models"
	"skillpair-backend/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub is the realtime gateway. It owns two registries: one live connection per
// user (last connection wins) and the presence set of each session room. All
// socket events route through here into the session service and broadcast back
// out to room members.
type Hub struct {
	mu          sync.RWMutex
	conns       map[uuid.UUID]*Client
	rooms       map[string]map[uuid.UUID]*Client
	cancelFuncs map[uuid.UUID]context.CancelFunc

	sessions    *services.SessionService
	invitations *services.InvitationService
	notifier    services.UserNotifier
	redisClient *redis.Client
	jwt         *middleware.JWTAuth
}

func NewHub(redisClient *redis.Client, jwt *middleware.JWTAuth, sessions *services.SessionService, notifier services.UserNotifier) *Hub {
	return &Hub{
		conns:       make(map[uuid.UUID]*Client),
		rooms:       make(map[string]map[uuid.UUID]*Client),
		cancelFuncs: make(map[uuid.UUID]context.CancelFunc),
		sessions:    sessions,
		notifier:    notifier,
		redisClient: redisClient,
		jwt:         jwt,
	}
}

// SetInvitationService breaks the construction cycle: the invitation service
// needs the notifier the hub listens on, the hub needs the invitation service
// for the client-originated acceptance push.
func (h *Hub) SetInvitationService(s *services.InvitationService) {
	h.invitations = s
}

// HandleWebSocket authenticates the handshake from the token query parameter
// and upgrades the connection. A missing or invalid credential refuses the
// handshake before the upgrade.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userID, err := h.jwt.ParseUserID(tokenStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := newClient(h, conn, userID)
	h.register(client)

	client.sendEvent("connected", map[string]interface{}{
		"user_id": userID,
	})

	go client.writePump()
	go client.readPump()
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Last connection wins: the previous handle loses its registration but the
	// transport is left to die on its own read deadline.
	if prev, ok := h.conns[client.userID]; ok && prev != client {
		if cancel, ok := h.cancelFuncs[client.userID]; ok {
			cancel()
			delete(h.cancelFuncs, client.userID)
		}
	}
	h.conns[client.userID] = client

	ctx, cancel := context.WithCancel(context.Background())
	h.cancelFuncs[client.userID] = cancel
	go h.subscribeToUserChannel(ctx, client.userID)

	log.Printf("WebSocket connected: user %s", client.userID)
}

func (h *Hub) unregister(client *Client) {
	h.leaveRoom(client, true)

	h.mu.Lock()
	client.conn.Close()

	// Only forget bookkeeping that still points at this handle; a newer
	// connection may have replaced it already.
	if current, ok := h.conns[client.userID]; ok && current == client {
		delete(h.conns, client.userID)
		if cancel, ok := h.cancelFuncs[client.userID]; ok {
			cancel()
			delete(h.cancelFuncs, client.userID)
		}
	}
	h.mu.Unlock()

	log.Printf("WebSocket disconnected: user %s", client.userID)
}

// subscribeToUserChannel relays direct-to-user events published on redis to
// the user's live connection for as long as it stays registered.
func (h *Hub) subscribeToUserChannel(ctx context.Context, userID uuid.UUID) {
	pubsub := h.redisClient.Subscribe(ctx, services.UserChannel(userID))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.deliverToUser(userID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) deliverToUser(userID uuid.UUID, data []byte) {
	h.mu.RLock()
	client, ok := h.conns[userID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

// dispatch routes one inbound event. Handler errors are reported back to the
// originating connection only; nothing here may kill the connection.
func (h *Hub) dispatch(client *Client, event Event) {
	ctx := context.Background()

	switch event.Type {
	case "join-peer-learning":
		// Lobby join is a presence ping; the connection is already registered.
		client.sendEvent("connected", map[string]interface{}{"user_id": client.userID})

	case "join-session":
		h.handleJoinSession(ctx, client, event.Payload)

	case "leave-session":
		h.leaveRoom(client, false)

	case "send-message":
		h.handleSendMessage(ctx, client, event.Payload)

	case "sync-navigation":
		h.handleSyncNavigation(ctx, client, event.Payload)

	case "update-collaborative-notes":
		h.handleUpdateNotes(ctx, client, event.Payload)

	case "code-editor-change":
		h.handleCodeChange(ctx, client, event.Payload)

	case "update-session-progress":
		h.handleUpdateProgress(ctx, client, event.Payload)

	case "send-reaction":
		h.handleSendReaction(ctx, client, event.Payload)

	case "invitation-accepted":
		h.handleInvitationAccepted(ctx, client, event.Payload)

	default:
		client.sendEvent("error", map[string]string{"message": "Unknown event type: " + event.Type})
	}
}

func (h *Hub) handleJoinSession(ctx context.Context, client *Client, payload json.RawMessage) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.SessionID == "" {
		client.sendEvent("session-join-error", map[string]string{"code": "VALIDATION_ERROR", "message": "session_id is required"})
		return
	}

	// Admission requires persisted participation, not just a valid login.
	session, err := h.sessions.Get(ctx, req.SessionID, client.userID)
	if err != nil {
		client.sendEvent("session-join-error", socketError(err))
		return
	}

	if client.sessionID != "" && client.sessionID != req.SessionID {
		h.leaveRoom(client, false)
	}

	h.mu.Lock()
	room, ok := h.rooms[req.SessionID]
	if !ok {
		room = make(map[uuid.UUID]*Client)
		h.rooms[req.SessionID] = room
	}
	room[client.userID] = client
	client.sessionID = req.SessionID
	h.mu.Unlock()

	if updated, err := h.sessions.SetParticipantPresence(ctx, req.SessionID, client.userID, true); err == nil {
		session = updated
	}

	client.sendEvent("session-joined", map[string]interface{}{"session": session})
	h.broadcastToRoom(req.SessionID, client, "peer-joined", map[string]interface{}{
		"session_id": req.SessionID,
		"user_id":    client.userID,
	})
}

// leaveRoom removes the client from its room, if any. disconnected selects the
// presence event other members receive. Presence flips and departure events
// fire only when this handle is still the room's registered connection for the
// user: a stale handle dying after a reconnect rejoined must not mark the new
// connection's participant offline.
func (h *Hub) leaveRoom(client *Client, disconnected bool) {
	sessionID := client.sessionID
	if sessionID == "" {
		return
	}
	client.sessionID = ""

	removed := false
	h.mu.Lock()
	if room, ok := h.rooms[sessionID]; ok {
		if member, exists := room[client.userID]; exists && member == client {
			delete(room, client.userID)
			removed = true
		}
		if len(room) == 0 {
			delete(h.rooms, sessionID)
		}
	}
	h.mu.Unlock()
	if !removed {
		return
	}

	if _, err := h.sessions.SetParticipantPresence(context.Background(), sessionID, client.userID, false); err != nil {
		log.Printf("ws: presence update failed for session %s: %v", sessionID, err)
	}

	event := "peer-left"
	if disconnected {
		event = "peer-disconnected"
	}
	h.broadcastToRoom(sessionID, nil, event, map[string]interface{}{
		"session_id": sessionID,
		"user_id":    client.userID,
	})
}

func (h *Hub) handleSendMessage(ctx context.Context, client *Client, payload json.RawMessage) {
	var req struct {
		Text string `json:"text"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		client.sendEvent("message-error", map[string]string{"code": "VALIDATION_ERROR", "message": "Malformed payload"})
		return
	}
	if client.sessionID == "" {
		client.sendEvent("message-error", map[string]string{"code": "INVALID_STATE", "message": "Join a session first"})
		return
	}

	// Persist before broadcast: a message the room sees is always a message
	// the log holds.
	msg, err := h.sessions.AddMessage(ctx, client.sessionID, client.userID, req.Text, models.MessageType(req.Type))
	if err != nil {
		client.sendEvent("message-error", socketError(err))
		return
	}

	// Chat goes to the whole room including the sender; clients render from
	// the broadcast, not a local echo.
	h.broadcastToRoom(client.sessionID, nil, "new-message", map[string]interface{}{
		"session_id": client.sessionID,
		"message":    msg,
	})
	client.sendEvent("message-sent", map[string]interface{}{"message_id": msg.ID})
}

func (h *Hub) handleSyncNavigation(ctx context.Context, client *Client, payload json.RawMessage) {
	var req struct {
		ContentIndex int `json:"content_index"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || client.sessionID == "" {
		client.sendEvent("error", map[string]string{"message": "Malformed navigation payload or no session joined"})
		return
	}

	if _, err := h.sessions.SyncNavigation(ctx, client.sessionID, client.userID, req.ContentIndex); err != nil {
		client.sendEvent("error", socketError(err))
		return
	}

	// Sender already navigated locally.
	h.broadcastToRoom(client.sessionID, client, "navigation-synced", map[string]interface{}{
		"session_id":    client.sessionID,
		"user_id":       client.userID,
		"content_index": req.ContentIndex,
	})
}

func (h *Hub) handleUpdateNotes(ctx context.Context, client *Client, payload json.RawMessage) {
	var req struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || client.sessionID == "" {
		client.sendEvent("error", map[string]string{"message": "Malformed notes payload or no session joined"})
		return
	}

	note, err := h.sessions.AddNote(ctx, client.sessionID, client.userID, req.Content)
	if err != nil {
		client.sendEvent("error", socketError(err))
		return
	}

	h.broadcastToRoom(client.sessionID, client, "notes-updated", map[string]interface{}{
		"session_id": client.sessionID,
		"note":       note,
	})
}

func (h *Hub) handleCodeChange(ctx context.Context, client *Client, payload json.RawMessage) {
	var req struct {
		Content  string `json:"content"`
		Language string `json:"language"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || client.sessionID == "" {
		client.sendEvent("error", map[string]string{"message": "Malformed code payload or no session joined"})
		return
	}

	session, err := h.sessions.UpdateSharedCode(ctx, client.sessionID, client.userID, req.Content, req.Language)
	if err != nil {
		client.sendEvent("error", socketError(err))
		return
	}

	h.broadcastToRoom(client.sessionID, client, "code-updated", map[string]interface{}{
		"session_id":  client.sessionID,
		"shared_code": session.SharedCode,
	})
}

func (h *Hub) handleUpdateProgress(ctx context.Context, client *Client, payload json.RawMessage) {
	var req struct {
		ContentIndex       int     `json:"content_index"`
		ProgressPercentage float64 `json:"progress_percentage"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || client.sessionID == "" {
		client.sendEvent("error", map[string]string{"message": "Malformed progress payload or no session joined"})
		return
	}

	if _, err := h.sessions.UpdateProgress(ctx, client.sessionID, client.userID, req.ContentIndex, req.ProgressPercentage); err != nil {
		client.sendEvent("error", socketError(err))
		return
	}

	h.broadcastToRoom(client.sessionID, client, "progress-updated", map[string]interface{}{
		"session_id":          client.sessionID,
		"user_id":             client.userID,
		"content_index":       req.ContentIndex,
		"progress_percentage": req.ProgressPercentage,
	})
}

func (h *Hub) handleSendReaction(ctx context.Context, client *Client, payload json.RawMessage) {
	var req struct {
		Emoji    string `json:"emoji"`
		TargetID string `json:"target_id"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || client.sessionID == "" {
		client.sendEvent("error", map[string]string{"message": "Malformed reaction payload or no session joined"})
		return
	}

	reaction, err := h.sessions.AddReaction(ctx, client.sessionID, client.userID, req.Emoji, req.TargetID)
	if err != nil {
		client.sendEvent("error", socketError(err))
		return
	}

	h.broadcastToRoom(client.sessionID, client, "reaction-received", map[string]interface{}{
		"session_id": client.sessionID,
		"reaction":   reaction,
	})
}

// handleInvitationAccepted is the client-side belt-and-suspenders push: the
// invitee's client repeats the acceptance notification in case the server-side
// push raced the inviter's subscription. The invitation is re-checked so a
// client cannot forge a notification for an invitation it never accepted.
func (h *Hub) handleInvitationAccepted(ctx context.Context, client *Client, payload json.RawMessage) {
	var req struct {
		InvitationID string `json:"invitation_id"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		client.sendEvent("error", map[string]string{"message": "Malformed payload"})
		return
	}
	invitationID, err := uuid.Parse(req.InvitationID)
	if err != nil {
		client.sendEvent("error", map[string]string{"message": "Invalid invitation_id"})
		return
	}
	if h.invitations == nil {
		return
	}

	inv, err := h.invitations.GetAccepted(ctx, invitationID, client.userID)
	if err != nil {
		client.sendEvent("error", socketError(err))
		return
	}

	h.notifier.NotifyUser(ctx, inv.InviterID, "invitation-accepted-notification", map[string]interface{}{
		"invitation_id": inv.ID,
		"session_id":    inv.SessionID,
		"invitee_id":    inv.InviteeID,
		"course_id":     inv.CourseID,
		"chapter_id":    inv.ChapterID,
		"level_id":      inv.LevelID,
		"accepted_at":   inv.RespondedAt,
	})
}

// broadcastToRoom sends an event to every member of a session room, skipping
// except when non-nil.
func (h *Hub) broadcastToRoom(sessionID string, except *Client, eventType string, payload interface{}) {
	data, err := marshalEvent(eventType, payload)
	if err != nil {
		log.Printf("ws: marshal %s failed: %v", eventType, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, member := range h.rooms[sessionID] {
		if member == except {
			continue
		}
		select {
		case member.send <- data:
		default:
		}
	}
}

// RoomMembers returns the presence set of a session room.
func (h *Hub) RoomMembers(sessionID string) []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := make([]uuid.UUID, 0, len(h.rooms[sessionID]))
	for id := range h.rooms[sessionID] {
		members = append(members, id)
	}
	return members
}

// socketError converts service errors into the payload shape of named error
// events without leaking internals.
func socketError(err error) map[string]string {
	var (
		validationErr *services.ValidationError
		notFoundErr   *services.NotFoundError
		forbiddenErr  *services.ForbiddenError
		stateErr      *services.StateError
	)
	switch {
	case errors.As(err, &validationErr):
		msg := "Validation failed"
		for _, v := range validationErr.Fields {
			msg = v
			break
		}
		return map[string]string{"code": "VALIDATION_ERROR", "message": msg}
	case errors.As(err, &notFoundErr):
		return map[string]string{"code": "NOT_FOUND", "message": notFoundErr.Message}
	case errors.As(err, &forbiddenErr):
		return map[string]string{"code": "FORBIDDEN", "message": forbiddenErr.Message}
	case errors.As(err, &stateErr):
		return map[string]string{"code": "INVALID_STATE", "message": stateErr.Message}
	default:
		return map[string]string{"code": "INTERNAL_ERROR", "message": "Something went wrong"}
	}
}
