package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/example/statecraft/internal/auth"
)

type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type WSOut struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type client struct {
	id       string
	username string
	conn     *websocket.Conn
	writeMu  sync.Mutex
}

func (c *client) send(out WSOut) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(out); err != nil {
		log.Println("write:", err)
	}
}

// GameServer is the websocket boundary: it owns connections, dispatches
// inbound events to the engine, and implements the engine's Notifier.
type GameServer struct {
	engine   *Engine
	gate     *auth.Gate
	verifier *auth.Verifier
	upgrader websocket.Upgrader

	defaultRoomDuration time.Duration

	clientsMu sync.Mutex
	clients   map[string]*client // connection id -> client
	byUser    map[string]*client // username -> client
}

// GameServerOptions wires the server's collaborators. Verifier may be nil;
// then the authenticate event trusts the supplied username.
type GameServerOptions struct {
	Gate                *auth.Gate
	Verifier            *auth.Verifier
	Engine              EngineOptions
	DefaultRoomDuration time.Duration
}

func NewGameServer(opts GameServerOptions) *GameServer {
	gs := &GameServer{
		gate:     opts.Gate,
		verifier: opts.Verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		defaultRoomDuration: opts.DefaultRoomDuration,
		clients:             make(map[string]*client),
		byUser:              make(map[string]*client),
	}
	if gs.gate == nil {
		gs.gate = auth.NewGate(auth.GateOptions{})
	}
	if gs.defaultRoomDuration <= 0 {
		gs.defaultRoomDuration = time.Hour
	}
	engineOpts := opts.Engine
	engineOpts.Notify = gs
	gs.engine = NewEngine(engineOpts)
	return gs
}

func (gs *GameServer) Engine() *Engine { return gs.engine }

// HTTP handlers
func (gs *GameServer) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := gs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("upgrade:", err)
		return
	}
	c := &client{id: uuid.New().String(), conn: conn}
	gs.clientsMu.Lock()
	gs.clients[c.id] = c
	gs.clientsMu.Unlock()
	go gs.readLoop(c)
}

func (gs *GameServer) HandleListRooms(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(gs.engine.Summaries())
}

func (gs *GameServer) HandleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var data struct {
		Name      string   `json:"name"`
		Owner     string   `json:"owner"`
		Countries []string `json:"countries"`
	}
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(data.Name) == "" {
		http.Error(w, "room name required", http.StatusBadRequest)
		return
	}
	room, err := gs.engine.CreateRoom(data.Name, data.Owner, gs.defaultRoomDuration, data.Countries)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(room.Summary())
}

// WebSocket read loop
func (gs *GameServer) readLoop(c *client) {
	defer func() {
		c.conn.Close()
		gs.clientsMu.Lock()
		delete(gs.clients, c.id)
		if c.username != "" && gs.byUser[c.username] == c {
			delete(gs.byUser, c.username)
		}
		gs.clientsMu.Unlock()
		if c.username != "" {
			gs.engine.MarkOffline(c.username)
		}
	}()

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			log.Println("read:", err)
			return
		}
		switch msg.Type {
		case "authenticate":
			var data struct {
				Token    string `json:"token"`
				Username string `json:"username"`
			}
			json.Unmarshal(msg.Payload, &data)
			gs.handleAuthenticate(c, data.Token, data.Username)
		case "listRooms":
			c.send(WSOut{Type: "roomsList", Payload: gs.engine.Summaries()})
		case "createRoom":
			var data struct {
				Name       string   `json:"name"`
				DurationMs int64    `json:"durationMs"`
				Countries  []string `json:"countries"`
			}
			json.Unmarshal(msg.Payload, &data)
			gs.handleCreateRoom(c, data.Name, data.DurationMs, data.Countries)
		case "joinRoom":
			var data struct {
				RoomID   string `json:"roomId"`
				Username string `json:"username"`
			}
			json.Unmarshal(msg.Payload, &data)
			gs.handleJoinRoom(c, data.RoomID, data.Username)
		case "leaveRoom":
			if c.username != "" {
				gs.engine.LeaveRoom(c.username)
			}
		case "createTradeAgreement":
			var data struct {
				RoomID string `json:"roomId"`
				TradeRequest
			}
			json.Unmarshal(msg.Payload, &data)
			gs.handleCreateTrade(c, data.RoomID, data.TradeRequest)
		case "cancelTradeAgreement":
			var data struct {
				RoomID      string `json:"roomId"`
				AgreementID string `json:"agreementId"`
			}
			json.Unmarshal(msg.Payload, &data)
			if !gs.engine.CancelAgreement(data.RoomID, data.AgreementID) {
				gs.sendError(c, "trade agreement not found")
			}
		case "chat":
			var data struct {
				RoomID  string `json:"roomId"`
				Message string `json:"message"`
			}
			json.Unmarshal(msg.Payload, &data)
			if c.username == "" {
				gs.sendError(c, "authenticate first")
				break
			}
			if err := gs.engine.AppendChat(data.RoomID, c.username, data.Message); err != nil {
				gs.sendError(c, err.Error())
			}
		case "privateChat":
			var data struct {
				RoomID  string `json:"roomId"`
				To      string `json:"to"`
				Message string `json:"message"`
			}
			json.Unmarshal(msg.Payload, &data)
			if c.username == "" {
				gs.sendError(c, "authenticate first")
				break
			}
			if err := gs.engine.AppendPrivateChat(data.RoomID, c.username, data.To, data.Message); err != nil {
				gs.sendError(c, err.Error())
				break
			}
			gs.sendToUser(data.To, WSOut{Type: "privateChat", Payload: map[string]string{
				"roomId": data.RoomID, "from": c.username, "message": data.Message,
			}})
		case "banPlayer":
			var data struct {
				RoomID   string `json:"roomId"`
				Username string `json:"username"`
			}
			json.Unmarshal(msg.Payload, &data)
			if err := gs.engine.BanPlayer(data.RoomID, c.username, data.Username); err != nil {
				gs.sendError(c, err.Error())
			}
		}
	}
}

// handleAuthenticate runs verification inside the concurrency gate so
// session issuance never races for the same connecting identity.
func (gs *GameServer) handleAuthenticate(c *client, token, username string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := gs.gate.ExecuteAuth(ctx, func() error {
		if gs.verifier != nil {
			claims, err := gs.verifier.ValidateToken(token)
			if err != nil {
				return err
			}
			if claims.Username != "" {
				username = claims.Username
			}
		}
		return nil
	})
	if err != nil {
		gs.sendError(c, err.Error())
		return
	}
	if strings.TrimSpace(username) == "" {
		gs.sendError(c, "username required")
		return
	}
	gs.clientsMu.Lock()
	c.username = username
	gs.byUser[username] = c
	gs.clientsMu.Unlock()
	c.send(WSOut{Type: "authenticated", Payload: map[string]string{"username": username}})
}

func (gs *GameServer) handleCreateRoom(c *client, name string, durationMs int64, countries []string) {
	// Malformed names stop here, before the lifecycle component.
	if strings.TrimSpace(name) == "" {
		gs.sendError(c, "room name required")
		return
	}
	if c.username == "" {
		gs.sendError(c, "authenticate first")
		return
	}
	duration := gs.defaultRoomDuration
	if durationMs > 0 {
		duration = time.Duration(durationMs) * time.Millisecond
	}
	if _, err := gs.engine.CreateRoom(name, c.username, duration, countries); err != nil {
		gs.sendError(c, err.Error())
	}
}

func (gs *GameServer) handleJoinRoom(c *client, roomID, username string) {
	if username == "" {
		username = c.username
	}
	if username == "" {
		gs.sendError(c, "authenticate first")
		return
	}
	if _, err := gs.engine.JoinRoom(roomID, username, c.id); err != nil {
		gs.sendError(c, err.Error())
	}
}

func (gs *GameServer) handleCreateTrade(c *client, roomID string, req TradeRequest) {
	if req.Type != TradeImport && req.Type != TradeExport {
		gs.sendError(c, "invalid trade type")
		return
	}
	if req.Product != ProductCommodity && req.Product != ProductManufacture {
		gs.sendError(c, "invalid product category")
		return
	}
	if gs.engine.CreateAgreement(roomID, req) == nil {
		gs.sendError(c, "room not found")
	}
}

func (gs *GameServer) sendError(c *client, message string) {
	c.send(WSOut{Type: "error", Payload: map[string]string{"message": message}})
}

func (gs *GameServer) sendToUser(username string, out WSOut) {
	gs.clientsMu.Lock()
	c := gs.byUser[username]
	gs.clientsMu.Unlock()
	if c != nil {
		c.send(out)
	}
}

// Notifier implementation

func (gs *GameServer) RoomsList(rooms []RoomSummary) {
	out := WSOut{Type: "roomsList", Payload: rooms}
	gs.clientsMu.Lock()
	targets := make([]*client, 0, len(gs.clients))
	for _, c := range gs.clients {
		targets = append(targets, c)
	}
	gs.clientsMu.Unlock()
	for _, c := range targets {
		c.send(out)
	}
}

func (gs *GameServer) RoomJoined(username string, view RoomView) {
	gs.sendToUser(username, WSOut{Type: "roomJoined", Payload: view})
}

func (gs *GameServer) RoomLeft(roomName, username string) {
	gs.sendToUser(username, WSOut{Type: "roomLeft", Payload: map[string]string{"roomName": roomName}})
}

func (gs *GameServer) RoomUpdated(view RoomView) {
	out := WSOut{Type: "roomUpdated", Payload: view}
	for _, p := range view.Players {
		gs.sendToUser(p.Username, out)
	}
}

func (gs *GameServer) CardsUpdated(roomName, action string, cards []Card) {
	room, ok := gs.engine.Registry().Get(roomName)
	if !ok {
		return
	}
	payload := map[string]any{"roomName": roomName, "action": action, "cards": cards}
	view := room.View()
	for _, p := range view.Players {
		gs.sendToUser(p.Username, WSOut{Type: "cardsUpdated", Payload: payload})
	}
}
