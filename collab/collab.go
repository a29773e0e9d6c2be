// Package collab notifies clients viewing the same project over socket.io.
package collab

import (
	"compass/core"
	"compass/middleware"
	"compass/service"
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

const (
	EventJoinProject     = "join-project"
	EventLeaveProject    = "leave-project"
	EventJoinedProject   = "joined-project"
	EventJoinRejected    = "join-rejected"
	EventCanvasSaved     = "canvas-saved"
	EventServerBroadcast = "server-broadcast"
	EventClientBroadcast = "client-broadcast"
	EventRoomUserChange  = "room-user-change"
)

var errNoToken = errors.New("missing token")

// Room is the socket.io room of a project.
func Room(projectID string) socketio.Room {
	return socketio.Room("project:" + projectID)
}

type CanvasSavedPayload struct {
	ProjectID string `json:"projectId"`
	Timestamp int64  `json:"timestamp"`
}

type Hub struct {
	io       *socketio.Server
	tokens   middleware.TokenParser
	projects core.ProjectStore
	log      logrus.FieldLogger
}

func NewHub(tokens middleware.TokenParser, projects core.ProjectStore) *Hub {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(5000000)
	opts.SetPath("/socket.io")
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})

	h := &Hub{
		io:       socketio.NewServer(nil, opts),
		tokens:   tokens,
		projects: projects,
		log:      logrus.WithField("component", "collab"),
	}
	h.io.On("connection", h.onConnection)
	return h
}

func (h *Hub) Handler() http.Handler {
	return h.io.ServeHandler(nil)
}

// CanvasSaved tells everyone in the project room that a new canvas state
// was accepted.
func (h *Hub) CanvasSaved(projectID string, timestamp int64) {
	if err := h.io.To(Room(projectID)).Emit(EventCanvasSaved, CanvasSavedPayload{ProjectID: projectID, Timestamp: timestamp}); err != nil {
		h.log.WithError(err).WithField("project_id", projectID).Warn("Failed to broadcast canvas save")
	}
}

func (h *Hub) Close() {
	h.io.Close(nil)
}

// authorize resolves the caller and checks that they own the project.
func (h *Hub) authorize(ctx context.Context, token, projectID string) (string, error) {
	if token == "" {
		return "", errNoToken
	}
	claims, err := h.tokens.ParseJWT(token)
	if err != nil {
		return "", err
	}
	if _, err := service.Authorize(ctx, h.projects, claims.Subject, projectID); err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// handshakeToken reads the token from the auth payload, falling back to the
// query string.
func handshakeToken(hs *socketio.Handshake) string {
	if hs == nil {
		return ""
	}
	if auth, ok := hs.Auth.(map[string]any); ok {
		if tok, ok := auth["token"].(string); ok && tok != "" {
			return tok
		}
	}
	if v := hs.Query["token"]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func (h *Hub) onConnection(clients ...any) {
	socket := clients[0].(*socketio.Socket)
	me := socket.Id()
	token := handshakeToken(socket.Handshake())
	joined := &rooms{set: make(map[socketio.Room]struct{})}

	socket.On(EventJoinProject, func(datas ...any) {
		projectID, ok := stringArg(datas, 0)
		if !ok {
			return
		}
		log := h.log.WithFields(logrus.Fields{"socket_id": me, "project_id": projectID})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		userID, err := h.authorize(ctx, token, projectID)
		if err != nil {
			log.WithError(err).Debug("Join rejected")
			socket.Emit(EventJoinRejected, projectID)
			return
		}

		room := Room(projectID)
		socket.Join(room)
		joined.add(room)
		log.WithField("user_id", userID).Debug("Socket joined project")
		socket.Emit(EventJoinedProject, projectID)
		h.announce(room, "")
	})

	socket.On(EventLeaveProject, func(datas ...any) {
		projectID, ok := stringArg(datas, 0)
		if !ok {
			return
		}
		room := Room(projectID)
		socket.Leave(room)
		joined.remove(room)
		h.announce(room, "")
	})

	socket.On(EventServerBroadcast, func(datas ...any) {
		projectID, ok := stringArg(datas, 0)
		if !ok || len(datas) < 2 {
			return
		}
		room := Room(projectID)
		if !joined.has(room) {
			return
		}
		socket.Broadcast().To(room).Emit(EventClientBroadcast, datas[1:]...)
	})

	socket.On("disconnecting", func(...any) {
		for _, room := range joined.list() {
			h.announce(room, me)
		}
	})

	socket.On("disconnect", func(...any) {
		socket.RemoveAllListeners("")
	})
}

// announce sends the room's current members, leaving out a socket that is
// on its way out.
func (h *Hub) announce(room socketio.Room, leaving socketio.SocketId) {
	h.io.In(room).FetchSockets()(func(sockets []*socketio.RemoteSocket, err error) {
		if err != nil {
			return
		}
		users := []socketio.SocketId{}
		for _, s := range sockets {
			if s.Id() != leaving {
				users = append(users, s.Id())
			}
		}
		h.io.In(room).Emit(EventRoomUserChange, users)
	})
}

// rooms tracks the project rooms one socket has joined.
type rooms struct {
	mu  sync.Mutex
	set map[socketio.Room]struct{}
}

func (r *rooms) add(room socketio.Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.set[room] = struct{}{}
}

func (r *rooms) remove(room socketio.Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.set, room)
}

func (r *rooms) has(room socketio.Room) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.set[room]
	return ok
}

func (r *rooms) list() []socketio.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]socketio.Room, 0, len(r.set))
	for room := range r.set {
		out = append(out, room)
	}
	return out
}

func stringArg(datas []any, i int) (string, bool) {
	if len(datas) <= i {
		return "", false
	}
	s, ok := datas[i].(string)
	return s, ok && s != ""
}
