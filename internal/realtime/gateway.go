package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medisched/medisched/internal/platform/auth"
)

// HospitalLookup resolves the hospital a staff member belongs to. It is an
// external read; a failed lookup degrades to no hospital room, never to a
// rejected connection.
type HospitalLookup interface {
	HospitalForStaff(ctx context.Context, userID string) (string, error)
}

// staffRoles are the roles that get a hospital-scoped room on connect.
var staffRoles = map[string]bool{
	"doctor":         true,
	"staff":          true,
	"hospital_admin": true,
}

// Gateway authenticates connections, wires them into presence and rooms,
// dispatches their messages, and tears everything down exactly once on
// disconnect.
type Gateway struct {
	hub       *Hub
	presence  *Presence
	locks     *LockManager
	verifier  auth.Verifier
	hospitals HospitalLookup
	logger    zerolog.Logger
}

func NewGateway(verifier auth.Verifier, hospitals HospitalLookup, lockTTL time.Duration, logger zerolog.Logger) *Gateway {
	g := &Gateway{
		hub:       NewHub(),
		presence:  NewPresence(),
		verifier:  verifier,
		hospitals: hospitals,
		logger:    logger,
	}
	g.locks = NewLockManager(lockTTL, g.onLockExpired)
	return g
}

// Hub exposes the room router, e.g. for health metrics.
func (g *Gateway) Hub() *Hub { return g.hub }

// Locks exposes the slot lock manager.
func (g *Gateway) Locks() *LockManager { return g.locks }

// Presence exposes the presence registry.
func (g *Gateway) Presence() *Presence { return g.presence }

// PublishSlotUpdate fans a committed slot change out to everyone watching
// the doctor's day. Called by the booking workflow after a slot is actually
// written, outside any lock-table critical section.
func (g *Gateway) PublishSlotUpdate(doctorID, date, scheduleID string, slotInfo interface{}) {
	g.hub.Broadcast(AppointmentRoom(doctorID, date), TimeSlotUpdated{
		ScheduleID:   scheduleID,
		TimeSlotInfo: slotInfo,
	}, nil)
}

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

// RegisterRoutes registers the WebSocket endpoint on the provided Echo group.
func (g *Gateway) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", g.HandleConnect)
}

// HandleConnect authenticates the credential token, upgrades the connection,
// and starts the session. Authentication failure rejects the connection
// before any room membership or presence is granted.
func (g *Gateway) HandleConnect(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		hdr := c.Request().Header.Get("Authorization")
		if len(hdr) > 7 && hdr[:7] == "Bearer " {
			token = hdr[7:]
		}
	}
	if token == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing credential token")
	}

	identity, err := g.verifier.Verify(c.Request().Context(), token)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credential token")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	sess := newSession(uuid.New().String(), *identity, &gorillaConnAdapter{ws})
	g.Connect(c.Request().Context(), sess)

	go g.writePump(sess)
	go g.readPump(sess)

	return nil
}

// Connect registers an authenticated session: hub membership, personal,
// role and hospital rooms, presence, and the initial presence snapshot.
func (g *Gateway) Connect(ctx context.Context, sess *Session) {
	g.hub.Register(sess)
	g.hub.Join(sess, UserRoom(sess.Identity.UserID))
	g.hub.Join(sess, RoleRoom(sess.Identity.Role))

	if staffRoles[sess.Identity.Role] {
		hospitalID := sess.Identity.HospitalID
		if hospitalID == "" && g.hospitals != nil {
			id, err := g.hospitals.HospitalForStaff(ctx, sess.Identity.UserID)
			if err != nil {
				g.logger.Warn().Err(err).Str("user_id", sess.Identity.UserID).Msg("hospital lookup failed")
			} else {
				hospitalID = id
			}
		}
		if hospitalID != "" {
			g.hub.Join(sess, HospitalRoom(hospitalID))
		}
	}

	if g.presence.Add(sess.Identity.UserID) {
		g.hub.BroadcastAll(UserOnline{UserID: sess.Identity.UserID}, sess)
	}
	g.hub.SendTo(sess, OnlineUsers{UserIDs: g.presence.OnlineUsers()})

	g.logger.Info().
		Str("session_id", sess.ID).
		Str("user_id", sess.Identity.UserID).
		Str("role", sess.Identity.Role).
		Msg("connected")
}

// Disconnect runs the session teardown exactly once, whether the client
// closed gracefully or the network dropped: every held slot lock is
// released with its own unlock broadcast, then presence and hub membership
// go away.
func (g *Gateway) Disconnect(sess *Session) {
	sess.teardown.Do(func() {
		for _, info := range g.locks.ReleaseAll(sess.Identity.UserID) {
			g.hub.Broadcast(info.Room, TimeSlotUnlocked{
				ScheduleID: info.Key.ScheduleID,
				TimeSlotID: info.Key.TimeSlotID,
			}, nil)
		}

		if g.presence.Remove(sess.Identity.UserID) {
			g.hub.BroadcastAll(UserOffline{UserID: sess.Identity.UserID}, sess)
		}

		g.hub.Unregister(sess)

		g.logger.Info().
			Str("session_id", sess.ID).
			Str("user_id", sess.Identity.UserID).
			Msg("disconnected")
	})
}

// Dispatch handles one inbound envelope. Malformed payloads and unknown
// event names are logged and ignored; they never fail the connection.
func (g *Gateway) Dispatch(sess *Session, env Envelope) {
	switch env.Event {
	case EventJoinConversation:
		var p JoinConversationPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.ConversationID == "" {
			g.logInvalidPayload(sess, env.Event, err)
			return
		}
		g.hub.Join(sess, ConversationRoom(p.ConversationID))

	case EventLeaveConversation:
		var p LeaveConversationPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.ConversationID == "" {
			g.logInvalidPayload(sess, env.Event, err)
			return
		}
		g.hub.Leave(sess, ConversationRoom(p.ConversationID))

	case EventJoinAppointmentRoom:
		var p JoinAppointmentRoomPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.DoctorID == "" || p.Date == "" {
			g.logInvalidPayload(sess, env.Event, err)
			return
		}
		room := AppointmentRoom(p.DoctorID, p.Date)
		g.hub.Join(sess, room)

		// Synchronous snapshot so a late joiner's view is consistent
		// without waiting for the next mutation.
		snapshot := g.locks.Snapshot(room)
		slots := make([]LockedSlot, 0, len(snapshot))
		for _, info := range snapshot {
			slots = append(slots, LockedSlot{
				ScheduleID: info.Key.ScheduleID,
				TimeSlotID: info.Key.TimeSlotID,
				UserID:     info.HolderID,
			})
		}
		g.hub.SendTo(sess, CurrentLockedSlots{LockedSlots: slots})

	case EventLockTimeSlot:
		var p LockTimeSlotPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.ScheduleID == "" || p.TimeSlotID == "" {
			g.logInvalidPayload(sess, env.Event, err)
			return
		}
		key := SlotKey{ScheduleID: p.ScheduleID, TimeSlotID: p.TimeSlotID}
		room := AppointmentRoom(p.DoctorID, p.Date)

		res := g.locks.TryLock(key, sess.Identity.UserID, room)
		if !res.Granted {
			g.hub.SendTo(sess, TimeSlotLockRejected{
				Message: fmt.Sprintf("time slot is currently held by user %s", res.HeldBy),
			})
			return
		}

		// Confirmation to the requester first, then the room broadcast.
		g.hub.SendTo(sess, TimeSlotLockConfirmed{ScheduleID: p.ScheduleID, TimeSlotID: p.TimeSlotID})
		g.hub.Broadcast(room, TimeSlotLocked{
			ScheduleID: p.ScheduleID,
			TimeSlotID: p.TimeSlotID,
			UserID:     sess.Identity.UserID,
		}, nil)

	case EventUnlockTimeSlot:
		var p LockTimeSlotPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.ScheduleID == "" || p.TimeSlotID == "" {
			g.logInvalidPayload(sess, env.Event, err)
			return
		}
		key := SlotKey{ScheduleID: p.ScheduleID, TimeSlotID: p.TimeSlotID}

		info, released := g.locks.Unlock(key, sess.Identity.UserID)
		if !released {
			// Stale or duplicate message; never an error.
			g.logger.Debug().
				Str("user_id", sess.Identity.UserID).
				Str("schedule_id", p.ScheduleID).
				Str("time_slot_id", p.TimeSlotID).
				Msg("ignored unlock by non-holder")
			return
		}
		g.hub.Broadcast(info.Room, TimeSlotUnlocked{
			ScheduleID: p.ScheduleID,
			TimeSlotID: p.TimeSlotID,
		}, nil)

	default:
		g.logger.Debug().Str("event", env.Event).Msg("ignored unknown event")
	}
}

// onLockExpired runs when a hold's deadline fires; the room is notified
// exactly as if the holder had released it.
func (g *Gateway) onLockExpired(info LockInfo) {
	g.hub.Broadcast(info.Room, TimeSlotUnlocked{
		ScheduleID: info.Key.ScheduleID,
		TimeSlotID: info.Key.TimeSlotID,
	}, nil)
	g.logger.Debug().
		Str("holder_id", info.HolderID).
		Str("schedule_id", info.Key.ScheduleID).
		Str("time_slot_id", info.Key.TimeSlotID).
		Msg("slot lock expired")
}

func (g *Gateway) logInvalidPayload(sess *Session, event string, err error) {
	g.logger.Debug().
		Err(err).
		Str("session_id", sess.ID).
		Str("event", event).
		Msg("ignored malformed payload")
}

// readPump reads frames off the connection until it errors, then runs the
// teardown. Cleanup never depends on the client sending a graceful close.
func (g *Gateway) readPump(sess *Session) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error().Interface("panic", r).Str("session_id", sess.ID).Msg("panic in read loop")
		}
		g.Disconnect(sess)
		sess.conn.Close()
	}()

	for {
		_, message, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			g.logger.Debug().Err(err).Str("session_id", sess.ID).Msg("ignored malformed frame")
			continue
		}

		g.Dispatch(sess, env)
	}
}

// writePump drains the session's send buffer onto the wire.
func (g *Gateway) writePump(sess *Session) {
	defer sess.conn.Close()

	for message := range sess.send {
		if err := sess.conn.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			return
		}
	}
}

// gorillaConnAdapter wraps a gorilla/websocket.Conn to satisfy Conn.
type gorillaConnAdapter struct {
	conn *gorillawebsocket.Conn
}

func (a *gorillaConnAdapter) ReadMessage() (int, []byte, error) {
	return a.conn.ReadMessage()
}

func (a *gorillaConnAdapter) WriteMessage(messageType int, data []byte) error {
	return a.conn.WriteMessage(messageType, data)
}

func (a *gorillaConnAdapter) Close() error {
	return a.conn.Close()
}
