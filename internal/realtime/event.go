// Package realtime implements the appointment platform's live coordination
// layer: connection gateway, presence registry, room fan-out, and the slot
// lock manager that keeps concurrent clients from double-booking a time slot.
package realtime

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire frame for every message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound event names.
const (
	EventJoinConversation    = "join_conversation"
	EventLeaveConversation   = "leave_conversation"
	EventLockTimeSlot        = "lock_time_slot"
	EventUnlockTimeSlot      = "unlock_time_slot"
	EventJoinAppointmentRoom = "join_appointment_room"
)

// JoinConversationPayload is the body of a join_conversation message.
type JoinConversationPayload struct {
	ConversationID string `json:"conversationId"`
}

// LeaveConversationPayload is the body of a leave_conversation message.
type LeaveConversationPayload struct {
	ConversationID string `json:"conversationId"`
}

// LockTimeSlotPayload is the body of lock_time_slot and unlock_time_slot.
type LockTimeSlotPayload struct {
	ScheduleID string `json:"scheduleId"`
	TimeSlotID string `json:"timeSlotId"`
	DoctorID   string `json:"doctorId"`
	Date       string `json:"date"`
}

// JoinAppointmentRoomPayload is the body of a join_appointment_room message.
type JoinAppointmentRoomPayload struct {
	DoctorID string `json:"doctorId"`
	Date     string `json:"date"`
}

// OutboundEvent is implemented by every server-to-client event. The closed
// set of implementations below is the full outbound vocabulary; adding an
// event means adding a type here.
type OutboundEvent interface {
	EventName() string
}

// TimeSlotLockConfirmed tells the requester its hold was granted.
type TimeSlotLockConfirmed struct {
	ScheduleID string `json:"scheduleId"`
	TimeSlotID string `json:"timeSlotId"`
}

func (TimeSlotLockConfirmed) EventName() string { return "time_slot_lock_confirmed" }

// TimeSlotLockRejected tells the requester the slot is held by someone else.
type TimeSlotLockRejected struct {
	Message string `json:"message"`
}

func (TimeSlotLockRejected) EventName() string { return "time_slot_lock_rejected" }

// TimeSlotLocked tells a room a slot is now held.
type TimeSlotLocked struct {
	ScheduleID string `json:"scheduleId"`
	TimeSlotID string `json:"timeSlotId"`
	UserID     string `json:"userId"`
}

func (TimeSlotLocked) EventName() string { return "time_slot_locked" }

// TimeSlotUnlocked tells a room a hold was released, expired, or lost to a
// disconnect.
type TimeSlotUnlocked struct {
	ScheduleID string `json:"scheduleId"`
	TimeSlotID string `json:"timeSlotId"`
}

func (TimeSlotUnlocked) EventName() string { return "time_slot_unlocked" }

// TimeSlotUpdated tells a room a slot was committed by the booking workflow.
type TimeSlotUpdated struct {
	ScheduleID   string      `json:"scheduleId"`
	TimeSlotInfo interface{} `json:"timeSlotInfo"`
}

func (TimeSlotUpdated) EventName() string { return "time_slot_updated" }

// LockedSlot is one entry of a CurrentLockedSlots snapshot.
type LockedSlot struct {
	ScheduleID string `json:"scheduleId"`
	TimeSlotID string `json:"timeSlotId"`
	UserID     string `json:"userId"`
}

// CurrentLockedSlots is the snapshot sent to a connection joining an
// appointment room.
type CurrentLockedSlots struct {
	LockedSlots []LockedSlot `json:"lockedSlots"`
}

func (CurrentLockedSlots) EventName() string { return "current_locked_slots" }

// OnlineUsers is the presence snapshot sent to a newly-connected client.
type OnlineUsers struct {
	UserIDs []string `json:"userIds"`
}

func (OnlineUsers) EventName() string { return "online_users" }

// UserOnline announces a user's first open connection.
type UserOnline struct {
	UserID string `json:"userId"`
}

func (UserOnline) EventName() string { return "user_online" }

// UserOffline announces a user's last connection closing.
type UserOffline struct {
	UserID string `json:"userId"`
}

func (UserOffline) EventName() string { return "user_offline" }

// EncodeEvent marshals an outbound event into its wire envelope.
func EncodeEvent(e OutboundEvent) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", e.EventName(), err)
	}
	frame, err := json.Marshal(Envelope{Event: e.EventName(), Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", e.EventName(), err)
	}
	return frame, nil
}

// AppointmentRoom is the topic for everyone watching one doctor's day.
func AppointmentRoom(doctorID, date string) string {
	return fmt.Sprintf("appointments:%s:%s", doctorID, date)
}

// ConversationRoom is the topic for one conversation's participants.
func ConversationRoom(conversationID string) string {
	return fmt.Sprintf("conversation:%s", conversationID)
}

// UserRoom is the personal topic auto-joined by every connection.
func UserRoom(userID string) string {
	return fmt.Sprintf("user:%s", userID)
}

// RoleRoom is the role-scoped topic auto-joined by every connection.
func RoleRoom(role string) string {
	return fmt.Sprintf("role:%s", role)
}

// HospitalRoom is the hospital-scoped topic auto-joined by staff connections.
func HospitalRoom(hospitalID string) string {
	return fmt.Sprintf("hospital:%s", hospitalID)
}
