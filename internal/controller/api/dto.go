package api

import (
	"time"

	"github.com/Freeeeeet/evalcalendar/internal/model"
)

type CreateBookingRequest struct {
	SupervisorID int64  `json:"supervisor_id"`
	ChallengeID  int64  `json:"challenge_id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Date         string `json:"date"` // YYYY-MM-DD
	Time         string `json:"time"` // HH:MM
}

type SlotRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type SaveSlotsRequest struct {
	Slots []SlotRequest `json:"slots"`
}

type SaveSlotsResponse struct {
	Saved int `json:"saved"`
}

type BookingResponse struct {
	ID           int64               `json:"id"`
	SupervisorID int64               `json:"supervisor_id"`
	ChallengeID  int64               `json:"challenge_id"`
	Name         string              `json:"name"`
	Email        string              `json:"email"`
	Phone        string              `json:"phone,omitempty"`
	Date         string              `json:"date"`
	Time         string              `json:"time"`
	Status       model.BookingStatus `json:"status"`
	ReminderSent bool                `json:"reminder_sent"`
	CreatedAt    time.Time           `json:"created_at"`
	ExpiresAt    time.Time           `json:"expires_at"`
}

type SlotResponse struct {
	ID        int64  `json:"id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

type DashboardResponse struct {
	Pending  []BookingResponse `json:"pending"`
	Upcoming []BookingResponse `json:"upcoming"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func ToBookingResponse(b *model.Booking) BookingResponse {
	return BookingResponse{
		ID:           b.ID,
		SupervisorID: b.SupervisorID,
		ChallengeID:  b.ChallengeID,
		Name:         b.Requester.Name,
		Email:        b.Requester.Email,
		Phone:        b.Requester.Phone,
		Date:         b.Date.Format(model.DateLayout),
		Time:         b.TimeOfDay,
		Status:       b.Status,
		ReminderSent: b.ReminderSent,
		CreatedAt:    b.CreatedAt,
		ExpiresAt:    b.ExpiresAt,
	}
}

func ToBookingResponses(bookings []*model.Booking) []BookingResponse {
	resp := make([]BookingResponse, len(bookings))
	for i, b := range bookings {
		resp[i] = ToBookingResponse(b)
	}
	return resp
}

func ToSlotResponses(slots []*model.ScheduleSlot) []SlotResponse {
	resp := make([]SlotResponse, len(slots))
	for i, s := range slots {
		resp[i] = SlotResponse{
			ID:        s.ID,
			Date:      s.Date.Format(model.DateLayout),
			Time:      s.TimeOfDay,
			Available: s.Available,
		}
	}
	return resp
}
