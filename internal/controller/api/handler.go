package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Freeeeeet/evalcalendar/internal/model"
	"github.com/Freeeeeet/evalcalendar/internal/service"
	"github.com/labstack/echo/v4"
)

// BookingService операции движка, доступные по HTTP
type BookingService interface {
	RequestBooking(ctx context.Context, in service.RequestInput) (*model.Booking, error)
	Confirm(ctx context.Context, bookingID, supervisorID int64) (*model.Booking, error)
	Reject(ctx context.Context, bookingID, supervisorID int64) (*model.Booking, error)
	Get(ctx context.Context, bookingID, supervisorID int64) (*model.Booking, error)
	ListForSupervisor(ctx context.Context, supervisorID int64, status *model.BookingStatus) ([]*model.Booking, error)
	Dashboard(ctx context.Context, supervisorID int64) (*service.Dashboard, error)
	History(ctx context.Context, supervisorID int64) ([]*model.Booking, error)
}

// AvailabilityService операции над слотами
type AvailabilityService interface {
	BulkDeclare(ctx context.Context, supervisorID int64, inputs []service.SlotInput) (int, error)
	Remove(ctx context.Context, supervisorID, slotID int64) error
	ListMonth(ctx context.Context, supervisorID int64, year, month int) ([]*model.ScheduleSlot, error)
	AvailableMonth(ctx context.Context, supervisorID int64, year, month int) ([]service.DayAvailability, error)
}

// SupervisorService администрирование супервизоров
type SupervisorService interface {
	Deactivate(ctx context.Context, supervisorID int64) error
	Restore(ctx context.Context, supervisorID int64) error
}

// maxMonthOffset сколько месяцев вперёд и назад можно пролистать от года в запросе
const maxMonthOffset = 1200

type Handler struct {
	bookings     BookingService
	availability AvailabilityService
	supervisors  SupervisorService
	clock        service.Clock
	location     *time.Location
}

// NewHandler loc зона, в которой заданы даты слотов; nil означает UTC
func NewHandler(bookings BookingService, availability AvailabilityService, supervisors SupervisorService, clock service.Clock, loc *time.Location) *Handler {
	if clock == nil {
		clock = service.SystemClock
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		bookings:     bookings,
		availability: availability,
		supervisors:  supervisors,
		clock:        clock,
		location:     loc,
	}
}

// RegisterRoutes регистрирует маршруты API; админские только при заданном токене
func (h *Handler) RegisterRoutes(e *echo.Echo, adminToken string) {
	v1 := e.Group("/api/v1")
	v1.POST("/bookings", h.CreateBooking)
	v1.GET("/supervisors/:id/availability", h.GetAvailability)

	sup := v1.Group("/supervisor", RequireSupervisor)
	sup.GET("/bookings", h.ListBookings)
	sup.GET("/bookings/:id", h.GetBooking)
	sup.POST("/bookings/:id/confirm", h.ConfirmBooking)
	sup.POST("/bookings/:id/reject", h.RejectBooking)
	sup.GET("/slots", h.ListSlots)
	sup.POST("/slots", h.SaveSlots)
	sup.DELETE("/slots/:id", h.DeleteSlot)
	sup.GET("/dashboard", h.Dashboard)
	sup.GET("/history", h.History)

	if adminToken != "" {
		admin := v1.Group("/admin", RequireAdmin(adminToken))
		admin.POST("/supervisors/:id/deactivate", h.DeactivateSupervisor)
		admin.POST("/supervisors/:id/restore", h.RestoreSupervisor)
	}
}

func (h *Handler) CreateBooking(c echo.Context) error {
	var req CreateBookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.SupervisorID <= 0 || req.ChallengeID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "supervisor_id and challenge_id are required")
	}

	date, err := time.Parse(model.DateLayout, req.Date)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
	}

	booking, err := h.bookings.RequestBooking(c.Request().Context(), service.RequestInput{
		SupervisorID: req.SupervisorID,
		ChallengeID:  req.ChallengeID,
		Requester: model.Requester{
			Name:  req.Name,
			Email: req.Email,
			Phone: req.Phone,
		},
		Date:      date,
		TimeOfDay: req.Time,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, ToBookingResponse(booking))
}

func (h *Handler) ConfirmBooking(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	booking, err := h.bookings.Confirm(c.Request().Context(), id, supervisorID(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ToBookingResponse(booking))
}

func (h *Handler) RejectBooking(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	booking, err := h.bookings.Reject(c.Request().Context(), id, supervisorID(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ToBookingResponse(booking))
}

func (h *Handler) GetBooking(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	booking, err := h.bookings.Get(c.Request().Context(), id, supervisorID(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ToBookingResponse(booking))
}

func (h *Handler) ListBookings(c echo.Context) error {
	var status *model.BookingStatus
	if s := c.QueryParam("status"); s != "" {
		bs := model.BookingStatus(s)
		status = &bs
	}

	bookings, err := h.bookings.ListForSupervisor(c.Request().Context(), supervisorID(c), status)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ToBookingResponses(bookings))
}

func (h *Handler) ListSlots(c echo.Context) error {
	year, month, err := h.yearMonth(c)
	if err != nil {
		return err
	}

	slots, err := h.availability.ListMonth(c.Request().Context(), supervisorID(c), year, month)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ToSlotResponses(slots))
}

func (h *Handler) SaveSlots(c echo.Context) error {
	var req SaveSlotsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	// Некорректные даты пропускаются так же, как некорректное время
	inputs := make([]service.SlotInput, 0, len(req.Slots))
	for _, s := range req.Slots {
		date, err := time.Parse(model.DateLayout, s.Date)
		if err != nil {
			continue
		}
		inputs = append(inputs, service.SlotInput{Date: date, TimeOfDay: s.Time})
	}
	if len(inputs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no valid slots")
	}

	saved, err := h.availability.BulkDeclare(c.Request().Context(), supervisorID(c), inputs)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, SaveSlotsResponse{Saved: saved})
}

func (h *Handler) DeleteSlot(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	if err := h.availability.Remove(c.Request().Context(), supervisorID(c), id); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetAvailability(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	year, month, err := h.yearMonth(c)
	if err != nil {
		return err
	}

	days, err := h.availability.AvailableMonth(c.Request().Context(), id, year, month)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, days)
}

func (h *Handler) Dashboard(c echo.Context) error {
	dashboard, err := h.bookings.Dashboard(c.Request().Context(), supervisorID(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, DashboardResponse{
		Pending:  ToBookingResponses(dashboard.Pending),
		Upcoming: ToBookingResponses(dashboard.Upcoming),
	})
}

func (h *Handler) History(c echo.Context) error {
	bookings, err := h.bookings.History(c.Request().Context(), supervisorID(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ToBookingResponses(bookings))
}

func (h *Handler) DeactivateSupervisor(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	if err := h.supervisors.Deactivate(c.Request().Context(), id); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) RestoreSupervisor(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	if err := h.supervisors.Restore(c.Request().Context(), id); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// yearMonth год и месяц из query; по умолчанию текущий месяц в зоне календаря.
// Месяц вне 1..12 переносится на соседний год, как при листании календаря.
func (h *Handler) yearMonth(c echo.Context) (int, int, error) {
	now := h.clock().In(h.location)
	year, month := now.Year(), int(now.Month())

	if v := c.QueryParam("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, echo.NewHTTPError(http.StatusBadRequest, "invalid year")
		}
		year = y
	}
	if v := c.QueryParam("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < -maxMonthOffset || m > maxMonthOffset {
			return 0, 0, echo.NewHTTPError(http.StatusBadRequest, "invalid month")
		}
		month = m
	}

	from, _ := service.MonthRange(year, month)
	if from.Year() < 1970 || from.Year() > 9999 {
		return 0, 0, echo.NewHTTPError(http.StatusBadRequest, "invalid year")
	}
	return from.Year(), int(from.Month()), nil
}
