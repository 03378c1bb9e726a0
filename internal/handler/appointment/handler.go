package appointment

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-core/internal/model"
	"github.com/jwalitptl/scheduling-core/internal/service/booking"
	apperrors "github.com/jwalitptl/scheduling-core/pkg/errors"
	"github.com/jwalitptl/scheduling-core/pkg/httputil"
)

// HeaderUserID carries the acting user, recorded as created_by / cancelled_by.
const HeaderUserID = "X-User-ID"

type Service interface {
	Create(ctx context.Context, in booking.CreateInput) (*model.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
	List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error)
	Update(ctx context.Context, id uuid.UUID, in booking.UpdateInput) (*model.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, in booking.CancelInput) (*model.Appointment, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type CreateAppointmentRequest struct {
	DoctorID        string  `json:"doctor_id" binding:"required,uuid"`
	PatientID       string  `json:"patient_id" binding:"required,uuid"`
	StartAt         string  `json:"start_at" binding:"required"`
	EndAt           *string `json:"end_at"`
	DurationMinutes int     `json:"duration_minutes" binding:"omitempty,min=1,max=1440"`
	Notes           string  `json:"notes" binding:"max=2000"`
}

type UpdateAppointmentRequest struct {
	StartAt *string `json:"start_at"`
	EndAt   *string `json:"end_at"`
	Notes   *string `json:"notes" binding:"omitempty,max=2000"`
	Status  *string `json:"status" binding:"omitempty,oneof=scheduled completed cancelled"`
}

type CancelAppointmentRequest struct {
	Reason *string `json:"reason" binding:"omitempty,max=500"`
}

type ListAppointmentsQuery struct {
	DoctorID  string `form:"doctor_id" binding:"omitempty,uuid"`
	PatientID string `form:"patient_id" binding:"omitempty,uuid"`
	Status    string `form:"status" binding:"omitempty,oneof=scheduled completed cancelled"`
	From      string `form:"from"`
	To        string `form:"to"`
	model.Pagination
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appointments := r.Group("/appointments")
	{
		appointments.POST("", h.CreateAppointment)
		appointments.GET("", h.ListAppointments)
		appointments.GET("/:id", h.GetAppointment)
		appointments.PUT("/:id", h.UpdateAppointment)
		appointments.POST("/:id/cancel", h.CancelAppointment)
	}
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	var req CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewBadRequest("invalid request body", err))
		return
	}

	in := booking.CreateInput{
		DoctorID:  uuid.MustParse(req.DoctorID),
		PatientID: uuid.MustParse(req.PatientID),
		Duration:  time.Duration(req.DurationMinutes) * time.Minute,
		Notes:     req.Notes,
	}

	var err error
	if in.StartAt, err = parseTime("start_at", req.StartAt); err != nil {
		_ = c.Error(err)
		return
	}
	if req.EndAt != nil {
		if in.EndAt, err = parseTime("end_at", *req.EndAt); err != nil {
			_ = c.Error(err)
			return
		}
	}
	if in.CreatedBy, err = actingUser(c); err != nil {
		_ = c.Error(err)
		return
	}

	apt, err := h.service.Create(c.Request.Context(), in)
	if err != nil {
		_ = c.Error(err)
		return
	}

	httputil.RespondWithStatus(c, http.StatusCreated, apt)
}

func (h *Handler) GetAppointment(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	apt, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) ListAppointments(c *gin.Context) {
	var q ListAppointmentsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(apperrors.NewBadRequest("invalid query parameters", err))
		return
	}

	filters := &model.AppointmentFilters{
		Status:     model.AppointmentStatus(q.Status),
		Pagination: q.Pagination,
	}
	if q.DoctorID != "" {
		filters.DoctorID = uuid.MustParse(q.DoctorID)
	}
	if q.PatientID != "" {
		filters.PatientID = uuid.MustParse(q.PatientID)
	}

	var err error
	if q.From != "" {
		if filters.From, err = parseTime("from", q.From); err != nil {
			_ = c.Error(err)
			return
		}
	}
	if q.To != "" {
		if filters.To, err = parseTime("to", q.To); err != nil {
			_ = c.Error(err)
			return
		}
	}

	items, err := h.service.List(c.Request.Context(), filters)
	if err != nil {
		_ = c.Error(err)
		return
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	httputil.RespondWithPagination(c, items, page, filters.Limit(), len(items))
}

func (h *Handler) UpdateAppointment(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req UpdateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewBadRequest("invalid request body", err))
		return
	}

	in := booking.UpdateInput{Notes: req.Notes}
	if req.StartAt != nil {
		t, err := parseTime("start_at", *req.StartAt)
		if err != nil {
			_ = c.Error(err)
			return
		}
		in.StartAt = &t
	}
	if req.EndAt != nil {
		t, err := parseTime("end_at", *req.EndAt)
		if err != nil {
			_ = c.Error(err)
			return
		}
		in.EndAt = &t
	}
	if req.Status != nil {
		status := model.AppointmentStatus(*req.Status)
		in.Status = &status
	}

	apt, err := h.service.Update(c.Request.Context(), id, in)
	if err != nil {
		_ = c.Error(err)
		return
	}

	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) CancelAppointment(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	// body is optional
	var req CancelAppointmentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(apperrors.NewBadRequest("invalid request body", err))
			return
		}
	}

	by, err := actingUser(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	apt, err := h.service.Cancel(c.Request.Context(), id, booking.CancelInput{
		CancelledBy: by,
		Reason:      req.Reason,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	httputil.RespondWithSuccess(c, apt)
}

func pathID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperrors.NewBadRequest("invalid appointment ID", err)
	}
	return id, nil
}

func parseTime(field, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, apperrors.NewBadRequest(field+" must be an RFC3339 timestamp", err)
	}
	return t.UTC(), nil
}

func actingUser(c *gin.Context) (*uuid.UUID, error) {
	raw := c.GetHeader(HeaderUserID)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperrors.NewBadRequest("invalid "+HeaderUserID+" header", err)
	}
	return &id, nil
}
