package notification

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-core/internal/model"
	apperrors "github.com/jwalitptl/scheduling-core/pkg/errors"
	"github.com/jwalitptl/scheduling-core/pkg/httputil"
)

type Producer interface {
	LabResultReady(ctx context.Context, resultID uuid.UUID) (*model.Job, error)
	PrescriptionStatusChanged(ctx context.Context, prescriptionID uuid.UUID) (*model.Job, error)
}

// Handler lets the lab and pharmacy systems announce events. Delivery is
// asynchronous, so a successful call answers 202 with the queued job.
type Handler struct {
	producer Producer
}

func NewHandler(producer Producer) *Handler {
	return &Handler{producer: producer}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/lab-results/:id/notify", h.NotifyLabResult)
	r.POST("/prescriptions/:id/notify", h.NotifyPrescription)
}

func (h *Handler) NotifyLabResult(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		_ = c.Error(apperrors.NewBadRequest("invalid lab result ID", err))
		return
	}

	job, err := h.producer.LabResultReady(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	httputil.RespondWithStatus(c, http.StatusAccepted, job)
}

func (h *Handler) NotifyPrescription(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		_ = c.Error(apperrors.NewBadRequest("invalid prescription ID", err))
		return
	}

	job, err := h.producer.PrescriptionStatusChanged(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if job == nil {
		httputil.RespondWithStatus(c, http.StatusOK, gin.H{"queued": false})
		return
	}

	httputil.RespondWithStatus(c, http.StatusAccepted, job)
}
