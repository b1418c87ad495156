package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/openwrench/openwrench/internal/config"
	"github.com/openwrench/openwrench/internal/model"
	"github.com/openwrench/openwrench/internal/service"
	"github.com/openwrench/openwrench/internal/store"
)

// JobHandler owns job CRUD and the on-site check-in/check-out endpoints.
// Every status change goes through the lifecycle rules and a versioned
// update, so two writers racing on the same job cannot both win.
type JobHandler struct {
	Cfg config.Config
	St  store.Store
}

func NewJobHandler(cfg config.Config, st store.Store) *JobHandler {
	return &JobHandler{Cfg: cfg, St: st}
}

type createJobReq struct {
	ServiceType         string     `json:"serviceType"`
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	Location            string     `json:"location"`
	PreferredDate       string     `json:"preferredDate"`
	PreferredTime       string     `json:"preferredTime"`
	AppointmentDateTime *time.Time `json:"appointmentDateTime"`
	CustomerEmail       string     `json:"customerEmail"`
	IsUrgent            bool       `json:"isUrgent"`
	DepositAmount       int        `json:"depositAmount"`
}

// Create records a new service request. Status always starts at requested;
// urgent jobs get a response deadline stamped two hours out (recorded for
// display, not enforced).
func (h *JobHandler) Create(c echo.Context) error {
	var req createJobReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.ServiceType = strings.TrimSpace(req.ServiceType)
	req.Title = strings.TrimSpace(req.Title)
	if req.ServiceType == "" || req.Title == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "serviceType and title are required"})
	}
	if req.DepositAmount < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "depositAmount cannot be negative"})
	}

	job := model.Job{
		ServiceType:           req.ServiceType,
		Title:                 req.Title,
		Description:           req.Description,
		Location:              req.Location,
		PreferredDate:         req.PreferredDate,
		PreferredTime:         req.PreferredTime,
		Status:                model.StatusRequested,
		CustomerEmail:         strings.ToLower(strings.TrimSpace(req.CustomerEmail)),
		IsUrgent:              req.IsUrgent,
		DepositAmount:         req.DepositAmount,
		DepositStatus:         model.PaymentPending,
		PaymentStatus:         model.PaymentPending,
		CancellationFeeStatus: model.CancellationFeeNone,
	}
	if req.AppointmentDateTime != nil {
		appt := req.AppointmentDateTime.UTC()
		job.AppointmentDateTime = &appt
	}
	if job.DepositAmount == 0 {
		job.DepositAmount = h.Cfg.DefaultDepositDollars
	}
	if job.IsUrgent {
		deadline := time.Now().UTC().Add(2 * time.Hour)
		job.ResponseDeadline = &deadline
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	created, err := h.St.CreateJob(ctx, job)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create job"})
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *JobHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	jobs, err := h.St.ListJobs(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not list jobs"})
	}
	return c.JSON(http.StatusOK, jobs)
}

func (h *JobHandler) Get(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	job, err := h.St.GetJob(ctx, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "job not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not look up job"})
	}
	return c.JSON(http.StatusOK, job)
}

// patchJobReq mirrors the mutable job fields. Pointer fields distinguish
// "absent" from zero values so a PATCH only touches what it names.
type patchJobReq struct {
	Status              *string    `json:"status"`
	ProviderID          *string    `json:"providerId"`
	CustomerID          *string    `json:"customerId"`
	EstimatedPrice      *int       `json:"estimatedPrice"`
	ContractTerms       *string    `json:"contractTerms"`
	CustomerSignature   *string    `json:"customerSignature"`
	ProviderSignature   *string    `json:"providerSignature"`
	SignedAt            *time.Time `json:"signedAt"`
	AppointmentDateTime *time.Time `json:"appointmentDateTime"`
	JobNotes            *string    `json:"jobNotes"`
	AdminOverride       bool       `json:"adminOverride"`
}

// Patch applies a partial update. When the patch includes a status change
// the transition is checked against the lifecycle rules first, and the
// write is versioned so a stale reader loses with 409.
func (h *JobHandler) Patch(c echo.Context) error {
	var req patchJobReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	job, err := h.St.GetJob(ctx, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "job not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not look up job"})
	}

	upd := store.JobUpdate{
		ProviderID:        req.ProviderID,
		CustomerID:        req.CustomerID,
		EstimatedPrice:    req.EstimatedPrice,
		ContractTerms:     req.ContractTerms,
		CustomerSignature: req.CustomerSignature,
		ProviderSignature: req.ProviderSignature,
		SignedAt:          req.SignedAt,
		JobNotes:          req.JobNotes,
	}
	if req.AppointmentDateTime != nil {
		appt := req.AppointmentDateTime.UTC()
		upd.AppointmentDateTime = &appt
	}

	if req.Status != nil {
		to := model.JobStatus(*req.Status)
		if !to.Valid() {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status"})
		}
		guards := service.TransitionGuards{
			ProviderID:     job.ProviderID,
			EstimatedPrice: job.EstimatedPrice,
			AdminOverride:  req.AdminOverride,
		}
		// Fields arriving in the same patch satisfy guards for the
		// transition they accompany.
		if req.ProviderID != nil {
			guards.ProviderID = *req.ProviderID
		}
		if req.EstimatedPrice != nil {
			guards.EstimatedPrice = req.EstimatedPrice
		}
		if err := service.CheckTransition(job, to, guards); err != nil {
			var te *service.TransitionError
			if errors.As(err, &te) {
				return c.JSON(http.StatusConflict, echo.Map{"error": te.Error()})
			}
			return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
		}
		upd.Status = store.Status(to)
	}

	updated, err := h.St.UpdateJobVersioned(ctx, job.ID, job.Version, upd)
	if errors.Is(err, store.ErrVersionConflict) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "job was modified concurrently, retry"})
	}
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "job not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not update job"})
	}
	return c.JSON(http.StatusOK, updated)
}

// CheckIn stamps the provider's arrival. Rejected when the job is already
// checked in; the job's status is not otherwise gated.
func (h *JobHandler) CheckIn(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	job, err := h.St.GetJob(ctx, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "job not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not look up job"})
	}

	upd, err := service.CheckIn(job, time.Now().UTC())
	if err != nil {
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	}
	updated, err := h.St.UpdateJobVersioned(ctx, job.ID, job.Version, upd)
	if errors.Is(err, store.ErrVersionConflict) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "job was modified concurrently, retry"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not update job"})
	}
	return c.JSON(http.StatusOK, updated)
}

type checkOutReq struct {
	JobNotes string `json:"jobNotes"`
}

// CheckOut stamps the provider's departure and optional notes. Rejected
// unless checked in and not already checked out.
func (h *JobHandler) CheckOut(c echo.Context) error {
	var req checkOutReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	job, err := h.St.GetJob(ctx, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "job not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not look up job"})
	}

	upd, err := service.CheckOut(job, time.Now().UTC(), req.JobNotes)
	if err != nil {
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	}
	updated, err := h.St.UpdateJobVersioned(ctx, job.ID, job.Version, upd)
	if errors.Is(err, store.ErrVersionConflict) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "job was modified concurrently, retry"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not update job"})
	}
	return c.JSON(http.StatusOK, updated)
}
