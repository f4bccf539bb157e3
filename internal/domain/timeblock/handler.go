package timeblock

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/salonhub/availability/internal/domain/appointment"
	"github.com/salonhub/availability/internal/platform/auth"
	"github.com/salonhub/availability/pkg/pagination"
)

type Handler struct {
	svc *Service
	now func() time.Time
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireProvider())

	g.GET("/time-blocks", h.ListBlocks)
	g.GET("/time-blocks/:id", h.GetBlock)
	g.GET("/occurrences", h.ListOccurrences)
	g.GET("/occurrences.ics", h.OccurrencesFeed)
	g.GET("/conflicts", h.CheckConflicts)

	write := g.Group("", auth.RequireRole("provider"))
	write.POST("/time-blocks", h.CreateBlock)
	write.PUT("/time-blocks/:id", h.UpdateBlock)
	write.DELETE("/time-blocks/:id", h.DeleteBlock)
}

// errorBody is the JSON shape of every failure response.
type errorBody struct {
	Error     string                     `json:"error"`
	Message   string                     `json:"message"`
	Field     string                     `json:"field,omitempty"`
	Conflicts []*appointment.Appointment `json:"conflicts,omitempty"`
}

// httpError maps domain errors to status codes.
func httpError(err error) error {
	var (
		ve *ValidationError
		ce *ConflictError
		ne *NotFoundError
		se *StateError
	)
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "validation", Message: ve.Error(), Field: ve.Field})
	case errors.As(err, &ce):
		return echo.NewHTTPError(http.StatusConflict, errorBody{Error: "conflict", Message: ce.Error(), Conflicts: ce.Conflicts})
	case errors.As(err, &ne):
		return echo.NewHTTPError(http.StatusNotFound, errorBody{Error: "not_found", Message: ne.Error()})
	case errors.As(err, &se):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, errorBody{Error: "state", Message: se.Error()})
	}
	return echo.NewHTTPError(http.StatusInternalServerError,
		errorBody{Error: "storage", Message: "internal error"}).SetInternal(err)
}

func badRequest(field, reason string) error {
	return httpError(&ValidationError{Field: field, Reason: reason})
}

func providerID(c echo.Context) string {
	return auth.ProviderIDFromContext(c.Request().Context())
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, badRequest("id", "must be a UUID")
	}
	return id, nil
}

func parseDateParam(c echo.Context, name string) (Date, error) {
	v := c.QueryParam(name)
	if v == "" {
		return Date{}, badRequest(name, "is required")
	}
	d, err := ParseDate(v)
	if err != nil {
		return Date{}, badRequest(name, "expected YYYY-MM-DD")
	}
	return d, nil
}

func parseTimeParam(c echo.Context, name string) (time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return time.Time{}, badRequest(name, "is required")
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, badRequest(name, "expected an RFC 3339 timestamp")
	}
	return t, nil
}

// -- Requests --

type createRequest struct {
	StartDateTime     time.Time `json:"start_date_time"`
	EndDateTime       time.Time `json:"end_date_time"`
	IsRecurring       bool      `json:"is_recurring"`
	RecurrencePattern Pattern   `json:"recurrence_pattern"`
	RecurrenceDays    []int     `json:"recurrence_days"`
	RecurrenceEndDate *Date     `json:"recurrence_end_date"`
	Notes             *string   `json:"notes"`
}

// updateRequest is a partial update. For scope=instance only the window and
// notes are read.
type updateRequest struct {
	StartDateTime          *time.Time `json:"start_date_time"`
	EndDateTime            *time.Time `json:"end_date_time"`
	IsRecurring            *bool      `json:"is_recurring"`
	RecurrencePattern      *Pattern   `json:"recurrence_pattern"`
	RecurrenceDays         []int      `json:"recurrence_days"`
	RecurrenceEndDate      *Date      `json:"recurrence_end_date"`
	ClearRecurrenceEndDate bool       `json:"clear_recurrence_end_date"`
	Notes                  *string    `json:"notes"`
}

func (r updateRequest) fields() UpdateFields {
	return UpdateFields{
		StartDateTime:     r.StartDateTime,
		EndDateTime:       r.EndDateTime,
		IsRecurring:       r.IsRecurring,
		RecurrencePattern: r.RecurrencePattern,
		RecurrenceDays:    r.RecurrenceDays,
		RecurrenceEndDate: r.RecurrenceEndDate,
		ClearEndDate:      r.ClearRecurrenceEndDate,
		Notes:             r.Notes,
	}
}

// -- Handlers --

func (h *Handler) ListBlocks(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListBlocks(c.Request().Context(), providerID(c), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetBlock(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	b, err := h.svc.GetBlock(c.Request().Context(), providerID(c), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) CreateBlock(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("body", "malformed JSON")
	}
	pattern := req.RecurrencePattern
	if pattern == "" {
		pattern = PatternNone
	}
	res, err := h.svc.CreateBlock(c.Request().Context(), providerID(c), CreateInput{
		Window:            Window{Start: req.StartDateTime, End: req.EndDateTime},
		IsRecurring:       req.IsRecurring,
		RecurrencePattern: pattern,
		RecurrenceDays:    req.RecurrenceDays,
		RecurrenceEndDate: req.RecurrenceEndDate,
		Notes:             req.Notes,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

// UpdateBlock edits the whole series, or with scope=instance only the
// occurrence on occurrence_date.
func (h *Handler) UpdateBlock(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("body", "malformed JSON")
	}
	ctx := c.Request().Context()

	switch c.QueryParam("scope") {
	case "", "all":
		b, err := h.svc.UpdateSeries(ctx, providerID(c), id, req.fields())
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, b)
	case "instance":
		date, err := parseDateParam(c, "occurrence_date")
		if err != nil {
			return err
		}
		if req.StartDateTime == nil || req.EndDateTime == nil {
			return badRequest("start_date_time", "start and end are required to edit an occurrence")
		}
		edit := &InstanceEdit{
			Window: Window{Start: *req.StartDateTime, End: *req.EndDateTime},
			Notes:  req.Notes,
		}
		res, err := h.svc.ApplyToInstance(ctx, providerID(c), id, date, ActionEdit, edit)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, res)
	default:
		return badRequest("scope", "must be all or instance")
	}
}

// DeleteBlock removes the series, or only the occurrence on
// occurrence_date when given.
func (h *Handler) DeleteBlock(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	if c.QueryParam("occurrence_date") == "" {
		if err := h.svc.DeleteSeries(ctx, providerID(c), id); err != nil {
			return httpError(err)
		}
		return c.NoContent(http.StatusNoContent)
	}

	date, err := parseDateParam(c, "occurrence_date")
	if err != nil {
		return err
	}
	res, err := h.svc.ApplyToInstance(ctx, providerID(c), id, date, ActionDelete, nil)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) expandParams(c echo.Context) ([]Occurrence, error) {
	from, err := parseDateParam(c, "start")
	if err != nil {
		return nil, err
	}
	to, err := parseDateParam(c, "end")
	if err != nil {
		return nil, err
	}
	occ, err := h.svc.Expand(c.Request().Context(), providerID(c), from, to)
	if err != nil {
		return nil, httpError(err)
	}
	return occ, nil
}

func (h *Handler) ListOccurrences(c echo.Context) error {
	occ, err := h.expandParams(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  occ,
		"total": len(occ),
	})
}

func (h *Handler) OccurrencesFeed(c echo.Context) error {
	occ, err := h.expandParams(c)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `inline; filename="availability.ics"`)
	return c.Blob(http.StatusOK, "text/calendar; charset=utf-8", []byte(RenderICS(providerID(c), occ, h.now())))
}

func (h *Handler) CheckConflicts(c echo.Context) error {
	start, err := parseTimeParam(c, "start")
	if err != nil {
		return err
	}
	end, err := parseTimeParam(c, "end")
	if err != nil {
		return err
	}
	conflicts, err := h.svc.CheckConflicts(c.Request().Context(), providerID(c), Window{Start: start, End: end})
	if err != nil {
		return httpError(err)
	}
	if conflicts == nil {
		conflicts = []*appointment.Appointment{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"has_conflicts": len(conflicts) > 0,
		"conflicts":     conflicts,
	})
}
