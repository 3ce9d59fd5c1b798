package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/worklog/internal/domain"
	"github.com/ashureev/worklog/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/xeipuuv/gojsonschema"
)

const maxSaveWorkBody = 4 << 10

const saveWorkSchema = `{
	"type": "object",
	"required": ["start_time", "end_time"],
	"properties": {
		"start_time": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2} [0-9]{2}:[0-9]{2}:[0-9]{2}$"},
		"end_time": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2} [0-9]{2}:[0-9]{2}:[0-9]{2}$"},
		"type": {"type": "string", "enum": ["work", "break"]}
	},
	"additionalProperties": false
}`

var saveWorkLoader = gojsonschema.NewStringLoader(saveWorkSchema)

// IntervalHandler handles interval ingestion.
type IntervalHandler struct {
	*Handler
	schema *gojsonschema.Schema
}

// NewIntervalHandler creates a new interval handler.
func NewIntervalHandler(base *Handler) (*IntervalHandler, error) {
	schema, err := gojsonschema.NewSchema(saveWorkLoader)
	if err != nil {
		return nil, err
	}
	return &IntervalHandler{Handler: base, schema: schema}, nil
}

// RegisterRoutes registers interval routes.
func (h *IntervalHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/save-work", h.SaveWork)
}

type saveWorkRequest struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Type      string `json:"type"`
}

// SaveWork records a finished interval. Type defaults to work.
func (h *IntervalHandler) SaveWork(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSaveWorkBody))
	if err != nil {
		Reject(w, http.StatusBadRequest, "invalid_request", "Could not read request body.")
		return
	}

	result, err := h.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		Reject(w, http.StatusBadRequest, "invalid_request", "Request body is not valid JSON.")
		return
	}
	if !result.Valid() {
		msg := "Invalid request."
		if errs := result.Errors(); len(errs) > 0 {
			msg = errs[0].String()
		}
		Reject(w, http.StatusBadRequest, "invalid_request", msg)
		return
	}

	var req saveWorkRequest
	if err := json.Unmarshal(body, &req); err != nil {
		Reject(w, http.StatusBadRequest, "invalid_request", "Request body is not valid JSON.")
		return
	}

	interval, ok := h.parseInterval(w, req)
	if !ok {
		return
	}

	err = h.intervals.InsertInterval(r.Context(), interval)
	switch {
	case err == nil:
		slog.Info("Interval saved", "interval_id", interval.ID, "type", interval.Type, "duration", interval.Duration())
		JSON(w, http.StatusCreated, map[string]string{"msg": "Saved!"})
	case errors.Is(err, store.ErrInvalidRange):
		Reject(w, http.StatusBadRequest, "invalid_range", "End time smaller than start time!")
	case errors.Is(err, store.ErrDuplicateStart):
		Reject(w, http.StatusBadRequest, "duplicate_start", "This start time already exists!")
	default:
		slog.Error("Failed to save interval", "error", err)
		internalError(w)
	}
}

func (h *IntervalHandler) parseInterval(w http.ResponseWriter, req saveWorkRequest) (*domain.Interval, bool) {
	start, err := domain.ParseWireTime(req.StartTime, h.loc)
	if err != nil {
		Reject(w, http.StatusBadRequest, "invalid_request", "start_time is not a valid time.")
		return nil, false
	}
	end, err := domain.ParseWireTime(req.EndTime, h.loc)
	if err != nil {
		Reject(w, http.StatusBadRequest, "invalid_request", "end_time is not a valid time.")
		return nil, false
	}
	typ := domain.IntervalWork
	if req.Type != "" {
		typ, err = domain.ParseIntervalType(req.Type)
		if err != nil {
			Reject(w, http.StatusBadRequest, "invalid_request", err.Error())
			return nil, false
		}
	}
	return &domain.Interval{StartTime: start, EndTime: end, Type: typ}, true
}
