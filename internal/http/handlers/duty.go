package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/smilelog/smilelog-backend/internal/data/repos"
	"github.com/smilelog/smilelog-backend/internal/domain"
	"github.com/smilelog/smilelog-backend/internal/http/response"
	"github.com/smilelog/smilelog-backend/internal/platform/ctxutil"
	"github.com/smilelog/smilelog-backend/internal/platform/logger"
	"github.com/smilelog/smilelog-backend/internal/services"
)

type DutyHandler struct {
	log    *logger.Logger
	duties services.DutyService
}

func NewDutyHandler(log *logger.Logger, duties services.DutyService) *DutyHandler {
	return &DutyHandler{log: log.With("handler", "DutyHandler"), duties: duties}
}

func (h *DutyHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_duty_id", err)
		return
	}
	duty, err := h.duties.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			response.RespondError(c, http.StatusNotFound, "duty_not_found", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "duty_fetch_failed", err)
		return
	}
	response.RespondOK(c, duty)
}

// ListToday returns the caller's duties for a given day (default today).
func (h *DutyHandler) ListToday(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	day := time.Now().UTC()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_date", err)
			return
		}
		day = parsed
	}

	var duties any
	var err error
	switch rd.Role {
	case domain.RoleFacility, domain.RoleDentist:
		duties, err = h.duties.ListForFacility(c.Request.Context(), rd.UserID, day)
	default:
		duties, err = h.duties.ListForWorker(c.Request.Context(), rd.UserID, day)
	}
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "duty_list_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"duties": duties})
}

func (h *DutyHandler) Complete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_duty_id", err)
		return
	}
	duty, err := h.duties.Complete(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			response.RespondError(c, http.StatusNotFound, "duty_not_found", err)
			return
		}
		response.RespondError(c, http.StatusForbidden, "duty_complete_failed", err)
		return
	}
	response.RespondOK(c, duty)
}

func (h *DutyHandler) Verify(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_duty_id", err)
		return
	}
	duty, err := h.duties.Verify(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, repos.ErrNotFound):
			response.RespondError(c, http.StatusNotFound, "duty_not_found", err)
		case errors.Is(err, repos.ErrDutyNotCompleted):
			response.RespondError(c, http.StatusConflict, "duty_not_completed", err)
		default:
			response.RespondError(c, http.StatusInternalServerError, "duty_verify_failed", err)
		}
		return
	}
	response.RespondOK(c, duty)
}
