package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/smilelog/smilelog-backend/internal/http/response"
	"github.com/smilelog/smilelog-backend/internal/platform/logger"
	"github.com/smilelog/smilelog-backend/internal/services"
)

type RecordHandler struct {
	log     *logger.Logger
	records services.RecordService
}

func NewRecordHandler(log *logger.Logger, records services.RecordService) *RecordHandler {
	return &RecordHandler{log: log.With("handler", "RecordHandler"), records: records}
}

// GetSeries returns the patient's hygiene time series, oldest first. A
// patient with no completed assessments yet gets an empty series, not 404.
func (h *RecordHandler) GetSeries(c *gin.Context) {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_patient_id", err)
		return
	}
	record, err := h.records.GetSeries(c.Request.Context(), patientID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "record_fetch_failed", err)
		return
	}
	if record == nil {
		response.RespondOK(c, gin.H{"patient_id": patientID.String(), "entries": []any{}})
		return
	}
	response.RespondOK(c, record)
}
