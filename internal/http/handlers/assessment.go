package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/smilelog/smilelog-backend/internal/data/repos"
	"github.com/smilelog/smilelog-backend/internal/domain"
	"github.com/smilelog/smilelog-backend/internal/http/response"
	"github.com/smilelog/smilelog-backend/internal/platform/ctxutil"
	"github.com/smilelog/smilelog-backend/internal/platform/logger"
	"github.com/smilelog/smilelog-backend/internal/services"
)

// MaxImageBytes caps each uploaded image.
const MaxImageBytes = 10 << 20

type AssessmentHandler struct {
	log             *logger.Logger
	assessments     services.AssessmentService
	recommendations services.RecommendationService
}

func NewAssessmentHandler(
	log *logger.Logger,
	assessments services.AssessmentService,
	recommendations services.RecommendationService,
) *AssessmentHandler {
	return &AssessmentHandler{
		log:             log.With("handler", "AssessmentHandler"),
		assessments:     assessments,
		recommendations: recommendations,
	}
}

// Create accepts a multipart form with left_image, frontal_image and
// right_image, persists the raws and returns 201 while processing
// continues in the background.
func (h *AssessmentHandler) Create(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	if err := c.Request.ParseMultipartForm(3 * MaxImageBytes); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_multipart_form", err)
		return
	}

	in := services.CreateAssessmentInput{}
	var err error
	if in.LeftImage, err = readFormImage(c, "left_image"); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_left_image", err)
		return
	}
	if in.FrontalImage, err = readFormImage(c, "frontal_image"); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_frontal_image", err)
		return
	}
	if in.RightImage, err = readFormImage(c, "right_image"); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_right_image", err)
		return
	}

	// The patient defaults to the authenticated user; workers upload on
	// behalf of a patient via the patient_id form field.
	in.PatientID = rd.UserID
	if raw := c.PostForm("patient_id"); raw != "" {
		pid, perr := uuid.Parse(raw)
		if perr != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_patient_id", perr)
			return
		}
		in.PatientID = pid
	}
	if rd.Role == domain.RoleWorker {
		workerID := rd.UserID
		in.WorkerID = &workerID
	}
	if raw := c.PostForm("facility_id"); raw != "" {
		fid, perr := uuid.Parse(raw)
		if perr != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_facility_id", perr)
			return
		}
		in.FacilityID = &fid
	}

	a, err := h.assessments.Create(c.Request.Context(), in)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "assessment_create_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{
		"id":     a.ID.String(),
		"status": a.Status,
	})
}

func (h *AssessmentHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_assessment_id", err)
		return
	}
	a, err := h.assessments.GetByID(c.Request.Context(), id)
	if err != nil {
		if err == repos.ErrNotFound {
			response.RespondError(c, http.StatusNotFound, "assessment_not_found", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "assessment_fetch_failed", err)
		return
	}
	response.RespondOK(c, a)
}

func (h *AssessmentHandler) ListForPatient(c *gin.Context) {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_patient_id", err)
		return
	}
	list, err := h.assessments.GetByPatient(c.Request.Context(), patientID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "assessment_list_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"assessments": list})
}

func (h *AssessmentHandler) Recommendations(c *gin.Context) {
	if h.recommendations == nil {
		response.RespondError(c, http.StatusServiceUnavailable, "recommendations_disabled", nil)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_assessment_id", err)
		return
	}
	text, err := h.recommendations.ForAssessment(c.Request.Context(), id)
	if err != nil {
		if err == repos.ErrNotFound {
			response.RespondError(c, http.StatusNotFound, "assessment_not_found", err)
			return
		}
		response.RespondError(c, http.StatusBadGateway, "recommendations_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"recommendations": text})
}

func readFormImage(c *gin.Context, field string) ([]byte, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("%s is required", field)
	}
	if fh.Size > MaxImageBytes {
		return nil, fmt.Errorf("%s exceeds the %d byte limit", field, MaxImageBytes)
	}
	return readAllFormFile(fh)
}

func readAllFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, MaxImageBytes+1))
}
