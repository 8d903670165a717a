package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smilelog/smilelog-backend/internal/http/response"
	"github.com/smilelog/smilelog-backend/internal/platform/gcp"
	"github.com/smilelog/smilelog-backend/internal/platform/logger"
)

type ImageHandler struct {
	log   *logger.Logger
	blobs gcp.BlobStore
}

func NewImageHandler(log *logger.Logger, blobs gcp.BlobStore) *ImageHandler {
	return &ImageHandler{log: log.With("handler", "ImageHandler"), blobs: blobs}
}

// Serve streams a stored image. Objects never change once written, so
// the key itself is the cache validator: a matching If-None-Match short
// circuits to 304 without touching the bucket.
func (h *ImageHandler) Serve(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" || strings.Contains(key, "..") {
		response.RespondError(c, http.StatusBadRequest, "invalid_image_key", nil)
		return
	}

	etag := keyETag(key)
	if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
		c.Header("ETag", etag)
		c.Header("Cache-Control", "public, max-age=31536000, immutable")
		c.Status(http.StatusNotModified)
		return
	}

	attrs, err := h.blobs.Attrs(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, gcp.ErrObjectNotFound) {
			response.RespondError(c, http.StatusNotFound, "image_not_found", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "image_stat_failed", err)
		return
	}
	rc, err := h.blobs.Download(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, gcp.ErrObjectNotFound) {
			response.RespondError(c, http.StatusNotFound, "image_not_found", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "image_fetch_failed", err)
		return
	}
	defer rc.Close()

	contentType := attrs.ContentType
	if contentType == "" {
		contentType = gcp.ContentTypeForKey(key)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	c.Header("ETag", etag)
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Header("Content-Type", contentType)
	if attrs.Size > 0 {
		c.Header("Content-Length", strconv.FormatInt(attrs.Size, 10))
	}
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		h.log.Warn("image stream interrupted", "key", key, "error", err)
	}
}

func keyETag(key string) string {
	sum := sha256.Sum256([]byte(key))
	return `"` + hex.EncodeToString(sum[:8]) + `"`
}
