package controllers

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/angelmondragon/beatstore-backend/pkg/logger"
	"github.com/angelmondragon/beatstore-backend/pkg/storage"
)

// streamObject copies an open asset to the client and closes it. Headers are
// committed before the copy, so a mid-stream failure can only be logged.
func streamObject(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, obj *storage.Object, contentType, disposition string) {
	defer obj.Body.Close()

	if contentType == "" {
		contentType = obj.ContentType
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if disposition != "" {
		w.Header().Set("Content-Disposition", disposition)
	}
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, obj.Body); err != nil && logg != nil {
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "asset.stream_interrupted")
	}
}
