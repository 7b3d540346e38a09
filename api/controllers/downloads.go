package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/beatstore-backend/api/middleware"
	"github.com/angelmondragon/beatstore-backend/api/responses"
	"github.com/angelmondragon/beatstore-backend/api/validators"
	"github.com/angelmondragon/beatstore-backend/internal/downloads"
	"github.com/angelmondragon/beatstore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
)

// AssetOpener resolves an entitled download to an open asset.
type AssetOpener interface {
	Open(ctx context.Context, userID, beatID uuid.UUID, variant enums.DownloadType) (*downloads.Asset, error)
}

// DownloadBeat streams a purchased variant as an attachment.
func DownloadBeat(svc AssetOpener, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "download service unavailable"))
			return
		}

		userID, err := middleware.AuthenticatedUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		beatID, err := validators.ParseUUIDParam(r, "beatId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		raw := r.URL.Query().Get("type")
		if raw == "" {
			raw = string(enums.DownloadTypeMP3)
		}
		variant, err := enums.ParseDownloadType(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid download type").WithDetails(map[string]any{"field": "type"}))
			return
		}

		asset, err := svc.Open(r.Context(), userID, beatID, variant)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		streamObject(r.Context(), logg, w, asset.Object, asset.ContentType, asset.ContentDisposition())
	}
}
