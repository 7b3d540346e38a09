// Package downloads gates access to purchased beat assets.
package downloads

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/angelmondragon/beatstore-backend/internal/beats"
	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	"github.com/angelmondragon/beatstore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
	"github.com/angelmondragon/beatstore-backend/pkg/storage"
)

const purchaseRequired = "purchase required"

type entitlementChecker interface {
	HasCompleted(ctx context.Context, userID, beatID uuid.UUID, variant enums.DownloadType) (bool, error)
}

type beatFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Beat, error)
}

// Asset is an authorized download ready to stream. Callers close Object.Body.
type Asset struct {
	Object      *storage.Object
	ContentType string
	Filename    string
	DisplayName string
}

// ContentDisposition is the header value that forces a file download.
func (a *Asset) ContentDisposition() string {
	return beats.ContentDisposition("attachment", a.Filename, a.DisplayName)
}

type ServiceParams struct {
	Purchases entitlementChecker
	Beats     beatFinder
	Storage   storage.Store
	Logger    *logger.Logger
}

type Service struct {
	purchases entitlementChecker
	beats     beatFinder
	storage   storage.Store
	logg      *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Purchases == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "purchase repository required")
	}
	if params.Beats == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "beat repository required")
	}
	if params.Storage == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "storage required")
	}
	return &Service{
		purchases: params.Purchases,
		beats:     params.Beats,
		storage:   params.Storage,
		logg:      params.Logger,
	}, nil
}

// Authorize succeeds only when a completed purchase exists for exactly this
// buyer, beat and variant. It is evaluated on every call.
func (s *Service) Authorize(ctx context.Context, userID, beatID uuid.UUID, variant enums.DownloadType) error {
	if !variant.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid download type").
			WithDetails(map[string]any{"download_type": string(variant)})
	}
	ok, err := s.purchases.HasCompleted(ctx, userID, beatID, variant)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check entitlement")
	}
	if !ok {
		if s.logg != nil {
			s.logg.Info(s.logg.WithFields(ctx, map[string]any{
				"user_id":       userID.String(),
				"beat_id":       beatID.String(),
				"download_type": string(variant),
			}), "download.denied")
		}
		return pkgerrors.New(pkgerrors.CodeForbidden, purchaseRequired)
	}
	return nil
}

// Open authorizes the request and opens the variant asset.
func (s *Service) Open(ctx context.Context, userID, beatID uuid.UUID, variant enums.DownloadType) (*Asset, error) {
	if err := s.Authorize(ctx, userID, beatID, variant); err != nil {
		return nil, err
	}

	beat, err := s.beats.FindByID(ctx, beatID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load beat")
	}
	if beat == nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, purchaseRequired)
	}
	key, ok := beat.VariantFileKey(variant)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "asset not available")
	}

	obj, err := s.storage.Open(ctx, key)
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidKey) {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"beat_id": beatID.String(),
				"key":     key,
			}), "download.asset_missing")
		}
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "asset not available")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open asset")
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"user_id":       userID.String(),
			"beat_id":       beatID.String(),
			"download_type": string(variant),
		}), "download.granted")
	}
	return &Asset{
		Object:      obj,
		ContentType: variant.ContentType(),
		Filename:    Filename(beat.Name, variant),
		DisplayName: DisplayName(beat.Name, variant),
	}, nil
}

// Filename is the ASCII "<beat-name>_<variant>.<ext>".
func Filename(beatName string, variant enums.DownloadType) string {
	return beats.FileStem(beatName) + "_" + string(variant) + "." + variant.Extension()
}

// DisplayName is Filename with the beat name's non-ASCII letters kept.
func DisplayName(beatName string, variant enums.DownloadType) string {
	return beats.DisplayStem(beatName) + "_" + string(variant) + "." + variant.Extension()
}
