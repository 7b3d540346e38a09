package purchases

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
	"github.com/angelmondragon/beatstore-backend/pkg/pagination"
)

// Service exposes a buyer's purchase library.
type Service interface {
	ListLibrary(ctx context.Context, userID uuid.UUID, params LibraryParams) (*pagination.Page[PurchaseDTO], error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "purchases repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) ListLibrary(ctx context.Context, userID uuid.UUID, params LibraryParams) (*pagination.Page[PurchaseDTO], error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	if params.Filters.Status != nil && !params.Filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment status")
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.ListByUser(ctx, userID, params.Filters, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list purchases")
	}

	page := pagination.BuildPage(rows, params.Limit, func(p models.Purchase) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	items := make([]PurchaseDTO, 0, len(page.Items))
	for _, row := range page.Items {
		items = append(items, ToDTO(row))
	}
	return &pagination.Page[PurchaseDTO]{Items: items, NextCursor: page.NextCursor, Limit: page.Limit}, nil
}
