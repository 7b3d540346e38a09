package beats

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
	"github.com/angelmondragon/beatstore-backend/pkg/pagination"
	"github.com/angelmondragon/beatstore-backend/pkg/storage"
)

// maxPrice is the largest value a numeric(6,2) column holds.
var maxPrice = decimal.RequireFromString("9999.99")

// Preview is an open snippet stream plus the name to present it under.
type Preview struct {
	Object      *storage.Object
	Filename    string
	DisplayName string
}

// ContentDisposition is the header value for inline playback.
func (p *Preview) ContentDisposition() string {
	return ContentDisposition("inline", p.Filename, p.DisplayName)
}

type Service interface {
	List(ctx context.Context, params ListParams) (*pagination.Page[BeatDTO], error)
	Get(ctx context.Context, id uuid.UUID) (*BeatDTO, error)
	Find(ctx context.Context, id uuid.UUID) (*models.Beat, error)
	OpenPreview(ctx context.Context, id uuid.UUID) (*Preview, error)
	Create(ctx context.Context, input CreateBeatInput) (*BeatDTO, error)
}

type ServiceParams struct {
	Repo    Repository
	Storage storage.Store
	Logger  *logger.Logger
}

type service struct {
	repo    Repository
	storage storage.Store
	logg    *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "beats repository required")
	}
	if params.Storage == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "asset storage required")
	}
	return &service{repo: params.Repo, storage: params.Storage, logg: params.Logger}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*pagination.Page[BeatDTO], error) {
	f := params.Filters
	if f.BPMMin != nil && f.BPMMax != nil && *f.BPMMin > *f.BPMMax {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bpm_min must not exceed bpm_max")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.List(ctx, f, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list beats")
	}
	page := pagination.BuildPage(rows, params.Limit, func(b models.Beat) pagination.Cursor {
		return pagination.Cursor{CreatedAt: b.CreatedAt, ID: b.ID}
	})

	items := make([]BeatDTO, 0, len(page.Items))
	for _, beat := range page.Items {
		items = append(items, ToDTO(beat))
	}
	return &pagination.Page[BeatDTO]{Items: items, NextCursor: page.NextCursor, Limit: page.Limit}, nil
}

func (s *service) Find(ctx context.Context, id uuid.UUID) (*models.Beat, error) {
	beat, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load beat")
	}
	if beat == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "beat not found")
	}
	return beat, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*BeatDTO, error) {
	beat, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := ToDTO(*beat)
	return &dto, nil
}

func (s *service) OpenPreview(ctx context.Context, id uuid.UUID) (*Preview, error) {
	beat, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !hasKey(beat.SnippetKey) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "preview not available")
	}

	obj, err := s.storage.Open(ctx, *beat.SnippetKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "preview not available")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open preview")
	}
	return &Preview{
		Object:      obj,
		Filename:    FileStem(beat.Name) + "_preview.mp3",
		DisplayName: DisplayStem(beat.Name) + "_preview.mp3",
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateBeatInput) (*BeatDTO, error) {
	beat := models.Beat{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(input.Name),
		Genre:        strings.TrimSpace(input.Genre),
		BPM:          input.BPM,
		Scale:        strings.TrimSpace(input.Scale),
		Price:        input.Price,
		CoverArtKey:  input.CoverArtKey,
		SnippetKey:   input.SnippetKey,
		MP3FileKey:   input.MP3FileKey,
		WAVFileKey:   input.WAVFileKey,
		StemsFileKey: input.StemsFileKey,
		MP3Price:     input.MP3Price,
		WAVPrice:     input.WAVPrice,
		StemsPrice:   input.StemsPrice,
	}

	details := map[string]string{}
	checkPrice := func(field string, price *decimal.Decimal) {
		if price == nil {
			return
		}
		if !price.IsPositive() || price.GreaterThan(maxPrice) || !price.Equal(price.Round(2)) {
			details[field] = "must be between 0.01 and 9999.99 with at most two decimals"
		}
	}
	checkPrice("price", &beat.Price)
	checkPrice("mp3_price", beat.MP3Price)
	checkPrice("wav_price", beat.WAVPrice)
	checkPrice("stems_price", beat.StemsPrice)

	keys := map[string]*string{
		"cover_art_key":  beat.CoverArtKey,
		"snippet_key":    beat.SnippetKey,
		"mp3_file_key":   beat.MP3FileKey,
		"wav_file_key":   beat.WAVFileKey,
		"stems_file_key": beat.StemsFileKey,
	}
	for field, key := range keys {
		if key == nil {
			continue
		}
		cleaned, err := storage.CleanKey(*key)
		if err != nil {
			details[field] = "is not a valid storage key"
			continue
		}
		*key = cleaned
		exists, err := s.storage.Exists(ctx, cleaned)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check asset")
		}
		if !exists {
			details[field] = "asset not found in storage"
		}
	}
	if len(details) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid beat").WithDetails(details)
	}

	if err := s.repo.Create(ctx, &beat); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create beat")
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithBeatID(ctx, beat.ID.String()), "beat.created")
	}
	dto := ToDTO(beat)
	return &dto, nil
}
