package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/beatstore-backend/api/responses"
	"github.com/angelmondragon/beatstore-backend/api/validators"
	"github.com/angelmondragon/beatstore-backend/internal/beats"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
	"github.com/angelmondragon/beatstore-backend/pkg/pagination"
)

// BeatsList serves the public catalog with genre/bpm/scale filters, newest first.
func BeatsList(svc beats.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "beats service unavailable"))
			return
		}

		params, err := parseBeatListParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WritePage(w, page)
	}
}

func parseBeatListParams(r *http.Request) (beats.ListParams, error) {
	q := r.URL.Query()
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return beats.ListParams{}, err
	}

	params := beats.ListParams{
		Params: pagination.Params{Limit: limit, Cursor: strings.TrimSpace(q.Get("cursor"))},
		Filters: beats.ListFilters{
			Genre: validators.SanitizeString(q.Get("genre"), 50),
			Scale: validators.SanitizeString(q.Get("scale"), 30),
		},
	}

	for key, dest := range map[string]**int{
		"bpm":     &params.Filters.BPM,
		"bpm_min": &params.Filters.BPMMin,
		"bpm_max": &params.Filters.BPMMax,
	} {
		if strings.TrimSpace(q.Get(key)) == "" {
			continue
		}
		v, err := validators.ParseQueryInt(r, key, 0, 1, 1000)
		if err != nil {
			return beats.ListParams{}, err
		}
		*dest = &v
	}
	return params, nil
}

func BeatDetail(svc beats.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "beats service unavailable"))
			return
		}

		beatID, err := validators.ParseUUIDParam(r, "beatId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		beat, err := svc.Get(r.Context(), beatID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, beat)
	}
}

// BeatPreview streams the public snippet inline.
func BeatPreview(svc beats.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "beats service unavailable"))
			return
		}

		beatID, err := validators.ParseUUIDParam(r, "beatId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		preview, err := svc.OpenPreview(r.Context(), beatID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		streamObject(r.Context(), logg, w, preview.Object, "audio/mpeg", preview.ContentDisposition())
	}
}

// AdminCreateBeat adds a catalog entry.
func AdminCreateBeat(svc beats.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "beats service unavailable"))
			return
		}

		var body beats.CreateBeatInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		beat, err := svc.Create(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, beat)
	}
}
