// Package responses renders the JSON envelopes shared by every handler.
package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
	"github.com/angelmondragon/beatstore-backend/pkg/pagination"
	"github.com/angelmondragon/beatstore-backend/pkg/types"
)

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	_ = writeJSON(w, status, types.Envelope[any]{Data: data})
}

// WritePage writes a cursor-paginated list body. A nil page renders as an
// empty list.
func WritePage[T any](w http.ResponseWriter, page *pagination.Page[T]) {
	if page == nil {
		page = &pagination.Page[T]{}
	}
	_ = writeJSON(w, http.StatusOK, types.NewPageEnvelope(page.Items, page.NextCursor, page.Limit))
}

// WriteError renders err as the JSON error envelope. Client faults are logged
// as warnings; server faults are logged with a stack.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	body := types.ErrorBody{Code: string(typed.Code()), Message: meta.PublicMessage}
	if meta.ClientMessage() && typed.Message() != "" {
		body.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		body.Details = typed.Details()
	}

	if logg != nil {
		ctx = logg.WithFields(ctx, pkgerrors.LogFields(err))
		if meta.HTTPStatus >= http.StatusInternalServerError {
			logg.Error(ctx, "request.error", err)
		} else {
			logg.Warn(ctx, "request.rejected")
		}
	}

	if encErr := writeJSON(w, meta.HTTPStatus, types.ErrorEnvelope{Error: body}); encErr != nil && logg != nil {
		logg.Warn(logg.WithField(ctx, "encode_error", encErr.Error()), "response.encode_failed")
	}
}

// writeJSON commits the status before encoding, so an encode failure can
// only truncate the body.
func writeJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}
