package controllers

import (
	"net/http"

	"github.com/angelmondragon/beatstore-backend/api/middleware"
	"github.com/angelmondragon/beatstore-backend/api/responses"
	"github.com/angelmondragon/beatstore-backend/api/validators"
	"github.com/angelmondragon/beatstore-backend/internal/checkout"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
)

// CreatePaymentIntent prices the requested variant server-side and returns the
// client secret for the processor's client SDK.
func CreatePaymentIntent(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
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

		var body checkout.CreateIntentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp, err := svc.CreatePaymentIntent(r.Context(), userID, beatID, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if resp.Reused {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, resp)
	}
}

// ConfirmPayment records a purchase after the client reports success; the
// intent is re-read from the processor before anything is written.
func ConfirmPayment(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
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

		var body checkout.ConfirmRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp, err := svc.ConfirmPayment(r.Context(), userID, beatID, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}
