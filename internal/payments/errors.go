package payments

import (
	"context"
	"errors"
	"net/http"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
)

// ErrIntentNotFound marks a reference the processor does not know.
var ErrIntentNotFound = errors.New("payment intent not found")

// mapStripeError turns processor failures into the service error taxonomy.
// Processor-side rejections carry the processor message; transport, auth and
// 5xx failures become dependency errors.
func mapStripeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment gateway timed out")
	}

	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment gateway unavailable")
	}

	if stripeErr.Code == stripe.ErrorCodeResourceMissing || stripeErr.HTTPStatusCode == http.StatusNotFound {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, errors.Join(ErrIntentNotFound, err), "payment intent not found")
	}

	switch stripeErr.Type {
	case stripe.ErrorTypeCard, stripe.ErrorTypeInvalidRequest:
		if stripeErr.HTTPStatusCode == http.StatusUnauthorized || stripeErr.HTTPStatusCode == http.StatusForbidden {
			break
		}
		msg := stripeErr.Msg
		if msg == "" {
			msg = "payment rejected by processor"
		}
		details := map[string]any{}
		if stripeErr.Code != "" {
			details["gateway_code"] = string(stripeErr.Code)
		}
		if stripeErr.DeclineCode != "" {
			details["decline_code"] = string(stripeErr.DeclineCode)
		}
		if stripeErr.Param != "" {
			details["param"] = stripeErr.Param
		}
		rejected := pkgerrors.Wrap(pkgerrors.CodeValidation, err, msg)
		if len(details) > 0 {
			rejected = rejected.WithDetails(details)
		}
		return rejected
	}

	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment gateway unavailable")
}

// IsRejected reports whether the processor refused the request itself, as
// opposed to being unreachable.
func IsRejected(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeValidation)
}

// IsNotFound reports whether the processor does not know the intent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrIntentNotFound)
}
