package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/beatstore-backend/api/responses"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
)

const maxAuthBodyPeek = 16 << 10

// ThrottlePolicy caps attempts on a credential endpoint per client IP and
// per submitted identity (email, or username on login) within Window.
// A zero limit disables that dimension.
type ThrottlePolicy struct {
	Name        string
	Window      time.Duration
	PerIP       int
	PerIdentity int
}

func (p ThrottlePolicy) active() bool {
	return p.Window > 0 && (p.PerIP > 0 || p.PerIdentity > 0)
}

type throttleCheck struct {
	dimension string
	subject   string
	limit     int
}

// AuthRateLimit guards login and registration. Unlike RateLimit it fails
// closed: a limiter error answers 503 instead of letting the attempt through.
func AuthRateLimit(policy ThrottlePolicy, limiter fixedWindowLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || !policy.active() {
			return next
		}
		name := strings.ToLower(strings.TrimSpace(policy.Name))
		if name == "" {
			name = "auth"
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			checks := make([]throttleCheck, 0, 2)
			if policy.PerIP > 0 {
				if ip := clientIP(r); ip != "" {
					checks = append(checks, throttleCheck{dimension: "ip", subject: ip, limit: policy.PerIP})
				}
			}
			if policy.PerIdentity > 0 {
				identity, err := peekIdentity(r)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
					return
				}
				if identity != "" {
					checks = append(checks, throttleCheck{dimension: "identity", subject: fingerprint(identity), limit: policy.PerIdentity})
				}
			}

			for _, check := range checks {
				scope := strings.Join([]string{"auth", name, check.dimension, check.subject}, ":")
				allowed, count, err := limiter.FixedWindowAllow(ctx, scope, int64(check.limit), policy.Window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "auth rate limit"))
					return
				}
				if !allowed {
					rejectThrottled(ctx, logg, w, name, check, count, policy.Window)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rejectThrottled(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy string, check throttleCheck, count int64, window time.Duration) {
	if logg != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"policy":    policy,
			"dimension": check.dimension,
			"subject":   check.subject,
			"attempts":  count,
			"limit":     check.limit,
		}), "auth.rate_limit.blocked")
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later"))
}

// peekIdentity reads the login identity from the JSON body and restores the
// body for the handler. Malformed JSON yields no identity; the handler
// reports it.
func peekIdentity(r *http.Request) (string, error) {
	if r.Body == nil {
		return "", nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxAuthBodyPeek))
	if err != nil {
		return "", err
	}
	r.Body = peekedBody{Reader: io.MultiReader(bytes.NewReader(body), r.Body), Closer: r.Body}
	var fields struct {
		Email    string `json:"email"`
		Username string `json:"username"`
	}
	if json.Unmarshal(body, &fields) != nil {
		return "", nil
	}
	identity := fields.Email
	if strings.TrimSpace(identity) == "" {
		identity = fields.Username
	}
	return strings.ToLower(strings.TrimSpace(identity)), nil
}

type peekedBody struct {
	io.Reader
	io.Closer
}

func fingerprint(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:12])
}
