package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/beatstore-backend/api/middleware"
	"github.com/angelmondragon/beatstore-backend/internal/auth"
	"github.com/angelmondragon/beatstore-backend/internal/beats"
	"github.com/angelmondragon/beatstore-backend/internal/checkout"
	"github.com/angelmondragon/beatstore-backend/internal/downloads"
	"github.com/angelmondragon/beatstore-backend/internal/purchases"
	"github.com/angelmondragon/beatstore-backend/internal/users"
	"github.com/angelmondragon/beatstore-backend/pkg/config"
	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	"github.com/angelmondragon/beatstore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
	"github.com/angelmondragon/beatstore-backend/pkg/pagination"
	"github.com/angelmondragon/beatstore-backend/pkg/storage"
)

type errorBody struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

// withRoute attaches chi URL params and an authenticated user to the request.
func withRoute(req *http.Request, userID *uuid.UUID, params map[string]string) *http.Request {
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	if userID != nil {
		ctx = middleware.WithUserID(ctx, userID.String())
	}
	return req.WithContext(ctx)
}

type stubAuthService struct {
	loginReq    auth.LoginRequest
	refreshArgs [2]string
	loggedOut   string
	err         error
}

func (s *stubAuthService) Login(_ context.Context, req auth.LoginRequest) (*auth.LoginResponse, error) {
	s.loginReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &auth.LoginResponse{AccessToken: "access", RefreshToken: "refresh", User: &users.UserDTO{Email: req.Email}}, nil
}

func (s *stubAuthService) Refresh(_ context.Context, accessToken, refreshToken string) (*auth.TokenPair, error) {
	s.refreshArgs = [2]string{accessToken, refreshToken}
	if s.err != nil {
		return nil, s.err
	}
	return &auth.TokenPair{AccessToken: "access-2", RefreshToken: "refresh-2"}, nil
}

func (s *stubAuthService) Logout(_ context.Context, accessToken string) error {
	s.loggedOut = accessToken
	return s.err
}

type stubRegisterService struct {
	adminCalls int
	buyerCalls int
}

func (s *stubRegisterService) Register(_ context.Context, req auth.RegisterRequest) (*users.UserDTO, error) {
	s.buyerCalls++
	return &users.UserDTO{Username: req.Username, Email: req.Email, Role: enums.UserRoleBuyer}, nil
}

func (s *stubRegisterService) RegisterAdmin(_ context.Context, req auth.RegisterRequest) (*users.UserDTO, error) {
	s.adminCalls++
	return &users.UserDTO{Username: req.Username, Email: req.Email, Role: enums.UserRoleAdmin}, nil
}

func TestAuthLoginSetsTokenHeader(t *testing.T) {
	svc := &stubAuthService{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"dj@example.com","password":"hunter22"}`))
	rec := httptest.NewRecorder()

	AuthLogin(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "access", rec.Header().Get(accessTokenHeader))
	assert.Equal(t, "dj@example.com", svc.loginReq.Email)
}

func TestAuthLoginRequiresIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"password":"hunter22"}`))
	rec := httptest.NewRecorder()

	AuthLogin(&stubAuthService{}, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthLoginPropagatesUnauthorized(t *testing.T) {
	svc := &stubAuthService{err: pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"username":"dj","password":"nope"}`))
	rec := httptest.NewRecorder()

	AuthLogin(svc, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid credentials", decodeError(t, rec).Error.Message)
}

func TestAuthRegisterRoutesByRole(t *testing.T) {
	svc := &stubRegisterService{}
	body := `{"username":"producer","email":"p@example.com","password":"longenough1"}`

	rec := httptest.NewRecorder()
	AuthRegister(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	AdminRegister(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"role":"admin"`)

	assert.Equal(t, 1, svc.buyerCalls)
	assert.Equal(t, 1, svc.adminCalls)
}

func TestAuthRefreshAndLogoutUseBearerToken(t *testing.T) {
	svc := &stubAuthService{}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", strings.NewReader(`{"refresh_token":"r1"}`))
	req.Header.Set("Authorization", "Bearer expired-access")
	rec := httptest.NewRecorder()
	AuthRefresh(svc, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [2]string{"expired-access", "r1"}, svc.refreshArgs)
	assert.Equal(t, "access-2", rec.Header().Get(accessTokenHeader))

	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer access-2")
	rec = httptest.NewRecorder()
	AuthLogout(svc, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "access-2", svc.loggedOut)

	rec = httptest.NewRecorder()
	AuthLogout(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type stubBeatsService struct {
	listParams beats.ListParams
	created    beats.CreateBeatInput
	beat       *beats.BeatDTO
	preview    *beats.Preview
	err        error
}

func (s *stubBeatsService) List(_ context.Context, params beats.ListParams) (*pagination.Page[beats.BeatDTO], error) {
	s.listParams = params
	return &pagination.Page[beats.BeatDTO]{Items: []beats.BeatDTO{{Name: "Night Drive"}}, NextCursor: "next", Limit: params.Limit}, nil
}

func (s *stubBeatsService) Get(_ context.Context, id uuid.UUID) (*beats.BeatDTO, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.beat, nil
}

func (s *stubBeatsService) Find(context.Context, uuid.UUID) (*models.Beat, error) {
	return nil, errors.New("not used")
}

func (s *stubBeatsService) OpenPreview(context.Context, uuid.UUID) (*beats.Preview, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.preview, nil
}

func (s *stubBeatsService) Create(_ context.Context, input beats.CreateBeatInput) (*beats.BeatDTO, error) {
	s.created = input
	return &beats.BeatDTO{Name: input.Name}, nil
}

func TestBeatsListParsesFilters(t *testing.T) {
	svc := &stubBeatsService{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/beats?genre=trap&scale=A%20minor&bpm=140&limit=10&cursor=abc", nil)
	rec := httptest.NewRecorder()

	BeatsList(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "trap", svc.listParams.Filters.Genre)
	assert.Equal(t, "A minor", svc.listParams.Filters.Scale)
	require.NotNil(t, svc.listParams.Filters.BPM)
	assert.Equal(t, 140, *svc.listParams.Filters.BPM)
	assert.Nil(t, svc.listParams.Filters.BPMMin)
	assert.Equal(t, 10, svc.listParams.Limit)
	assert.Equal(t, "abc", svc.listParams.Cursor)
	assert.Contains(t, rec.Body.String(), `"next_cursor":"next"`)
}

func TestBeatsListRejectsBadBPM(t *testing.T) {
	rec := httptest.NewRecorder()
	BeatsList(&stubBeatsService{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/beats?bpm=fast", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBeatDetail(t *testing.T) {
	id := uuid.New()
	svc := &stubBeatsService{beat: &beats.BeatDTO{ID: id, Name: "Night Drive"}}

	rec := httptest.NewRecorder()
	BeatDetail(svc, nil).ServeHTTP(rec, withRoute(httptest.NewRequest(http.MethodGet, "/", nil), nil, map[string]string{"beatId": id.String()}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Night Drive")

	rec = httptest.NewRecorder()
	BeatDetail(svc, nil).ServeHTTP(rec, withRoute(httptest.NewRequest(http.MethodGet, "/", nil), nil, map[string]string{"beatId": "not-a-uuid"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.err = pkgerrors.New(pkgerrors.CodeNotFound, "beat not found")
	rec = httptest.NewRecorder()
	BeatDetail(svc, nil).ServeHTTP(rec, withRoute(httptest.NewRequest(http.MethodGet, "/", nil), nil, map[string]string{"beatId": id.String()}))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBeatPreviewStreamsInline(t *testing.T) {
	id := uuid.New()
	svc := &stubBeatsService{preview: &beats.Preview{
		Object:   &storage.Object{Body: io.NopCloser(strings.NewReader("ID3")), Size: 3},
		Filename: "Night_Drive_preview.mp3",
	}}

	rec := httptest.NewRecorder()
	BeatPreview(svc, nil).ServeHTTP(rec, withRoute(httptest.NewRequest(http.MethodGet, "/", nil), nil, map[string]string{"beatId": id.String()}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, `inline; filename="Night_Drive_preview.mp3"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "3", rec.Header().Get("Content-Length"))
	assert.Equal(t, "ID3", rec.Body.String())
}

func TestBeatPreviewSendsUTF8Filename(t *testing.T) {
	svc := &stubBeatsService{preview: &beats.Preview{
		Object:      &storage.Object{Body: io.NopCloser(strings.NewReader("ID3")), Size: 3},
		Filename:    "Cafe_Noir_preview.mp3",
		DisplayName: "Café_Noir_preview.mp3",
	}}

	rec := httptest.NewRecorder()
	BeatPreview(svc, nil).ServeHTTP(rec, withRoute(httptest.NewRequest(http.MethodGet, "/", nil), nil, map[string]string{"beatId": uuid.NewString()}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `inline; filename="Cafe_Noir_preview.mp3"; filename*=UTF-8''Caf%C3%A9_Noir_preview.mp3`, rec.Header().Get("Content-Disposition"))
}

func TestAdminCreateBeat(t *testing.T) {
	svc := &stubBeatsService{}
	body := `{"name":"Night Drive","genre":"trap","bpm":140,"scale":"A minor","price":"29.99"}`

	rec := httptest.NewRecorder()
	AdminCreateBeat(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/admin/v1/beats", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "29.99", svc.created.Price.StringFixed(2))

	rec = httptest.NewRecorder()
	AdminCreateBeat(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/admin/v1/beats", strings.NewReader(`{"name":"x","bpm":5}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type stubCheckoutService struct {
	userID  uuid.UUID
	beatID  uuid.UUID
	intent  checkout.CreateIntentRequest
	confirm checkout.ConfirmRequest
	reused  bool
	err     error
}

func (s *stubCheckoutService) CreatePaymentIntent(_ context.Context, userID, beatID uuid.UUID, req checkout.CreateIntentRequest) (*checkout.IntentResponse, error) {
	s.userID, s.beatID, s.intent = userID, beatID, req
	if s.err != nil {
		return nil, s.err
	}
	return &checkout.IntentResponse{ClientSecret: "pi_1_secret", PaymentIntentID: "pi_1", Amount: "29.99", AmountMinor: 2999, Currency: "usd", Reused: s.reused}, nil
}

func (s *stubCheckoutService) ConfirmPayment(_ context.Context, userID, beatID uuid.UUID, req checkout.ConfirmRequest) (*checkout.ConfirmResponse, error) {
	s.userID, s.beatID, s.confirm = userID, beatID, req
	if s.err != nil {
		return nil, s.err
	}
	return &checkout.ConfirmResponse{Message: "Payment confirmed", PurchaseID: uuid.New(), DownloadType: enums.DownloadTypeMP3}, nil
}

func TestCreatePaymentIntent(t *testing.T) {
	userID, beatID := uuid.New(), uuid.New()
	svc := &stubCheckoutService{}
	params := map[string]string{"beatId": beatID.String()}

	req := withRoute(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"download_type":"wav"}`)), &userID, params)
	rec := httptest.NewRecorder()
	CreatePaymentIntent(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, userID, svc.userID)
	assert.Equal(t, beatID, svc.beatID)
	assert.Equal(t, "wav", svc.intent.DownloadType)
	assert.Contains(t, rec.Body.String(), `"client_secret":"pi_1_secret"`)

	svc.reused = true
	req = withRoute(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"download_type":"wav"}`)), &userID, params)
	rec = httptest.NewRecorder()
	CreatePaymentIntent(svc, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreatePaymentIntentAlreadyPurchased(t *testing.T) {
	userID, purchaseID := uuid.New(), uuid.New()
	svc := &stubCheckoutService{err: checkout.AlreadyPurchased(&models.Purchase{ID: purchaseID})}

	req := withRoute(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"download_type":"mp3"}`)), &userID, map[string]string{"beatId": uuid.NewString()})
	rec := httptest.NewRecorder()
	CreatePaymentIntent(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeAlreadyPurchased), decodeError(t, rec).Error.Code)
}

func TestCreatePaymentIntentRequiresUser(t *testing.T) {
	req := withRoute(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"download_type":"mp3"}`)), nil, map[string]string{"beatId": uuid.NewString()})
	rec := httptest.NewRecorder()
	CreatePaymentIntent(&stubCheckoutService{}, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConfirmPayment(t *testing.T) {
	userID, beatID := uuid.New(), uuid.New()
	svc := &stubCheckoutService{}

	req := withRoute(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"payment_intent_id":"pi_1","download_type":"mp3"}`)), &userID, map[string]string{"beatId": beatID.String()})
	rec := httptest.NewRecorder()
	ConfirmPayment(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "pi_1", svc.confirm.PaymentIntentID)
	assert.Contains(t, rec.Body.String(), `"download_type":"mp3"`)

	svc.err = pkgerrors.New(pkgerrors.CodeStateConflict, "payment not completed").WithDetails(map[string]any{"intent_status": "processing"})
	req = withRoute(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"payment_intent_id":"pi_1"}`)), &userID, map[string]string{"beatId": beatID.String()})
	rec = httptest.NewRecorder()
	ConfirmPayment(svc, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

type stubAssetOpener struct {
	variant enums.DownloadType
	asset   *downloads.Asset
	err     error
}

func (s *stubAssetOpener) Open(_ context.Context, _, _ uuid.UUID, variant enums.DownloadType) (*downloads.Asset, error) {
	s.variant = variant
	if s.err != nil {
		return nil, s.err
	}
	return s.asset, nil
}

func TestDownloadBeatStreamsAttachment(t *testing.T) {
	userID := uuid.New()
	svc := &stubAssetOpener{asset: &downloads.Asset{
		Object:      &storage.Object{Body: io.NopCloser(bytes.NewReader([]byte("PK"))), Size: 2},
		ContentType: "application/zip",
		Filename:    "Night_Drive_stems.zip",
	}}

	req := withRoute(httptest.NewRequest(http.MethodGet, "/?type=stems", nil), &userID, map[string]string{"beatId": uuid.NewString()})
	rec := httptest.NewRecorder()
	DownloadBeat(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, enums.DownloadTypeStems, svc.variant)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="Night_Drive_stems.zip"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "PK", rec.Body.String())
}

func TestDownloadBeatErrors(t *testing.T) {
	userID := uuid.New()
	params := map[string]string{"beatId": uuid.NewString()}

	rec := httptest.NewRecorder()
	DownloadBeat(&stubAssetOpener{}, nil).ServeHTTP(rec, withRoute(httptest.NewRequest(http.MethodGet, "/?type=flac", nil), &userID, params))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	denied := &stubAssetOpener{err: pkgerrors.New(pkgerrors.CodeForbidden, "purchase required")}
	rec = httptest.NewRecorder()
	DownloadBeat(denied, nil).ServeHTTP(rec, withRoute(httptest.NewRequest(http.MethodGet, "/", nil), &userID, params))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, enums.DownloadTypeMP3, denied.variant)
}

type stubPurchasesService struct {
	userID uuid.UUID
	params purchases.LibraryParams
}

func (s *stubPurchasesService) ListLibrary(_ context.Context, userID uuid.UUID, params purchases.LibraryParams) (*pagination.Page[purchases.PurchaseDTO], error) {
	s.userID, s.params = userID, params
	return &pagination.Page[purchases.PurchaseDTO]{Items: []purchases.PurchaseDTO{}, Limit: params.Limit}, nil
}

func TestPurchasesLibraryFilters(t *testing.T) {
	userID, beatID := uuid.New(), uuid.New()
	svc := &stubPurchasesService{}

	req := withRoute(httptest.NewRequest(http.MethodGet, "/?status=completed&beat_id="+beatID.String(), nil), &userID, nil)
	rec := httptest.NewRecorder()
	PurchasesLibrary(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, userID, svc.userID)
	require.NotNil(t, svc.params.Filters.Status)
	assert.Equal(t, enums.PaymentStatusCompleted, *svc.params.Filters.Status)
	require.NotNil(t, svc.params.Filters.BeatID)
	assert.Equal(t, beatID, *svc.params.Filters.BeatID)

	rec = httptest.NewRecorder()
	PurchasesLibrary(svc, nil).ServeHTTP(rec, withRoute(httptest.NewRequest(http.MethodGet, "/?status=refunded", nil), &userID, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}

	rec := httptest.NewRecorder()
	HealthReady(cfg, map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{}}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dev", rec.Header().Get(envHeader))

	rec = httptest.NewRecorder()
	HealthReady(cfg, map[string]Pinger{"db": stubPinger{}, "storage": stubPinger{err: errors.New("bucket gone")}}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "down", decodeError(t, rec).Error.Details["storage"])
}
