package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bannerdesk/banner-service/internal/alerts"
	"github.com/bannerdesk/banner-service/internal/auth"
	"github.com/bannerdesk/banner-service/internal/catalog"
	"github.com/bannerdesk/banner-service/internal/comments"
	"github.com/bannerdesk/banner-service/internal/database"
	"github.com/bannerdesk/banner-service/internal/database/dbtest"
	"github.com/bannerdesk/banner-service/internal/identity"
	"github.com/bannerdesk/banner-service/internal/importer"
	"github.com/bannerdesk/banner-service/internal/metrics"
	"github.com/bannerdesk/banner-service/internal/middleware"
	"github.com/bannerdesk/banner-service/internal/notifications"
	"github.com/bannerdesk/banner-service/internal/policy"
	"github.com/bannerdesk/banner-service/internal/session"
	"github.com/bannerdesk/banner-service/internal/storage"
	"github.com/bannerdesk/banner-service/internal/workflow"
)

type testServer struct {
	router *gin.Engine
	f      *dbtest.Fixture
	tokens *auth.TokenIssuer
	auth   *auth.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := dbtest.New(t)
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	tokens, err := auth.NewTokenIssuer("handler-test-secret-0123", time.Hour)
	require.NoError(t, err)

	logger := zerolog.Nop()
	rec := metrics.NewRecorder()
	notifier := notifications.NewService(f.Store, &logger)
	images := workflow.NewService(f.Store, rec, &logger,
		workflow.WithFiles(files),
		workflow.WithNotifier(notifier),
		workflow.WithClock(f.Clock.Now),
	)
	authSvc := auth.NewService(f.Store, tokens, session.NewMemoryStore(), &logger)

	h := New(Deps{
		Store:         f.Store,
		Auth:          authSvc,
		Catalog:       catalog.NewService(f.Store, rec, &logger),
		Images:        images,
		Comments:      comments.NewService(f.Store, policy.DefaultChatPolicy(), rec, &logger),
		Alerts:        alerts.NewAggregator(f.Store, alerts.DefaultThresholds(), time.UTC, rec, alerts.WithClock(f.Clock.Now)),
		Importer:      importer.New(f.Store, images, files, importer.DefaultOptions(), rec, &logger),
		Notifications: notifier,
		Logger:        &logger,
	})

	r := gin.New()
	r.Use(middleware.Authenticate(authSvc))
	h.Register(r, nil)
	return &testServer{router: r, f: f, tokens: tokens, auth: authSvc}
}

func (s *testServer) token(t *testing.T, u *identity.User) string {
	t.Helper()
	tok, _, err := s.tokens.Issue(u)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","database":"connected"}`, w.Body.String())
}

func TestLoginFlow(t *testing.T) {
	s := newTestServer(t)
	_, err := s.auth.CreateUser(t.Context(), nil, auth.CreateUserInput{
		Email:    "reviewer@example.com",
		Name:     "レビュー担当",
		Password: "s3cret-pass",
		Role:     identity.RoleSuperAdmin,
	})
	require.NoError(t, err)

	w := s.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Email: "reviewer@example.com", Password: "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Email: "reviewer@example.com", Password: "s3cret-pass"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	login := decode[auth.LoginResult](t, w)
	assert.NotContains(t, w.Body.String(), "passwordHash")

	w = s.do(t, http.MethodGet, "/api/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "reviewer@example.com", decode[database.User](t, w).Email)

	w = s.do(t, http.MethodPost, "/api/auth/logout", login.Token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/api/auth/me", login.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestReviewFlow(t *testing.T) {
	s := newTestServer(t)
	creator := s.token(t, s.f.Creator)
	reviewer := s.token(t, s.f.MunicipalityAUser)
	outsider := s.token(t, s.f.BusinessB1User)

	w := s.do(t, http.MethodPost, "/api/images", creator, workflow.CreateImageInput{
		ProductID: s.f.ProductA1.ID,
		Title:     "ホタテ メインバナー",
		FilePath:  "uploads/main.png",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	img := decode[database.ImageEntity](t, w)
	v1 := img.Versions[0]
	assert.Equal(t, database.StatusPendingReview, v1.Status)

	statusPath := fmt.Sprintf("/api/images/%d/versions/%d/status", img.ID, v1.ID)
	w = s.do(t, http.MethodPut, statusPath, creator, UpdateStatusRequest{Status: database.StatusApproved})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", decode[ErrorResponse](t, w).Code)

	w = s.do(t, http.MethodPut, statusPath, outsider, UpdateStatusRequest{Status: database.StatusApproved})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPut, statusPath, reviewer, UpdateStatusRequest{Status: "archived"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/images/%d/versions/999/status", img.ID), reviewer,
		UpdateStatusRequest{Status: database.StatusApproved})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPut, statusPath, reviewer, UpdateStatusRequest{Status: database.StatusApproved})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	approved := decode[database.ImageEntity](t, w)
	assert.Equal(t, database.StatusApproved, approved.Current().Status)

	s.f.Clock.Advance(time.Hour)
	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/images/%d/versions", img.ID), creator, AddVersionRequest{FilePath: "uploads/v2.png"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	v2 := decode[database.ImageVersion](t, w)
	assert.Equal(t, 2, v2.VersionNumber)
	assert.Equal(t, database.StatusPendingReview, v2.Status)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/images/%d/compare?a=%d&b=%d", img.ID, v2.ID, v1.ID), reviewer, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cmp := decode[workflow.Comparison](t, w)
	assert.Equal(t, v1.ID, cmp.Before.ID)
	assert.True(t, cmp.StatusChanged)

	w = s.do(t, http.MethodGet, "/api/images", outsider, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[ImagesResponse](t, w).Total)

	w = s.do(t, http.MethodGet, "/api/images?status=pending_review", reviewer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[ImagesResponse](t, w).Total)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/images/%d", img.ID), outsider, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCreateImageMultipart(t *testing.T) {
	s := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("productId", fmt.Sprint(s.f.ProductA2.ID)))
	require.NoError(t, mw.WriteField("title", "ハッカ油 告知"))
	fw, err := mw.CreateFormFile("file", "hakka.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("\x89PNG fake"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/images", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.token(t, s.f.Creator))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	img := decode[database.ImageEntity](t, w)
	assert.Contains(t, img.Current().FilePath, "uploads/")
	assert.Contains(t, img.Current().FilePath, "hakka.png")
}

func TestCommentsAndAlerts(t *testing.T) {
	s := newTestServer(t)
	img := s.f.AddImage(t, s.f.ProductA1, "ホタテ")
	reviewer := s.token(t, s.f.MunicipalityAUser)
	business := s.token(t, s.f.BusinessA1User)

	path := fmt.Sprintf("/api/images/%d/comments", img.ID)
	w := s.do(t, http.MethodPost, path, reviewer, comments.AddCommentInput{Body: "ロゴを大きく"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	comment := decode[database.Comment](t, w)
	assert.Equal(t, database.CommenterMunicipality, comment.CommenterType)
	assert.Equal(t, "北見市担当", comment.CommenterName)

	w = s.do(t, http.MethodGet, path, business, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/alerts", reviewer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[AlertsResponse](t, w)
	require.Len(t, res.Items, 1)
	assert.Equal(t, s.f.ProductA1.ID, res.Items[0].Product.ID)
	assert.Equal(t, alerts.DefaultThresholds(), res.Thresholds)

	// A read by the reviewer leaves the admin side's alert in place.
	w = s.do(t, http.MethodPost, path+"/read", reviewer, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodGet, "/api/alerts", reviewer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[AlertsResponse](t, w).Items, 1)

	creator := s.token(t, s.f.Creator)
	w = s.do(t, http.MethodPost, path+"/read", creator, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/api/alerts", reviewer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[AlertsResponse](t, w).Items)

	w = s.do(t, http.MethodDelete, fmt.Sprintf("/api/comments/%d", comment.ID), creator, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(t, http.MethodDelete, fmt.Sprintf("/api/comments/%d", comment.ID), reviewer, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestImportEndpoint(t *testing.T) {
	s := newTestServer(t)

	csv := fmt.Sprintf("product_name,business_id,banner_title,external_url,donation_amount,image_source\n"+
		"ホタテ 2kg,%d,ホタテ大,,20000,hotate.png\n"+
		"broken,%d,x\n", s.f.BusinessA1.ID, s.f.BusinessA1.ID)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "products.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(csv))
	require.NoError(t, err)
	fw, err = mw.CreateFormFile("images", "hotate.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("png"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/imports", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.token(t, s.f.Creator))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[importer.Result](t, w)
	assert.Equal(t, 1, res.SuccessCount)
	assert.Equal(t, 1, res.FailedCount)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "row 3")
}

func TestCatalogEndpoints(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, s.f.Admin)

	w := s.do(t, http.MethodDelete, fmt.Sprintf("/api/municipalities/%d", s.f.MunicipalityA.ID), admin, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/api/products/abc", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/products?businessId=%d", s.f.BusinessA1.ID), admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	products := decode[struct {
		Products []database.Product `json:"products"`
	}](t, w)
	require.Len(t, products.Products, 1)

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/businesses/%d/portals/satofull", s.f.BusinessA1.ID), admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"furusato-choice", "rakuten", "satofull"}, decode[database.Business](t, w).Portals)
}

func TestNotifications(t *testing.T) {
	s := newTestServer(t)
	creator := s.token(t, s.f.Creator)

	w := s.do(t, http.MethodPost, "/api/images", creator, workflow.CreateImageInput{
		ProductID: s.f.ProductA1.ID,
		Title:     "告知",
		FilePath:  "uploads/x.png",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodGet, "/api/notifications?unread=true", creator, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[NotificationsResponse](t, w).Notifications
	require.NotEmpty(t, list)

	read := true
	outsider := s.token(t, s.f.BusinessB1User)
	w = s.do(t, http.MethodGet, "/api/notifications", outsider, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[NotificationsResponse](t, w).Notifications)
	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/notifications/%d/read", list[0].ID), outsider, SetReadRequest{Read: &read})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/notifications/%d/read", list[0].ID), creator, SetReadRequest{Read: &read})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodPut, "/api/notifications/999/read", creator, SetReadRequest{Read: &read})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/notifications?limit=0", creator, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
