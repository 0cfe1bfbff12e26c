package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Brownie44l1/pneumo-api/internal/apperr"
	"github.com/Brownie44l1/pneumo-api/internal/artifact"
	"github.com/Brownie44l1/pneumo-api/internal/auth"
	"github.com/Brownie44l1/pneumo-api/internal/domain"
	"github.com/Brownie44l1/pneumo-api/internal/events"
	"github.com/Brownie44l1/pneumo-api/internal/imaging"
	"github.com/Brownie44l1/pneumo-api/internal/model"
	"github.com/Brownie44l1/pneumo-api/internal/model/modeltest"
	"github.com/Brownie44l1/pneumo-api/internal/pipeline"
	"github.com/Brownie44l1/pneumo-api/internal/saliency"
	"github.com/Brownie44l1/pneumo-api/internal/service"
	"github.com/Brownie44l1/pneumo-api/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type brokenClassifier struct{ model.Classifier }

func (brokenClassifier) Score(context.Context, *model.Tensor) (model.ClassScores, error) {
	return nil, apperr.E(apperr.ModelInference, "onnx.Run", errors.New("tensor arena exhausted at 0xdeadbeef"))
}

type testServer struct {
	router     *gin.Engine
	heatmapDir string
	store      *storage.Memory
}

func newTestServer(t *testing.T, classifier model.Classifier) *testServer {
	t.Helper()
	logger := zap.NewNop()
	store := storage.NewMemory()
	dir := t.TempDir()

	tokens, err := auth.NewTokenService("handler-secret", time.Hour, store)
	require.NoError(t, err)

	p := pipeline.New(imaging.DefaultNormalizer(), classifier, saliency.NewGenerator(256, logger), logger)
	analyses := service.NewAnalysisService(p, store, artifact.NewStaticPublisher(""), events.Nop{}, dir, logger)
	accounts := service.NewAccountService(store, tokens, logger)

	h := NewHandler(analyses, accounts, tokens, 0, logger)
	return &testServer{
		router:     NewRouter(h, RouterOptions{HeatmapDir: dir}),
		heatmapDir: dir,
		store:      store,
	}
}

func (s *testServer) do(t *testing.T, method, path, token string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) doJSON(t *testing.T, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return s.do(t, method, path, token, raw, "application/json")
}

func (s *testServer) register(t *testing.T, username, password string) string {
	t.Helper()
	rec := s.doJSON(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": username, "password": password, "first_name": "Jean", "last_name": "Martin",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var tok service.Token
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))
	require.NotEmpty(t, tok.AccessToken)
	return tok.AccessToken
}

func grayPNG(t *testing.T, size int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, size, size))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func upload(t *testing.T, data []byte, fields map[string]string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if data != nil {
		part, err := w.CreateFormFile("file", "chest.png")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return buf.Bytes(), w.FormDataContentType()
}

var patientFields = map[string]string{
	"last_name": "Durand", "first_name": "Léa", "age": "34", "sex": "F",
}

func TestHealthAndRoot(t *testing.T) {
	s := newTestServer(t, modeltest.Network())

	rec := s.do(t, http.MethodGet, "/health", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPreflight(t *testing.T) {
	s := newTestServer(t, modeltest.Network())

	rec := s.do(t, http.MethodOptions, "/predictions/predict", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestPredict_EndToEnd(t *testing.T) {
	s := newTestServer(t, modeltest.Network())
	token := s.register(t, "doc", "pw")

	body, ct := upload(t, grayPNG(t, 300), patientFields)
	rec := s.do(t, http.MethodPost, "/predictions/predict", token, body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res service.SubmissionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Contains(t, []domain.Verdict{domain.VerdictPositive, domain.VerdictNegative}, res.Verdict)
	require.GreaterOrEqual(t, res.Probability, 0.0)
	require.LessOrEqual(t, res.Probability, 100.0)
	require.Equal(t, "chest.png", res.FileName)
	require.Equal(t, "Durand", res.Patient.LastName)
	require.Equal(t, 34, res.Patient.Age)
	require.True(t, strings.HasPrefix(res.HeatmapURL, artifact.StaticPrefix+"heatmap_"), res.HeatmapURL)

	name := strings.TrimPrefix(res.HeatmapURL, artifact.StaticPrefix)
	_, err := os.Stat(filepath.Join(s.heatmapDir, name))
	require.NoError(t, err)

	rec = s.do(t, http.MethodGet, res.HeatmapURL, "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	require.Equal(t, 256, img.Bounds().Dx())

	rec = s.do(t, http.MethodGet, "/history", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history []domain.HistoryEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 1)
	require.Equal(t, res.ID, history[0].ID)
	require.Equal(t, res.HeatmapURL, history[0].ImageURL)
	require.Equal(t, "Léa", history[0].Patient.FirstName)
}

func TestPredict_WithoutExplanation(t *testing.T) {
	s := newTestServer(t, modeltest.Network())
	token := s.register(t, "doc", "pw")

	fields := map[string]string{"explain": "false"}
	for k, v := range patientFields {
		fields[k] = v
	}
	body, ct := upload(t, grayPNG(t, 64), fields)
	rec := s.do(t, http.MethodPost, "/predictions/predict", token, body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res service.SubmissionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Empty(t, res.HeatmapURL)

	files, err := os.ReadDir(s.heatmapDir)
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestPredict_ClientErrors(t *testing.T) {
	s := newTestServer(t, modeltest.Network())
	token := s.register(t, "doc", "pw")

	cases := []struct {
		name   string
		data   []byte
		fields map[string]string
	}{
		{"not an image", []byte("%PDF-1.7"), patientFields},
		{"missing file", nil, patientFields},
		{"bad age", grayPNG(t, 16), map[string]string{"last_name": "A", "age": "old"}},
		{"no name", grayPNG(t, 16), map[string]string{"age": "40"}},
		{"bad explain", grayPNG(t, 16), map[string]string{"last_name": "A", "age": "40", "explain": "maybe"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, ct := upload(t, tc.data, tc.fields)
			rec := s.do(t, http.MethodPost, "/predictions/predict", token, body, ct)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	rec := s.do(t, http.MethodGet, "/history", token, nil, "")
	require.JSONEq(t, `[]`, rec.Body.String())
}

func TestPredict_InternalFailureIsOpaque(t *testing.T) {
	s := newTestServer(t, brokenClassifier{Classifier: modeltest.Network()})
	token := s.register(t, "doc", "pw")

	body, ct := upload(t, grayPNG(t, 32), patientFields)
	rec := s.do(t, http.MethodPost, "/predictions/predict", token, body, ct)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"detail":"internal server error"}`, rec.Body.String())
	require.NotContains(t, rec.Body.String(), "deadbeef")
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, modeltest.Network())

	for _, path := range []string{"/history", "/auth/me"} {
		rec := s.do(t, http.MethodGet, path, "", nil, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code, path)

		rec = s.do(t, http.MethodGet, path, "garbage", nil, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestAccountsFlow(t *testing.T) {
	s := newTestServer(t, modeltest.Network())
	token := s.register(t, "doc", "pw")

	rec := s.doJSON(t, http.MethodPost, "/auth/register", "", map[string]string{"username": "doc", "password": "x"})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.JSONEq(t, `{"detail":"already exists"}`, rec.Body.String())

	rec = s.doJSON(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "doc", "password": "nope"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/auth/me", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var me domain.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	require.Equal(t, "doc", me.Username)
	require.NotContains(t, rec.Body.String(), "pw")

	rec = s.doJSON(t, http.MethodPut, "/auth/update-profile", token, domain.Profile{FirstName: "Anne", Email: "anne@example.org"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "anne@example.org")

	rec = s.doJSON(t, http.MethodPut, "/auth/change-password", token, map[string]string{"current_password": "bad", "new_password": "n"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.doJSON(t, http.MethodPut, "/auth/change-password", token, map[string]string{"current_password": "pw", "new_password": "n"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.doJSON(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "doc", "password": "n"})
	require.Equal(t, http.StatusOK, rec.Code)

	u, err := s.store.UserByUsername(context.Background(), "doc")
	require.NoError(t, err)
	require.Equal(t, "Anne", u.FirstName)
}

func TestAddHistory(t *testing.T) {
	s := newTestServer(t, modeltest.Network())
	token := s.register(t, "doc", "pw")

	rec := s.doJSON(t, http.MethodPost, "/history", token, map[string]any{
		"file_name": "archive.jpg", "verdict": "negative", "probability": 81.3, "confidence": "high",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), "history_id")

	rec = s.doJSON(t, http.MethodPost, "/history", token, map[string]any{"file_name": "x", "verdict": "unsure"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/history", token, []byte("{"), "application/json")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/history", token, nil, "")
	var history []domain.HistoryEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 1)
	require.Equal(t, "archive.jpg", history[0].FileName)
}

func TestClientMessage_HidesStorageDetail(t *testing.T) {
	notFound := apperr.Errorf(apperr.NotFound, "storage.RecordAnalysis", "user %d", 999)
	require.Equal(t, "not found", clientMessage(notFound))

	conflict := apperr.Errorf(apperr.Conflict, "storage.CreateUser", "username %q already exists", "doc")
	require.Equal(t, "already exists", clientMessage(conflict))

	invalid := apperr.E(apperr.InvalidInput, "service.Submit", errors.New("patient name is required"))
	require.Equal(t, "patient name is required", clientMessage(invalid))
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, http.StatusBadRequest, statusFor(apperr.InvalidImage))
	require.Equal(t, http.StatusUnauthorized, statusFor(apperr.Unauthenticated))
	require.Equal(t, http.StatusNotFound, statusFor(apperr.NotFound))
	require.Equal(t, http.StatusInternalServerError, statusFor(apperr.SaliencyComputation))
	require.Equal(t, http.StatusInternalServerError, statusFor(apperr.LayerResolution))
	require.Equal(t, http.StatusInternalServerError, statusFor(apperr.InvalidScores))
}
