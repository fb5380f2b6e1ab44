package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipelens/models"
	"recipelens/pkg/auth"
	"recipelens/pkg/config"
	"recipelens/pkg/imageprep"
	"recipelens/pkg/ingredient"
	"recipelens/pkg/logging"
	"recipelens/pkg/ocr"
	"recipelens/pkg/pipeline"
	"recipelens/pkg/recipe"
)

const testAPIKey = "test-key-0123456789"

// fixedEngine returns the same fragments for every variant.
type fixedEngine struct{ frags []ocr.Fragment }

func (fixedEngine) Name() string         { return "fixed" }
func (fixedEngine) Kind() ocr.EngineKind { return ocr.Classical }
func (e fixedEngine) Extract(context.Context, imageprep.Variant) ([]ocr.Fragment, error) {
	return e.frags, nil
}

type downStore struct{}

func (downStore) Scan(context.Context, func(*models.Recipe) error) error {
	return recipe.ErrStoreUnavailable
}

func testConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			Required:  true,
			JWTSecret: "test-secret",
			APIKey:    testAPIKey,
			Issuer:    "recipelens",
			TokenTTL:  time.Hour,
		},
		Upload: config.UploadConfig{MaxBytes: 64 << 10, AllowedExts: []string{"png", "jpg", "jpeg", "gif", "webp"}},
		Match:  config.MatchConfig{ProcessImageLimit: 5, FindLimit: 10},
	}
}

func setupTestServer(t *testing.T, store recipe.Store, frags ...ocr.Fragment) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	cat, err := ingredient.DefaultCatalog()
	require.NoError(t, err)
	log := logging.New("error", "text", io.Discard)

	p := pipeline.New(
		imageprep.New(imageprep.Options{MinHeight: 16, TargetHeight: 64, MaxDimension: 128}),
		ocr.NewExtractor([]ocr.Engine{fixedEngine{frags: frags}}, ocr.Options{Workers: 2, EngineTimeout: time.Second, Logger: log}),
		ingredient.NewResolver(cat, log),
		recipe.NewMatcher(store, cat),
		cfg.Match.ProcessImageLimit,
		log,
	)
	return newRouter(&server{
		cfg:      cfg,
		log:      log,
		pipeline: p,
		matcher:  recipe.NewMatcher(store, cat),
		searcher: recipe.NewSearcher(store),
		verifier: auth.NewVerifier(cfg.Auth),
	})
}

func sampleStore(t *testing.T) recipe.Store {
	t.Helper()
	rs, err := recipe.SampleRecipes()
	require.NoError(t, err)
	return recipe.NewMemoryStore(rs)
}

// helper to perform requests authenticated with the test API key
func performRequest(r http.Handler, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set(apiKeyHeader, testAPIKey)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func postJSON(r http.Handler, path string, v any) *httptest.ResponseRecorder {
	b, _ := json.Marshal(v)
	return performRequest(r, http.MethodPost, path, bytes.NewReader(b), "application/json")
}

func uploadFile(t *testing.T, r http.Handler, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	if filename != "" {
		w, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, _ = w.Write(data)
	}
	require.NoError(t, mw.Close())
	return performRequest(r, http.MethodPost, "/process-image", buf, mw.FormDataContentType())
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func blankPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 48))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	data, err := imageprep.EncodePNG(img)
	require.NoError(t, err)
	return data
}

func TestHealthzIsOpen(t *testing.T) {
	r := setupTestServer(t, sampleStore(t))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestAuthentication(t *testing.T) {
	r := setupTestServer(t, sampleStore(t))
	tok, _, err := auth.NewVerifier(testConfig().Auth).IssueToken("tester", "", time.Now())
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{"no credentials", "/recipe-filters", nil, http.StatusUnauthorized},
		{"bad key", "/recipe-filters", map[string]string{apiKeyHeader: "wrong"}, http.StatusUnauthorized},
		{"header key", "/recipe-filters", map[string]string{apiKeyHeader: testAPIKey}, http.StatusOK},
		{"query key", "/recipe-filters?api_key=" + testAPIKey, nil, http.StatusOK},
		{"bearer", "/recipe-filters", map[string]string{"Authorization": "Bearer " + tok}, http.StatusOK},
		{"bad bearer", "/recipe-filters", map[string]string{"Authorization": "Bearer abc"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			if tt.want == http.StatusUnauthorized {
				assert.Equal(t, "UNAUTHORIZED", decode[errorBody](t, rec).Code)
			}
		})
	}
}

func TestFindRecipes(t *testing.T) {
	store := recipe.NewMemoryStore([]models.Recipe{
		{Title: "base", Ingredients: []models.RecipeIngredient{
			{Name: "tomato"}, {Name: "onion"}, {Name: "garlic"}, {Name: "oil"},
		}},
		{Title: "unrelated", Ingredients: []models.RecipeIngredient{{Name: "flour"}}},
	})
	r := setupTestServer(t, store)

	rec := postJSON(r, "/find-recipes", map[string]any{"ingredients": []string{"tomato", "onion"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[struct {
		Recipes []recipe.MatchResult `json:"recipes"`
		Total   int                  `json:"total"`
	}](t, rec)
	require.Equal(t, 1, body.Total)
	assert.Equal(t, "base", body.Recipes[0].Title)
	assert.InDelta(t, 0.5, body.Recipes[0].MatchScore, 1e-9)

	rec = postJSON(r, "/find-recipes", map[string]any{"ingredients": []string{}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"recipes":[],"total":0}`, rec.Body.String())

	rec = postJSON(r, "/find-recipes", map[string]any{"limit": 3})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", decode[errorBody](t, rec).Code)
}

func TestSimilarRecipes(t *testing.T) {
	store := recipe.NewMemoryStore([]models.Recipe{
		{Title: "salsa", Ingredients: []models.RecipeIngredient{
			{Name: "tomato"}, {Name: "onion"}, {Name: "garlic"}, {Name: "lime"},
		}},
		{Title: "sauce", Ingredients: []models.RecipeIngredient{
			{Name: "tomatoes"}, {Name: "onion"}, {Name: "garlic"}, {Name: "basil"},
		}},
		{Title: "cake", Ingredients: []models.RecipeIngredient{{Name: "flour"}, {Name: "sugar"}}},
	})
	r := setupTestServer(t, store)

	tests := []struct {
		name     string
		path     string
		wantCode int
		errCode  string
		titles   []string
	}{
		{"similar", "/recipes/1/similar", http.StatusOK, "", []string{"sauce"}},
		{"nothing alike", "/recipes/3/similar?limit=5", http.StatusOK, "", []string{}},
		{"unknown id", "/recipes/42/similar", http.StatusNotFound, "NOT_FOUND", nil},
		{"bad id", "/recipes/abc/similar", http.StatusBadRequest, "INVALID_REQUEST", nil},
		{"zero id", "/recipes/0/similar", http.StatusBadRequest, "INVALID_REQUEST", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := performRequest(r, http.MethodGet, tt.path, nil, "")
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.errCode != "" {
				assert.Equal(t, tt.errCode, decode[errorBody](t, rec).Code)
				return
			}
			body := decode[struct {
				Recipes []recipe.SimilarResult `json:"recipes"`
				Total   int                    `json:"total"`
			}](t, rec)
			got := []string{}
			for _, sr := range body.Recipes {
				got = append(got, sr.Title)
			}
			assert.Equal(t, tt.titles, got)
			assert.Equal(t, len(tt.titles), body.Total)
		})
	}
}

func TestStoreOutage(t *testing.T) {
	r := setupTestServer(t, downStore{}, ocr.Fragment{Text: "tomato", Confidence: 0.9})

	rec := postJSON(r, "/find-recipes", map[string]any{"ingredients": []string{"tomato"}})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "STORE_UNAVAILABLE", decode[errorBody](t, rec).Code)

	rec = postJSON(r, "/search-recipes", map[string]any{})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = performRequest(r, http.MethodGet, "/database-status", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, recipe.StatusUnavailable, decode[recipe.Status](t, rec).Status)

	rec = uploadFile(t, r, "photo.png", blankPNG(t))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[pipeline.Result](t, rec)
	assert.Equal(t, pipeline.DatabaseUnavailable, res.DatabaseStatus)
	assert.Empty(t, res.MatchingRecipes)
	assert.Equal(t, []string{"tomato"}, res.IngredientNames())
}

func TestSearchRecipes(t *testing.T) {
	r := setupTestServer(t, sampleStore(t))

	rec := postJSON(r, "/search-recipes", map[string]any{"cuisine_type": "Italian", "max_calories": 500})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decode[recipe.Page](t, rec)
	assert.Equal(t, 2, page.TotalRecipes)
	assert.Equal(t, 1, page.CurrentPage)
	assert.Equal(t, recipe.DefaultPerPage, page.PerPage)

	rec = performRequest(r, http.MethodGet, "/search-recipes?cuisine_type=italian&dietary_preferences=vegetarian&sort_by=title", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page = decode[recipe.Page](t, rec)
	require.Equal(t, 2, page.TotalRecipes)
	assert.Equal(t, "Mushroom Risotto", page.Recipes[0].Title)

	rec = performRequest(r, http.MethodGet, "/search-recipes?max_cook_time=10&min_servings=4", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decode[recipe.Page](t, rec).TotalRecipes)

	rec = postJSON(r, "/search-recipes", map[string]any{"sort_by": "rating"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_FILTER", decode[errorBody](t, rec).Code)

	rec = performRequest(r, http.MethodPost, "/search-recipes", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, "an empty body searches everything")
	assert.Equal(t, 13, decode[recipe.Page](t, rec).TotalRecipes)
}

func TestGetAllRecipesAndMetadata(t *testing.T) {
	r := setupTestServer(t, sampleStore(t))

	rec := performRequest(r, http.MethodGet, "/get-all-recipes", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[recipe.Page](t, rec)
	assert.Equal(t, 50, page.PerPage)
	assert.Equal(t, 13, page.TotalRecipes)
	assert.Len(t, page.Recipes, 13)

	rec = performRequest(r, http.MethodGet, "/get-all-recipes?page=2&per_page=10", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[recipe.Page](t, rec).Recipes, 3)

	rec = performRequest(r, http.MethodGet, "/database-status", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[recipe.Status](t, rec)
	assert.Equal(t, recipe.StatusHealthy, st.Status)
	assert.Equal(t, 13, st.TotalRecipes)

	rec = performRequest(r, http.MethodGet, "/recipe-filters", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	opts := decode[recipe.Options](t, rec)
	assert.Contains(t, opts.CuisineTypes, "Italian")
}

func TestProcessImage(t *testing.T) {
	r := setupTestServer(t, sampleStore(t))

	rec := uploadFile(t, r, "blank.png", blankPNG(t))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[pipeline.Result](t, rec)
	assert.Contains(t, res.Conditions, ocr.ConditionNoText)
	require.Len(t, res.Ingredients, 1)
	assert.Equal(t, ingredient.TierFallback, res.Ingredients[0].Tier)
	assert.GreaterOrEqual(t, res.Ingredients[0].Confidence, 0.60)
	assert.LessOrEqual(t, res.Ingredients[0].Confidence, 0.75)
	assert.Equal(t, pipeline.DatabaseConnected, res.DatabaseStatus)

	tests := []struct {
		name     string
		filename string
		data     []byte
		status   int
		code     string
	}{
		{"missing file", "", nil, http.StatusBadRequest, "INVALID_UPLOAD"},
		{"bad extension", "notes.txt", []byte("hello"), http.StatusBadRequest, "INVALID_UPLOAD"},
		{"not an image", "photo.png", []byte("definitely not a png"), http.StatusBadRequest, "MALFORMED_IMAGE"},
		{"too large", "huge.jpg", make([]byte, 65<<10), http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := uploadFile(t, r, tt.filename, tt.data)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[errorBody](t, rec).Code)
		})
	}
}

func TestProcessImageResolvesText(t *testing.T) {
	r := setupTestServer(t, sampleStore(t), ocr.Fragment{Text: "Lay's Classic Potato Chips", Confidence: 0.88})

	rec := uploadFile(t, r, "bag.jpg", blankPNG(t))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[pipeline.Result](t, rec)
	require.NotEmpty(t, res.Ingredients)
	assert.Equal(t, "chips", res.Ingredients[0].Name)
	assert.InDelta(t, 0.95, res.Ingredients[0].Confidence, 1e-9)
	assert.Equal(t, "Lay's Classic Potato Chips", res.OCRText)
	assert.NotEmpty(t, res.MatchingRecipes)
}
