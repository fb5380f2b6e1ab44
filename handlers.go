package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"recipelens/pkg/auth"
	"recipelens/pkg/config"
	"recipelens/pkg/imageprep"
	"recipelens/pkg/pipeline"
	"recipelens/pkg/recipe"
)

var (
	errInvalidUpload = errors.New("invalid upload")
	errFileTooLarge  = errors.New("file too large")
	errInvalidBody   = errors.New("invalid request body")
)

// getAllPerPage is the page size of /get-all-recipes when none is given.
const getAllPerPage = 50

const similarLimit = 10

// server holds everything the handlers need. It is built once in main and
// shared by all requests.
type server struct {
	cfg      *config.Config
	log      *slog.Logger
	pipeline *pipeline.Pipeline
	matcher  *recipe.Matcher
	searcher *recipe.Searcher
	verifier *auth.Verifier
}

func setupRoutes(r *gin.Engine, s *server) {
	r.GET("/healthz", s.healthHandler)

	authGroup := r.Group("")
	authGroup.Use(authMiddleware(s.verifier, s.cfg.Auth.Required))
	authGroup.POST("/process-image", s.processImageHandler)
	authGroup.POST("/find-recipes", s.findRecipesHandler)
	authGroup.POST("/search-recipes", s.searchRecipesHandler)
	authGroup.GET("/search-recipes", s.searchRecipesHandler)
	authGroup.GET("/get-all-recipes", s.getAllRecipesHandler)
	authGroup.GET("/database-status", s.databaseStatusHandler)
	authGroup.GET("/recipe-filters", s.recipeFiltersHandler)
	authGroup.GET("/recipes/:id/similar", s.similarRecipesHandler)
}

// mapError translates a failure into the error envelope. It is the only
// place that decides status codes.
func mapError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, imageprep.ErrMalformedImage):
		status, code = http.StatusBadRequest, "MALFORMED_IMAGE"
	case errors.Is(err, errFileTooLarge):
		status, code = http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"
	case errors.Is(err, errInvalidUpload):
		status, code = http.StatusBadRequest, "INVALID_UPLOAD"
	case errors.Is(err, errInvalidBody):
		status, code = http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, recipe.ErrInvalidFilter):
		status, code = http.StatusBadRequest, "INVALID_FILTER"
	case errors.Is(err, recipe.ErrRecipeNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, recipe.ErrStoreUnavailable):
		status, code = http.StatusServiceUnavailable, "STORE_UNAVAILABLE"
	case errors.Is(err, auth.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "TIMEOUT"
	case errors.Is(err, context.Canceled):
		status, code = http.StatusRequestTimeout, "REQUEST_CANCELLED"
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "path", c.FullPath(), "error", err)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": code})
}

func (s *server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// readUpload validates the multipart "file" field and returns its bytes.
func (s *server) readUpload(c *gin.Context) ([]byte, string, error) {
	limit := s.cfg.Upload.MaxBytes
	file, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, "", fmt.Errorf("%w: max %d bytes", errFileTooLarge, limit)
		}
		return nil, "", fmt.Errorf("%w: file missing", errInvalidUpload)
	}
	if file.Filename == "" {
		return nil, "", fmt.Errorf("%w: empty filename", errInvalidUpload)
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(file.Filename), "."))
	if !slices.Contains(s.cfg.Upload.AllowedExts, ext) {
		return nil, "", fmt.Errorf("%w: extension %q not allowed (allowed: %s)",
			errInvalidUpload, ext, strings.Join(s.cfg.Upload.AllowedExts, ", "))
	}
	if file.Size > limit {
		return nil, "", fmt.Errorf("%w: max %d bytes", errFileTooLarge, limit)
	}
	f, err := file.Open()
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", errInvalidUpload, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", errInvalidUpload, err)
	}
	if int64(len(data)) > limit {
		return nil, "", fmt.Errorf("%w: max %d bytes", errFileTooLarge, limit)
	}
	return data, file.Filename, nil
}

func (s *server) processImageHandler(c *gin.Context) {
	// multipart framing adds a little on top of the file itself
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.Upload.MaxBytes+64<<10)
	data, name, err := s.readUpload(c)
	if err != nil {
		mapError(c, err)
		return
	}
	res, err := s.pipeline.Run(c.Request.Context(), data)
	if err != nil {
		mapError(c, err)
		return
	}
	s.log.Info("process-image done",
		"request_id", c.GetString(requestIDKey),
		"file", name,
		"ingredients", strings.Join(res.IngredientNames(), ","),
		"recipes", len(res.MatchingRecipes),
	)
	c.JSON(http.StatusOK, res)
}

func (s *server) findRecipesHandler(c *gin.Context) {
	var req struct {
		Ingredients []string `json:"ingredients" binding:"required"`
		Limit       int      `json:"limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		mapError(c, fmt.Errorf("%w: %v", errInvalidBody, err))
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = s.cfg.Match.FindLimit
	}
	results, err := s.matcher.Match(c.Request.Context(), req.Ingredients, limit)
	if err != nil {
		mapError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recipes": results, "total": len(results)})
}

func (s *server) searchRecipesHandler(c *gin.Context) {
	var f recipe.Filter
	var err error
	if c.Request.Method == http.MethodGet {
		err = c.ShouldBindQuery(&f)
		f.DietaryPreferences = splitCSV(f.DietaryPreferences)
	} else if c.Request.ContentLength != 0 {
		err = c.ShouldBindJSON(&f)
	}
	if err != nil {
		mapError(c, fmt.Errorf("%w: %v", errInvalidBody, err))
		return
	}
	page, err := s.searcher.Search(c.Request.Context(), f)
	if err != nil {
		mapError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *server) getAllRecipesHandler(c *gin.Context) {
	var q struct {
		Page    int `form:"page"`
		PerPage int `form:"per_page"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		mapError(c, fmt.Errorf("%w: %v", errInvalidBody, err))
		return
	}
	if q.PerPage <= 0 {
		q.PerPage = getAllPerPage
	}
	page, err := s.searcher.Search(c.Request.Context(), recipe.Filter{Page: q.Page, PerPage: q.PerPage})
	if err != nil {
		mapError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *server) databaseStatusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.searcher.Status(c.Request.Context()))
}

func (s *server) recipeFiltersHandler(c *gin.Context) {
	opts, err := s.searcher.FilterOptions(c.Request.Context())
	if err != nil {
		mapError(c, err)
		return
	}
	c.JSON(http.StatusOK, opts)
}

func (s *server) similarRecipesHandler(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		mapError(c, fmt.Errorf("%w: recipe id %q", errInvalidBody, c.Param("id")))
		return
	}
	var q struct {
		Limit int `form:"limit"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		mapError(c, fmt.Errorf("%w: %v", errInvalidBody, err))
		return
	}
	if q.Limit <= 0 {
		q.Limit = similarLimit
	}
	results, err := s.matcher.Similar(c.Request.Context(), uint(id), q.Limit)
	if err != nil {
		mapError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recipe_id": id, "recipes": results, "total": len(results)})
}

// splitCSV accepts both repeated query keys and comma separated values.
func splitCSV(in []string) []string {
	var out []string
	for _, v := range in {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
