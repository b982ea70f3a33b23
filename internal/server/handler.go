package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"aqi-advisory/internal/advisory"
	"aqi-advisory/internal/models"
	"aqi-advisory/internal/rag"
)

const (
	maxBodyBytes = 1 << 20

	msgNoData         = "No data provided"
	msgAQIRange       = "AQI must be between 0 and 500"
	msgAQIType        = "AQI must be an integer"
	msgInvalidProfile = "Invalid user profile"
	msgNotInitialized = "Vector database not initialized"
	healthMessage     = "Air Quality Health Advisory API is running"
)

// Searcher is the retrieval dependency of Handler; *rag.Retriever satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]string, error)
}

// Handler serves the advisory endpoints.
type Handler struct {
	retriever Searcher
	extractor *advisory.Extractor
	topK      int
}

// NewHandler creates a Handler. retriever may be nil, in which case /analyze
// reports that the index is not initialized.
func NewHandler(retriever Searcher, topK int) *Handler {
	if topK <= 0 {
		topK = 4
	}
	return &Handler{
		retriever: retriever,
		extractor: advisory.NewExtractor(nil),
		topK:      topK,
	}
}

// Health handles GET /health. It does not depend on the index.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.HealthResponse{Status: "healthy", Message: healthMessage})
}

// Analyze handles POST /analyze.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, msgNoData)
		return
	}

	req, err := ParseAdvisoryRequest(body)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Message)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if h.retriever == nil {
		writeError(w, http.StatusInternalServerError, msgNotInitialized)
		return
	}

	resp, err := h.advise(r.Context(), req)
	if err != nil {
		if errors.Is(err, rag.ErrIndexNotReady) {
			writeError(w, http.StatusInternalServerError, msgNotInitialized)
			return
		}
		log.Error().Err(err).Int("aqi", req.AQI).Str("profile", req.UserProfile).Msg("Advisory failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) advise(ctx context.Context, req models.AdvisoryRequest) (*models.AdvisoryResponse, error) {
	category, icon := advisory.Categorize(req.AQI)
	query := fmt.Sprintf(models.QueryTemplate, req.AQI, category, req.UserProfile)

	docs, err := h.retriever.Search(ctx, query, h.topK)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("query", query).Int("chunks", len(docs)).Msg("Retrieved guidelines")

	fields := h.extractor.Extract(strings.Join(docs, models.ContextSeparator), req.AQI, req.UserProfile)

	return &models.AdvisoryResponse{
		City:               req.City,
		AQI:                req.AQI,
		Category:           category,
		Icon:               icon,
		HealthImplications: fields.HealthImplications,
		GeneralAdvice:      fields.GeneralAdvice,
		SensitiveGroups:    fields.SensitiveGroups,
		OutdoorActivities:  fields.OutdoorActivities,
		ProtectiveMeasures: fields.ProtectiveMeasures,
		MaskRecommendation: advisory.RecommendMask(req.AQI),
	}, nil
}

// ParseAdvisoryRequest validates a raw /analyze body. Problems the caller can
// fix are returned as *models.ValidationError.
func ParseAdvisoryRequest(body []byte) (models.AdvisoryRequest, error) {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil || len(raw) == 0 {
		return models.AdvisoryRequest{}, &models.ValidationError{Message: msgNoData}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return models.AdvisoryRequest{}, &models.ValidationError{Message: msgNoData}
	}

	req := models.AdvisoryRequest{
		City:        models.DefaultCity,
		UserProfile: models.DefaultProfile,
	}

	switch v := raw["city"].(type) {
	case nil:
	case string:
		req.City = v
	default:
		req.City = fmt.Sprint(v)
	}

	if v, ok := raw["aqi"]; ok {
		aqi, err := coerceAQI(v)
		if err != nil {
			return models.AdvisoryRequest{}, err
		}
		req.AQI = aqi
	}
	if req.AQI < models.MinAQI || req.AQI > models.MaxAQI {
		return models.AdvisoryRequest{}, &models.ValidationError{Message: msgAQIRange}
	}

	if v, ok := raw["user_profile"]; ok {
		profile, isString := v.(string)
		if !isString || !models.IsValidProfile(profile) {
			return models.AdvisoryRequest{}, &models.ValidationError{Message: msgInvalidProfile}
		}
		req.UserProfile = profile
	}

	return req, nil
}

// coerceAQI accepts JSON numbers (fractions truncate toward zero) and
// integer strings. Values too large for an int fail the range check.
func coerceAQI(v any) (int, error) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return clampInt(float64(i)), nil
		}
		f, err := n.Float64()
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, &models.ValidationError{Message: msgAQIType}
		}
		return clampInt(math.Trunc(f)), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			if errors.Is(err, strconv.ErrRange) {
				return clampInt(float64(i)), nil
			}
			return 0, &models.ValidationError{Message: msgAQIType}
		}
		return clampInt(float64(i)), nil
	default:
		return 0, &models.ValidationError{Message: msgAQIType}
	}
}

// clampInt keeps huge values out of int overflow; anything this far out of
// range fails the range check either way.
func clampInt(f float64) int {
	switch {
	case f > math.MaxInt32:
		return math.MaxInt32
	case f < math.MinInt32:
		return math.MinInt32
	}
	return int(f)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.ErrorResponse{Error: message})
}
