// Package handlers provides HTTP handlers for the Recommendation API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/catalog"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/recommend"
)

// Recommender is the slice of recommend.Service the handlers use.
type Recommender interface {
	Recommend(ctx context.Context, id domain.ProductID, k int) (*recommend.Result, error)
	Invalidate(ctx context.Context, id *domain.ProductID) (int, error)
}

// RecommendationHandler serves recommendation and cache endpoints.
type RecommendationHandler struct {
	logger   *observability.Logger
	service  Recommender
	defaultK int
}

// NewRecommendationHandler creates a new recommendation handler.
func NewRecommendationHandler(logger *observability.Logger, service Recommender, defaultK int) *RecommendationHandler {
	if defaultK <= 0 {
		defaultK = 5
	}
	return &RecommendationHandler{
		logger:   logger.WithOperation("http"),
		service:  service,
		defaultK: defaultK,
	}
}

// ProductDTO is one recommended product.
type ProductDTO struct {
	ProductID       int64    `json:"productId"`
	ProductName     string   `json:"productName"`
	StoreName       string   `json:"storeName"`
	Thumbnail       string   `json:"thumbnail"`
	Price           int      `json:"price"`
	DiscountedPrice int      `json:"discountedPrice"`
	DiscountRate    int      `json:"discountRate"`
	ReviewCount     int      `json:"reviewCount"`
	Distance        *float64 `json:"distance,omitempty"`
}

// RecommendationResponseDTO is the body of a recommendation response.
type RecommendationResponseDTO struct {
	SourceProductID int64        `json:"sourceProductId"`
	Products        []ProductDTO `json:"products"`
	State           string       `json:"state"`
	Cached          bool         `json:"cached"`
}

// InvalidateResponseDTO is the body of a cache invalidation response.
type InvalidateResponseDTO struct {
	Message      string `json:"message"`
	DeletedCount int    `json:"deletedCount"`
}

// Recommend handles GET /products/{productId}/recommendations.
func (h *RecommendationHandler) Recommend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := domain.ParseProductID(chi.URLParam(r, "productId"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid productId", err.Error())
		return
	}

	k := h.defaultK
	if raw := r.URL.Query().Get("k"); raw != "" {
		k, err = strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "k must be an integer", err.Error())
			return
		}
	}

	res, err := h.service.Recommend(ctx, id, k)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "source product not found", err.Error())
		return
	case domain.IsType(err, domain.ErrorTypeInvalidInput):
		h.writeError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	case err != nil:
		h.logger.WithContext(ctx).Error().Err(err).Product(int64(id)).Msg("Recommendation failed")
		h.writeError(w, http.StatusInternalServerError, "recommendation failed", "")
		return
	}

	if res.State == recommend.StateFallback {
		h.logger.WithContext(ctx).Warn().
			Product(int64(id)).
			Str("reason", res.FallbackReason).
			Msg("Served fallback recommendation")
	}

	h.writeJSON(w, http.StatusOK, toResponseDTO(id, res))
}

// Invalidate handles POST /cache/invalidate[?productId=].
func (h *RecommendationHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var target *domain.ProductID
	if raw := r.URL.Query().Get("productId"); raw != "" {
		id, err := domain.ParseProductID(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid productId", err.Error())
			return
		}
		target = &id
	}

	n, err := h.service.Invalidate(ctx, target)
	if err != nil {
		h.logger.WithContext(ctx).Error().Err(err).Msg("Cache invalidation failed")
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed", "")
		return
	}

	message := "invalidated all recommendations"
	if target != nil {
		message = "invalidated recommendations for product " + target.String()
	}
	h.writeJSON(w, http.StatusOK, InvalidateResponseDTO{Message: message, DeletedCount: n})
}

func toResponseDTO(id domain.ProductID, res *recommend.Result) RecommendationResponseDTO {
	products := make([]ProductDTO, len(res.Products))
	for i, p := range res.Products {
		products[i] = ProductDTO{
			ProductID:       int64(p.ID),
			ProductName:     p.Name,
			StoreName:       p.StoreName,
			Thumbnail:       p.Thumbnail,
			Price:           p.Price,
			DiscountedPrice: p.DiscountedPrice,
			DiscountRate:    p.DiscountRate,
			ReviewCount:     p.ReviewCount,
			Distance:        p.Distance,
		}
	}
	return RecommendationResponseDTO{
		SourceProductID: int64(id),
		Products:        products,
		State:           res.State.String(),
		Cached:          res.Cached,
	}
}

func (h *RecommendationHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *RecommendationHandler) writeError(w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]string{
		"error":   message,
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	h.writeJSON(w, status, resp)
}
