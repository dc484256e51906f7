package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nemonet1337/makibaGoStock/pkg/inventory"
)

// Handler holds the HTTP handler dependencies
// HTTPハンドラーの依存を保持
type Handler struct {
	ledger    *inventory.Ledger
	alerts    *inventory.AlertEngine
	reorder   *inventory.ReorderEngine
	valuation *inventory.ValuationEngine
	analysis  *inventory.AnalysisEngine
	store     inventory.Store
	orders    inventory.PurchaseOrderStore
	logger    *zap.Logger
}

// NewHandler creates a Handler
// Handlerを作成
func NewHandler(
	ledger *inventory.Ledger,
	alerts *inventory.AlertEngine,
	reorder *inventory.ReorderEngine,
	valuation *inventory.ValuationEngine,
	analysis *inventory.AnalysisEngine,
	store interface {
		inventory.Store
		inventory.PurchaseOrderStore
	},
	logger *zap.Logger,
) *Handler {
	return &Handler{
		ledger:    ledger,
		alerts:    alerts,
		reorder:   reorder,
		valuation: valuation,
		analysis:  analysis,
		store:     store,
		orders:    store,
		logger:    logger,
	}
}

// APIResponse is the common JSON envelope
// 共通のJSONレスポンス形式
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// sendSuccess 成功レスポンスを送信
func (h *Handler) sendSuccess(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data})
}

// sendError エラーレスポンスを送信
func (h *Handler) sendError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{Success: false, Error: message})
}

// handleDomainError maps domain errors to HTTP status codes
// ドメインエラーをHTTPステータスコードに対応付け
func (h *Handler) handleDomainError(w http.ResponseWriter, err error) {
	var validationErr *inventory.ValidationError
	var insufficientErr *inventory.InsufficientStockError
	var availableErr *inventory.InsufficientAvailableStockError
	var overReleaseErr *inventory.OverReleaseError
	var invariantErr *inventory.InvariantViolationError
	var reorderErr *inventory.ReorderCreationError

	switch {
	case errors.Is(err, inventory.ErrItemNotFound),
		errors.Is(err, inventory.ErrAlertNotFound),
		errors.Is(err, inventory.ErrOrderNotFound):
		h.sendError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, inventory.ErrDuplicateItem):
		h.sendError(w, http.StatusConflict, err.Error())
	case errors.Is(err, inventory.ErrConflictRetryExceeded):
		h.sendError(w, http.StatusConflict, err.Error())
	case errors.As(err, &validationErr):
		h.sendError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &insufficientErr),
		errors.As(err, &availableErr),
		errors.As(err, &overReleaseErr):
		h.sendError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &invariantErr):
		h.sendError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &reorderErr):
		// 在庫更新は確定済み。発注失敗のみ通知
		h.sendError(w, http.StatusBadGateway, err.Error())
	default:
		h.logger.Error("内部エラー", zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, "内部エラーが発生しました")
	}
}

// CreateItem POST /api/v1/items
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var item inventory.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		h.sendError(w, http.StatusBadRequest, "リクエストボディの解析に失敗しました")
		return
	}

	created, err := h.ledger.CreateItem(r.Context(), &item)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	h.sendSuccess(w, http.StatusCreated, created)
}

// GetItem GET /api/v1/items/{id}
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["id"]

	item, err := h.ledger.GetItem(r.Context(), itemID)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	h.sendSuccess(w, http.StatusOK, item)
}

// GetItemByCode GET /api/v1/items/code/{code}
func (h *Handler) GetItemByCode(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	item, err := h.ledger.GetItemByCode(r.Context(), code)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	h.sendSuccess(w, http.StatusOK, item)
}

// ListItems GET /api/v1/items
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	filter := inventory.ItemFilter{
		Category: inventory.Category(r.URL.Query().Get("category")),
		Status:   inventory.Status(r.URL.Query().Get("status")),
	}
	if r.URL.Query().Get("critical") == "true" {
		filter.OnlyCritical = true
	}

	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 50)

	items, err := h.ledger.ListItems(r.Context(), filter, offset, limit)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	h.sendSuccess(w, http.StatusOK, items)
}

// GetHistory GET /api/v1/items/{id}/history
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["id"]
	limit := queryInt(r, "limit", 100)

	// from/to指定時は期間照会
	fromStr := r.URL.Query().Get("from")
	toStr := r.URL.Query().Get("to")
	if fromStr != "" && toStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			h.sendError(w, http.StatusBadRequest, "fromの形式が無効です（RFC3339）")
			return
		}
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			h.sendError(w, http.StatusBadRequest, "toの形式が無効です（RFC3339）")
			return
		}
		movements, err := h.ledger.GetHistoryByDateRange(r.Context(), itemID, from, to)
		if err != nil {
			h.handleDomainError(w, err)
			return
		}
		h.sendSuccess(w, http.StatusOK, movements)
		return
	}

	movements, err := h.ledger.GetHistory(r.Context(), itemID, limit)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	h.sendSuccess(w, http.StatusOK, movements)
}

// movementRequest 在庫移動リクエスト
type movementRequest struct {
	ItemID    string                 `json:"item_id"`
	Type      inventory.MovementType `json:"type"`
	Quantity  decimal.Decimal        `json:"quantity"`
	UnitCost  *decimal.Decimal       `json:"unit_cost"`
	Reason    string                 `json:"reason"`
	Reference string                 `json:"reference"`
}

// ApplyMovement POST /api/v1/inventory/movements
func (h *Handler) ApplyMovement(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "リクエストボディの解析に失敗しました")
		return
	}
	if req.ItemID == "" {
		h.sendError(w, http.StatusBadRequest, "item_idは必須です")
		return
	}

	item, err := h.ledger.ApplyMovement(r.Context(), req.ItemID, inventory.MovementInput{
		Type:      req.Type,
		Quantity:  req.Quantity,
		UnitCost:  req.UnitCost,
		Reason:    req.Reason,
		Reference: req.Reference,
	})
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	h.sendSuccess(w, http.StatusOK, item)
}

// reservationRequest 予約・解除リクエスト
type reservationRequest struct {
	ItemID    string          `json:"item_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Reference string          `json:"reference"`
}

// Reserve POST /api/v1/inventory/reserve
func (h *Handler) Reserve(w http.ResponseWriter, r *http.Request) {
	var req reservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "リクエストボディの解析に失敗しました")
		return
	}

	item, err := h.ledger.Reserve(r.Context(), req.ItemID, req.Quantity, req.Reference)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	h.sendSuccess(w, http.StatusOK, item)
}

// Release POST /api/v1/inventory/release
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	var req reservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "リクエストボディの解析に失敗しました")
		return
	}

	item, err := h.ledger.Release(r.Context(), req.ItemID, req.Quantity, req.Reference)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	h.sendSuccess(w, http.StatusOK, item)
}

// ListActiveAlerts GET /api/v1/alerts
func (h *Handler) ListActiveAlerts(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)

	alerts, err := h.store.ListActiveAlerts(r.Context(), limit)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	h.sendSuccess(w, http.StatusOK, alerts)
}

// SweepAlerts POST /api/v1/alerts/sweep
func (h *Handler) SweepAlerts(w http.ResponseWriter, r *http.Request) {
	result, err := h.alerts.Sweep(r.Context())
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	h.sendSuccess(w, http.StatusOK, result)
}

// ResolveAlert POST /api/v1/alerts/{id}/resolve
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	alertID := mux.Vars(r)["id"]

	if err := h.store.ResolveAlert(r.Context(), alertID, time.Now()); err != nil {
		h.handleDomainError(w, err)
		return
	}

	h.sendSuccess(w, http.StatusOK, map[string]string{"alert_id": alertID, "status": "resolved"})
}

// ListPurchaseOrders GET /api/v1/purchase-orders
func (h *Handler) ListPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	itemID := r.URL.Query().Get("item_id")
	limit := queryInt(r, "limit", 100)

	orders, err := h.orders.ListPurchaseOrders(r.Context(), itemID, limit)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	h.sendSuccess(w, http.StatusOK, orders)
}

// GetItemValuation GET /api/v1/valuation/items/{id}
func (h *Handler) GetItemValuation(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["id"]
	method := valuationMethod(r)

	result, err := h.valuation.CalculateItemValue(r.Context(), itemID, method)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	h.sendSuccess(w, http.StatusOK, result)
}

// GetTotalValuation GET /api/v1/valuation/total
func (h *Handler) GetTotalValuation(w http.ResponseWriter, r *http.Request) {
	method := valuationMethod(r)

	result, err := h.valuation.CalculateTotalValue(r.Context(), method)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	h.sendSuccess(w, http.StatusOK, result)
}

// GetABCClassification GET /api/v1/analytics/abc
func (h *Handler) GetABCClassification(w http.ResponseWriter, r *http.Request) {
	result, err := h.analysis.ABCClassification(r.Context())
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	h.sendSuccess(w, http.StatusOK, result)
}

// GetTurnoverRate GET /api/v1/analytics/items/{id}/turnover
func (h *Handler) GetTurnoverRate(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["id"]
	from, to, err := periodParams(r)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.analysis.TurnoverRate(r.Context(), itemID, from, to)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	h.sendSuccess(w, http.StatusOK, result)
}

// GetExpirationLoss GET /api/v1/analytics/items/{id}/expiration-loss
func (h *Handler) GetExpirationLoss(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["id"]
	from, to, err := periodParams(r)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.analysis.ExpirationLoss(r.Context(), itemID, from, to)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	h.sendSuccess(w, http.StatusOK, result)
}

// GetCostVariance GET /api/v1/analytics/items/{id}/cost-variance
func (h *Handler) GetCostVariance(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["id"]
	from, to, err := periodParams(r)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.analysis.CostVariance(r.Context(), itemID, from, to)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	h.sendSuccess(w, http.StatusOK, result)
}

// HealthCheck GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.sendError(w, http.StatusServiceUnavailable, "データベースに接続できません")
		return
	}

	h.sendSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}

// queryInt クエリパラメータを整数で取得
func queryInt(r *http.Request, key string, defaultValue int) int {
	if value := r.URL.Query().Get(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil && intValue >= 0 {
			return intValue
		}
	}
	return defaultValue
}

// valuationMethod クエリパラメータから評価方法を取得（既定は加重平均）
func valuationMethod(r *http.Request) inventory.ValuationMethod {
	if method := r.URL.Query().Get("method"); method != "" {
		return inventory.ValuationMethod(method)
	}
	return inventory.ValuationWeightedAverage
}

// periodParams from/toクエリパラメータを解析（既定は過去30日）
func periodParams(r *http.Request) (time.Time, time.Time, error) {
	to := time.Now()
	from := to.AddDate(0, 0, -30)

	if fromStr := r.URL.Query().Get("from"); fromStr != "" {
		parsed, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("fromの形式が無効です（RFC3339）")
		}
		from = parsed
	}
	if toStr := r.URL.Query().Get("to"); toStr != "" {
		parsed, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("toの形式が無効です（RFC3339）")
		}
		to = parsed
	}

	return from, to, nil
}
