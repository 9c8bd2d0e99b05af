package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"putscreener/internal/checkpoint"
	"putscreener/internal/models"
	"putscreener/internal/pipeline"
	"putscreener/internal/pricesync"
	"putscreener/internal/screener"
)

type Runner interface {
	Start(ctx context.Context, op pipeline.Operation, opts pipeline.Options) (string, error)
	Snapshot() pipeline.Snapshot
}

type ResultReader interface {
	LatestResults(ctx context.Context) ([]models.ScreeningResult, error)
	ResultsByDate(ctx context.Context, date time.Time) ([]models.ScreeningResult, error)
	PriceChanges(ctx context.Context, tickerID uint64, date time.Time, price float64) (*float64, *float64, error)
}

type CoverageReader interface {
	Coverage(ctx context.Context, symbol string) (pricesync.CoverageReport, error)
}

type ConfigStore interface {
	ScreeningConfig(ctx context.Context) (screener.Config, error)
	SetScreeningOverrides(ctx context.Context, values map[string]float64) (screener.Config, error)
}

type StateReader interface {
	GetSyncState(ctx context.Context, scope string) (*models.SyncState, error)
}

type ScreenerHandler struct {
	Runs     Runner
	Results  ResultReader
	Coverage CoverageReader
	Settings ConfigStore
	States   StateReader
	// BaseCtx scopes background runs. Request contexts end with the response.
	BaseCtx context.Context
	Logger  *zap.Logger
	Now     func() time.Time
}

func (h *ScreenerHandler) Register(r *gin.Engine) {
	g := r.Group("/api")
	g.GET("/sync-status", h.syncStatus)
	g.GET("/progress", h.progress)
	g.POST("/sync-prices", h.syncPrices)
	g.POST("/calculate-metrics", h.calculateMetrics)
	g.POST("/execute-screener", h.executeScreener)
	g.POST("/run-pipeline", h.runPipeline)
	g.GET("/results", h.results)
	g.GET("/config", h.getConfig)
	g.POST("/config", h.postConfig)
	g.GET("/coverage", h.coverage)
}

func (h *ScreenerHandler) today() time.Time {
	if h.Now != nil {
		return models.Day(h.Now())
	}
	return models.Today()
}

type stageStatus struct {
	Watermark     *string    `json:"last_date"`
	LastSuccessAt *time.Time `json:"last_success_at"`
	LastError     *string    `json:"last_error,omitempty"`
}

// @Summary Last completed date of each pipeline stage
// @Tags pipeline
// @Success 200 {object} apiResponse
// @Router /api/sync-status [get]
func (h *ScreenerHandler) syncStatus(c *gin.Context) {
	if h.States == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	out := gin.H{"today": h.today().Format(time.DateOnly)}
	for _, scope := range []string{checkpoint.ScopePriceSync, checkpoint.ScopeMetricCalc, checkpoint.ScopeScreening} {
		st, err := h.States.GetSyncState(c.Request.Context(), scope)
		if err != nil {
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
		var status stageStatus
		if st != nil {
			status = stageStatus{Watermark: dateString(st.WatermarkDate), LastSuccessAt: st.LastSuccessAt, LastError: st.LastError}
		}
		out[scope] = status
	}
	Ok(c, out, nil)
}

// @Summary Progress of the current or last batch run
// @Tags pipeline
// @Success 200 {object} apiResponse
// @Router /api/progress [get]
func (h *ScreenerHandler) progress(c *gin.Context) {
	if h.Runs == nil {
		Error(c, http.StatusInternalServerError, "coordinator unavailable", nil)
		return
	}
	Ok(c, h.Runs.Snapshot(), nil)
}

// @Summary Start a price sync
// @Tags pipeline
// @Param force_full query bool false "refetch the full history window"
// @Success 202 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Router /api/sync-prices [post]
func (h *ScreenerHandler) syncPrices(c *gin.Context) {
	h.start(c, pipeline.OpPriceSync, pipeline.Options{ForceFull: boolQueryDefault(c, "force_full", false)})
}

// @Summary Start a metric calculation
// @Tags pipeline
// @Param date query string false "as-of date (YYYY-MM-DD)"
// @Success 202 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Router /api/calculate-metrics [post]
func (h *ScreenerHandler) calculateMetrics(c *gin.Context) {
	h.startDated(c, pipeline.OpMetricCalc, false)
}

// @Summary Start a screening run
// @Tags pipeline
// @Param date query string false "screening date (YYYY-MM-DD)"
// @Success 202 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Router /api/execute-screener [post]
func (h *ScreenerHandler) executeScreener(c *gin.Context) {
	h.startDated(c, pipeline.OpScreening, false)
}

// @Summary Start sync, metrics and screening in sequence
// @Tags pipeline
// @Param force_full query bool false "refetch the full history window"
// @Param date query string false "as-of date (YYYY-MM-DD)"
// @Success 202 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Router /api/run-pipeline [post]
func (h *ScreenerHandler) runPipeline(c *gin.Context) {
	h.startDated(c, pipeline.OpPipeline, boolQueryDefault(c, "force_full", false))
}

func (h *ScreenerHandler) startDated(c *gin.Context, op pipeline.Operation, forceFull bool) {
	date, err := dateQuery(c, "date")
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid date", nil)
		return
	}
	h.start(c, op, pipeline.Options{ForceFull: forceFull, Date: date})
}

func (h *ScreenerHandler) start(c *gin.Context, op pipeline.Operation, opts pipeline.Options) {
	if h.Runs == nil {
		Error(c, http.StatusInternalServerError, "coordinator unavailable", nil)
		return
	}
	ctx := h.BaseCtx
	if ctx == nil {
		ctx = context.WithoutCancel(c.Request.Context())
	}
	runID, err := h.Runs.Start(ctx, op, opts)
	if errors.Is(err, pipeline.ErrBusy) {
		snap := h.Runs.Snapshot()
		Error(c, http.StatusConflict, err.Error(), map[string]any{"operation": snap.Operation, "run_id": snap.RunID})
		return
	}
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if h.Logger != nil {
		h.Logger.Info("run started", zap.String("operation", string(op)), zap.String("run_id", runID))
	}
	Accepted(c, gin.H{"run_id": runID, "operation": op})
}

type resultView struct {
	RunID         string   `json:"run_id"`
	Symbol        string   `json:"symbol"`
	Name          string   `json:"name"`
	ScreeningDate string   `json:"screening_date"`
	StockPrice    float64  `json:"stock_price"`
	PriceChange1D *float64 `json:"price_change_1d"`
	PriceChange5D *float64 `json:"price_change_5d"`
	Industry      *string  `json:"industry"`
	Sector        *string  `json:"sector"`
	SectorETF     *string  `json:"sector_etf"`

	Stock52WPct  float64  `json:"stock_52w_pct"`
	Week52High   float64  `json:"week_52_high"`
	Week52Low    float64  `json:"week_52_low"`
	DistHighPct  float64  `json:"dist_high_pct"`
	DistLowPct   float64  `json:"dist_low_pct"`
	Sector52WPct *float64 `json:"sector_52w_pct"`

	PERatio           float64  `json:"pe_ratio"`
	SectorPE          *float64 `json:"sector_pe"`
	MarketCapMillions int64    `json:"market_cap_millions"`
	AvgVolumeMillions float64  `json:"avg_volume_millions"`
	ATRPct            float64  `json:"atr_pct"`
	IsLateral         bool     `json:"is_lateral"`

	Expiration      string  `json:"expiration"`
	PutStrike       float64 `json:"put_strike"`
	DTE             int     `json:"dte"`
	Bid             float64 `json:"bid"`
	Ask             float64 `json:"ask"`
	Spread          float64 `json:"spread"`
	Premium         float64 `json:"premium"`
	AnnualizedYield float64 `json:"annualized_yield"`
	ContractsNeeded int     `json:"contracts_needed"`
	DaysToEarnings  *int    `json:"days_to_earnings"`

	ChartLink   string `json:"chart_link"`
	OptionsLink string `json:"options_link"`
}

func newResultView(r models.ScreeningResult) resultView {
	return resultView{
		RunID:             r.RunID,
		Symbol:            r.Symbol,
		Name:              r.Name,
		ScreeningDate:     r.ScreeningDate.Format(time.DateOnly),
		StockPrice:        decFloat(r.StockPrice),
		Industry:          r.Industry,
		Sector:            r.Sector,
		SectorETF:         r.SectorETF,
		Stock52WPct:       decFloat(r.Stock52WPct),
		Week52High:        decFloat(r.Week52High),
		Week52Low:         decFloat(r.Week52Low),
		DistHighPct:       decFloat(r.DistHighPct),
		DistLowPct:        decFloat(r.DistLowPct),
		Sector52WPct:      decFloatPtr(r.Sector52WPct),
		PERatio:           decFloat(r.PERatio),
		SectorPE:          decFloatPtr(r.SectorPE),
		MarketCapMillions: r.MarketCapMillions,
		AvgVolumeMillions: decFloat(r.AvgVolumeMillions),
		ATRPct:            decFloat(r.ATRPct),
		IsLateral:         r.IsLateral,
		Expiration:        r.Expiration.Format(time.DateOnly),
		PutStrike:         decFloat(r.PutStrike),
		DTE:               r.DTE,
		Bid:               decFloat(r.Bid),
		Ask:               decFloat(r.Ask),
		Spread:            decFloat(r.Spread),
		Premium:           decFloat(r.Premium),
		AnnualizedYield:   decFloat(r.AnnualizedYield),
		ContractsNeeded:   r.ContractsNeeded,
		DaysToEarnings:    r.DaysToEarnings,
		ChartLink:         r.ChartLink,
		OptionsLink:       r.OptionsLink,
	}
}

// @Summary Screening results
// @Tags results
// @Param date query string false "screening date (YYYY-MM-DD); latest run when empty"
// @Success 200 {object} apiResponse
// @Router /api/results [get]
func (h *ScreenerHandler) results(c *gin.Context) {
	if h.Results == nil {
		Error(c, http.StatusInternalServerError, "screener unavailable", nil)
		return
	}
	ctx := c.Request.Context()
	date, err := dateQuery(c, "date")
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid date", nil)
		return
	}
	var items []models.ScreeningResult
	if date != nil {
		items, err = h.Results.ResultsByDate(ctx, *date)
	} else {
		items, err = h.Results.LatestResults(ctx)
	}
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}

	out := make([]resultView, 0, len(items))
	for _, item := range items {
		view := newResultView(item)
		oneDay, fiveDay, err := h.Results.PriceChanges(ctx, item.TickerID, item.ScreeningDate, view.StockPrice)
		if err != nil {
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
		view.PriceChange1D, view.PriceChange5D = oneDay, fiveDay
		out = append(out, view)
	}
	meta := map[string]any{"count": len(out)}
	if len(items) > 0 {
		meta["screening_date"] = items[0].ScreeningDate.Format(time.DateOnly)
		meta["run_id"] = items[0].RunID
	}
	Ok(c, out, meta)
}

// @Summary Effective screening thresholds
// @Tags config
// @Success 200 {object} apiResponse
// @Router /api/config [get]
func (h *ScreenerHandler) getConfig(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings service unavailable", nil)
		return
	}
	cfg, err := h.Settings.ScreeningConfig(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, cfg, map[string]any{"override_keys": screener.OverrideKeys()})
}

// @Summary Store screening threshold overrides
// @Tags config
// @Param body body object true "overrides keyed by threshold name"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Router /api/config [post]
func (h *ScreenerHandler) postConfig(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings service unavailable", nil)
		return
	}
	var req map[string]float64
	if err := c.ShouldBindJSON(&req); err != nil || len(req) == 0 {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	cfg, err := h.Settings.SetScreeningOverrides(c.Request.Context(), req)
	if errors.Is(err, screener.ErrInvalidConfig) {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, cfg, nil)
}

// @Summary Price history coverage per ticker
// @Tags pipeline
// @Param symbol query string false "single ticker"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/coverage [get]
func (h *ScreenerHandler) coverage(c *gin.Context) {
	if h.Coverage == nil {
		Error(c, http.StatusInternalServerError, "sync service unavailable", nil)
		return
	}
	report, err := h.Coverage.Coverage(c.Request.Context(), strings.TrimSpace(c.Query("symbol")))
	if errors.Is(err, pricesync.ErrTickerNotFound) {
		Error(c, http.StatusNotFound, err.Error(), nil)
		return
	}
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, report, nil)
}
