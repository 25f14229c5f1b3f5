package handler

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/loandesk/internal/model"
	"golang.org/x/sync/errgroup"
)

// DefaultTrendMonths はダッシュボードの推移グラフの月数。
const DefaultTrendMonths = 3

// DashboardHandler はダッシュボードとレポートのHTTPハンドラー。
type DashboardHandler struct {
	pages
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(deps PageDeps) *DashboardHandler {
	return &DashboardHandler{pages: newPages(deps)}
}

// trendRow は推移グラフの1行。棒の長さは最大値に対する百分率。
type trendRow struct {
	Month         string
	Returns       float64
	Interest      float64
	ReturnsWidth  int
	InterestWidth int
}

type dashboardData struct {
	Months int

	Metrics      *model.DashboardMetrics
	MetricsError string

	Trends      []trendRow
	TrendsError string

	Summary      *model.DashboardSummary
	SummaryError string
}

// Dashboard は指標・推移・サマリーを並行に取得して表示する。
// 各セクションは独立しており、1つの取得に失敗しても他のセクションは表示される。
// GET /dashboard
func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	api, err := h.api(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	ctx := r.Context()
	data := dashboardData{Months: DefaultTrendMonths}

	// 失敗は各セクションのメッセージとして保持し、他の取得をキャンセルしない
	var g errgroup.Group
	g.Go(func() error {
		m, err := api.DashboardMetrics(ctx)
		if err != nil {
			data.MetricsError = h.sectionError(r, "metrics", err)
			return nil
		}
		data.Metrics = m
		return nil
	})
	g.Go(func() error {
		t, err := api.DashboardTrends(ctx, DefaultTrendMonths)
		if err != nil {
			data.TrendsError = h.sectionError(r, "trends", err)
			return nil
		}
		data.Trends = trendRows(t)
		return nil
	})
	g.Go(func() error {
		s, err := api.DashboardSummary(ctx)
		if err != nil {
			data.SummaryError = h.sectionError(r, "summary", err)
			return nil
		}
		data.Summary = s
		return nil
	})
	g.Wait()

	h.render(w, r, http.StatusOK, "dashboard", "Overview", "dashboard", data)
}

func (h *DashboardHandler) sectionError(r *http.Request, section string, err error) string {
	_, apiErr := h.classify(r, err)
	h.logger.WarnContext(r.Context(), "dashboard section unavailable",
		slog.String("section", section),
		slog.String("error", err.Error()),
	)
	return h.flash.sanitize(apiErr.Message)
}

// trendRows は推移を棒グラフ用の行に変換する。回収額と利息は同じ目盛りで描く。
func trendRows(trends model.Trends) []trendRow {
	var peak float64
	for _, p := range trends {
		peak = math.Max(peak, math.Max(p.Returns, p.Interest))
	}
	rows := make([]trendRow, 0, len(trends))
	for _, p := range trends {
		rows = append(rows, trendRow{
			Month:         p.Month,
			Returns:       p.Returns,
			Interest:      p.Interest,
			ReturnsWidth:  barWidth(p.Returns, peak),
			InterestWidth: barWidth(p.Interest, peak),
		})
	}
	return rows
}

func barWidth(v, peak float64) int {
	if peak <= 0 || v <= 0 {
		return 0
	}
	w := int(math.Round(v / peak * 100))
	if w < 1 {
		return 1
	}
	return w
}

// SummaryReport はAPIが生成したサマリーレポートのPDFをそのまま中継する。
// GET /dashboard/reports/summary.pdf
func (h *DashboardHandler) SummaryReport(w http.ResponseWriter, r *http.Request) {
	api, err := h.api(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	months := DefaultTrendMonths
	if v, err := strconv.Atoi(r.URL.Query().Get("months")); err == nil && v > 0 && v <= 24 {
		months = v
	}

	resp, err := api.SummaryReport(r.Context(), months)
	if err != nil {
		h.failRedirect(w, r, err, dashboardPath)
		return
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}
	disposition := resp.Header.Get("Content-Disposition")
	if disposition == "" {
		disposition = fmt.Sprintf(`attachment; filename="summary-report-%s.pdf"`, time.Now().Format("2006-01-02"))
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("Cache-Control", "no-store")
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		w.Header().Set("Content-Length", cl)
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.WarnContext(r.Context(), "summary report stream interrupted",
			slog.String("error", err.Error()),
		)
	}
}
