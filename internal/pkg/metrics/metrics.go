package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// 解析器与查询 API 的 Prometheus 指标。
//
// InitMetrics 必须在进程启动时调用一次，之后各包直接使用导出的指标变量。
var (
	// RawRowsProcessedTotal 按最终状态统计处理过的原始行数。
	RawRowsProcessedTotal *prometheus.CounterVec

	// ClustersResolvedTotal 按匹配策略统计归并出的商品簇数。
	ClustersResolvedTotal *prometheus.CounterVec

	// FuzzyMatchAttemptsTotal 按结果 (merged / rejected) 统计模糊匹配次数。
	FuzzyMatchAttemptsTotal *prometheus.CounterVec

	// FingerprintConflictsTotal 指纹唯一索引冲突后走降级路径的次数。
	FingerprintConflictsTotal prometheus.Counter

	// ProductsCreatedTotal 新建标准商品数。
	ProductsCreatedTotal prometheus.Counter

	// OffersUpsertedTotal 按动作 (insert / update) 统计报价写入数。
	OffersUpsertedTotal *prometheus.CounterVec

	// ResolveRunDuration 一轮完整解析的耗时分布。
	ResolveRunDuration prometheus.Histogram

	// APICacheTotal 查询 API 的缓存命中统计 (hit / miss)。
	APICacheTotal *prometheus.CounterVec

	// APIRequestsTotal 查询 API 的请求数，按路由与状态码统计。
	APIRequestsTotal *prometheus.CounterVec
)

var initOnce sync.Once

// InitMetrics 创建并注册所有指标。重复调用是安全的。
func InitMetrics() {
	initOnce.Do(func() {
		RawRowsProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tooltally_raw_rows_processed_total",
			Help: "Raw staging rows processed, labelled by terminal status.",
		}, []string{"status"})

		ClustersResolvedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tooltally_clusters_resolved_total",
			Help: "Clusters resolved to a canonical product, labelled by matching strategy.",
		}, []string{"strategy"})

		FuzzyMatchAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tooltally_fuzzy_match_attempts_total",
			Help: "Fuzzy fallback match attempts, labelled by outcome.",
		}, []string{"outcome"})

		FingerprintConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tooltally_fingerprint_conflicts_total",
			Help: "Fingerprint uniqueness conflicts recovered via the fallback ladder.",
		})

		ProductsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tooltally_products_created_total",
			Help: "Canonical products created.",
		})

		OffersUpsertedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tooltally_offers_upserted_total",
			Help: "Offers written, labelled by action.",
		}, []string{"action"})

		ResolveRunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tooltally_resolve_run_duration_seconds",
			Help:    "Duration of a full resolve run.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		})

		APICacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tooltally_api_cache_total",
			Help: "Query API cache lookups, labelled by result.",
		}, []string{"result"})

		APIRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tooltally_api_requests_total",
			Help: "Query API requests, labelled by route and status code.",
		}, []string{"route", "status"})

		prometheus.MustRegister(
			RawRowsProcessedTotal,
			ClustersResolvedTotal,
			FuzzyMatchAttemptsTotal,
			FingerprintConflictsTotal,
			ProductsCreatedTotal,
			OffersUpsertedTotal,
			ResolveRunDuration,
			APICacheTotal,
			APIRequestsTotal,
		)
	})
}
