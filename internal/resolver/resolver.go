package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tooltally/internal/config"
	"tooltally/internal/model"
	"tooltally/internal/normalize"
	"tooltally/internal/pkg/metrics"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Resolver 商品归并引擎：把 staging 表里的原始报价行解析成
// 跨店铺唯一的标准商品与报价。
type Resolver struct {
	db     *gorm.DB
	logger *slog.Logger
	cfg    config.ResolverConfig
}

// New 创建解析器。
func New(db *gorm.DB, logger *slog.Logger, cfg config.ResolverConfig) *Resolver {
	return &Resolver{db: db, logger: logger, cfg: cfg}
}

// RunStats 一轮解析的汇总统计。
type RunStats struct {
	RunID           string // 本轮运行标识
	Loaded          int    // 取出的 unresolved 行数
	Skipped         int    // 因缺价格/链接/店铺被永久跳过的行数
	Resolved        int    // 成功归并的行数
	Clusters        int    // 归并出的簇数
	ProductsCreated int    // 新建标准商品数
	OffersInserted  int    // 新插入报价数
	OffersUpdated   int    // 原地更新报价数
	FuzzyMerged     int    // 经模糊回退并入既有商品的簇数
}

// rawItem 一条待解析行及其派生产物。
type rawItem struct {
	listing model.RawListing
	attrs   normalize.Attributes
	keys    []Key
}

// Run 执行一轮完整解析。
//
// 流程：加载一批 unresolved 行 -> 剔除畸形行 -> 归一化并派生候选键 ->
// 按共享键值并查集聚簇 -> 逐簇落库（商品 upsert + 报价合并 + 状态翻转）。
// 簇的落库在事务内进行，大批次按 commit_every 做中间提交
//（commit_every 为 -1 时整批只有一个事务）；出错时
// 回滚当前事务，已提交的簇保持完整（行状态与商品/报价同事务翻转，
// 重跑只会处理剩余行，结果幂等）。
func (r *Resolver) Run(ctx context.Context) (RunStats, error) {
	start := time.Now()
	stats := RunStats{RunID: uuid.NewString()}
	log := r.logger.With("run_id", stats.RunID)

	var batch []model.RawListing
	if err := r.db.WithContext(ctx).
		Where("status = ?", model.StatusUnresolved).
		Order("id ASC").
		Limit(r.cfg.BatchSize).
		Find(&batch).Error; err != nil {
		return stats, fmt.Errorf("load unresolved batch: %w", err)
	}
	stats.Loaded = len(batch)
	if len(batch) == 0 {
		log.Info("no unresolved rows, nothing to do")
		return stats, nil
	}

	items := make([]rawItem, 0, len(batch))
	for _, l := range batch {
		if malformed(l) {
			if err := r.db.WithContext(ctx).Model(&model.RawListing{}).
				Where("id = ?", l.ID).
				Update("status", model.StatusSkipped).Error; err != nil {
				return stats, fmt.Errorf("mark row %d skipped: %w", l.ID, err)
			}
			metrics.RawRowsProcessedTotal.WithLabelValues(model.StatusSkipped).Inc()
			stats.Skipped++
			continue
		}
		attrs := normalize.Normalize(l.Title, l.Category)
		items = append(items, rawItem{
			listing: l,
			attrs:   attrs,
			keys:    CandidateKeys(l, attrs),
		})
	}
	if len(items) == 0 {
		log.Info("batch contained only malformed rows", "skipped", stats.Skipped)
		metrics.ResolveRunDuration.Observe(time.Since(start).Seconds())
		return stats, nil
	}

	// 共享任一候选键值的行传递合并到同一簇
	uf := newUnionFind(len(items))
	firstSeen := make(map[string]int)
	for i, it := range items {
		for _, k := range it.keys {
			full := k.String()
			if j, ok := firstSeen[full]; ok {
				uf.union(i, j)
			} else {
				firstSeen[full] = i
			}
		}
	}
	clusters := uf.sets()
	stats.Clusters = len(clusters)

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return stats, fmt.Errorf("begin tx: %w", tx.Error)
	}
	rowsSinceCommit := 0
	for _, members := range clusters {
		if err := ctx.Err(); err != nil {
			tx.Rollback()
			return stats, err
		}
		if err := r.resolveCluster(tx, items, members, &stats); err != nil {
			tx.Rollback()
			return stats, err
		}
		rowsSinceCommit += len(members)
		if r.cfg.CommitEvery > 0 && rowsSinceCommit >= r.cfg.CommitEvery {
			if err := tx.Commit().Error; err != nil {
				return stats, fmt.Errorf("intermediate commit: %w", err)
			}
			tx = r.db.WithContext(ctx).Begin()
			if tx.Error != nil {
				return stats, fmt.Errorf("begin tx: %w", tx.Error)
			}
			rowsSinceCommit = 0
		}
	}
	if err := tx.Commit().Error; err != nil {
		return stats, fmt.Errorf("final commit: %w", err)
	}

	elapsed := time.Since(start)
	metrics.ResolveRunDuration.Observe(elapsed.Seconds())
	log.Info("resolve run finished",
		"loaded", stats.Loaded,
		"skipped", stats.Skipped,
		"resolved", stats.Resolved,
		"clusters", stats.Clusters,
		"products_created", stats.ProductsCreated,
		"offers_inserted", stats.OffersInserted,
		"offers_updated", stats.OffersUpdated,
		"fuzzy_merged", stats.FuzzyMerged,
		"elapsed", elapsed.Round(time.Millisecond),
	)
	return stats, nil
}

// malformed 报告一条原始行是否缺少必要信息（价格/链接/店铺）。
// 这类行无法产生有意义的报价，直接标记 skipped，不进入聚类。
func malformed(l model.RawListing) bool {
	return !l.PricePounds.IsPositive() ||
		normalize.NormSpace(l.URL) == "" ||
		normalize.NormSpace(l.VendorName) == ""
}

// resolveCluster 把一个簇落库：确定标准商品、合并报价、翻转行状态。
func (r *Resolver) resolveCluster(tx *gorm.DB, items []rawItem, members []int, stats *RunStats) error {
	rep := items[members[0]] // 最小原始行 ID 的成员作为代表

	clusterKeys := make([]Key, 0, len(members)*2)
	for _, i := range members {
		clusterKeys = append(clusterKeys, items[i].keys...)
	}
	fingerprint, strategy := clusterFingerprint(clusterKeys)

	var (
		product *model.Product
		created bool
		err     error
	)

	// 没有任何标识符证据的簇先尝试模糊并入既有商品
	if !hasIdentifierKey(clusterKeys) {
		fm := &fuzzyMatcher{db: tx, threshold: r.cfg.FuzzyThreshold, priceRatioMin: r.cfg.PriceRatioMin}
		match, ferr := fm.match(rep.attrs, rep.listing.PricePounds)
		if ferr != nil {
			return ferr
		}
		if match != nil {
			metrics.FuzzyMatchAttemptsTotal.WithLabelValues("merged").Inc()
			stats.FuzzyMerged++
			strategy = "fuzzy"
			seed := buildSeed(items, members)
			if err := enrichProduct(tx, match, seed); err != nil {
				return err
			}
			product = match
		} else {
			metrics.FuzzyMatchAttemptsTotal.WithLabelValues("rejected").Inc()
		}
	}

	if product == nil {
		seed := buildSeed(items, members)
		product, created, err = upsertProduct(tx, fingerprint, seed)
		if err != nil {
			return fmt.Errorf("upsert product for raw %d: %w", rep.listing.ID, err)
		}
		if created {
			metrics.ProductsCreatedTotal.Inc()
			stats.ProductsCreated++
		}
	}
	metrics.ClustersResolvedTotal.WithLabelValues(strategy).Inc()

	for _, i := range members {
		l := items[i].listing
		vendor, err := ensureVendor(tx, l.VendorName, l.URL)
		if err != nil {
			return fmt.Errorf("ensure vendor for raw %d: %w", l.ID, err)
		}
		action, err := upsertOffer(tx, product.ID, vendor.ID, l)
		if err != nil {
			return fmt.Errorf("upsert offer for raw %d: %w", l.ID, err)
		}
		metrics.OffersUpsertedTotal.WithLabelValues(action).Inc()
		if action == "insert" {
			stats.OffersInserted++
		} else {
			stats.OffersUpdated++
		}

		if err := tx.Model(&model.RawListing{}).
			Where("id = ?", l.ID).
			Update("status", model.StatusResolved).Error; err != nil {
			return fmt.Errorf("mark row %d resolved: %w", l.ID, err)
		}
		metrics.RawRowsProcessedTotal.WithLabelValues(model.StatusResolved).Inc()
		stats.Resolved++
	}
	return nil
}

// hasIdentifierKey 报告簇内是否存在任一标识符类键。
func hasIdentifierKey(keys []Key) bool {
	for _, k := range keys {
		if k.Identifier() {
			return true
		}
	}
	return false
}

// buildSeed 从簇成员构造商品种子。
//
// 名称与分类取自代表成员（最小原始行 ID）；品牌/型号/电压/套装
// 在代表成员缺失时从后续成员补齐；EAN 取簇内第一个通过校验的条码。
func buildSeed(items []rawItem, members []int) *model.Product {
	rep := items[members[0]]
	seed := &model.Product{
		Name:     normalize.NormSpace(rep.listing.Title),
		Category: rep.attrs.CategoryBase,
		Kit:      rep.attrs.Kit,
	}
	for _, i := range members {
		attrs := items[i].attrs
		if seed.Brand == "" {
			seed.Brand = attrs.Brand
		}
		if seed.Model == "" {
			seed.Model = attrs.Model
		}
		if seed.Voltage == nil && attrs.Voltage > 0 {
			v := attrs.Voltage
			seed.Voltage = &v
		}
		if seed.Kit == "unknown" && attrs.Kit != "" && attrs.Kit != "unknown" {
			seed.Kit = attrs.Kit
		}
		if seed.EAN == "" {
			seed.EAN = NormalizeEAN(items[i].listing.EAN)
		}
	}
	return seed
}
