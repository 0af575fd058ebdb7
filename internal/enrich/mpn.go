// Package enrich 提供对 staging 数据的离线补全任务。
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"tooltally/internal/model"
	"tooltally/internal/normalize"

	"gorm.io/gorm"
)

// BackfillMPN 为缺少制造商零件号的原始行回填 MPN。
//
// 候选来自两处：商品标题、详情页 URL 的 slug（店铺通常把型号
// 编进链接里）。取最像零件号的候选：必须含数字且长度 >= 4，
// 多个时取最长者。回填只补空，从不覆盖爬虫给出的值。
// 返回回填的行数。
func BackfillMPN(ctx context.Context, db *gorm.DB, logger *slog.Logger) (int64, error) {
	var updated int64
	var rows []model.RawListing
	err := db.WithContext(ctx).
		Where("mpn = '' OR mpn IS NULL").
		FindInBatches(&rows, 500, func(tx *gorm.DB, _ int) error {
			for _, l := range rows {
				mpn := bestCandidate(l.Title, l.URL)
				if mpn == "" {
					continue
				}
				if err := tx.Model(&model.RawListing{}).
					Where("id = ?", l.ID).
					Update("mpn", mpn).Error; err != nil {
					return fmt.Errorf("backfill mpn for raw %d: %w", l.ID, err)
				}
				updated++
			}
			return nil
		}).Error
	if err != nil {
		return updated, err
	}

	logger.Info("mpn backfill finished", "updated", updated)
	return updated, nil
}

// bestCandidate 从标题与 URL slug 中选出最像零件号的型号候选。
func bestCandidate(title, rawURL string) string {
	candidates := normalize.ModelCandidates(title)
	candidates = append(candidates, normalize.ModelCandidates(slugOf(rawURL))...)

	best := ""
	for _, c := range candidates {
		if len(c) < 4 || !hasDigit(c) {
			continue
		}
		if len(c) > len(best) {
			best = c
		}
	}
	return best
}

// slugOf 取 URL 路径最后一段，分隔符还原为空格供型号正则匹配。
func slugOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return ""
	}
	path := strings.Trim(u.Path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	return strings.NewReplacer("-", " ", "_", " ", ".", " ").Replace(path)
}

func hasDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
