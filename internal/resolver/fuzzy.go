package resolver

import (
	"fmt"
	"strconv"
	"strings"

	"tooltally/internal/model"
	"tooltally/internal/normalize"

	"github.com/adrg/strutil"
	strmetrics "github.com/adrg/strutil/metrics"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// fuzzyMatcher 在没有任何标识符键时，把候选行与既有商品目录做
// 签名相似度比对。宁可漏并（保持独立商品）也不可错并。
type fuzzyMatcher struct {
	db            *gorm.DB
	threshold     float64 // 相似度下限（0-1）
	priceRatioMin float64 // 价格合理性下限：低价/高价
}

// match 在既有商品中寻找签名足够相似且价格量级相符的归并目标。
//
// 候选集限定为与输入共享品牌/型号/分类之一的商品。多个候选超过
// 阈值时取相似度最高者，再并列则取商品 ID 最小者。无可接受的
// 匹配返回 nil（调用方会保持该簇独立，而不是强行归并）。
func (m *fuzzyMatcher) match(attrs normalize.Attributes, price decimal.Decimal) (*model.Product, error) {
	sig := attrs.Signature()
	if sig == "" {
		return nil, nil
	}

	var conds []string
	var args []interface{}
	if attrs.Brand != "" {
		conds = append(conds, "brand = ?")
		args = append(args, attrs.Brand)
	}
	if attrs.Model != "" {
		conds = append(conds, "model = ?")
		args = append(args, attrs.Model)
	}
	if attrs.CategoryBase != "" {
		conds = append(conds, "category = ?")
		args = append(args, attrs.CategoryBase)
	}
	if len(conds) == 0 {
		return nil, nil
	}

	var candidates []model.Product
	if err := m.db.
		Where(strings.Join(conds, " OR "), args...).
		Order("id ASC").
		Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("load fuzzy candidates: %w", err)
	}

	lev := strmetrics.NewLevenshtein()
	var best *model.Product
	bestSim := 0.0
	for i := range candidates {
		p := &candidates[i]
		sim := strutil.Similarity(sig, productSignature(p), lev)
		if sim < m.threshold || sim <= bestSim {
			continue
		}
		ok, err := m.pricePlausible(p.ID, price)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		best = p
		bestSim = sim
	}
	return best, nil
}

// pricePlausible 价格合理性闸门：候选价与商品已知最低报价之比
// （低/高）必须不小于 priceRatioMin，防止裸机与整套电池套装
// 因名称相近被归并到一起。商品还没有任何报价时不设限。
func (m *fuzzyMatcher) pricePlausible(productID uint, price decimal.Decimal) (bool, error) {
	var minPrice decimal.NullDecimal
	if err := m.db.Model(&model.Offer{}).
		Select("MIN(price_pounds)").
		Where("product_id = ?", productID).
		Scan(&minPrice).Error; err != nil {
		return false, fmt.Errorf("load min offer price: %w", err)
	}
	if !minPrice.Valid || !minPrice.Decimal.IsPositive() || !price.IsPositive() {
		return true, nil
	}

	low, high := price, minPrice.Decimal
	if low.GreaterThan(high) {
		low, high = high, low
	}
	ratio, _ := low.Div(high).Float64()
	return ratio >= m.priceRatioMin, nil
}

// productSignature 生成既有商品的比对签名，与 Attributes.Signature 同构。
func productSignature(p *model.Product) string {
	parts := make([]string, 0, 4)
	if p.Brand != "" {
		parts = append(parts, p.Brand)
	}
	if p.Model != "" {
		parts = append(parts, p.Model)
	}
	if p.Voltage != nil && *p.Voltage > 0 {
		parts = append(parts, strconv.Itoa(*p.Voltage))
	}
	if p.Category != "" {
		parts = append(parts, p.Category)
	}
	return strings.ToLower(strings.Join(parts, " "))
}
