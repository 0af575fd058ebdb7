package resolver

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"tooltally/internal/model"
	"tooltally/internal/normalize"

	"gorm.io/gorm"
)

// ensureVendor 按名称查找店铺，不存在则惰性创建。
// 名称比较不区分大小写，首次创建时从报价链接解析域名。
func ensureVendor(tx *gorm.DB, name, offerURL string) (*model.Vendor, error) {
	clean := normalize.NormSpace(name)
	if clean == "" {
		return nil, fmt.Errorf("empty vendor name")
	}

	var v model.Vendor
	err := tx.Where("LOWER(name) = ?", strings.ToLower(clean)).First(&v).Error
	if err == nil {
		return &v, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("select vendor: %w", err)
	}

	v = model.Vendor{Name: clean, Domain: domainOf(offerURL)}
	if cerr := tx.Create(&v).Error; cerr != nil {
		if !isDuplicateErr(cerr) {
			return nil, fmt.Errorf("insert vendor: %w", cerr)
		}
		// 并发创建竞争：改为读取既有行
		if rerr := tx.Where("LOWER(name) = ?", strings.ToLower(clean)).First(&v).Error; rerr != nil {
			return nil, fmt.Errorf("reselect vendor: %w", rerr)
		}
	}
	return &v, nil
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}

// upsertOffer 把一条原始行合并为商品报价，返回动作 insert / update。
//
// 先按链接匹配：同一 URL 重新抓取只原地更新价格与归属（商品可能
// 因解析改进被重新归并）；链接没命中时，退而更新该商品在该店铺
// 的最新一条报价；两者都没有才插入新行。
func upsertOffer(tx *gorm.DB, productID, vendorID uint, l model.RawListing) (string, error) {
	var byURL model.Offer
	err := tx.Where("url = ?", l.URL).First(&byURL).Error
	if err == nil {
		updates := map[string]interface{}{
			"product_id":   productID,
			"vendor_id":    vendorID,
			"price_pounds": l.PricePounds,
			"scraped_at":   l.ScrapedAt,
		}
		if l.VendorSKU != "" {
			updates["vendor_sku"] = l.VendorSKU
		}
		if uerr := tx.Model(&byURL).Updates(updates).Error; uerr != nil {
			return "", fmt.Errorf("update offer by url: %w", uerr)
		}
		return "update", nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("select offer by url: %w", err)
	}

	var latest model.Offer
	err = tx.Where("product_id = ? AND vendor_id = ?", productID, vendorID).
		Order("scraped_at DESC, id DESC").
		First(&latest).Error
	if err == nil {
		updates := map[string]interface{}{
			"price_pounds": l.PricePounds,
			"url":          l.URL,
			"scraped_at":   l.ScrapedAt,
		}
		if l.VendorSKU != "" {
			updates["vendor_sku"] = l.VendorSKU
		}
		if uerr := tx.Model(&latest).Updates(updates).Error; uerr != nil {
			return "", fmt.Errorf("update offer by product/vendor: %w", uerr)
		}
		return "update", nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("select offer by product/vendor: %w", err)
	}

	offer := model.Offer{
		ProductID:   productID,
		VendorID:    vendorID,
		PricePounds: l.PricePounds,
		URL:         l.URL,
		VendorSKU:   l.VendorSKU,
		ScrapedAt:   l.ScrapedAt,
	}
	if cerr := tx.Create(&offer).Error; cerr != nil {
		return "", fmt.Errorf("insert offer: %w", cerr)
	}
	return "insert", nil
}

// PruneOffers 清理历史遗留的同商品同店铺多条报价。
//
// 每个 (product_id, vendor_id) 组合只保留一条：价格最低者优先，
// 价格相同取抓取时间最新，再相同取 ID 最大。返回删除的行数。
func PruneOffers(db *gorm.DB) (int64, error) {
	var offers []model.Offer
	if err := db.Order("product_id ASC, vendor_id ASC, price_pounds ASC, scraped_at DESC, id DESC").
		Find(&offers).Error; err != nil {
		return 0, fmt.Errorf("load offers: %w", err)
	}

	seen := make(map[[2]uint]struct{})
	var doomed []uint
	for _, o := range offers {
		key := [2]uint{o.ProductID, o.VendorID}
		if _, ok := seen[key]; ok {
			doomed = append(doomed, o.ID)
			continue
		}
		seen[key] = struct{}{}
	}
	if len(doomed) == 0 {
		return 0, nil
	}

	res := db.Delete(&model.Offer{}, doomed)
	if res.Error != nil {
		return 0, fmt.Errorf("delete duplicate offers: %w", res.Error)
	}
	return res.RowsAffected, nil
}
