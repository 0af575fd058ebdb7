package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawListing 表示爬虫抓取到的一条原始商品报价（staging 数据）。
//
// 该表由各站点爬虫写入，解析器只会修改 Status 字段，
// 其余字段在写入后视为不可变。(vendor_name, url) 上有唯一索引，
// 同一店铺的同一商品页面只会存在一行。
type RawListing struct {
	ID        uint      `gorm:"primaryKey"` // 原始行唯一标识
	CreatedAt time.Time // 首次入库时间
	UpdatedAt time.Time // 更新时间

	VendorName  string          `gorm:"type:varchar(191);not null;uniqueIndex:idx_raw_vendor_url"` // 店铺名称
	Title       string          `gorm:"type:varchar(500)"`                                         // 商品标题（自由文本）
	PricePounds decimal.Decimal `gorm:"type:decimal(10,2)"`                                        // 价格（英镑）
	URL         string          `gorm:"type:varchar(500);not null;uniqueIndex:idx_raw_vendor_url"` // 商品详情页链接
	VendorSKU   string          `gorm:"type:varchar(191)"`                                         // 店铺内部 SKU（可选）
	Category    string          `gorm:"type:varchar(191)"`                                         // 店铺原始分类文本（可选）
	EAN         string          `gorm:"column:ean_gtin;type:varchar(32)"`                          // EAN/GTIN 条码（可选）
	MPN         string          `gorm:"type:varchar(64)"`                                          // 制造商零件号（可选）
	ScrapedAt   time.Time       // 抓取时间

	Status string `gorm:"type:varchar(16);default:unresolved;index"` // 解析状态: unresolved / resolved / skipped
}

// RawListing 的解析状态枚举值。
const (
	StatusUnresolved = "unresolved" // 尚未进入解析流程
	StatusResolved   = "resolved"   // 已归并到某个标准商品
	StatusSkipped    = "skipped"    // 缺少价格/链接等必要信息，永久跳过
)

// Product 表示跨店铺去重后的标准商品。
//
// Fingerprint 记录产生该商品的匹配策略与键值（如 "ean:4002395..."），
// 非空时全表唯一；多个商品共享空指纹仅作为冲突消解的最后兜底。
// 字段只会被单调地补全（空 -> 有值），不会被覆盖为空。
type Product struct {
	ID        uint      `gorm:"primaryKey"` // 商品唯一标识
	CreatedAt time.Time // 创建时间
	UpdatedAt time.Time // 更新时间

	Name        string  `gorm:"type:varchar(500);not null"`       // 展示名称（取代表性原始标题）
	Category    string  `gorm:"type:varchar(191);index"`          // 归一化分类族
	Fingerprint *string `gorm:"type:varchar(191);uniqueIndex"`    // 匹配指纹（审计用，可空）
	Brand       string  `gorm:"type:varchar(64)"`                 // 品牌（可选）
	Model       string  `gorm:"type:varchar(64)"`                 // 型号代码（可选）
	Voltage     *int    // 电压等级（伏特，可选）
	Kit         string  `gorm:"type:varchar(32)"`                 // 套装签名: bare / 2x5Ah / kit / case-only（可选）
	EAN         string  `gorm:"column:ean_gtin;type:varchar(32)"` // EAN/GTIN（可选）

	Offers []Offer `gorm:"constraint:OnDelete:CASCADE"` // 各店铺报价
}

// Offer 表示某个标准商品在某家店铺的一条报价。
//
// (product_id, vendor_id, url) 上有唯一索引；重复抓取同一 URL
// 只会原地更新价格，不会产生重复行。
type Offer struct {
	ID        uint      `gorm:"primaryKey"` // 报价唯一标识
	CreatedAt time.Time // 创建时间
	UpdatedAt time.Time // 更新时间

	ProductID   uint            `gorm:"not null;index;uniqueIndex:idx_offer_product_vendor_url"`    // 所属商品
	VendorID    uint            `gorm:"not null;index;uniqueIndex:idx_offer_product_vendor_url"`    // 所属店铺
	PricePounds decimal.Decimal `gorm:"type:decimal(10,2)"`                                         // 价格（英镑）
	URL         string          `gorm:"type:varchar(500);uniqueIndex:idx_offer_product_vendor_url"` // 购买链接
	VendorSKU   string          `gorm:"type:varchar(191)"`                                          // 店铺 SKU（可选）
	ScrapedAt   time.Time       // 抓取时间
}

// Vendor 表示一家零售店铺，首次出现时惰性创建。
type Vendor struct {
	ID        uint      `gorm:"primaryKey"` // 店铺唯一标识
	CreatedAt time.Time // 创建时间

	Name   string `gorm:"type:varchar(191);uniqueIndex;not null"` // 店铺名称（唯一）
	Domain string `gorm:"type:varchar(191)"`                      // 店铺域名（可选）
}
