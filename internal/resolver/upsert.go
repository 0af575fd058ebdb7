package resolver

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"tooltally/internal/model"
	"tooltally/internal/pkg/metrics"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// clusterFingerprint 按证据优先级为一个簇推导唯一指纹。
//
// 优先级：ean > mpn > model > modelb(宽松型号) > sku > title。
// keys 按簇内成员（原始行 ID 升序）逐个展开，保证确定性。
func clusterFingerprint(keys []Key) (fingerprint, strategy string) {
	pick := func(t KeyType) string {
		for _, k := range keys {
			if k.Type == t {
				return k.Value
			}
		}
		return ""
	}

	if v := pick(KeyEAN); v != "" {
		return "ean:" + v, "ean"
	}
	if v := pick(KeyMPN); v != "" {
		return "mpn:" + v, "mpn"
	}
	if v := pick(KeyModel); v != "" {
		return "model:" + v, "model"
	}
	if v := pick(KeyModelRelaxed); v != "" {
		return "modelb:" + v, "model-relaxed"
	}
	if v := pick(KeyVendorSKU); v != "" {
		return "sku:" + v, "vendor-sku"
	}
	if v := pick(KeyTitleTokens); v != "" {
		return "title:" + v, "title-tokens"
	}
	return "", "none"
}

// upsertProduct 为一个簇确定唯一的标准商品行。
//
// 查找/创建阶梯（每一步都有确定结果，不依赖异常控制流）：
//  1. 按指纹查找既有商品，命中则只补全空字段后返回；
//  2. 按 (规范名, 分类) 查找，命中则尝试回填指纹（指纹冲突时
//     容忍并继续）、补全字段后返回；
//  3. 插入带指纹的新行；
//  4. 插入因唯一约束被拒时（两个簇独立算出了相同键，或历史数据
//     与后加的唯一索引冲突），重查指纹、重查 (名, 分类)，仍未命中
//     则以指纹哈希后缀消歧重插——该路径必定成功，批次绝不因
//     命名冲突中止。
func upsertProduct(tx *gorm.DB, fingerprint string, seed *model.Product) (*model.Product, bool, error) {
	// 1. 指纹直查
	if fingerprint != "" {
		var existing model.Product
		err := tx.Where("fingerprint = ?", fingerprint).First(&existing).Error
		if err == nil {
			if err := enrichProduct(tx, &existing, seed); err != nil {
				return nil, false, err
			}
			return &existing, false, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, fmt.Errorf("select product by fingerprint: %w", err)
		}
	}

	// 2. (名, 分类) 查找，回填指纹
	var byName model.Product
	err := tx.Where("name = ? AND category = ?", seed.Name, seed.Category).First(&byName).Error
	if err == nil {
		if fingerprint != "" && byName.Fingerprint == nil {
			if uerr := tx.Model(&byName).Update("fingerprint", fingerprint).Error; uerr != nil {
				if !isDuplicateErr(uerr) {
					return nil, false, fmt.Errorf("attach fingerprint: %w", uerr)
				}
				// 指纹已被别的商品占用：降级走第 4 步
				metrics.FingerprintConflictsTotal.Inc()
				return recoverConflict(tx, fingerprint, seed)
			}
			fp := fingerprint
			byName.Fingerprint = &fp
		}
		if err := enrichProduct(tx, &byName, seed); err != nil {
			return nil, false, err
		}
		return &byName, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("select product by name: %w", err)
	}

	// 3. 插入新行
	fresh := *seed
	if fingerprint != "" {
		fp := fingerprint
		fresh.Fingerprint = &fp
	}
	if err := tx.Create(&fresh).Error; err == nil {
		return &fresh, true, nil
	} else if !isDuplicateErr(err) {
		return nil, false, fmt.Errorf("insert product: %w", err)
	}

	// 4. 唯一约束冲突恢复
	metrics.FingerprintConflictsTotal.Inc()
	return recoverConflict(tx, fingerprint, seed)
}

// recoverConflict 唯一约束冲突后的恢复路径（阶梯第 4 步）。
func recoverConflict(tx *gorm.DB, fingerprint string, seed *model.Product) (*model.Product, bool, error) {
	if fingerprint != "" {
		var existing model.Product
		err := tx.Where("fingerprint = ?", fingerprint).First(&existing).Error
		if err == nil {
			if err := enrichProduct(tx, &existing, seed); err != nil {
				return nil, false, err
			}
			return &existing, false, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, fmt.Errorf("reselect product by fingerprint: %w", err)
		}
	}

	var byName model.Product
	err := tx.Where("name = ? AND category = ?", seed.Name, seed.Category).First(&byName).Error
	if err == nil {
		if err := enrichProduct(tx, &byName, seed); err != nil {
			return nil, false, err
		}
		return &byName, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("reselect product by name: %w", err)
	}

	// 名称加指纹哈希后缀消歧重插。行不带指纹（空指纹是唯一性
	// 兜底中允许共存的最后手段），名称本身无唯一约束，必定成功。
	fresh := *seed
	fresh.Name = seed.Name + " (" + shortHash(fingerprint+"|"+seed.Name) + ")"
	fresh.Fingerprint = nil
	if err := tx.Create(&fresh).Error; err != nil {
		return nil, false, fmt.Errorf("insert disambiguated product: %w", err)
	}
	return &fresh, true, nil
}

// enrichProduct 只补全空字段，绝不用空值覆盖已有值。
func enrichProduct(tx *gorm.DB, p *model.Product, seed *model.Product) error {
	updates := map[string]interface{}{}
	if p.Category == "" && seed.Category != "" {
		updates["category"] = seed.Category
		p.Category = seed.Category
	}
	if p.Brand == "" && seed.Brand != "" {
		updates["brand"] = seed.Brand
		p.Brand = seed.Brand
	}
	if p.Model == "" && seed.Model != "" {
		updates["model"] = seed.Model
		p.Model = seed.Model
	}
	if p.Voltage == nil && seed.Voltage != nil {
		updates["voltage"] = *seed.Voltage
		p.Voltage = seed.Voltage
	}
	if p.Kit == "" && seed.Kit != "" {
		updates["kit"] = seed.Kit
		p.Kit = seed.Kit
	}
	if p.EAN == "" && seed.EAN != "" {
		updates["ean_gtin"] = seed.EAN
		p.EAN = seed.EAN
	}
	if len(updates) == 0 {
		return nil
	}
	if err := tx.Model(p).Updates(updates).Error; err != nil {
		return fmt.Errorf("enrich product %d: %w", p.ID, err)
	}
	return nil
}

// shortHash 返回输入 sha256 的前 8 个十六进制字符。
func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}

// isDuplicateErr 判断错误是否为唯一约束冲突（兼容 MySQL 与 SQLite）。
func isDuplicateErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry")
}
