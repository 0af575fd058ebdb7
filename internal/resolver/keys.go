package resolver

import (
	"regexp"
	"strconv"
	"strings"

	"tooltally/internal/model"
	"tooltally/internal/normalize"
)

// KeyType 候选身份键的类型，决定键的可信强度。
type KeyType string

// 候选键类型，按可信度从高到低排列。
const (
	KeyEAN          KeyType = "ean"           // 商品条码，最强证据
	KeyMPN          KeyType = "mpn"           // 品牌 + 制造商零件号
	KeyModel        KeyType = "model"         // 品牌 + 型号 + 电压 + 套装（严格键）
	KeyModelRelaxed KeyType = "model-relaxed" // 品牌 + 型号（仅用于桥接簇）
	KeyVendorSKU    KeyType = "vendor-sku"    // 店铺 SKU，最后手段
	KeyTitleTokens  KeyType = "title-tokens"  // 标题 token 摘要，非标识符键
)

// Key 是一条原始行派生出的候选身份键。
type Key struct {
	Type  KeyType
	Value string
}

// String 返回 "type:value" 形式的完整键。
func (k Key) String() string {
	return string(k.Type) + ":" + k.Value
}

// Identifier 报告该键是否属于标识符类证据。
// 仅由 title-tokens 连接的簇需要走模糊回退匹配。
func (k Key) Identifier() bool {
	return k.Type != KeyTitleTokens
}

var (
	nonDigitRe   = regexp.MustCompile(`\D`)
	mpnCleanRe   = regexp.MustCompile(`[\s\-]+`)
	tokenSplitRe = regexp.MustCompile(`[^a-z0-9]+`)
)

// 标题摘要里无区分度的常见词。
var stopTokens = map[string]struct{}{
	"the": {}, "and": {}, "with": {}, "for": {}, "of": {}, "in": {}, "new": {},
}

// CandidateKeys 为一条原始行派生有序候选键列表。
//
// 一条行可能产生零个、一个或多个键；输入为空时对应键不产生，
// 空字符串永远不会作为键值出现。relaxed 型号键只随严格型号键
// 一起产生，保证它只用于桥接、从不单独支撑归并。
func CandidateKeys(l model.RawListing, attrs normalize.Attributes) []Key {
	keys := make([]Key, 0, 4)

	if ean := NormalizeEAN(l.EAN); ean != "" {
		keys = append(keys, Key{Type: KeyEAN, Value: ean})
	}

	if attrs.Brand != "" {
		if mpn := NormalizeMPN(l.MPN); mpn != "" {
			keys = append(keys, Key{Type: KeyMPN, Value: attrs.Brand + "|" + mpn})
		}
	}

	if attrs.Brand != "" && attrs.Model != "" {
		strict := attrs.Brand + "|" + attrs.Model + "|" + strconv.Itoa(attrs.Voltage) + "|" + attrs.Kit
		keys = append(keys,
			Key{Type: KeyModel, Value: strict},
			Key{Type: KeyModelRelaxed, Value: attrs.Brand + "|" + attrs.Model},
		)
	}

	// 品牌与型号都无法识别时，店铺 SKU 是最后的标识符。
	// SKU 只在店铺内有意义，键值带上店铺名避免跨店误并。
	if attrs.Brand == "" && attrs.Model == "" {
		if sku := NormalizeMPN(l.VendorSKU); sku != "" {
			keys = append(keys, Key{Type: KeyVendorSKU, Value: strings.ToLower(normalize.NormSpace(l.VendorName)) + "|" + sku})
		}
	}

	if len(keys) == 0 {
		if digest := TitleTokenDigest(l.Title); digest != "" {
			keys = append(keys, Key{Type: KeyTitleTokens, Value: digest})
		}
	}

	return keys
}

// NormalizeEAN 清洗并校验 EAN/GTIN。
//
// 接受 8/12/13/14 位数字并验证 GTIN 校验位；无效输入返回空串。
func NormalizeEAN(raw string) string {
	digits := nonDigitRe.ReplaceAllString(raw, "")
	switch len(digits) {
	case 8, 12, 13, 14:
	default:
		return ""
	}
	if !validGTINCheckDigit(digits) {
		return ""
	}
	return digits
}

// validGTINCheckDigit 校验 GTIN 的 mod-10 校验位。
// 从右往左（不含校验位）按 3,1,3,1... 加权求和。
func validGTINCheckDigit(digits string) bool {
	sum := 0
	weight := 3
	for i := len(digits) - 2; i >= 0; i-- {
		sum += int(digits[i]-'0') * weight
		if weight == 3 {
			weight = 1
		} else {
			weight = 3
		}
	}
	check := (10 - sum%10) % 10
	return check == int(digits[len(digits)-1]-'0')
}

// NormalizeMPN 规范化制造商零件号：去空白与连字符、统一大写。
func NormalizeMPN(raw string) string {
	return strings.ToUpper(mpnCleanRe.ReplaceAllString(strings.TrimSpace(raw), ""))
}

// TitleTokenDigest 生成有界的标题 token 摘要，作为无任何标识符时的
// 聚类键与指纹兜底。
func TitleTokenDigest(title string) string {
	tokens := tokenSplitRe.Split(strings.ToLower(title), -1)
	out := make([]string, 0, 6)
	for _, tok := range tokens {
		if len(tok) < 2 {
			continue
		}
		if _, ok := stopTokens[tok]; ok {
			continue
		}
		out = append(out, tok)
		if len(out) == 6 {
			break
		}
	}
	return strings.Join(out, "-")
}
