// Package normalize 将原始商品标题/分类文本解析为结构化属性。
//
// 所有提取函数都是纯函数：相同输入永远产生相同输出，
// 无法匹配时返回零值，绝不返回错误。
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Attributes 是从一条原始标题/分类中提取出的结构化属性集合。
type Attributes struct {
	Brand        string   // 品牌（小写规范名），未识别为空
	Model        string   // 型号代码（大写规范形式），未识别为空
	Voltage      int      // 电压等级（伏特），未识别为 0
	Kit          string   // 套装签名: bare / Nx{cap}Ah / kit / case-only / unknown
	SizeTokens   []string // 归一化尺寸标记（如 "300mm" "16oz"），用于手动工具匹配
	CategoryBase string   // 归一化分类族
}

// brandEntry 品牌表条目：规范名 + 别名匹配正则。
type brandEntry struct {
	name string
	re   *regexp.Regexp
}

// 品牌表。顺序即匹配优先级，先命中者胜。
// 来源：主流 UK 市场电动/手动工具品牌。
var brandTable = []brandEntry{
	{"makita", regexp.MustCompile(`(?i)\bmakita\b`)},
	{"dewalt", regexp.MustCompile(`(?i)\bde\s?walt\b`)},
	{"bosch", regexp.MustCompile(`(?i)\bbosch\b`)},
	{"milwaukee", regexp.MustCompile(`(?i)\bmilwaukee\b`)},
	{"einhell", regexp.MustCompile(`(?i)\beinhell\b`)},
	{"ryobi", regexp.MustCompile(`(?i)\bryobi\b`)},
	{"black+decker", regexp.MustCompile(`(?i)\bblack\s*(?:\+|&|and)\s*decker\b`)},
	{"hikoki", regexp.MustCompile(`(?i)\b(?:hikoki|hitachi)\b`)},
	{"metabo", regexp.MustCompile(`(?i)\bmetabo\b`)},
	{"erbauer", regexp.MustCompile(`(?i)\berbauer\b`)},
	{"festool", regexp.MustCompile(`(?i)\bfestool\b`)},
	{"stanley", regexp.MustCompile(`(?i)\bstanley\b`)},
	{"titan", regexp.MustCompile(`(?i)\btitan\b`)},
	{"parkside", regexp.MustCompile(`(?i)\bparkside\b`)},
	{"trend", regexp.MustCompile(`(?i)\btrend\b`)},
}

// 品牌专属型号正则族。命中多个时取最长者。
var brandModelPatterns = map[string][]*regexp.Regexp{
	"makita": {
		// DHP484Z, DTD173Z, DTW1002Z, DHR202Z, DCS565N ...
		regexp.MustCompile(`(?i)\bD[THSCFWRLM][A-Z]{1,3}\d{2,4}[A-Z]{0,3}\b`),
		// GA9020, BO5041 等非 D 开头系列
		regexp.MustCompile(`(?i)\b(?:GA|BO|HR|HP|TW)\d{3,4}[A-Z]{0,2}\b`),
	},
	"dewalt": {
		// DCD996, DCF887N, DCH253, DCG405N ...
		regexp.MustCompile(`(?i)\bDC[DFGHLMWS]\d{3,4}[A-Z]{0,3}\b`),
		regexp.MustCompile(`(?i)\bDWE\d{3}[A-Z]{0,2}\b`),
	},
	"bosch": {
		// GSB18V-55, GSR18V-60, GDX18V-200 ...
		regexp.MustCompile(`(?i)\bG[SZ][BR]\d{2}V-\d{2,3}\b`),
		regexp.MustCompile(`(?i)\bGDX\d{2}V-\d{2,3}\b`),
		regexp.MustCompile(`(?i)\bG[WK]S\d{2}-\d{2,3}\b`),
	},
	"milwaukee": {
		// M18 FPD2, M12 FID2, M18 CCS66 ...
		regexp.MustCompile(`(?i)\bM1[28][ -]?[A-Z]{2,6}\d{0,3}(?:-\d{1,3})?\b`),
	},
	"ryobi": {
		// R18PD7, R18IDBL ...
		regexp.MustCompile(`(?i)\bR18[A-Z]{2,4}\d*\b`),
	},
	"einhell": {
		// TE-CD-18-60, TE-CI-18-220 ...
		regexp.MustCompile(`(?i)\bTE-[A-Z]{1,3}-\d{1,3}(?:-\d{1,3})?(?:-[A-Z0-9]{1,6})?\b`),
	},
	"metabo": {
		// SSW 18 LTX 400 BL（规范化后压缩空格）
		regexp.MustCompile(`(?i)\bSS[WD]\s*18\s*LTX\s*\d{2,4}\s*BL\b`),
	},
	"hikoki": {
		// DV18DE, WH18DBDL2, WR18DBDL2 ...
		regexp.MustCompile(`(?i)\b[WDGC][HVR]?\d{2}[A-Z]{2,5}\d*\b`),
	},
	"festool": {
		// TPC 18/4, TID 18/4（规范化为 TPC18-4）
		regexp.MustCompile(`(?i)\bT[IP][CD]\s*18\s*/\s*\d\b`),
	},
}

// 通用型号兜底正则：ABC123、ABC123Z、GSB18V-55 之类的代码状 token。
var genericModelRe = regexp.MustCompile(`(?i)\b[A-Z]{2,5}\d{2,4}[A-Z]{0,3}(?:-\d{1,3})?\b`)

var (
	voltageRe = regexp.MustCompile(`(?i)\b(10\.8|12|14\.4|18|20|36|40|54|110|115|230|240)\s*v(?:olts?)?\b`)
	maxAfterRe = regexp.MustCompile(`(?i)\b20\s*v(?:olts?)?\s*max\b`)

	bareRe     = regexp.MustCompile(`(?i)\b(?:bare(?:\s+(?:unit|tool))?|body\s+only|tool\s+only)\b`)
	batteryRe  = regexp.MustCompile(`(?i)\b(\d)\s*x\s*(\d(?:\.\d)?)\s*ah\b`)
	caseOnlyRe = regexp.MustCompile(`(?i)\b(?:case|makpac|t-?stak|packout)\s+only\b`)
	kitRe      = regexp.MustCompile(`(?i)\bkit\b|\bcharger\b|\bbatter(?:y|ies)\b`)

	sizeRe       = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(mm|cm|in(?:ch)?|oz|kg|lb|g)\b`)
	spaceRunRe   = regexp.MustCompile(`[\s/_-]+`)
	modelCleanRe = regexp.MustCompile(`[^A-Za-z0-9\-/]`)
	dashRunRe    = regexp.MustCompile(`-{2,}`)
	slashRe      = regexp.MustCompile(`\s*/\s*`)
)

// Normalize 从标题与分类文本提取完整属性集合。
func Normalize(title, category string) Attributes {
	brand := ExtractBrand(title)
	return Attributes{
		Brand:        brand,
		Model:        ExtractModel(title, brand),
		Voltage:      ExtractVoltage(title),
		Kit:          ExtractKit(title),
		SizeTokens:   ExtractSizeTokens(title),
		CategoryBase: NormalizeCategory(category, title),
	}
}

// ExtractBrand 在标题中查找品牌，返回小写规范名；未命中返回空串。
func ExtractBrand(title string) string {
	if title == "" {
		return ""
	}
	for _, entry := range brandTable {
		if entry.re.MatchString(title) {
			return entry.name
		}
	}
	return ""
}

// ExtractModel 提取型号代码。
//
// 优先使用品牌专属正则族并取最长命中，其次退回通用代码正则。
// 返回大写规范形式（去空格、斜杠折叠为连字符）。
func ExtractModel(title, brand string) string {
	if title == "" {
		return ""
	}
	best := ""
	if pats, ok := brandModelPatterns[brand]; ok {
		for _, pat := range pats {
			for _, m := range pat.FindAllString(title, -1) {
				if tok := NormalizeModelToken(m); len(tok) > len(best) {
					best = tok
				}
			}
		}
	}
	if best != "" {
		return stripPackagingSuffix(best)
	}
	if m := genericModelRe.FindString(title); m != "" {
		tok := NormalizeModelToken(m)
		// 纯电压样式 token（"18V"）不是型号
		if !isVoltageToken(tok) {
			return stripPackagingSuffix(tok)
		}
	}
	return ""
}

// stripPackagingSuffix 去掉型号尾部的裸机包装后缀。
//
// Makita 用尾缀 Z、DeWalt/Hikoki 用尾缀 N 标记"不含电池"版本，
// 同一型号在不同店铺会以 DHP484 / DHP484Z 两种写法出现。
// 包装信息已由套装签名单独承载，型号身份中不保留。
func stripPackagingSuffix(tok string) string {
	if len(tok) < 5 {
		return tok
	}
	last := tok[len(tok)-1]
	prev := tok[len(tok)-2]
	if (last == 'Z' || last == 'N') && prev >= '0' && prev <= '9' {
		return tok[:len(tok)-1]
	}
	return tok
}

// ModelCandidates 返回文本中的全部型号候选（已规范化、去重）。
//
// 标识符回填任务会对标题和 URL slug 同时调用本函数。
func ModelCandidates(text string) []string {
	if text == "" {
		return nil
	}
	seen := map[string]struct{}{}
	var out []string
	add := func(raw string) {
		tok := NormalizeModelToken(raw)
		if len(tok) < 3 || len(tok) > 32 || isVoltageToken(tok) {
			return
		}
		if _, ok := seen[tok]; ok {
			return
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	for _, pats := range brandModelPatterns {
		for _, pat := range pats {
			for _, m := range pat.FindAllString(text, -1) {
				add(m)
			}
		}
	}
	for _, m := range genericModelRe.FindAllString(text, -1) {
		add(m)
	}
	return out
}

// NormalizeModelToken 将型号 token 规范化：去除杂字符、折叠连字符、统一大写。
func NormalizeModelToken(tok string) string {
	t := slashRe.ReplaceAllString(tok, "-")
	t = modelCleanRe.ReplaceAllString(t, "")
	t = dashRunRe.ReplaceAllString(t, "-")
	return strings.ToUpper(strings.Trim(t, "-"))
}

func isVoltageToken(tok string) bool {
	return voltageRe.MatchString(tok)
}

// ExtractVoltage 提取电压等级（伏特）。
//
// UK 市场别名折叠："20V Max" 是 18V 平台的营销叫法，归为 18；
// "10.8V" 一律归为 12V 等级；"14.4V" 归为 14。未命中返回 0。
func ExtractVoltage(title string) int {
	if title == "" {
		return 0
	}
	if maxAfterRe.MatchString(title) {
		return 18
	}
	m := voltageRe.FindStringSubmatch(title)
	if m == nil {
		return 0
	}
	switch m[1] {
	case "10.8":
		return 12
	case "14.4":
		return 14
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return v
}

// ExtractKit 提取套装签名。
//
// 判定顺序：裸机表述 > 电池数量/容量 > 仅箱子 > 套装词 > unknown。
// 顺序不可调换：标题 "DHP484Z Body Only + Makpac Case" 应判为 bare。
func ExtractKit(title string) string {
	if title == "" {
		return "unknown"
	}
	if bareRe.MatchString(title) {
		return "bare"
	}
	if m := batteryRe.FindStringSubmatch(title); m != nil {
		capacity := strings.TrimSuffix(m[2], ".0")
		return fmt.Sprintf("%sx%sAh", m[1], capacity)
	}
	if caseOnlyRe.MatchString(title) {
		return "case-only"
	}
	if kitRe.MatchString(title) {
		return "kit"
	}
	return "unknown"
}

// ExtractSizeTokens 提取归一化尺寸标记（数字+单位），保序去重。
// 主要用于没有型号代码的手动工具（锤子、卷尺等）。
func ExtractSizeTokens(title string) []string {
	if title == "" {
		return nil
	}
	matches := sizeRe.FindAllStringSubmatch(title, -1)
	if matches == nil {
		return nil
	}
	seen := map[string]struct{}{}
	var out []string
	for _, m := range matches {
		unit := strings.ToLower(m[2])
		if unit == "inch" {
			unit = "in"
		}
		tok := m[1] + unit
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// Signature 返回用于模糊匹配的归一化签名：
// brand + model + voltage + categoryBase，空格连接、小写。
func (a Attributes) Signature() string {
	parts := make([]string, 0, 4)
	if a.Brand != "" {
		parts = append(parts, a.Brand)
	}
	if a.Model != "" {
		parts = append(parts, a.Model)
	}
	if a.Voltage > 0 {
		parts = append(parts, strconv.Itoa(a.Voltage))
	}
	if a.CategoryBase != "" {
		parts = append(parts, a.CategoryBase)
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// NormSpace 折叠空白/分隔符并修剪两端。
func NormSpace(s string) string {
	return strings.TrimSpace(spaceRunRe.ReplaceAllString(s, " "))
}
