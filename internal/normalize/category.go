package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// familyRule 分类族规则：规范族名 + 关键词正则。
type familyRule struct {
	family string
	res    []*regexp.Regexp
}

func compileFamily(family string, pats ...string) familyRule {
	res := make([]*regexp.Regexp, 0, len(pats))
	for _, p := range pats {
		res = append(res, regexp.MustCompile(`(?i)`+p))
	}
	return familyRule{family: family, res: res}
}

// 分类族规则表。顺序即优先级：具体族在前，宽泛族在后。
// 目标是让 "drill" 一类的搜索能覆盖所有钻类商品。
var familyRules = []familyRule{
	compileFamily("Impact Wrenches", `impact\s+wrench`),
	compileFamily("Impact Drivers", `impact\s+driver`, `\btid\b`, `\bdtd\b`),
	compileFamily("Combi Drills", `combi\s+drill`, `hammer\s+drill`, `percussion\s+drill`, `\bdhp\b`, `\bdcd\b`, `\bgsb\b`),
	compileFamily("SDS Drills", `\bsds\b`, `rotary\s+hammer`, `\bdhr\b`, `\bdch\b`),
	compileFamily("Drills", `\bdrill\b`),
	compileFamily("Angle Grinders", `angle\s+grinder`, `\bgrinder\b`, `\bdga\b`, `\bgws\b`),
	compileFamily("Circular Saws", `circular\s+saw`, `\bdhs\b`, `\bdcs\b`),
	compileFamily("Jigsaws", `\bjig\s*saw\b`),
	compileFamily("Mitre Saws", `mitre\s+saw`, `miter\s+saw`),
	compileFamily("Recip Saws", `reciprocating\s+saw`, `\brecip\b`, `sabre\s+saw`, `\bdjr\b`),
	compileFamily("Multi Tools", `multi[-\s]?tool`),
	compileFamily("Sanders", `sande?r\b`, `random\s+orbit`, `\bros\b`),
	compileFamily("Routers & Trimmers", `\brouter\b`, `trimmer\s*router`),
	compileFamily("Planers", `\bplaner\b`),
	compileFamily("Heat Guns", `heat\s+gun`),
	compileFamily("Nailers", `\bnailer\b`, `finish\s*nailer`, `brad\s*nailer`),
	compileFamily("Staplers", `\bstapler\b`),
	compileFamily("Batteries & Chargers", `\bbattery\b`, `\bbatteries\b`, `\bcharger\b`, `\bpowerstack\b`),
	compileFamily("Lighting & Torches", `\bwork\s*light\b`, `\btorch\b`, `\blamp\b`),
	compileFamily("Measuring & Lasers", `\blaser\b`, `\bdist(?:ance)?\s*measure`),
	compileFamily("Dust Extractors & Vacuums", `dust\s*extract(?:or|ion)?`, `\bvac(?:uum)?\b`, `\bwet\s*dry\b`),
	compileFamily("Storage & Cases", `\bcase\b`, `\bbag\b`, `\bmakpac\b`, `\bt[- ]?stak\b`, `\bpackout\b`),
	compileFamily("Radios", `\bradio\b`),
	compileFamily("Pressure Washers", `pressure\s*washer`),
	compileFamily("Garden Tools", `lawn\s*mower`, `hedge\s*trimmer`, `grass\s*trimmer`, `strimmer`, `leaf\s*blower`),

	// 手动工具（宽泛桶）
	compileFamily("Hand Saws", `\bhand\s*saw\b`, `\bhacksaw\b`, `\btenon\s*saw\b`, `\bcoping\s*saw\b`),
	compileFamily("Hammers", `\bhammer\b`, `claw\s*hammer`, `ball\s*pein`, `club\s*hammer`, `sledge\s*hammer`),
	compileFamily("Screwdrivers", `\bscrewdriver\b`, `\bpozidriv\b`),
	compileFamily("Pliers & Cutters", `\bplier[s]?\b`, `\bside\s*cutter\b`, `\bwire\s*cutter\b`, `\bsnips?\b`),
	compileFamily("Wrenches & Sockets", `\bsocket\b`, `\bratchet\b`, `\bspanner\b`, `\bwrench\b`),
	compileFamily("Knives & Blades", `\bknife\b`, `\butility\s*knife\b`),
	compileFamily("Tapes & Measures", `\btape\s*measure\b`, `\bmeasuring\s*tape\b`),
	compileFamily("Levels", `\bspirit\s*level\b`, `\blevel\b`),

	// 配件兜底，放在 Other 之前
	compileFamily("Accessories", `\bbits?\b`, `\bblades?\b`, `\bdiscs?\b`, `\bsand(?:ing)?\s*sheets?\b`, `\bset\b`, `\bpack\b`),
}

var titleCaser = cases.Title(language.BritishEnglish)

// NormalizeCategory 将 (店铺原始分类, 商品标题) 映射到规范分类族。
//
// 命中规则表返回族名；否则原始分类 Title-Case 透传；两者皆空返回 "Other"。
func NormalizeCategory(rawCategory, title string) string {
	cat := strings.ToLower(strings.TrimSpace(rawCategory))
	text := strings.TrimSpace(cat + " " + strings.ToLower(title))

	for _, rule := range familyRules {
		for _, re := range rule.res {
			if re.MatchString(text) {
				return rule.family
			}
		}
	}

	if cat != "" {
		return titleCaser.String(cat)
	}
	return "Other"
}
