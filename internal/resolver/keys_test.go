package resolver

import (
	"reflect"
	"testing"

	"tooltally/internal/model"
	"tooltally/internal/normalize"
)

func TestNormalizeEAN(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"valid_ean13", "0088381894852", "0088381894852"},
		{"valid_with_spaces", " 0088381 894852 ", "0088381894852"},
		{"valid_ean8", "96385074", "96385074"},
		{"valid_upc12", "036000291452", "036000291452"},
		{"bad_check_digit", "0088381894853", ""},
		{"too_short", "1234567", ""},
		{"too_long", "123456789012345", ""},
		{"letters_only", "not-a-barcode", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeEAN(tt.input); got != tt.expected {
				t.Errorf("NormalizeEAN(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeMPN(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"dhp484z", "DHP484Z"},
		{" DCD796 - N ", "DCD796N"},
		{"gsb 18v-55", "GSB18V55"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeMPN(tt.input); got != tt.expected {
			t.Errorf("NormalizeMPN(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestCandidateKeys(t *testing.T) {
	listing := func(title, ean, mpn, sku, vendor string) model.RawListing {
		return model.RawListing{Title: title, EAN: ean, MPN: mpn, VendorSKU: sku, VendorName: vendor}
	}

	tests := []struct {
		name     string
		listing  model.RawListing
		expected []Key
	}{
		{
			name:    "full_identifier_set",
			listing: listing("Makita DHP484Z 18V Combi Drill Body Only", "0088381894852", "DHP484Z", "TS-1001", "ToolStop"),
			expected: []Key{
				{KeyEAN, "0088381894852"},
				{KeyMPN, "makita|DHP484Z"},
				{KeyModel, "makita|DHP484|18|bare"},
				{KeyModelRelaxed, "makita|DHP484"},
			},
		},
		{
			// 型号键的两家写法一致（裸机后缀折叠 + 别名电压折叠）
			name:    "model_key_unifies_vendor_styles",
			listing: listing("Makita DHP484 18 V LXT Brushless Combi Drill (Bare)", "", "", "", "FFX"),
			expected: []Key{
				{KeyModel, "makita|DHP484|18|bare"},
				{KeyModelRelaxed, "makita|DHP484"},
			},
		},
		{
			// 条码校验位错误时 EAN 键不产生
			name:    "invalid_ean_dropped",
			listing: listing("Makita DHP484Z 18V Combi Drill Body Only", "0088381894853", "", "", "FFX"),
			expected: []Key{
				{KeyModel, "makita|DHP484|18|bare"},
				{KeyModelRelaxed, "makita|DHP484"},
			},
		},
		{
			// 品牌与型号都无法识别时才允许店铺 SKU 键，且带店铺前缀
			name:    "vendor_sku_last_resort",
			listing: listing("Heavy Duty Workbench Clamp", "", "", "WBC-400", "ToolStation"),
			expected: []Key{
				{KeyVendorSKU, "toolstation|WBC400"},
			},
		},
		{
			// 没有任何标识符时退到标题 token 摘要
			name:    "title_tokens_fallback",
			listing: listing("Heavy Duty Workbench Clamp", "", "", "", "ToolStation"),
			expected: []Key{
				{KeyTitleTokens, "heavy-duty-workbench-clamp"},
			},
		},
		{
			name:     "nothing_usable",
			listing:  listing("", "", "", "", "ToolStation"),
			expected: []Key{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := normalize.Normalize(tt.listing.Title, tt.listing.Category)
			got := CandidateKeys(tt.listing, attrs)
			if len(got) == 0 && len(tt.expected) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("CandidateKeys() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCandidateKeys_MPNNeedsBrand(t *testing.T) {
	// 没有品牌时 MPN 键不产生，避免不同品牌的同号零件误并
	l := model.RawListing{Title: "Replacement Carbon Brush Set", MPN: "CB-440"}
	attrs := normalize.Normalize(l.Title, "")
	for _, k := range CandidateKeys(l, attrs) {
		if k.Type == KeyMPN {
			t.Fatalf("unexpected mpn key %v without a recognised brand", k)
		}
	}
}

func TestKeyString(t *testing.T) {
	k := Key{Type: KeyModel, Value: "makita|DHP484|18|bare"}
	if got := k.String(); got != "model:makita|DHP484|18|bare" {
		t.Errorf("Key.String() = %q", got)
	}
	if !k.Identifier() {
		t.Error("model key should be an identifier")
	}
	if (Key{Type: KeyTitleTokens, Value: "x-y"}).Identifier() {
		t.Error("title-tokens key must not be an identifier")
	}
}

func TestTitleTokenDigest(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		expected string
	}{
		{"basic", "Heavy Duty Workbench Clamp", "heavy-duty-workbench-clamp"},
		{"stopwords_and_short", "The Clamp with a New Grip for Wood", "clamp-grip-wood"},
		{"bounded_to_six", "one two three four five six seven eight", "one-two-three-four-five-six"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TitleTokenDigest(tt.title); got != tt.expected {
				t.Errorf("TitleTokenDigest(%q) = %q, want %q", tt.title, got, tt.expected)
			}
		})
	}
}
