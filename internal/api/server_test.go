package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"tooltally/internal/config"
	"tooltally/internal/model"
	"tooltally/internal/storage"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupTestServer(t *testing.T) (*Server, *gorm.DB) {
	t.Helper()
	return setupTestServerWithLogger(t, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func setupTestServerWithLogger(t *testing.T, logger *slog.Logger) (*Server, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("access pool: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := storage.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{}
	cfg.Redis.CacheTTL = time.Minute
	return NewServerWithDB(cfg, logger, db, nil), db
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// seedCatalogue 造一份小型标准目录：
// 两个钻类商品（一个双店铺报价）+ 一个无报价商品。
func seedCatalogue(t *testing.T, db *gorm.DB) (model.Product, model.Product) {
	t.Helper()

	vA := model.Vendor{Name: "ToolStop", Domain: "toolstop.co.uk"}
	vB := model.Vendor{Name: "FFX", Domain: "ffx.co.uk"}
	for _, v := range []*model.Vendor{&vA, &vB} {
		if err := db.Create(v).Error; err != nil {
			t.Fatalf("seed vendor: %v", err)
		}
	}

	drill := model.Product{Name: "Makita DHP484Z 18V Combi Drill", Category: "Combi Drills", Brand: "makita", Model: "DHP484"}
	driver := model.Product{Name: "DeWalt DCF887N Impact Driver", Category: "Impact Drivers", Brand: "dewalt", Model: "DCF887"}
	orphan := model.Product{Name: "Unlisted Prototype", Category: "Other"}
	for _, p := range []*model.Product{&drill, &driver, &orphan} {
		if err := db.Create(p).Error; err != nil {
			t.Fatalf("seed product: %v", err)
		}
	}

	offers := []model.Offer{
		{ProductID: drill.ID, VendorID: vA.ID, PricePounds: price("89.99"), URL: "https://toolstop.test/1", ScrapedAt: time.Now()},
		{ProductID: drill.ID, VendorID: vB.ID, PricePounds: price("92.00"), URL: "https://ffx.test/1", ScrapedAt: time.Now()},
		{ProductID: driver.ID, VendorID: vA.ID, PricePounds: price("120.00"), URL: "https://toolstop.test/2", ScrapedAt: time.Now()},
	}
	for i := range offers {
		if err := db.Create(&offers[i]).Error; err != nil {
			t.Fatalf("seed offer: %v", err)
		}
	}
	return drill, driver
}

func doGET(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	s, _ := setupTestServer(t)
	w := doGET(t, s, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestRequestLogIncludesQuery(t *testing.T) {
	var buf bytes.Buffer
	s, db := setupTestServerWithLogger(t, slog.New(slog.NewTextHandler(&buf, nil)))
	seedCatalogue(t, db)

	w := doGET(t, s, "/products?q=makita")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	out := buf.String()
	if !strings.Contains(out, "http request") {
		t.Fatalf("no access log written: %q", out)
	}
	// 查询串与状态码都要进访问日志
	if !strings.Contains(out, "q=makita") {
		t.Errorf("access log missing query string: %q", out)
	}
	if !strings.Contains(out, "status=200") {
		t.Errorf("access log missing status: %q", out)
	}
}

func TestListProducts(t *testing.T) {
	s, db := setupTestServer(t)
	seedCatalogue(t, db)

	w := doGET(t, s, "/products")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Items []struct {
			ID           uint   `json:"id"`
			Name         string `json:"name"`
			Category     string `json:"category"`
			MinPrice     string `json:"min_price"`
			VendorsCount int    `json:"vendors_count"`
		} `json:"items"`
		Total int64 `json:"total"`
		Page  int   `json:"page"`
		Limit int   `json:"limit"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// 无报价商品不出现在列表里
	if resp.Total != 2 || len(resp.Items) != 2 {
		t.Fatalf("total = %d, items = %d, want 2/2", resp.Total, len(resp.Items))
	}
	// 默认按最低价升序
	if resp.Items[0].MinPrice != "89.99" {
		t.Errorf("first item min_price = %s", resp.Items[0].MinPrice)
	}
	if resp.Items[0].VendorsCount != 2 {
		t.Errorf("first item vendors_count = %d, want 2", resp.Items[0].VendorsCount)
	}
	if resp.Page != 1 || resp.Limit != 24 {
		t.Errorf("page/limit defaults = %d/%d", resp.Page, resp.Limit)
	}
}

func TestListProducts_SearchAndFilter(t *testing.T) {
	s, db := setupTestServer(t)
	drill, _ := seedCatalogue(t, db)

	// 多词搜索按 AND 匹配
	w := doGET(t, s, "/products?q=makita+combi")
	var resp struct {
		Items []struct {
			ID uint `json:"id"`
		} `json:"items"`
		Total int64 `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || resp.Items[0].ID != drill.ID {
		t.Fatalf("search result = %+v, want only drill %d", resp, drill.ID)
	}

	// 词序不匹配也能命中（逐词 LIKE，而不是整串匹配）
	w = doGET(t, s, "/products?q=combi+makita")
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 {
		t.Fatalf("reordered search total = %d, want 1", resp.Total)
	}

	// 不相关的词组合不命中
	w = doGET(t, s, "/products?q=makita+impact")
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 0 {
		t.Fatalf("mismatched search total = %d, want 0", resp.Total)
	}

	// 分类过滤
	w = doGET(t, s, "/products?category=Impact+Drivers")
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 {
		t.Fatalf("category filter total = %d, want 1", resp.Total)
	}
}

func TestListProducts_Pagination(t *testing.T) {
	s, db := setupTestServer(t)
	seedCatalogue(t, db)

	w := doGET(t, s, "/products?limit=1&page=2")
	var resp struct {
		Items []struct {
			Name string `json:"name"`
		} `json:"items"`
		Total int64 `json:"total"`
		Page  int   `json:"page"`
		Limit int   `json:"limit"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 2 || len(resp.Items) != 1 || resp.Page != 2 {
		t.Fatalf("pagination response = %+v", resp)
	}
	// 第二页是价格较高的那个商品
	if resp.Items[0].Name != "DeWalt DCF887N Impact Driver" {
		t.Errorf("page 2 item = %q", resp.Items[0].Name)
	}
}

func TestGetProduct(t *testing.T) {
	s, db := setupTestServer(t)
	drill, _ := seedCatalogue(t, db)

	w := doGET(t, s, "/products/"+strconv.FormatUint(uint64(drill.ID), 10))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		ID      uint   `json:"id"`
		Name    string `json:"name"`
		Brand   string `json:"brand"`
		Vendors []struct {
			Vendor string `json:"vendor"`
			Price  string `json:"price"`
			BuyURL string `json:"buy_url"`
		} `json:"vendors"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != drill.ID || resp.Brand != "makita" {
		t.Fatalf("product = %+v", resp)
	}
	if len(resp.Vendors) != 2 {
		t.Fatalf("vendors = %d, want 2", len(resp.Vendors))
	}
	// 报价按价格升序
	if resp.Vendors[0].Vendor != "ToolStop" || resp.Vendors[0].Price != "89.99" {
		t.Errorf("cheapest offer = %+v", resp.Vendors[0])
	}
}

func TestGetProduct_NotFound(t *testing.T) {
	s, _ := setupTestServer(t)
	if w := doGET(t, s, "/products/9999"); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if w := doGET(t, s, "/products/not-a-number"); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestListCategories(t *testing.T) {
	s, db := setupTestServer(t)
	seedCatalogue(t, db)

	w := doGET(t, s, "/categories")
	var categories []string
	if err := json.Unmarshal(w.Body.Bytes(), &categories); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []string{"Combi Drills", "Impact Drivers", "Other"}
	if len(categories) != len(want) {
		t.Fatalf("categories = %v, want %v", categories, want)
	}
	for i := range want {
		if categories[i] != want[i] {
			t.Fatalf("categories = %v, want %v", categories, want)
		}
	}
}

func TestListVendors(t *testing.T) {
	s, db := setupTestServer(t)
	seedCatalogue(t, db)

	w := doGET(t, s, "/vendors")
	var vendors []struct {
		Name   string `json:"name"`
		Domain string `json:"domain"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &vendors); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(vendors) != 2 {
		t.Fatalf("vendors = %+v", vendors)
	}
	if vendors[0].Name != "FFX" || vendors[1].Name != "ToolStop" {
		t.Errorf("vendor order = %+v, want name ascending", vendors)
	}
}
