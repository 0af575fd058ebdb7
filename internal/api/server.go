// Package api 提供只读查询服务：对外暴露标准商品、报价与店铺数据。
//
// 本服务绝不写 canonical 表；所有写入都由解析器完成。
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tooltally/internal/api/middleware"
	"tooltally/internal/config"
	"tooltally/internal/model"
	"tooltally/internal/pkg/cache"
	"tooltally/internal/pkg/metrics"
	"tooltally/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Server 封装查询 API 所需的依赖和路由处理。
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *gorm.DB
	rdb    *redis.Client
	cache  *cache.Cache
	router *gin.Engine
}

// NewServer 初始化查询 API 服务器。
//
// 它负责：
// 1. 连接数据库并执行自动迁移
// 2. 连接 Redis（未配置地址时跳过，缓存降级为空操作）
// 3. 初始化 Gin 路由引擎
//
// 参数:
//
//	ctx: 上下文
//	cfg: 配置对象
//	logger: 日志记录器
//
// 返回值:
//
//	*Server: 初始化完成的服务器实例
//	error: 初始化失败返回错误
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := storage.Open(cfg, logger)
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       0,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, err
		}
	}

	metrics.InitMetrics()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:    cfg,
		logger: logger,
		db:     db,
		rdb:    rdb,
		cache:  cache.New(rdb, cfg.Redis.CacheTTL),
		router: r,
	}
	s.registerRoutes()
	return s, nil
}

// NewServerWithDB 用既有连接构造服务器，供测试注入内存数据库。
// 中间件链与 NewServer 保持一致。
func NewServerWithDB(cfg *config.Config, logger *slog.Logger, db *gorm.DB, rdb *redis.Client) *Server {
	metrics.InitMetrics()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:    cfg,
		logger: logger,
		db:     db,
		rdb:    rdb,
		cache:  cache.New(rdb, cfg.Redis.CacheTTL),
		router: r,
	}
	s.registerRoutes()
	return s
}

// Run 启动 HTTP 服务器并开始监听请求。
func (s *Server) Run() error {
	s.logger.Info("api server listening", slog.String("addr", s.cfg.App.HTTPAddr))
	return s.router.Run(s.cfg.App.HTTPAddr)
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// Close 关闭数据库与缓存连接。
func (s *Server) Close() error {
	var firstErr error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			firstErr = err
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			if closeErr := sqlDB.Close(); closeErr != nil {
				if firstErr == nil {
					firstErr = closeErr
				}
			}
		}
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/health", s.handleHealth)
	s.router.GET("/healthz", s.handleHealth)

	s.router.GET("/products", s.handleListProducts)
	s.router.GET("/products/:id", s.handleGetProduct)
	s.router.GET("/categories", s.handleListCategories)
	s.router.GET("/vendors", s.handleListVendors)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": err.Error()})
		return
	}
	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// productListItem 商品列表的单条响应。
type productListItem struct {
	ID           uint            `json:"id"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	MinPrice     decimal.Decimal `json:"min_price"`
	VendorsCount int             `json:"vendors_count"`
}

// productListResponse 商品列表响应。
type productListResponse struct {
	Items []productListItem `json:"items"`
	Total int64             `json:"total"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
}

// handleListProducts 商品列表：搜索 + 分类过滤 + 分页。
//
// 搜索词按空白切分后对商品名做大小写无关的 AND LIKE 匹配；
// 每条结果带跨店铺最低价与在售店铺数。只统计至少有一条报价的商品。
func (s *Server) handleListProducts(c *gin.Context) {
	search := c.Query("search")
	if search == "" {
		search = c.Query("q")
	}
	category := strings.TrimSpace(c.Query("category"))
	page := parseIntDefault(c.Query("page"), 1)
	limit := parseIntDefault(c.Query("limit"), 24)
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 24
	}
	if limit > 100 {
		limit = 100
	}

	ctx := c.Request.Context()
	cacheKey := cache.Key("products", search, category, strconv.Itoa(page), strconv.Itoa(limit))
	var resp productListResponse
	if hit, err := s.cache.Get(ctx, cacheKey, &resp); err == nil && hit {
		c.JSON(http.StatusOK, resp)
		return
	}

	base := s.db.WithContext(ctx).
		Table("products p").
		Joins("JOIN offers o ON o.product_id = p.id")
	for _, tok := range strings.Fields(search) {
		base = base.Where("LOWER(p.name) LIKE ?", "%"+strings.ToLower(tok)+"%")
	}
	if category != "" {
		base = base.Where("p.category = ?", category)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Distinct("p.id").Count(&total).Error; err != nil {
		s.logger.Error("count products failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	var items []productListItem
	if err := base.Session(&gorm.Session{}).
		Select("p.id, p.name, p.category, MIN(o.price_pounds) AS min_price, COUNT(DISTINCT o.vendor_id) AS vendors_count").
		Group("p.id, p.name, p.category").
		Order("min_price ASC, p.name ASC").
		Limit(limit).
		Offset((page - 1) * limit).
		Scan(&items).Error; err != nil {
		s.logger.Error("list products failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if items == nil {
		items = []productListItem{}
	}

	resp = productListResponse{Items: items, Total: total, Page: page, Limit: limit}
	if err := s.cache.Set(ctx, cacheKey, resp); err != nil {
		s.logger.Warn("cache products failed", slog.String("error", err.Error()))
	}
	c.JSON(http.StatusOK, resp)
}

// offerResponse 商品详情中的一条店铺报价。
type offerResponse struct {
	Vendor string          `json:"vendor"`
	Price  decimal.Decimal `json:"price"`
	BuyURL string          `json:"buy_url"`
}

// handleGetProduct 商品详情：商品属性 + 按价格升序的全部店铺报价。
func (s *Server) handleGetProduct(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}

	ctx := c.Request.Context()
	var p model.Product
	if err := s.db.WithContext(ctx).First(&p, uint(id)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	var offers []offerResponse
	if err := s.db.WithContext(ctx).
		Table("offers o").
		Joins("JOIN vendors v ON v.id = o.vendor_id").
		Where("o.product_id = ?", p.ID).
		Select("v.name AS vendor, o.price_pounds AS price, o.url AS buy_url").
		Order("o.price_pounds ASC, v.name ASC").
		Scan(&offers).Error; err != nil {
		s.logger.Error("list offers failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if offers == nil {
		offers = []offerResponse{}
	}

	c.JSON(http.StatusOK, gin.H{
		"id":       p.ID,
		"name":     p.Name,
		"category": p.Category,
		"brand":    p.Brand,
		"model":    p.Model,
		"vendors":  offers,
	})
}

// handleListCategories 全部非空分类，按名称排序。
func (s *Server) handleListCategories(c *gin.Context) {
	ctx := c.Request.Context()
	cacheKey := cache.Key("categories")
	var categories []string
	if hit, err := s.cache.Get(ctx, cacheKey, &categories); err == nil && hit {
		c.JSON(http.StatusOK, categories)
		return
	}

	if err := s.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("category IS NOT NULL AND TRIM(category) <> ''").
		Distinct().
		Order("category ASC").
		Pluck("category", &categories).Error; err != nil {
		s.logger.Error("list categories failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if categories == nil {
		categories = []string{}
	}

	if err := s.cache.Set(ctx, cacheKey, categories); err != nil {
		s.logger.Warn("cache categories failed", slog.String("error", err.Error()))
	}
	c.JSON(http.StatusOK, categories)
}

// vendorResponse 店铺列表的单条响应。
type vendorResponse struct {
	ID     uint   `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

// handleListVendors 全部店铺，按名称排序。
func (s *Server) handleListVendors(c *gin.Context) {
	ctx := c.Request.Context()
	cacheKey := cache.Key("vendors")
	var vendors []vendorResponse
	if hit, err := s.cache.Get(ctx, cacheKey, &vendors); err == nil && hit {
		c.JSON(http.StatusOK, vendors)
		return
	}

	if err := s.db.WithContext(ctx).
		Model(&model.Vendor{}).
		Select("id, name, domain").
		Order("name ASC").
		Scan(&vendors).Error; err != nil {
		s.logger.Error("list vendors failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if vendors == nil {
		vendors = []vendorResponse{}
	}

	if err := s.cache.Set(ctx, cacheKey, vendors); err != nil {
		s.logger.Warn("cache vendors failed", slog.String("error", err.Error()))
	}
	c.JSON(http.StatusOK, vendors)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
