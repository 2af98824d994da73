package data

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/kingshare/transfer-backend/internal/pkg/logger"
	"github.com/kingshare/transfer-backend/internal/pkg/validator"
	"github.com/kingshare/transfer-backend/internal/transfer/biz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"
)

var (
	geoCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kingshare",
		Subsystem: "geoip",
		Name:      "cache_hits_total",
		Help:      "Geo-IP lookups served from cache.",
	})
	geoCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kingshare",
		Subsystem: "geoip",
		Name:      "cache_misses_total",
		Help:      "Geo-IP lookups that went to the upstream service.",
	})
)

// maxGeoResponse 上游响应体上限
const maxGeoResponse = 64 << 10

// GeoConfig 地理位置查询配置
type GeoConfig struct {
	Endpoint  string // 含 %s 占位符，替换为 IP
	Timeout   time.Duration
	CacheSize int
	CacheTTL  time.Duration
}

// HTTPGeoResolver 调用外部 IP 定位服务，结果按 IP 缓存。
// 响应兼容 ip-api.com 格式：{status, country, regionName, city}。
type HTTPGeoResolver struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
	cache    *expirable.LRU[string, string]
	group    singleflight.Group
	logger   *logger.Logger
}

var _ biz.GeoResolver = (*HTTPGeoResolver)(nil)

// NewHTTPGeoResolver 创建解析器
func NewHTTPGeoResolver(cfg GeoConfig, log *logger.Logger) *HTTPGeoResolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 4096
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	return &HTTPGeoResolver{
		endpoint: cfg.Endpoint,
		timeout:  cfg.Timeout,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cache:  expirable.NewLRU[string, string](cfg.CacheSize, nil, cfg.CacheTTL),
		logger: log.Named("geoip"),
	}
}

// Lookup 私有地址不查询，直接返回空
func (g *HTTPGeoResolver) Lookup(ctx context.Context, ip string) (string, error) {
	if !validator.IsPublicIP(ip) {
		return "", nil
	}
	if loc, ok := g.cache.Get(ip); ok {
		geoCacheHits.Inc()
		return loc, nil
	}
	geoCacheMisses.Inc()

	// 合并后的请求与任一调用方的取消无关，每个调用方只按自己的 ctx 放弃等待
	ch := g.group.DoChan(ip, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
		defer cancel()

		loc, err := g.fetch(fetchCtx, ip)
		if err != nil {
			return "", err
		}
		g.cache.Add(ip, loc)
		return loc, nil
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (g *HTTPGeoResolver) fetch(ctx context.Context, ip string) (string, error) {
	endpoint := fmt.Sprintf(g.endpoint, url.PathEscape(ip))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build geo request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("geo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geo service returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGeoResponse))
	if err != nil {
		return "", fmt.Errorf("read geo response: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return "", errors.New("geo service returned invalid JSON")
	}

	return parseLocation(gjson.ParseBytes(body))
}

// parseLocation 组装 "城市, 地区, 国家"，忽略空字段
func parseLocation(res gjson.Result) (string, error) {
	if status := res.Get("status"); status.Exists() && status.String() != "success" {
		return "", fmt.Errorf("geo lookup failed: %s", res.Get("message").String())
	}

	parts := make([]string, 0, 3)
	for _, field := range []string{"city", "regionName", "country"} {
		if v := strings.TrimSpace(res.Get(field).String()); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", "), nil
}
