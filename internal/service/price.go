package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"pricewatch/internal/model"
	"pricewatch/pkg/errors"
	"pricewatch/pkg/errors/ecode"
	"pricewatch/pkg/utils"
)

// PriceService 代理交易所 REST 最新价格接口
type PriceService struct {
	baseURL string
	client  *http.Client
}

func NewPriceService(baseURL string, client *http.Client) *PriceService {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &PriceService{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Prices 返回全部交易对价格；symbols 非空时只返回指定交易对
func (s *PriceService) Prices(ctx context.Context, symbols ...string) ([]model.TickerPrice, error) {
	endpoint := s.baseURL + "/api/v3/ticker/price"
	if len(symbols) > 0 {
		normalized := make([]string, 0, len(symbols))
		for _, sym := range symbols {
			if sym = utils.NormalizeSymbol(sym); sym != "" {
				normalized = append(normalized, sym)
			}
		}
		raw, err := json.Marshal(normalized)
		if err != nil {
			return nil, err
		}
		endpoint += "?symbols=" + url.QueryEscape(string(raw))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, ecode.Unknown, "build price request")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, ecode.Unknown, "error fetching prices")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, errors.Wrap(err, ecode.Unknown, "read price response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.WithCode(ecode.Unknown, "error fetching prices: upstream status %d: %s", resp.StatusCode, truncate(body, 200))
	}
	var prices []model.TickerPrice
	if err := json.Unmarshal(body, &prices); err != nil {
		return nil, errors.Wrap(err, ecode.Unknown, "decode price response")
	}
	return prices, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return fmt.Sprintf("%s...", b[:n])
}
