package broker

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-orchestrator/pkg/types"
)

// RESTAdapter is a generic HMAC-signed REST brokerage adapter, grounded
// on the request-signing shape common to exchange APIs: an API key
// header plus an HMAC-SHA256 signature over the query string.
type RESTAdapter struct {
	logger    *zap.Logger
	apiKey    string
	apiSecret string
	http      *resty.Client
}

// NewRESTAdapter builds an adapter against baseURL authenticated with
// apiKey/apiSecret.
func NewRESTAdapter(logger *zap.Logger, baseURL, apiKey, apiSecret string) *RESTAdapter {
	return &RESTAdapter{
		logger:    logger.Named("rest-broker"),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      resty.New().SetBaseURL(baseURL).SetTimeout(10 * time.Second),
	}
}

func (a *RESTAdapter) sign(query string) string {
	h := hmac.New(sha256.New, []byte(a.apiSecret))
	h.Write([]byte(query))
	return hex.EncodeToString(h.Sum(nil))
}

func (a *RESTAdapter) signedParams(extra url.Values) url.Values {
	if extra == nil {
		extra = url.Values{}
	}
	extra.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	extra.Set("signature", a.sign(extra.Encode()))
	return extra
}

func (a *RESTAdapter) PlaceOrder(ctx context.Context, symbol string, side types.OrderSide, size, price decimal.Decimal, opts OrderOptions) (OrderAck, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("quantity", size.String())
	params.Set("price", price.String())
	if opts.PostOnly {
		params.Set("timeInForce", "GTX")
	}

	var result struct {
		OrderID string          `json:"order_id"`
		Price   decimal.Decimal `json:"price"`
		Filled  decimal.Decimal `json:"filled"`
		Status  string          `json:"status"`
	}
	resp, err := a.http.R().
		SetContext(ctx).
		SetHeader("X-API-KEY", a.apiKey).
		SetQueryParamsFromValues(a.signedParams(params)).
		SetResult(&result).
		Post("/api/v1/order")
	if err != nil {
		return OrderAck{}, fmt.Errorf("%w: %v", types.ErrBrokerTransient, err)
	}
	if resp.IsError() {
		if resp.StatusCode() >= 500 {
			return OrderAck{}, fmt.Errorf("%w: status %d", types.ErrBrokerTransient, resp.StatusCode())
		}
		return OrderAck{}, fmt.Errorf("%w: status %d", types.ErrBrokerFatal, resp.StatusCode())
	}

	return OrderAck{OrderID: result.OrderID, FillPrice: result.Price, Filled: result.Filled, Status: result.Status}, nil
}

func (a *RESTAdapter) CancelOrder(ctx context.Context, orderID string) (Ack, error) {
	params := url.Values{}
	params.Set("order_id", orderID)

	resp, err := a.http.R().
		SetContext(ctx).
		SetHeader("X-API-KEY", a.apiKey).
		SetQueryParamsFromValues(a.signedParams(params)).
		Delete("/api/v1/order")
	if err != nil {
		return Ack{}, fmt.Errorf("%w: %v", types.ErrBrokerTransient, err)
	}
	return Ack{OrderID: orderID, Success: !resp.IsError()}, nil
}

func (a *RESTAdapter) GetPortfolio(ctx context.Context) (types.PortfolioSnapshot, error) {
	var result struct {
		Cash      decimal.Decimal                 `json:"cash"`
		Equity    decimal.Decimal                 `json:"equity"`
		Positions map[string]types.PositionState  `json:"positions"`
	}
	resp, err := a.http.R().
		SetContext(ctx).
		SetHeader("X-API-KEY", a.apiKey).
		SetQueryParamsFromValues(a.signedParams(nil)).
		SetResult(&result).
		Get("/api/v1/account")
	if err != nil || resp.IsError() {
		return types.PortfolioSnapshot{}, fmt.Errorf("%w: %v", types.ErrBrokerTransient, err)
	}
	return types.PortfolioSnapshot{
		Cash:      result.Cash,
		Equity:    result.Equity,
		Positions: result.Positions,
		AsOf:      time.Now(),
	}, nil
}

func (a *RESTAdapter) GetQuote(ctx context.Context, symbol string) (types.Quote, error) {
	var result types.Quote
	resp, err := a.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&result).
		Get("/api/v1/quote")
	if err != nil || resp.IsError() {
		return types.Quote{}, fmt.Errorf("%w: %v", types.ErrBrokerTransient, err)
	}
	result.AsOf = time.Now()
	return result, nil
}

func (a *RESTAdapter) GetHistorical(ctx context.Context, symbol string, bars int) ([]types.OHLCV, error) {
	var result []types.OHLCV
	resp, err := a.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetQueryParam("limit", strconv.Itoa(bars)).
		SetResult(&result).
		Get("/api/v1/klines")
	if err != nil || resp.IsError() {
		return nil, fmt.Errorf("%w: %v", types.ErrBrokerTransient, err)
	}
	return result, nil
}

func (a *RESTAdapter) GetWatchlist(ctx context.Context) ([]string, error) {
	var result []string
	resp, err := a.http.R().
		SetContext(ctx).
		SetHeader("X-API-KEY", a.apiKey).
		SetQueryParamsFromValues(a.signedParams(nil)).
		SetResult(&result).
		Get("/api/v1/watchlist")
	if err != nil || resp.IsError() {
		return nil, fmt.Errorf("%w: %v", types.ErrBrokerTransient, err)
	}
	return result, nil
}

func (a *RESTAdapter) MarketIsOpen(ctx context.Context) (bool, error) {
	return marketOpenWeekday(time.Now()), nil
}
