package bitget

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bitget-marketmaker/internal/config"
	"bitget-marketmaker/internal/core"
	"bitget-marketmaker/internal/exchange/base"
	"bitget-marketmaker/pkg/apperrors"
	"bitget-marketmaker/pkg/retry"
)

// Spot implements core.OrderService, core.MarketDataService, and
// core.AccountService against Bitget's spot v2 API. Spot carries no
// hold-mode concept, so it does not implement core.HoldModeProvider
// (§4.8 "spot has no tradeSide").
type Spot struct {
	adapter *base.Adapter
}

// NewSpot builds a Spot adapter.
func NewSpot(cfg config.ExchangeConfig, logger core.ILogger) *Spot {
	s := &Spot{adapter: base.NewAdapter("bitget-spot", cfg, logger)}
	s.adapter.SignRequest = s.signRequest
	s.adapter.ParseError = parseError
	return s
}

func (s *Spot) signRequest(req *http.Request, body []byte) error {
	timestamp := fmt.Sprintf("%d", time.Now().UnixMilli())
	path := req.URL.Path
	if req.URL.RawQuery != "" {
		path += "?" + req.URL.RawQuery
	}
	payload := timestamp + strings.ToUpper(req.Method) + path + string(body)

	mac := hmac.New(sha256.New, []byte(s.adapter.Config.SecretKey))
	mac.Write([]byte(payload))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req.Header.Set("ACCESS-KEY", string(s.adapter.Config.APIKey))
	req.Header.Set("ACCESS-SIGN", signature)
	req.Header.Set("ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("ACCESS-PASSPHRASE", string(s.adapter.Config.Passphrase))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("locale", "en-US")
	return nil
}

// PlaceOrder implements core.OrderService.
func (s *Spot) PlaceOrder(ctx context.Context, p core.PlaceOrderParams) (*core.TrackedOrder, error) {
	var order *core.TrackedOrder
	err := retry.Do(ctx, retry.DefaultPolicy, isTransient, func() error {
		o, err := s.placeOrderOnce(ctx, p)
		if err != nil {
			return err
		}
		order = o
		return nil
	})
	return order, err
}

func (s *Spot) placeOrderOnce(ctx context.Context, p core.PlaceOrderParams) (*core.TrackedOrder, error) {
	clientOID := p.ClientOID
	if clientOID == "" {
		clientOID = uuid.NewString()
	}

	body := map[string]interface{}{
		"symbol":    p.Symbol,
		"side":      string(p.Side),
		"orderType": "limit",
		"size":      p.Size.String(),
		"clientOid": clientOID,
		"force":     "gtc",
	}
	if p.Market {
		body["orderType"] = "market"
	} else {
		body["price"] = p.Price.String()
	}
	if p.TimeInForce == core.TimeInForcePostOnly {
		body["force"] = "post_only"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	url := s.adapter.BaseURL(defaultBaseURL) + "/api/v2/spot/trade/place-order"
	respBody, err := s.adapter.ExecuteRequest(ctx, http.MethodPost, url, payload)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			OrderID   string `json:"orderId"`
			ClientOID string `json:"clientOid"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	if err := mustOK(resp.Code, resp.Msg); err != nil {
		return nil, err
	}

	return &core.TrackedOrder{
		OrderID:        resp.Data.OrderID,
		ClientOID:      clientOID,
		Symbol:         p.Symbol,
		Side:           p.Side,
		Price:          p.Price,
		Size:           p.Size,
		Status:         core.StatusPending,
		CreatedAt:      time.Now().UnixMilli(),
		GridLevelIndex: -1,
	}, nil
}

// CancelOrder implements core.OrderService.
func (s *Spot) CancelOrder(ctx context.Context, symbol, orderID string) error {
	body, _ := json.Marshal(map[string]interface{}{
		"symbol":  symbol,
		"orderId": orderID,
	})

	url := s.adapter.BaseURL(defaultBaseURL) + "/api/v2/spot/trade/cancel-order"
	respBody, err := s.adapter.ExecuteRequest(ctx, http.MethodPost, url, body)
	if err != nil {
		if errors.Is(err, apperrors.ErrOrderNotFound) {
			return nil
		}
		return err
	}

	var resp struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return err
	}
	if err := mustOK(resp.Code, resp.Msg); err != nil {
		if errors.Is(err, apperrors.ErrOrderNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// BatchCancelOrders implements core.OrderService. Spot's batch-cancel
// endpoint accepts fewer guarantees than derivatives; on a chunk failure
// it degrades to per-order cancellation rather than giving up the whole
// chunk (§4.8 "spot batch-cancel degrades to per-order on failure").
func (s *Spot) BatchCancelOrders(ctx context.Context, symbol string, orderIDs []string) (core.BatchCancelResult, error) {
	result := core.BatchCancelResult{}
	if len(orderIDs) == 0 {
		return result, nil
	}

	for i := 0; i < len(orderIDs); i += batchCancelChunkSize {
		end := i + batchCancelChunkSize
		if end > len(orderIDs) {
			end = len(orderIDs)
		}
		chunk := orderIDs[i:end]

		orderList := make([]map[string]string, len(chunk))
		for j, id := range chunk {
			orderList[j] = map[string]string{"orderId": id}
		}
		body, _ := json.Marshal(map[string]interface{}{
			"symbol":    symbol,
			"orderList": orderList,
		})

		url := s.adapter.BaseURL(defaultBaseURL) + "/api/v2/spot/trade/batch-cancel-order"
		respBody, err := s.adapter.ExecuteRequest(ctx, http.MethodPost, url, body)
		if err != nil {
			s.degradeToPerOrderCancel(ctx, symbol, chunk, &result)
			continue
		}

		var resp struct {
			Code string `json:"code"`
			Msg  string `json:"msg"`
			Data struct {
				SuccessList []struct {
					OrderID string `json:"orderId"`
				} `json:"successList"`
				FailureList []struct {
					OrderID string `json:"orderId"`
				} `json:"failureList"`
			} `json:"data"`
		}
		if err := json.Unmarshal(respBody, &resp); err != nil || resp.Code != "00000" {
			s.degradeToPerOrderCancel(ctx, symbol, chunk, &result)
			continue
		}

		for _, ok := range resp.Data.SuccessList {
			result.Cancelled = append(result.Cancelled, ok.OrderID)
		}
		failed := make([]string, 0, len(resp.Data.FailureList))
		for _, f := range resp.Data.FailureList {
			failed = append(failed, f.OrderID)
		}
		if len(failed) > 0 {
			s.degradeToPerOrderCancel(ctx, symbol, failed, &result)
		}
	}

	return result, nil
}

func (s *Spot) degradeToPerOrderCancel(ctx context.Context, symbol string, orderIDs []string, result *core.BatchCancelResult) {
	for _, id := range orderIDs {
		if err := s.CancelOrder(ctx, symbol, id); err != nil {
			result.Failed = append(result.Failed, id)
		} else {
			result.Cancelled = append(result.Cancelled, id)
		}
	}
}

// GetPendingOrders implements core.OrderService.
func (s *Spot) GetPendingOrders(ctx context.Context, symbol string) ([]*core.TrackedOrder, error) {
	url := fmt.Sprintf("%s/api/v2/spot/trade/unfilled-orders?symbol=%s", s.adapter.BaseURL(defaultBaseURL), symbol)

	respBody, err := s.adapter.ExecuteRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Code string     `json:"code"`
		Msg  string     `json:"msg"`
		Data []rawOrder `json:"data"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	if err := mustOK(resp.Code, resp.Msg); err != nil {
		return nil, err
	}

	orders := make([]*core.TrackedOrder, 0, len(resp.Data))
	for _, raw := range resp.Data {
		orders = append(orders, raw.toTrackedOrder())
	}
	return orders, nil
}

// GetOrderDetail implements core.OrderService.
func (s *Spot) GetOrderDetail(ctx context.Context, symbol, orderID string) (*core.TrackedOrder, error) {
	key := "orderId"
	if _, err := strconv.ParseInt(orderID, 10, 64); err != nil {
		key = "clientOid"
	}
	url := fmt.Sprintf("%s/api/v2/spot/trade/orderInfo?%s=%s", s.adapter.BaseURL(defaultBaseURL), key, orderID)

	respBody, err := s.adapter.ExecuteRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Code string     `json:"code"`
		Msg  string     `json:"msg"`
		Data []rawOrder `json:"data"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	if err := mustOK(resp.Code, resp.Msg); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, apperrors.ErrOrderNotFound
	}
	resp.Data[0].Symbol = symbol
	return resp.Data[0].toTrackedOrder(), nil
}

// GetTicker implements core.MarketDataService.
func (s *Spot) GetTicker(ctx context.Context, symbol string) (*core.Ticker, error) {
	url := fmt.Sprintf("%s/api/v2/spot/market/tickers?symbol=%s", s.adapter.BaseURL(defaultBaseURL), symbol)

	respBody, err := s.adapter.ExecuteRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			Symbol    string `json:"symbol"`
			LastPr    string `json:"lastPr"`
			BidPr     string `json:"bidPr"`
			AskPr     string `json:"askPr"`
			High24h   string `json:"high24h"`
			Low24h    string `json:"low24h"`
			Timestamp string `json:"ts"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	if err := mustOK(resp.Code, resp.Msg); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, apperrors.ErrInvalidSymbol
	}

	raw := resp.Data[0]
	last, _ := decimal.NewFromString(raw.LastPr)
	bid, _ := decimal.NewFromString(raw.BidPr)
	ask, _ := decimal.NewFromString(raw.AskPr)
	high, _ := decimal.NewFromString(raw.High24h)
	low, _ := decimal.NewFromString(raw.Low24h)
	ts, _ := strconv.ParseInt(raw.Timestamp, 10, 64)

	// Spot quotes sometimes omit bid/ask outright; derive from last when
	// that happens so downstream spread math never divides by zero.
	if bid.IsZero() {
		bid = last
	}
	if ask.IsZero() {
		ask = last
	}

	return &core.Ticker{
		Symbol:    raw.Symbol,
		Last:      last,
		BestBid:   bid,
		BestAsk:   ask,
		High24h:   high,
		Low24h:    low,
		Timestamp: ts,
	}, nil
}

// GetBestBid implements core.MarketDataService.
func (s *Spot) GetBestBid(ctx context.Context, symbol string) (decimal.Decimal, error) {
	t, err := s.GetTicker(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return t.BestBid, nil
}

// GetBestAsk implements core.MarketDataService.
func (s *Spot) GetBestAsk(ctx context.Context, symbol string) (decimal.Decimal, error) {
	t, err := s.GetTicker(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return t.BestAsk, nil
}

// FetchAllSpecs implements specs.PublicSpecFetcher (§4.9 tier 3) against
// the spot symbols endpoint.
func (s *Spot) FetchAllSpecs(ctx context.Context, venue core.VenueKind) ([]*core.InstrumentSpec, error) {
	url := s.adapter.BaseURL(defaultBaseURL) + "/api/v2/spot/public/symbols"

	respBody, err := s.adapter.ExecuteRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			Symbol              string `json:"symbol"`
			BaseCoin            string `json:"baseCoin"`
			QuoteCoin           string `json:"quoteCoin"`
			PricePrecision      string `json:"pricePrecision"`
			QuantityPrecision   string `json:"quantityPrecision"`
			MinTradeAmount      string `json:"minTradeAmount"`
			MakerFeeRate        string `json:"makerFeeRate"`
			TakerFeeRate        string `json:"takerFeeRate"`
			Status              string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	if err := mustOK(resp.Code, resp.Msg); err != nil {
		return nil, err
	}

	out := make([]*core.InstrumentSpec, 0, len(resp.Data))
	for _, sym := range resp.Data {
		pricePlace, _ := strconv.Atoi(sym.PricePrecision)
		volumePlace, _ := strconv.Atoi(sym.QuantityPrecision)
		minTradeNum, _ := decimal.NewFromString(sym.MinTradeAmount)
		makerFee, _ := decimal.NewFromString(sym.MakerFeeRate)
		takerFee, _ := decimal.NewFromString(sym.TakerFeeRate)

		status := "online"
		if sym.Status != "" {
			status = sym.Status
		}

		out = append(out, &core.InstrumentSpec{
			Symbol:         sym.Symbol,
			Venue:          core.VenueSpot,
			BaseCoin:       sym.BaseCoin,
			QuoteCoin:      sym.QuoteCoin,
			PricePlace:     int32(pricePlace),
			VolumePlace:    int32(volumePlace),
			MinTradeNum:    minTradeNum,
			SizeMultiplier: decimal.NewFromInt(1),
			MakerFeeRate:   makerFee,
			TakerFeeRate:   takerFee,
			Status:         status,
		})
	}
	return out, nil
}

// GetAvailableBalance implements core.AccountService.
func (s *Spot) GetAvailableBalance(ctx context.Context, coin string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/api/v2/spot/account/assets?coin=%s", s.adapter.BaseURL(defaultBaseURL), coin)

	respBody, err := s.adapter.ExecuteRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, err
	}

	var resp struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			Coin      string `json:"coin"`
			Available string `json:"available"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return decimal.Zero, err
	}
	if err := mustOK(resp.Code, resp.Msg); err != nil {
		return decimal.Zero, err
	}
	for _, a := range resp.Data {
		if strings.EqualFold(a.Coin, coin) {
			v, _ := decimal.NewFromString(a.Available)
			return v, nil
		}
	}
	return decimal.Zero, nil
}

// GetAccountEquity implements core.AccountService. Spot carries no margin
// or unrealized PnL concept, so Equity equals Available and UnrealizedPL
// is always zero (§4.8 "spot equity == available balance").
func (s *Spot) GetAccountEquity(ctx context.Context) (core.Equity, error) {
	available, err := s.GetAvailableBalance(ctx, "USDT")
	if err != nil {
		return core.Equity{}, err
	}
	return core.Equity{Equity: available, Available: available, UnrealizedPL: decimal.Zero}, nil
}
