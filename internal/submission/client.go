package submission

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	json "github.com/goccy/go-json"
	"github.com/mselser95/predict-trader/pkg/types"
	"go.uber.org/zap"
)

// ErrSubmissionInFlight is returned when Submit is called while another submission on
// the same client has not finished.
var ErrSubmissionInFlight = errors.New("an order submission is already in flight")

// ErrNoToken is returned when no bearer token is available.
var ErrNoToken = errors.New("no bearer token: run login first")

// TokenSource supplies the current bearer token.
type TokenSource interface {
	Token() string
}

// StaticToken is a fixed bearer token.
type StaticToken string

// Token returns the token.
func (s StaticToken) Token() string { return string(s) }

// Request is one signed order ready for submission.
type Request struct {
	Order    *types.SignedOrder
	Strategy types.Kind
	// PricePerShare is 18-decimal scaled; nil is sent as "0".
	PricePerShare *big.Int
}

// Result is the backend's acknowledgement of an accepted order.
type Result struct {
	OrderID   string
	OrderHash string
	Code      string
}

// Client posts signed orders to the backend.
type Client struct {
	baseURL    string
	apiKey     string
	tokens     TokenSource
	httpClient *http.Client
	logger     *zap.Logger
	inFlight   atomic.Bool
}

// Config holds submission client configuration.
type Config struct {
	BaseURL    string
	APIKey     string
	Tokens     TokenSource
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// New creates a submission client.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.BaseURL == "" {
		return nil, errors.New("base URL cannot be empty")
	}

	if cfg.Tokens == nil {
		return nil, errors.New("token source cannot be nil")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		tokens:     cfg.Tokens,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}, nil
}

type orderJSON struct {
	Hash          string `json:"hash"`
	Salt          string `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          int    `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

type requestData struct {
	PricePerShare string    `json:"pricePerShare"`
	Strategy      string    `json:"strategy"`
	Order         orderJSON `json:"order"`
}

type requestBody struct {
	Data requestData `json:"data"`
}

type responseBody struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

// BuildBody renders the POST /orders body for req.
func BuildBody(req *Request) ([]byte, error) {
	if req == nil || req.Order == nil {
		return nil, errors.New("signed order cannot be nil")
	}

	o := req.Order.Order
	price := "0"
	if req.PricePerShare != nil {
		price = req.PricePerShare.String()
	}

	body := requestBody{
		Data: requestData{
			PricePerShare: price,
			Strategy:      string(req.Strategy),
			Order: orderJSON{
				Hash:          req.Order.Hash.Hex(),
				Salt:          intString(o.Salt),
				Maker:         o.Maker.Hex(),
				Signer:        o.Signer.Hex(),
				Taker:         o.Taker.Hex(),
				TokenID:       intString(o.TokenID),
				MakerAmount:   intString(o.MakerAmount),
				TakerAmount:   intString(o.TakerAmount),
				Expiration:    intString(o.Expiration),
				Nonce:         intString(o.Nonce),
				FeeRateBps:    intString(o.FeeRateBps),
				Side:          int(o.Side),
				SignatureType: int(o.SignatureType),
				Signature:     hexutil.Encode(req.Order.Signature),
			},
		},
	}

	return json.Marshal(body)
}

// Submit posts a signed order. Only one submission runs at a time per client; a
// concurrent call fails with ErrSubmissionInFlight without touching the network.
func (c *Client) Submit(ctx context.Context, req *Request) (*Result, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		OrdersSubmittedTotal.WithLabelValues("busy", strategyLabel(req)).Inc()
		return nil, ErrSubmissionInFlight
	}
	defer c.inFlight.Store(false)

	result, err := c.submit(ctx, req)

	label := "accepted"
	switch {
	case errors.Is(err, types.ErrSubmissionRejected):
		label = "rejected"
	case errors.Is(err, types.ErrTransport):
		label = "transport"
	case err != nil:
		label = "error"
	}
	OrdersSubmittedTotal.WithLabelValues(label, strategyLabel(req)).Inc()

	return result, err
}

func (c *Client) submit(ctx context.Context, req *Request) (*Result, error) {
	token := c.tokens.Token()
	if token == "" {
		return nil, ErrNoToken
	}

	payload, err := BuildBody(req)
	if err != nil {
		return nil, fmt.Errorf("build order body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	if c.apiKey != "" {
		httpReq.Header.Set("x-api-key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	SubmitDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: send order: %w", types.ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", types.ErrTransport, err)
	}

	var body responseBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("%w: status %d: non-JSON response: %s",
			types.ErrTransport, resp.StatusCode, truncate(string(raw), 200))
	}

	if !body.Success {
		rejected := &types.SubmissionRejectedError{
			StatusCode:  resp.StatusCode,
			Code:        errorCode(body.Error),
			Description: errorDescription(&body),
		}
		c.logger.Warn("order-rejected",
			zap.String("order-hash", req.Order.Hash.Hex()),
			zap.Int("status", resp.StatusCode),
			zap.String("description", rejected.Description))
		return nil, rejected
	}

	result := &Result{OrderHash: req.Order.Hash.Hex()}
	if len(body.Data) > 0 {
		var data struct {
			Code      string     `json:"code"`
			OrderID   flexString `json:"orderId"`
			OrderHash string     `json:"orderHash"`
		}
		if json.Unmarshal(body.Data, &data) == nil {
			result.Code = data.Code
			result.OrderID = string(data.OrderID)
			if data.OrderHash != "" {
				result.OrderHash = data.OrderHash
			}
		}
	}

	c.logger.Info("order-submitted",
		zap.String("order-hash", result.OrderHash),
		zap.String("order-id", result.OrderID),
		zap.String("strategy", string(req.Strategy)))

	return result, nil
}

// errorDescription picks error.description, then error as a string, then message.
func errorDescription(body *responseBody) string {
	if len(body.Error) > 0 {
		var obj struct {
			Description string `json:"description"`
		}
		if json.Unmarshal(body.Error, &obj) == nil && obj.Description != "" {
			return obj.Description
		}

		var text string
		if json.Unmarshal(body.Error, &text) == nil && text != "" {
			return text
		}
	}

	if body.Message != "" {
		return body.Message
	}
	return "order submission failed"
}

func errorCode(raw json.RawMessage) string {
	var obj struct {
		Code flexString `json:"code"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &obj) != nil {
		return ""
	}
	return string(obj.Code)
}

// flexString decodes a JSON string or number as its text.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(data)
	return nil
}

func intString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func strategyLabel(req *Request) string {
	if req == nil {
		return ""
	}
	return string(req.Strategy)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
