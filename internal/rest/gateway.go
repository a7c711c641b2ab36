// Package rest implements the signed HTTP gateway to the exchange. It owns
// header construction and error mapping only; retry policy belongs to
// callers.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"backpackflow/internal/exerr"
	"backpackflow/internal/sign"
	"backpackflow/logger"
)

const apiPrefix = "/api/v1"

// Gateway issues signed and unsigned requests against the exchange REST API.
type Gateway struct {
	signer  *sign.Signer
	client  *http.Client
	limiter *rate.Limiter
	log     *logger.Log
}

// NewGateway builds a gateway with an explicit per-call timeout and a client
// side rate limiter.
func NewGateway(signer *sign.Signer, timeout time.Duration, requestsPerSecond, burst int) *Gateway {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 10
	}
	if burst <= 0 {
		burst = requestsPerSecond
	}
	return &Gateway{
		signer:  signer,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		log:     logger.GetLogger(),
	}
}

// Do issues a signed request. endpoint is the path under /api/v1 including
// any query string, e.g. "/orders?symbol=BTC_USDC_PERP". The decoded JSON
// body is stored into out when out is non-nil.
func (g *Gateway) Do(ctx context.Context, method, endpoint string, body []byte, out interface{}) error {
	path := apiPrefix + endpoint
	timestamp := time.Now().UnixMilli()

	signature, err := g.signer.SignRequest(method, path, body, timestamp, sign.WindowMs)
	if err != nil {
		return err
	}

	headers := map[string]string{
		"X-API-Key":    g.signer.PublicKey(),
		"X-Timestamp":  strconv.FormatInt(timestamp, 10),
		"X-Window":     strconv.FormatInt(sign.WindowMs, 10),
		"X-Signature":  signature,
		"Content-Type": "application/json",
	}
	return g.send(ctx, method, path, headers, body, out)
}

// DoUnsigned issues a request without authentication headers, used for
// public market metadata.
func (g *Gateway) DoUnsigned(ctx context.Context, method, endpoint string, out interface{}) error {
	return g.send(ctx, method, apiPrefix+endpoint, nil, nil, out)
}

func (g *Gateway) send(ctx context.Context, method, path string, headers map[string]string, body []byte, out interface{}) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return exerr.Wrap(exerr.KindRestAPI, err, "rate limiter interrupted")
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.signer.BaseURL()+path, reader)
	if err != nil {
		return exerr.Wrap(exerr.KindRestAPI, err, "failed to build request")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	logger.IncrementRestCall()

	resp, err := g.client.Do(req)
	if err != nil {
		return exerr.Wrap(exerr.KindRestAPI, err, "request failed: %s %s", method, path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return exerr.Wrap(exerr.KindRestAPI, err, "failed to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return exerr.RestAPI(resp.StatusCode, "HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return exerr.Wrap(exerr.KindRestAPI, err, "failed to parse response: %s", string(respBody))
	}
	return nil
}
