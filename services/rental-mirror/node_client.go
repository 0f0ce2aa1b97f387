package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// NodeClient is the thin JSON-RPC client used by the mirror to read from the
// engine node.
type NodeClient interface {
	FetchEvents(ctx context.Context, after uint64, limit int) (EventsPage, error)
	FetchItems(ctx context.Context) ([]NodeItem, error)
}

// RPCNodeClient implements NodeClient against the engine's JSON-RPC server.
type RPCNodeClient struct {
	baseURL   string
	authToken string
	http      *http.Client
	nextID    atomic.Int64
}

func NewRPCNodeClient(baseURL, authToken string) *RPCNodeClient {
	return &RPCNodeClient{
		baseURL:   baseURL,
		authToken: authToken,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int64       `json:"id"`
}

type jsonRPCResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      int64            `json:"id"`
	Result  json.RawMessage  `json:"result"`
	Error   *jsonRPCErrorObj `json:"error"`
}

type jsonRPCErrorObj struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// NodeEvent represents one sequenced engine event.
type NodeEvent struct {
	Sequence   uint64            `json:"sequence"`
	Timestamp  int64             `json:"timestamp"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// EventsPage is a cursor read result. Oldest reports the start of the node's
// retention window so consumers can detect missed events.
type EventsPage struct {
	Events []NodeEvent `json:"events"`
	Last   uint64      `json:"lastSequence"`
	Oldest uint64      `json:"oldestSequence"`
}

// NodeItem mirrors the item snapshot returned by the node.
type NodeItem struct {
	ID            uint64 `json:"id"`
	Owner         string `json:"owner"`
	Description   string `json:"description"`
	RatePerPeriod uint64 `json:"ratePerPeriod"`
	Deposit       uint64 `json:"deposit"`
	Status        string `json:"status"`
	Renter        string `json:"renter,omitempty"`
}

func (c *RPCNodeClient) FetchEvents(ctx context.Context, after uint64, limit int) (EventsPage, error) {
	params := map[string]interface{}{
		"after": after,
	}
	if limit > 0 {
		params["limit"] = limit
	}
	var result EventsPage
	if err := c.call(ctx, "rental_getEvents", []interface{}{params}, &result); err != nil {
		return EventsPage{}, err
	}
	return result, nil
}

func (c *RPCNodeClient) FetchItems(ctx context.Context) ([]NodeItem, error) {
	var result []NodeItem
	if err := c.call(ctx, "rental_listItems", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *RPCNodeClient) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	id := c.nextID.Add(1)
	bodyStruct := jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      id,
	}
	buf, err := json.Marshal(bodyStruct)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.authToken) != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("node rpc %s failed: status=%d body=%s", method, resp.StatusCode, string(body))
	}
	var rpcResp jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return err
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("node rpc error: %s", rpcResp.Error.Message)
	}
	if out == nil {
		return nil
	}
	if len(rpcResp.Result) == 0 {
		return errors.New("node rpc returned empty result")
	}
	return json.Unmarshal(rpcResp.Result, out)
}
