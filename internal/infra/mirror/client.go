// Package mirror reads transactions and accounts from a mirror node REST API.
package mirror

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/aliaswatch/internal/core/domain"
)

// MaxPageSize is the largest limit the mirror node accepts.
const MaxPageSize = 100

// HealthStatus tracks recent request outcomes.
type HealthStatus struct {
	Available     bool
	Latency       time.Duration
	ErrorRate     float64
	LastSuccessAt time.Time
	LastFailureAt time.Time
}

// Client talks to a mirror node. It implements the scanner's transaction
// source and the reconciler's entity lookup.
type Client struct {
	name       string
	baseURL    string
	httpClient *http.Client
	retry      RetryConfig

	mu           sync.RWMutex
	health       HealthStatus
	totalLatency time.Duration
	successCount int
	failureCount int
	requestCount int
}

// NewClient creates a mirror client for baseURL, e.g.
// https://mainnet-public.mirrornode.hedera.com.
func NewClient(name, baseURL string, timeout time.Duration, retry RetryConfig) *Client {
	return &Client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: retry,
		health: HealthStatus{
			Available:     true,
			LastSuccessAt: time.Now(),
		},
	}
}

// Name returns the client's name.
func (c *Client) Name() string {
	return c.name
}

type transactionsResponse struct {
	Transactions []transactionJSON `json:"transactions"`
}

type transactionJSON struct {
	ConsensusTimestamp string         `json:"consensus_timestamp"`
	TransactionID      string         `json:"transaction_id"`
	Name               string         `json:"name"`
	Result             string         `json:"result"`
	Bytes              *string        `json:"bytes"`
	Nonce              int64          `json:"nonce"`
	Scheduled          bool           `json:"scheduled"`
	Transfers          []transferJSON `json:"transfers"`
}

type transferJSON struct {
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

type accountResponse struct {
	Account    string `json:"account"`
	EVMAddress string `json:"evm_address"`
}

// Fetch returns up to limit transactions of the given kinds with a consensus
// timestamp after the given position, ascending. The mirror node filters one
// type per request, so kinds are queried separately and merged.
func (c *Client) Fetch(
	ctx context.Context,
	after domain.Position,
	kinds []domain.TxKind,
	limit int,
) ([]domain.SourceTransaction, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}

	var merged []domain.SourceTransaction
	for _, kind := range kinds {
		q := url.Values{}
		q.Set("timestamp", "gt:"+after.String())
		q.Set("transactiontype", string(kind))
		q.Set("order", "asc")
		q.Set("limit", strconv.Itoa(limit))

		var resp transactionsResponse
		if err := c.get(ctx, "/api/v1/transactions?"+q.Encode(), &resp); err != nil {
			return nil, fmt.Errorf("list %s transactions: %w", kind, err)
		}
		for _, raw := range resp.Transactions {
			tx, err := raw.toDomain()
			if err != nil {
				return nil, fmt.Errorf("parse transaction %s: %w", raw.TransactionID, err)
			}
			merged = append(merged, tx)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Position < merged[j].Position
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

func (t transactionJSON) toDomain() (domain.SourceTransaction, error) {
	pos, err := domain.ParsePosition(t.ConsensusTimestamp)
	if err != nil {
		return domain.SourceTransaction{}, err
	}

	var envelope []byte
	if t.Bytes != nil && *t.Bytes != "" {
		envelope, err = base64.StdEncoding.DecodeString(*t.Bytes)
		if err != nil {
			return domain.SourceTransaction{}, fmt.Errorf("decode bytes: %w", err)
		}
	}

	settlement := make([]domain.AccountAmount, 0, len(t.Transfers))
	for _, tr := range t.Transfers {
		id, err := domain.ParseEntityID(tr.Account)
		if err != nil {
			return domain.SourceTransaction{}, err
		}
		settlement = append(settlement, domain.AccountAmount{Account: id, Amount: tr.Amount})
	}

	return domain.SourceTransaction{
		ID:         domain.QualifyTransactionID(t.TransactionID, t.Nonce, t.Scheduled),
		Position:   pos,
		Kind:       domain.TxKind(t.Name),
		Result:     domain.TxResult(t.Result),
		Envelope:   envelope,
		Settlement: settlement,
	}, nil
}

// ResolveAlias looks up the entity the ledger created for addr. ok is false
// when the mirror node does not know the address.
func (c *Client) ResolveAlias(ctx context.Context, addr domain.Address) (domain.EntityID, bool, error) {
	var resp accountResponse
	err := c.get(ctx, "/api/v1/accounts/"+addr.Hex(), &resp)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return domain.EntityID{}, false, nil
	}
	if err != nil {
		return domain.EntityID{}, false, fmt.Errorf("get account %s: %w", addr, err)
	}

	id, err := domain.ParseEntityID(resp.Account)
	if err != nil {
		return domain.EntityID{}, false, err
	}
	return id, true, nil
}

// get performs a GET with retries and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	return withRetry(ctx, c.retry, func() error {
		start := time.Now()
		err := c.do(ctx, path, out)
		// A 404 is an answer, not a failure of the node.
		var se *StatusError
		if err != nil && !(errors.As(err, &se) && se.Code == http.StatusNotFound) {
			c.recordFailure()
			return err
		}
		c.recordSuccess(time.Since(start))
		return err
	})
}

func (c *Client) do(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mirror call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// GetHealth returns the client's health status.
func (c *Client) GetHealth() HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.health
}

// Close cleans up resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) recordSuccess(latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.successCount++
	c.requestCount++
	c.totalLatency += latency
	c.health.LastSuccessAt = time.Now()
	c.health.Available = true
	c.health.ErrorRate = float64(c.failureCount) / float64(c.requestCount)
	c.health.Latency = c.totalLatency / time.Duration(c.successCount)
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failureCount++
	c.requestCount++
	c.health.LastFailureAt = time.Now()
	c.health.ErrorRate = float64(c.failureCount) / float64(c.requestCount)
	if c.health.ErrorRate > 0.5 {
		c.health.Available = false
	}
}
