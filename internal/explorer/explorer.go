// Package explorer submits contract source verification to Etherscan-compatible block explorers.
package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Sentinel errors
var (
	ErrMissingAPIKey      = errors.New("explorer: api key is not set")
	ErrVerificationFailed = errors.New("explorer: verification failed")
	ErrNotIndexed         = errors.New("explorer: contract not yet indexed")
)

// Status is the outcome reported by checkverifystatus.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusFailed   Status = "failed"
)

const (
	defaultPollInterval = 5 * time.Second
	codeFormat          = "solidity-standard-json-input"
)

// Client talks to one explorer API.
type Client struct {
	apiURL       string
	apiKey       string
	chainID      int64
	httpClient   *http.Client
	pollInterval time.Duration
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithPollInterval sets how often WaitVerified checks the status.
func WithPollInterval(d time.Duration) Option {
	return func(cl *Client) { cl.pollInterval = d }
}

// WithChainID selects the chain on multichain endpoints such as the Etherscan V2 API.
func WithChainID(id int64) Option {
	return func(cl *Client) { cl.chainID = id }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New creates a Client. An empty apiKey yields ErrMissingAPIKey.
func New(apiURL, apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if apiURL == "" {
		return nil, fmt.Errorf("explorer api url is required")
	}
	c := &Client{
		apiURL:       apiURL,
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		pollInterval: defaultPollInterval,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// VerifyRequest is a standard-json-input verification submission.
type VerifyRequest struct {
	Address common.Address
	// ContractName is fully qualified, e.g. "contracts/Claims.sol:Claims".
	ContractName string
	// CompilerVersion is the long solc version, e.g. "v0.8.20+commit.a1b79de6".
	CompilerVersion string
	// SourceCode is the solc standard JSON input.
	SourceCode      json.RawMessage
	ConstructorArgs []byte
}

type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

// Verify submits source code and returns the explorer's GUID for status checks.
// A contract that is already verified returns an empty GUID and no error.
func (c *Client) Verify(ctx context.Context, req VerifyRequest) (string, error) {
	form := url.Values{}
	form.Set("apikey", c.apiKey)
	form.Set("module", "contract")
	form.Set("action", "verifysourcecode")
	form.Set("contractaddress", req.Address.Hex())
	form.Set("sourceCode", string(req.SourceCode))
	form.Set("codeformat", codeFormat)
	form.Set("contractname", req.ContractName)
	form.Set("compilerversion", req.CompilerVersion)
	// The misspelling is part of the Etherscan API.
	form.Set("constructorArguements", strings.TrimPrefix(hexutil.Encode(req.ConstructorArgs), "0x"))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(nil), strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.do(httpReq)
	if err != nil {
		return "", err
	}

	if resp.Status != "1" {
		if isAlreadyVerified(resp.Result) {
			c.logger.Info("contract already verified", slog.String("address", req.Address.Hex()))
			return "", nil
		}
		if strings.Contains(strings.ToLower(resp.Result), "unable to locate contractcode") {
			return "", fmt.Errorf("%w: %s", ErrNotIndexed, resp.Result)
		}
		return "", fmt.Errorf("%w: %s", ErrVerificationFailed, resp.Result)
	}

	c.logger.Info("verification submitted",
		slog.String("address", req.Address.Hex()),
		slog.String("guid", resp.Result),
	)
	return resp.Result, nil
}

// CheckStatus queries the verification status of a submission.
func (c *Client) CheckStatus(ctx context.Context, guid string) (Status, string, error) {
	q := url.Values{}
	q.Set("apikey", c.apiKey)
	q.Set("module", "contract")
	q.Set("action", "checkverifystatus")
	q.Set("guid", guid)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(q), nil)
	if err != nil {
		return "", "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.do(httpReq)
	if err != nil {
		return "", "", err
	}

	result := strings.ToLower(resp.Result)
	switch {
	case strings.Contains(result, "pending"):
		return StatusPending, resp.Result, nil
	case resp.Status == "1", isAlreadyVerified(resp.Result):
		return StatusVerified, resp.Result, nil
	default:
		return StatusFailed, resp.Result, nil
	}
}

// WaitVerified polls CheckStatus until the submission passes or fails.
func (c *Client) WaitVerified(ctx context.Context, guid string) error {
	if guid == "" {
		return nil
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		status, detail, err := c.CheckStatus(ctx, guid)
		if err != nil {
			return err
		}
		switch status {
		case StatusVerified:
			c.logger.Info("contract verified", slog.String("guid", guid))
			return nil
		case StatusFailed:
			return fmt.Errorf("%w: %s", ErrVerificationFailed, detail)
		}

		c.logger.Debug("verification pending", slog.String("guid", guid))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// endpoint returns the API URL with q and the chain id appended as query parameters.
func (c *Client) endpoint(q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	if c.chainID != 0 {
		q.Set("chainid", strconv.FormatInt(c.chainID, 10))
	}
	if len(q) == 0 {
		return c.apiURL
	}
	sep := "?"
	if strings.Contains(c.apiURL, "?") {
		sep = "&"
	}
	return c.apiURL + sep + q.Encode()
}

func (c *Client) do(req *http.Request) (*apiResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("explorer request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("explorer returned %d: %s", resp.StatusCode, string(body))
	}

	var out apiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &out, nil
}

func isAlreadyVerified(result string) bool {
	return strings.Contains(strings.ToLower(result), "already verified")
}

// BrowserAddressURL returns the explorer page for an address, or "" when browserURL is empty.
func BrowserAddressURL(browserURL string, addr common.Address) string {
	if browserURL == "" {
		return ""
	}
	return strings.TrimSuffix(browserURL, "/") + "/address/" + addr.Hex()
}
