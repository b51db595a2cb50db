package operator

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/Ashenafi-pixel/gamecrafter-crash-engine/round"
)

const (
	// StatusInsufficientFunds is what operators answer a debit they cannot cover.
	StatusInsufficientFunds = "INSUFFICIENT_FUNDS"
	// StatusDuplicateTx answers a tx_id the operator has already applied.
	StatusDuplicateTx = "DUPLICATE_TX"
)

// Client is a seamless-wallet operator: every balance movement is a signed
// GET to the operator endpoint.
type Client struct {
	endpoint string
	secret   string
	gameCode string
	http     *http.Client
}

var _ round.Wallet = (*Client)(nil)

type Response struct {
	Code       int    `json:"code"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	Balance    int64  `json:"balance"`
	StatusCode int    `json:"-"`
}

func NewClient(endpoint, secret, gameCode string) *Client {
	if gameCode == "" {
		gameCode = "crash"
	}
	return &Client{
		endpoint: endpoint,
		secret:   secret,
		gameCode: gameCode,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) call(ctx context.Context, params map[string]string) (*Response, error) {
	values := url.Values{}
	for k, v := range params {
		if v != "" {
			values.Set(k, v)
		}
	}
	if c.secret != "" {
		values.Set("signature", Sign(c.secret, values))
	}
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, err
	}
	u.RawQuery = values.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed Response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	parsed.StatusCode = resp.StatusCode
	return &parsed, nil
}

// Sign is the HMAC-SHA256 over the values sorted by key, "action" and
// "signature" excluded.
func Sign(secret string, v url.Values) string {
	keys := make([]string, 0, len(v))
	for k := range v {
		if k == "action" || k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf := make([]byte, 0, 256)
	for _, k := range keys {
		buf = append(buf, v.Get(k)...)
	}
	m := hmac.New(sha256.New, []byte(secret))
	m.Write(buf)
	return hex.EncodeToString(m.Sum(nil))
}

func (c *Client) GetBalance(ctx context.Context, participant string) (int64, error) {
	const op = "operator.Client.GetBalance"

	resp, err := c.call(ctx, map[string]string{
		"action":    "balance",
		"player_id": participant,
		"game_code": c.gameCode,
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if err := resp.err(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return resp.Balance, nil
}

func (c *Client) Debit(ctx context.Context, txID, participant string, amount int64) error {
	const op = "operator.Client.Debit"

	resp, err := c.call(ctx, map[string]string{
		"action":     "debit",
		"player_id":  participant,
		"tx_id":      txID,
		"bet_amount": strconv.FormatInt(amount, 10),
		"game_code":  c.gameCode,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := resp.err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (c *Client) Credit(ctx context.Context, txID, participant string, amount int64) error {
	const op = "operator.Client.Credit"

	resp, err := c.call(ctx, map[string]string{
		"action":     "credit",
		"player_id":  participant,
		"tx_id":      txID,
		"win_amount": strconv.FormatInt(amount, 10),
		"game_code":  c.gameCode,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := resp.err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// err maps the reply to an error. A duplicate tx_id means an earlier attempt
// landed, which is success.
func (r *Response) err() error {
	if r.Status == StatusDuplicateTx {
		return nil
	}
	if r.Status == StatusInsufficientFunds {
		return round.ErrInsufficientBalance
	}
	if r.StatusCode != http.StatusOK || r.Code != 0 {
		return fmt.Errorf("operator: %d/%d %s", r.StatusCode, r.Code, r.Message)
	}
	return nil
}
