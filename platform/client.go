package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Ashenafi-pixel/gamecrafter-crash-engine/round"
)

// Client calls the platform balance APIs on behalf of participants.
type Client struct {
	baseURL      string
	apiKey       string
	currency     string
	gameName     string
	gameProvider string
	http         *http.Client
}

var _ round.Wallet = (*Client)(nil)

func NewClient(baseURL, apiKey, currency string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:3000"
	}
	if currency == "" {
		currency = "USD"
	}
	return &Client{
		baseURL:      baseURL,
		apiKey:       apiKey,
		currency:     currency,
		gameName:     "Crash",
		gameProvider: "Crypto LATAM",
		http:         &http.Client{Timeout: 10 * time.Second},
	}
}

// balanceMove is the body of bet and win calls. The platform applies a
// txId at most once and answers a repeat with the original result.
type balanceMove struct {
	TxID         string `json:"txId"`
	Participant  string `json:"participant"`
	Currency     string `json:"currency"`
	Amount       int64  `json:"amount"`
	GameName     string `json:"gameName"`
	GameProvider string `json:"gameProvider"`
}

type platformResponse struct {
	Balances map[string]int64 `json:"balances"`
	Error    string           `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (*platformResponse, int, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, 0, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	var data platformResponse
	_ = json.Unmarshal(respBody, &data)
	return &data, resp.StatusCode, nil
}

// GetBalance returns the participant's balance in the client currency.
func (c *Client) GetBalance(ctx context.Context, participant string) (int64, error) {
	const op = "platform.Client.GetBalance"

	data, status, err := c.do(ctx, http.MethodGet, "/api/balance?participant="+url.QueryEscape(participant), nil)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("%s: platform: %d %s", op, status, data.Error)
	}
	return data.Balances[c.currency], nil
}

// Debit places the stake with the platform.
func (c *Client) Debit(ctx context.Context, txID, participant string, amount int64) error {
	const op = "platform.Client.Debit"

	data, status, err := c.do(ctx, http.MethodPost, "/api/balance/bet", c.move(txID, participant, amount))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	switch status {
	case http.StatusOK:
		return nil
	case http.StatusPaymentRequired:
		return fmt.Errorf("%s: %w", op, round.ErrInsufficientBalance)
	default:
		return fmt.Errorf("%s: platform: %d %s", op, status, data.Error)
	}
}

// Credit pays out a win or refunds a stake.
func (c *Client) Credit(ctx context.Context, txID, participant string, amount int64) error {
	const op = "platform.Client.Credit"

	data, status, err := c.do(ctx, http.MethodPost, "/api/balance/win", c.move(txID, participant, amount))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("%s: platform: %d %s", op, status, data.Error)
	}
	return nil
}

func (c *Client) move(txID, participant string, amount int64) balanceMove {
	return balanceMove{
		TxID:         txID,
		Participant:  participant,
		Currency:     c.currency,
		Amount:       amount,
		GameName:     c.gameName,
		GameProvider: c.gameProvider,
	}
}
