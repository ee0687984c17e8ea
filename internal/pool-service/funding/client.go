package funding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	fdto "github.com/radieske/pool-bet-platform-poc/internal/pool-service/funding/dto"
)

// Client fala com o wallet-service, o collaborator de custódia. Falha HTTP é
// devolvida como erro comum; quem decide a semântica (abortar, repetir,
// manter na fila) é o motor.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(base string) *Client {
	return &Client{
		BaseURL: base,
		HTTP:    &http.Client{Timeout: 2 * time.Second},
	}
}

// TransferFrom debita o holder e credita a conta de custódia.
func (c *Client) TransferFrom(ctx context.Context, holder string, amountCents int64, ref string) error {
	return c.post(ctx, "/wallet/debit", fdto.DebitRequest{
		UserID:      holder,
		AmountCents: amountCents,
		ExternalRef: ref,
	})
}

// Transfer debita a conta de custódia e credita o recipient.
func (c *Client) Transfer(ctx context.Context, recipient string, amountCents int64, ref string) error {
	return c.post(ctx, "/wallet/credit", fdto.CreditRequest{
		UserID:      recipient,
		AmountCents: amountCents,
		ExternalRef: ref,
	})
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return fmt.Errorf("wallet %s http %d", path, res.StatusCode)
	}
	return nil
}
