// Package agreeclient is the HTTP client for the agreements service.
package agreeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"actionlane/pkg/agreement"
)

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{},
	}
}

// View is the agreement as the service reports it: immutable terms,
// current receipt, and the derived display status.
type View struct {
	Agreement agreement.Terms   `json:"agreement"`
	Receipt   agreement.Receipt `json:"receipt"`
	Status    agreement.Status  `json:"status"`
}

type CreateRequest struct {
	Title        string     `json:"title"`
	Body         string     `json:"body,omitempty"`
	Participants [2]string  `json:"participants"`
	CreatedBy    string     `json:"createdBy"`
	Payer        string     `json:"payer,omitempty"`
	Payee        string     `json:"payee,omitempty"`
	Amount       string     `json:"amount,omitempty"`
	Token        string     `json:"token,omitempty"`
	Deadline     *time.Time `json:"deadline,omitempty"`
}

func (c *Client) Create(ctx context.Context, in CreateRequest) (*View, error) {
	return c.post(ctx, "/agreements/", in)
}

func (c *Client) Get(ctx context.Context, id string) (*View, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/agreements/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	return doJSON[View](c, req)
}

// PrepareSign returns the unsigned signing transaction, or nil when the
// step is an off-chain acknowledgement.
func (c *Client) PrepareSign(ctx context.Context, id, signer string, offchain bool) (*string, error) {
	out, err := postJSON[struct {
		Transaction *string `json:"transaction"`
	}](ctx, c, "/agreements/"+url.PathEscape(id)+":prepareSign", map[string]any{"signer": signer, "offchain": offchain})
	if err != nil {
		return nil, err
	}
	return out.Transaction, nil
}

// Sign records one signing step. An empty txSig requests the off-chain
// acknowledgement.
func (c *Client) Sign(ctx context.Context, id, signer, txSig string) (*View, error) {
	return c.post(ctx, "/agreements/"+url.PathEscape(id)+":sign", map[string]string{"signer": signer, "txSig": txSig})
}

func (c *Client) AttachSettlement(ctx context.Context, id, account, txSig string) (*View, error) {
	return c.post(ctx, "/agreements/"+url.PathEscape(id)+"/settlement", map[string]string{"account": account, "txSig": txSig})
}

type VerifyResponse struct {
	Verified bool   `json:"verified"`
	Hash     string `json:"hash"`
}

func (c *Client) Verify(ctx context.Context, id string) (*VerifyResponse, error) {
	return postJSON[VerifyResponse](ctx, c, "/agreements/"+url.PathEscape(id)+":verify", map[string]string{})
}

// Export fetches the downloadable terms document.
func (c *Client) Export(ctx context.Context, id string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/agreements/"+url.PathEscape(id)+"/export", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var errBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return nil, fmt.Errorf("http %d: %v", resp.StatusCode, errBody)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Client) post(ctx context.Context, path string, in any) (*View, error) {
	return postJSON[View](ctx, c, path, in)
}

func postJSON[T any](ctx context.Context, c *Client, path string, in any) (*T, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON[T](c, req)
}

func doJSON[T any](c *Client, req *http.Request) (*T, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var errBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return nil, fmt.Errorf("http %d: %v", resp.StatusCode, errBody)
	}
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
