// Package execclient drives an approved action link to completion from the
// signing party's side: resolve through the execution proxy, deserialize,
// sign, submit, confirm. Failures are classified, not merely caught; the
// external wallet deeplink is the only retry mechanism and it is handed to
// the user, never invoked automatically against the proxy.
package execclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"actionlane/pkg/actionlink"
	"actionlane/pkg/allowlist"
	"actionlane/pkg/txcodec"
	"actionlane/pkg/wallet"
)

var (
	// ErrUserCancelled: the signer declined. Soft, final, no fallback.
	ErrUserCancelled = errors.New("user cancelled signing")
	// ErrTimedOut: the execution deadline fired. Soft, fallback offered.
	ErrTimedOut = errors.New("action timed out")
)

// ProxyError is a non-success reply from the execution proxy.
type ProxyError struct {
	Status int
	Body   string
}

func (e *ProxyError) Error() string {
	return fmt.Sprintf("proxy returned %d: %s", e.Status, e.Body)
}

const DefaultTimeout = 15 * time.Second

type Client struct {
	HTTP    *http.Client
	Policy  allowlist.Policy
	Timeout time.Duration
	Log     zerolog.Logger
}

func New(policy allowlist.Policy, log zerolog.Logger) *Client {
	return &Client{
		HTTP:    &http.Client{},
		Policy:  policy,
		Timeout: DefaultTimeout,
		Log:     log,
	}
}

// Result carries the ordered submitted signatures. The last one is the
// canonical signature for receipts. Fallback reports that the wallet
// deeplink was opened externally.
type Result struct {
	Signatures []string
	Fallback   bool
}

// Signature returns the canonical (last) signature, if any.
func (r Result) Signature() string {
	if len(r.Signatures) == 0 {
		return ""
	}
	return r.Signatures[len(r.Signatures)-1]
}

// Run executes the link with the session's capabilities. Batch descriptors
// are processed strictly in array order; the first failure aborts the rest.
func (c *Client) Run(ctx context.Context, link actionlink.Link, sess wallet.Session) (Result, error) {
	// Every link is re-validated here. An allow-list violation is a hard
	// error and the destination is never opened.
	if err := c.Policy.AssertAllowed(link.ResolverURL); err != nil {
		return Result{}, err
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	desc, err := c.resolve(ctx, link.ProxyURL, sess.Account)
	if err != nil {
		return c.softFail(link, sess, Result{}, err)
	}
	if desc.Kind == actionlink.KindBatch && desc.Mode != actionlink.ModeSequential {
		return c.softFail(link, sess, Result{}, fmt.Errorf("unsupported batch mode %q", desc.Mode))
	}
	blobs := desc.Blobs()
	if len(blobs) == 0 {
		return c.softFail(link, sess, Result{}, fmt.Errorf("descriptor kind %q carries no transactions", desc.Kind))
	}

	var res Result
	for i, blob := range blobs {
		tx, err := txcodec.Decode(blob)
		if err != nil {
			return c.softFail(link, sess, res, fmt.Errorf("transaction %d: %w", i, err))
		}
		sig, err := sess.Signer.SignAndSend(ctx, tx)
		if err != nil {
			// User cancellation outranks every other classification.
			if wallet.IsUserDecline(err) {
				c.Log.Warn().Str("resolver", link.ResolverURL).Msg("user declined signing")
				return res, ErrUserCancelled
			}
			return c.softFail(link, sess, res, err)
		}
		if sess.Confirmer != nil {
			if err := sess.Confirmer.AwaitConfirmed(ctx, sig); err != nil {
				return c.softFail(link, sess, res, err)
			}
		}
		res.Signatures = append(res.Signatures, sig)
	}
	return res, nil
}

// softFail classifies err, opens the external wallet deeplink so the user
// can complete the action through the provider's own UI, and reports a
// retryable warning. Timeouts and provider errors share this path; only a
// user decline bypasses it.
func (c *Client) softFail(link actionlink.Link, sess wallet.Session, res Result, err error) (Result, error) {
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %s", ErrTimedOut, link.ResolverURL)
	}
	if sess.Opener != nil {
		if oerr := sess.Opener.Open(link.DeeplinkURL); oerr != nil {
			c.Log.Error().Err(oerr).Msg("external wallet fallback failed to open")
		} else {
			res.Fallback = true
		}
	}
	c.Log.Warn().Err(err).Bool("fallback", res.Fallback).Msg("action execution failed")
	return res, err
}

func (c *Client) resolve(ctx context.Context, proxyURL, account string) (actionlink.Descriptor, error) {
	body, _ := json.Marshal(map[string]string{"account": account})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, proxyURL, bytes.NewReader(body))
	if err != nil {
		return actionlink.Descriptor{}, err
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return actionlink.Descriptor{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return actionlink.Descriptor{}, &ProxyError{Status: resp.StatusCode, Body: string(raw)}
	}
	var desc actionlink.Descriptor
	if err := json.NewDecoder(resp.Body).Decode(&desc); err != nil {
		return actionlink.Descriptor{}, err
	}
	return desc, nil
}
