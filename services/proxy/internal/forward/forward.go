// Package forward executes approved action links against their resolver
// and normalizes the reply into a transaction descriptor.
package forward

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
)

var (
	ErrProviderUnreachable = errors.New("action provider unreachable")
	// ErrUnsupportedPayload marks a well-formed reply the proxy refuses to
	// relay, such as a parallel batch.
	ErrUnsupportedPayload = errors.New("unsupported provider payload")
)

// InvalidResponseError wraps a reply that parsed as JSON but carries no
// usable transaction.
type InvalidResponseError struct {
	Raw string
}

func (e *InvalidResponseError) Error() string {
	return "invalid provider response"
}

// ExecutionFailedError is a non-2xx reply from the provider.
type ExecutionFailedError struct {
	Status int
	Body   string
}

func (e *ExecutionFailedError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.Status, e.Body)
}

const (
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 1 << 20
)

// Forwarder proxies POST requests to allow-listed resolvers. The account
// string is the only caller data that crosses to the provider.
type Forwarder struct {
	Policy  allowlist.Policy
	HTTP    *http.Client
	APIKey  string
	Timeout time.Duration
	Log     zerolog.Logger
}

func New(policy allowlist.Policy, log zerolog.Logger) *Forwarder {
	return &Forwarder{
		Policy:  policy,
		HTTP:    &http.Client{},
		Timeout: defaultTimeout,
		Log:     log,
	}
}

// providerReply covers the shapes resolvers answer with: a single
// transaction, or a batch with an optional execution mode. Type, when
// present, must agree with the populated field.
type providerReply struct {
	Type         string   `json:"type"`
	Transaction  string   `json:"transaction"`
	Transactions []string `json:"transactions"`
	Mode         string   `json:"mode"`
	Message      string   `json:"message"`
}

// Execute re-validates the target, relays the account to the resolver and
// returns the normalized descriptor. Validation failure here means the
// caller bypassed the link builder; it is a hard reject, not a provider
// fault.
func (f *Forwarder) Execute(ctx context.Context, actionURL, account string) (actionlink.Descriptor, error) {
	if err := f.Policy.AssertAllowed(actionURL); err != nil {
		return actionlink.Descriptor{}, err
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, _ := json.Marshal(map[string]string{"type": "transaction", "account": account})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, actionURL, bytes.NewReader(body))
	if err != nil {
		return actionlink.Descriptor{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if f.APIKey != "" {
		req.Header.Set("X-Api-Key", f.APIKey)
	}

	resp, err := f.HTTP.Do(req)
	if err != nil {
		f.Log.Warn().Err(err).Str("action_url", actionURL).Msg("provider call failed")
		return actionlink.Descriptor{}, fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return actionlink.Descriptor{}, fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return actionlink.Descriptor{}, &ExecutionFailedError{Status: resp.StatusCode, Body: string(raw)}
	}

	var reply providerReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return actionlink.Descriptor{}, &InvalidResponseError{Raw: string(raw)}
	}
	return normalize(reply, raw)
}

func normalize(reply providerReply, raw []byte) (actionlink.Descriptor, error) {
	switch {
	case reply.Transaction != "":
		if reply.Type != "" && reply.Type != "transaction" {
			return actionlink.Descriptor{}, fmt.Errorf("%w: type %q with a single transaction", ErrUnsupportedPayload, reply.Type)
		}
		return actionlink.Descriptor{Kind: actionlink.KindSingle, TxBlob: reply.Transaction}, nil
	case len(reply.Transactions) > 0:
		if reply.Type != "" && reply.Type != "transactions" {
			return actionlink.Descriptor{}, fmt.Errorf("%w: type %q with a transaction list", ErrUnsupportedPayload, reply.Type)
		}
		mode := reply.Mode
		if mode == "" {
			mode = actionlink.ModeSequential
		}
		if mode != actionlink.ModeSequential {
			return actionlink.Descriptor{}, fmt.Errorf("%w: batch mode %q", ErrUnsupportedPayload, mode)
		}
		for _, blob := range reply.Transactions {
			if blob == "" {
				return actionlink.Descriptor{}, &InvalidResponseError{Raw: string(raw)}
			}
		}
		return actionlink.Descriptor{Kind: actionlink.KindBatch, TxBlobs: reply.Transactions, Mode: mode}, nil
	default:
		// Parsed fine but carries no transaction, e.g. an informational
		// action response. Refused, not malformed.
		return actionlink.Descriptor{}, ErrUnsupportedPayload
	}
}
