// Package proof checks whether a confirmed transaction carries an
// agreement hash, by asking a Solana RPC node for its log messages.
package proof

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// RPCVerifier implements agreement.Verifier against a JSON-RPC node. Only
// public data crosses the wire: the signature under inspection.
type RPCVerifier struct {
	URL  string
	HTTP *http.Client
	Log  zerolog.Logger
}

func New(url string, log zerolog.Logger) *RPCVerifier {
	return &RPCVerifier{
		URL:  url,
		HTTP: &http.Client{Timeout: 15 * time.Second},
		Log:  log,
	}
}

type rpcResponse struct {
	Result *struct {
		Meta struct {
			LogMessages []string `json:"logMessages"`
		} `json:"meta"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ContainsProof fetches the transaction and scans its logs for the hash.
// An unknown signature is a clean false, not an error; the caller decides
// whether that fails verification.
func (v *RPCVerifier) ContainsProof(ctx context.Context, txSig, hash string) (bool, error) {
	body, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "getTransaction",
		"params": []any{txSig, map[string]any{
			"encoding":                       "json",
			"commitment":                     "confirmed",
			"maxSupportedTransactionVersion": 0,
		}},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.URL, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.HTTP.Do(req)
	if err != nil {
		return false, fmt.Errorf("rpc call failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("rpc returned %d", resp.StatusCode)
	}

	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decode rpc response: %w", err)
	}
	if out.Error != nil {
		return false, fmt.Errorf("rpc error %d: %s", out.Error.Code, out.Error.Message)
	}
	if out.Result == nil {
		v.Log.Debug().Str("tx_sig", txSig).Msg("transaction not found")
		return false, nil
	}
	for _, line := range out.Result.Meta.LogMessages {
		if strings.Contains(line, hash) {
			return true, nil
		}
	}
	return false, nil
}
