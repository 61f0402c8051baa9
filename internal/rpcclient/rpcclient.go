// Package rpcclient is the out-of-scope "rpc client" collaborator named
// in spec.md §1/§6: JSON-RPC 1.0 over HTTP(S), two methods (getwork with
// no params, getwork with one hex-string param). The pipeline core only
// depends on the Client interface; HTTPClient is a thin, teacher-styled
// reference implementation (continuing proxy.go's http.NewRequestWithContext
// + shared *http.Client pattern) good enough to exercise the rest of the
// pipeline against a real HTTP pool.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// GetWorkResult is the decoded result of a no-params getwork call
// (spec.md §6).
type GetWorkResult struct {
	Midstate string
	Data     string
	Hash1    string
	Target   string
	LPPath   string // from X-Long-Polling response header, if present
	RollTime bool   // from X-Roll-Ntime response header, if present and not "N"
}

// Client is the external RPC collaborator the pipeline depends on.
type Client interface {
	// GetWork issues a params-less getwork call.
	GetWork(ctx context.Context) (*GetWorkResult, error)
	// SubmitWork issues a getwork call with the solved header as its
	// single hex-string parameter; result is the accepted boolean.
	SubmitWork(ctx context.Context, dataHex string) (bool, error)
}

// rpcRequest is a JSON-RPC 1.0 envelope.
type rpcRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
	ID     int             `json:"id"`
}

// HTTPClient is the reference net/http implementation of Client.
type HTTPClient struct {
	URL      string
	User     string
	Pass     string
	Timeout  time.Duration
	http     *http.Client
	lastLP   string
	reqID    int
}

// NewHTTPClient constructs an HTTPClient against url with HTTP Basic auth.
func NewHTTPClient(url, user, pass string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		URL:     url,
		User:    user,
		Pass:    pass,
		Timeout: timeout,
		http:    &http.Client{Timeout: timeout},
	}
}

// NewLongPollClient constructs an HTTPClient for the Long-Poll Listener
// session: same JSON-RPC envelope and HTTP Basic auth as HTTPClient, but
// with no client-side timeout (spec.md §5 — "long-poll has no
// client-side timeout but is re-established on server-side drop").
func NewLongPollClient(rawURL, user, pass string) *HTTPClient {
	return &HTTPClient{
		URL:  rawURL,
		User: user,
		Pass: pass,
		http: &http.Client{}, // zero Timeout means no client-side deadline
	}
}

// ResolveLongPollURL joins a pool's advertised long-poll path against its
// getwork URL (spec.md §6: "absolute or same-server-relative"). Returns
// "" if lpPath is empty or either URL fails to parse.
func ResolveLongPollURL(poolURL, lpPath string) string {
	if lpPath == "" {
		return ""
	}
	if strings.HasPrefix(lpPath, "http://") || strings.HasPrefix(lpPath, "https://") {
		return lpPath
	}
	base, err := url.Parse(poolURL)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(lpPath)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// LongPollPath returns the last-seen X-Long-Polling header value, if any.
func (c *HTTPClient) LongPollPath() string {
	return c.lastLP
}

func (c *HTTPClient) call(ctx context.Context, params []string) (*rpcResponse, http.Header, error) {
	c.reqID++
	body, err := json.Marshal(rpcRequest{Method: "getwork", Params: params, ID: c.reqID})
	if err != nil {
		return nil, nil, fmt.Errorf("encode rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.User, c.Pass)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("rpc call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("rpc call: HTTP %d", resp.StatusCode)
	}

	var out rpcResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, nil, fmt.Errorf("malformed rpc response: %w", err)
	}
	return &out, resp.Header, nil
}

// GetWork issues a params-less getwork call.
func (c *HTTPClient) GetWork(ctx context.Context) (*GetWorkResult, error) {
	resp, hdr, err := c.call(ctx, nil)
	if err != nil {
		return nil, err
	}

	var fields struct {
		Midstate string `json:"midstate"`
		Data     string `json:"data"`
		Hash1    string `json:"hash1"`
		Target   string `json:"target"`
	}
	if err := json.Unmarshal(resp.Result, &fields); err != nil {
		return nil, fmt.Errorf("malformed getwork result: %w", err)
	}
	if fields.Data == "" || fields.Target == "" {
		return nil, fmt.Errorf("malformed getwork result: missing field")
	}

	lp := hdr.Get("X-Long-Polling")
	c.lastLP = lp
	rollTime := hdr.Get("X-Roll-Ntime")

	return &GetWorkResult{
		Midstate: fields.Midstate,
		Data:     fields.Data,
		Hash1:    fields.Hash1,
		Target:   fields.Target,
		LPPath:   lp,
		RollTime: rollTime != "" && rollTime != "N",
	}, nil
}

// SubmitWork issues a getwork call with the solved header hex string.
func (c *HTTPClient) SubmitWork(ctx context.Context, dataHex string) (bool, error) {
	resp, _, err := c.call(ctx, []string{dataHex})
	if err != nil {
		return false, err
	}
	var accepted bool
	if err := json.Unmarshal(resp.Result, &accepted); err != nil {
		return false, fmt.Errorf("malformed submitwork result: %w", err)
	}
	return accepted, nil
}
