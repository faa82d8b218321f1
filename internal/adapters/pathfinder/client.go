package pathfinder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	// DefaultBaseURL is the partner GraphQL endpoint.
	DefaultBaseURL = "https://api-partner.spotify.com/pathfinder/v1/query"
	// DefaultSpclientURL hosts playlist storage and extension endpoints.
	DefaultSpclientURL = "https://spclient.wg.spotify.com"

	maxDetailBytes = 512
)

// Options configures a catalog client.
type Options struct {
	BaseURL     string
	SpclientURL string
	Username    string
	Language    string
	// Operations maps operation names to persisted-query hashes.
	Operations  map[string]string
	TokenSource oauth2.TokenSource
	// HTTPClient is the transport beneath token injection.
	HTTPClient *http.Client
	Logger     *zap.Logger
	Clock      func() time.Time
}

// Client implements the song, artist and library catalogs over the
// partner GraphQL API and spclient.
type Client struct {
	http     *http.Client
	tokens   oauth2.TokenSource
	base     string
	spclient string
	username string
	language string
	ops      map[string]string
	log      *zap.Logger
	now      func() time.Time
}

// New creates a catalog client.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.SpclientURL == "" {
		opts.SpclientURL = DefaultSpclientURL
	}
	if opts.Language == "" {
		opts.Language = "en"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.TokenSource == nil {
		opts.TokenSource = oauth2.StaticTokenSource(&oauth2.Token{})
	}
	ctx := context.Background()
	if opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.HTTPClient)
	}
	return &Client{
		http:     oauth2.NewClient(ctx, opts.TokenSource),
		tokens:   opts.TokenSource,
		base:     opts.BaseURL,
		spclient: strings.TrimRight(opts.SpclientURL, "/"),
		username: opts.Username,
		language: opts.Language,
		ops:      opts.Operations,
		log:      opts.Logger,
		now:      opts.Clock,
	}
}

// Error is a failed catalog request.
type Error struct {
	Op      string
	Status  int
	Message string
	Detail  string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (HTTP %d)", e.Op, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// ErrorDetail returns the response payload or GraphQL error message.
func (e *Error) ErrorDetail() string {
	return e.Detail
}

// CheckAuth verifies that a usable token is available and that the
// catalog accepts it.
func (c *Client) CheckAuth(ctx context.Context) error {
	token, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("catalog token: %w", err)
	}
	if !token.Valid() {
		return errors.New("catalog token is missing or expired")
	}
	_, err = c.Library(ctx, nil, 1, 0)
	return err
}

type persistedQuery struct {
	Version int    `json:"version"`
	Hash    string `json:"sha256Hash"`
}

type extensions struct {
	PersistedQuery persistedQuery `json:"persistedQuery"`
}

type graphqlPayload struct {
	Variables     map[string]any `json:"variables"`
	OperationName string         `json:"operationName"`
	Extensions    extensions     `json:"extensions"`
}

func (c *Client) hash(op string) (string, error) {
	hash := c.ops[op]
	if hash == "" {
		return "", &Error{Op: op, Message: "no persisted query hash configured"}
	}
	return hash, nil
}

// query runs a read operation with its arguments in the query string.
func (c *Client) query(ctx context.Context, op string, variables map[string]any) (json.RawMessage, error) {
	hash, err := c.hash(op)
	if err != nil {
		return nil, err
	}
	vars, err := json.Marshal(variables)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal variables: %w", op, err)
	}
	ext, err := json.Marshal(extensions{PersistedQuery: persistedQuery{Version: 1, Hash: hash}})
	if err != nil {
		return nil, fmt.Errorf("%s: marshal extensions: %w", op, err)
	}
	params := url.Values{}
	params.Set("operationName", op)
	params.Set("variables", string(vars))
	params.Set("extensions", string(ext))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return c.graphql(op, req)
}

// mutate runs a write operation with its arguments in a JSON body.
func (c *Client) mutate(ctx context.Context, op string, variables map[string]any) (json.RawMessage, error) {
	hash, err := c.hash(op)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(graphqlPayload{
		Variables:     variables,
		OperationName: op,
		Extensions:    extensions{PersistedQuery: persistedQuery{Version: 1, Hash: hash}},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: marshal payload: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	return c.graphql(op, req)
}

func (c *Client) graphql(op string, req *http.Request) (json.RawMessage, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", c.language)
	body, err := c.do(op, req)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, &Error{Op: op, Message: "invalid JSON response", Detail: truncate(body)}
	}
	if msg := gjson.GetBytes(body, "errors.0.message"); msg.Exists() && !gjson.GetBytes(body, "data").IsObject() {
		return nil, &Error{Op: op, Message: "query failed", Detail: msg.String()}
	}
	return body, nil
}

// spclientJSON posts payload to an spclient path and returns the body.
func (c *Client) spclientJSON(ctx context.Context, op, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal payload: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.spclient+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(op, req)
}

func (c *Client) do(op string, req *http.Request) ([]byte, error) {
	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}
	c.log.Debug("catalog request",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", c.now().Sub(start)),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Op: op, Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode), Detail: truncate(body)}
	}
	return body, nil
}

func truncate(body []byte) string {
	if len(body) <= maxDetailBytes {
		return string(body)
	}
	return string(body[:maxDetailBytes]) + "..."
}
