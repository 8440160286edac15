package security

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	cleanhttp "github.com/hashicorp/go-cleanhttp"

	"github.com/mikecbrant/opensearch-search-stack/internal/utils/logging"
)

const (
	signingService = "es"
	// DefaultRequestTimeout bounds each directive call.
	DefaultRequestTimeout = 30 * time.Second
	maxErrorBody          = 4096
)

// DirectiveError reports the directive that failed and the API's answer.
// Directives before Index were applied and stay applied.
type DirectiveError struct {
	Index  int
	Method string
	Path   string
	Status int
	Body   string
	Cause  error
}

func (e *DirectiveError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("directive #%d %s %s failed: %v", e.Index+1, e.Method, e.Path, e.Cause)
	}
	return fmt.Sprintf("directive #%d %s %s failed: status %d: %s", e.Index+1, e.Method, e.Path, e.Status, e.Body)
}

func (e *DirectiveError) Unwrap() error { return e.Cause }

// Result summarises one handled event.
type Result struct {
	RequestType RequestType `json:"requestType"`
	Applied     int         `json:"applied"`
	Digest      string      `json:"digest,omitempty"`
}

// Handler executes directive lists against one domain endpoint with one
// signing identity.
type Handler struct {
	endpoint    string
	region      string
	credentials awsv2.CredentialsProvider
	signer      *v4.Signer
	client      *http.Client
	timeout     time.Duration
	log         logging.Logger
	now         func() time.Time
}

// Option customises a Handler.
type Option func(*Handler)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option { return func(h *Handler) { h.client = c } }

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option { return func(h *Handler) { h.log = logging.OrNop(l) } }

// WithTimeout sets the per-call timeout. It applies to the final client
// regardless of option order.
func WithTimeout(d time.Duration) Option { return func(h *Handler) { h.timeout = d } }

// NewHandler returns a handler for endpoint. The endpoint is a bare host name
// or a URL with a scheme.
func NewHandler(endpoint, region string, credentials awsv2.CredentialsProvider, opts ...Option) (*Handler, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("security: domain endpoint is required")
	}
	if strings.TrimSpace(region) == "" {
		return nil, fmt.Errorf("security: region is required")
	}
	if credentials == nil {
		return nil, fmt.Errorf("security: credentials are required")
	}
	client := cleanhttp.DefaultPooledClient()
	client.Timeout = DefaultRequestTimeout
	h := &Handler{
		endpoint:    strings.TrimSuffix(endpoint, "/"),
		region:      region,
		credentials: credentials,
		signer:      v4.NewSigner(),
		client:      client,
		log:         logging.NopLogger{},
		now:         time.Now,
	}
	for _, o := range opts {
		o(h)
	}
	if h.timeout > 0 && h.client.Timeout != h.timeout {
		c := *h.client
		c.Timeout = h.timeout
		h.client = &c
	}
	return h, nil
}

// Handle processes one lifecycle event. Delete does nothing. Create and Update
// apply every directive in order and stop at the first failure.
func (h *Handler) Handle(ctx context.Context, e Event) (Result, error) {
	kind, err := e.Type()
	if err != nil {
		return Result{}, err
	}
	if kind == RequestDelete {
		h.log.Info("delete event; leaving security configuration in place", logging.Fields{"directives": len(e.Requests)})
		return Result{RequestType: kind}, nil
	}
	digest, err := Digest(e.Requests)
	if err != nil {
		return Result{}, err
	}
	res := Result{RequestType: kind, Digest: digest}
	for i, d := range e.Requests {
		if err := h.apply(ctx, i, d); err != nil {
			return res, err
		}
		res.Applied++
		h.log.Debug("applied directive", logging.Fields{"index": i, "method": d.Method, "path": d.Path})
	}
	h.log.Info("security configuration applied", logging.Fields{"requestType": string(kind), "applied": res.Applied, "digest": digest})
	return res, nil
}

func (h *Handler) url(path string) string {
	base := h.endpoint
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	return base + "/" + strings.TrimPrefix(path, "/")
}

func (h *Handler) apply(ctx context.Context, i int, d Directive) error {
	fail := func(cause error) error {
		return &DirectiveError{Index: i, Method: d.Method, Path: d.Path, Cause: cause}
	}
	var payload []byte
	if d.Body != nil {
		b, err := json.Marshal(d.Body)
		if err != nil {
			return fail(fmt.Errorf("encode body: %w", err))
		}
		payload = b
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(d.Method), h.url(d.Path), bytes.NewReader(payload))
	if err != nil {
		return fail(err)
	}
	req.Header.Set("Content-Type", "application/json")
	creds, err := h.credentials.Retrieve(ctx)
	if err != nil {
		return fail(fmt.Errorf("retrieve credentials: %w", err))
	}
	sum := sha256.Sum256(payload)
	if err := h.signer.SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]), signingService, h.region, h.now()); err != nil {
		return fail(fmt.Errorf("sign request: %w", err))
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DirectiveError{Index: i, Method: d.Method, Path: d.Path, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return nil
}
