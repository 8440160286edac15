// Package invoke runs the deployed security handler through the Lambda API.
package invoke

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/cenkalti/backoff/v4"

	awserrors "github.com/mikecbrant/opensearch-search-stack/internal/awssdk/errors"
	"github.com/mikecbrant/opensearch-search-stack/internal/common/security"
	"github.com/mikecbrant/opensearch-search-stack/internal/utils/logging"
)

// API is the subset of the Lambda client used here.
type API interface {
	Invoke(ctx context.Context, in *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// FunctionError is returned when the handler ran but reported a failure.
type FunctionError struct {
	Function string
	Kind     string
	Payload  string
}

func (e *FunctionError) Error() string {
	return fmt.Sprintf("handler %s failed (%s): %s", e.Function, e.Kind, e.Payload)
}

// Handler sends events to a named function synchronously. It has the same
// Handle signature as security.Handler so callers can use either.
type Handler struct {
	api        API
	function   string
	log        logging.Logger
	newBackOff func() backoff.BackOff
}

// New wraps an API implementation for function.
func New(api API, function string, log logging.Logger) *Handler {
	return &Handler{api: api, function: function, log: logging.OrNop(log), newBackOff: defaultBackOff}
}

// NewFromConfig builds a handler on the SDK client for cfg.
func NewFromConfig(cfg awsv2.Config, function string, log logging.Logger) *Handler {
	return New(lambda.NewFromConfig(cfg), function, log)
}

// WithBackOff overrides the retry schedule.
func (h *Handler) WithBackOff(fn func() backoff.BackOff) *Handler {
	h.newBackOff = fn
	return h
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxElapsedTime = time.Minute
	return backoff.WithMaxRetries(b, 4)
}

// Handle invokes the function with e and decodes its result.
func (h *Handler) Handle(ctx context.Context, e security.Event) (security.Result, error) {
	payload, err := e.JSON()
	if err != nil {
		return security.Result{}, err
	}
	var out *lambda.InvokeOutput
	op := func() error {
		res, err := h.api.Invoke(ctx, &lambda.InvokeInput{
			FunctionName:   awsv2.String(h.function),
			InvocationType: lambdatypes.InvocationTypeRequestResponse,
			Payload:        []byte(payload),
		})
		if err != nil {
			classified := awserrors.Classify(err)
			if awserrors.IsRetryable(classified) {
				return classified
			}
			return backoff.Permanent(classified)
		}
		out = res
		return nil
	}
	notify := func(err error, wait time.Duration) {
		h.log.Warn("Invoke throttled; retrying", logging.Fields{"function": h.function, "wait": wait.String(), "error": err.Error()})
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(h.newBackOff(), ctx), notify); err != nil {
		return security.Result{}, fmt.Errorf("failed to invoke %s: %w", h.function, err)
	}
	if kind := awsv2.ToString(out.FunctionError); kind != "" {
		return security.Result{}, &FunctionError{Function: h.function, Kind: kind, Payload: string(out.Payload)}
	}

	var res security.Result
	if len(out.Payload) > 0 {
		if err := json.Unmarshal(out.Payload, &res); err != nil {
			return security.Result{}, fmt.Errorf("invalid result from %s: %w", h.function, err)
		}
	}
	h.log.Info("security handler invoked", logging.Fields{"function": h.function, "applied": res.Applied, "digest": res.Digest})
	return res, nil
}
