// Package cognito adapts the Cognito user pool API to the identity package.
package cognito

import (
	"context"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/cenkalti/backoff/v4"

	awserrors "github.com/mikecbrant/opensearch-search-stack/internal/awssdk/errors"
	"github.com/mikecbrant/opensearch-search-stack/internal/common/identity"
	"github.com/mikecbrant/opensearch-search-stack/internal/utils/logging"
)

const pageSize = 60

// API is the subset of the Cognito user pool client used here.
type API interface {
	ListUserPoolClients(ctx context.Context, in *cip.ListUserPoolClientsInput, optFns ...func(*cip.Options)) (*cip.ListUserPoolClientsOutput, error)
}

// ClientLister lists app clients page by page, retrying throttled calls with
// bounded exponential backoff.
type ClientLister struct {
	api        API
	log        logging.Logger
	newBackOff func() backoff.BackOff
}

var _ identity.ClientLister = (*ClientLister)(nil)

// New wraps an API implementation.
func New(api API, log logging.Logger) *ClientLister {
	return &ClientLister{api: api, log: logging.OrNop(log), newBackOff: defaultBackOff}
}

// NewFromConfig builds a lister on the SDK client for cfg.
func NewFromConfig(cfg awsv2.Config, log logging.Logger) *ClientLister {
	return New(cip.NewFromConfig(cfg), log)
}

// WithBackOff overrides the retry schedule.
func (c *ClientLister) WithBackOff(fn func() backoff.BackOff) *ClientLister {
	c.newBackOff = fn
	return c
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second
	return backoff.WithMaxRetries(b, 5)
}

// ListUserPoolClients returns every app client of the pool in listing order.
func (c *ClientLister) ListUserPoolClients(ctx context.Context, userPoolID string) ([]identity.UserPoolClient, error) {
	out := []identity.UserPoolClient{}
	var next *string
	for {
		page, err := c.listPage(ctx, userPoolID, next)
		if err != nil {
			return nil, err
		}
		for _, d := range page.UserPoolClients {
			out = append(out, identity.UserPoolClient{
				ClientID:   awsv2.ToString(d.ClientId),
				ClientName: awsv2.ToString(d.ClientName),
			})
		}
		if awsv2.ToString(page.NextToken) == "" {
			break
		}
		next = page.NextToken
	}
	c.log.Debug("listed user pool clients", logging.Fields{"userPoolId": userPoolID, "count": len(out)})
	return out, nil
}

func (c *ClientLister) listPage(ctx context.Context, userPoolID string, next *string) (*cip.ListUserPoolClientsOutput, error) {
	var page *cip.ListUserPoolClientsOutput
	op := func() error {
		out, err := c.api.ListUserPoolClients(ctx, &cip.ListUserPoolClientsInput{
			UserPoolId: awsv2.String(userPoolID),
			MaxResults: awsv2.Int32(pageSize),
			NextToken:  next,
		})
		if err != nil {
			classified := awserrors.Classify(err)
			if awserrors.IsRetryable(classified) {
				return classified
			}
			return backoff.Permanent(classified)
		}
		page = out
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.log.Warn("ListUserPoolClients throttled; retrying", logging.Fields{"userPoolId": userPoolID, "wait": wait.String(), "error": err.Error()})
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(c.newBackOff(), ctx), notify); err != nil {
		return nil, err
	}
	return page, nil
}
