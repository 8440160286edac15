// Package identity derives the identity-provider name the identity pool uses
// to trust tokens issued to the dashboards app client.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mikecbrant/opensearch-search-stack/internal/awssdk"
)

// ErrNoClients is returned when the user pool has no app clients yet. The domain
// registers its dashboards client while it is created, so this means the
// resolver ran too early or the domain was created without dashboards auth.
var ErrNoClients = errors.New("identity: user pool has no app clients")

// UserPoolClient is one app client of a user pool.
type UserPoolClient struct {
	ClientID   string
	ClientName string
}

// ClientLister enumerates the app clients of a user pool.
type ClientLister interface {
	ListUserPoolClients(ctx context.Context, userPoolID string) ([]UserPoolClient, error)
}

// ProviderName renders "cognito-idp.<region>.<dns suffix>/<poolID>:<clientID>".
func ProviderName(region, userPoolID, clientID string) (string, error) {
	for field, v := range map[string]string{"region": region, "user pool id": userPoolID, "client id": clientID} {
		if strings.TrimSpace(v) == "" {
			return "", fmt.Errorf("identity: %s is required to build a provider name", field)
		}
	}
	host := fmt.Sprintf("cognito-idp.%s.%s", region, awssdk.DNSSuffix(awssdk.PartitionForRegion(region)))
	return fmt.Sprintf("%s/%s:%s", host, userPoolID, clientID), nil
}

// Resolve lists the pool's app clients and returns the provider name for the
// first one in listing order.
func Resolve(ctx context.Context, lister ClientLister, region, userPoolID string) (string, error) {
	clients, err := lister.ListUserPoolClients(ctx, userPoolID)
	if err != nil {
		return "", fmt.Errorf("failed to list app clients of user pool %s: %w", userPoolID, err)
	}
	if len(clients) == 0 {
		return "", fmt.Errorf("%w (user pool %s)", ErrNoClients, userPoolID)
	}
	return ProviderName(region, userPoolID, clients[0].ClientID)
}
