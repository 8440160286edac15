// Package iampolicy renders the IAM documents used by the stack: role trust
// policies, the domain resource policy, the domain HTTP capability grant and the
// per-index delivery policy.
package iampolicy

import (
	"encoding/json"
	"fmt"
)

const version = "2012-10-17"

// Document is an IAM policy document.
type Document struct {
	Version   string      `json:"Version"`
	Statement []Statement `json:"Statement"`
}

// Statement is a single IAM statement. Principal and Condition are omitted when empty.
type Statement struct {
	Sid       string         `json:"Sid,omitempty"`
	Effect    string         `json:"Effect"`
	Principal map[string]any `json:"Principal,omitempty"`
	Action    []string       `json:"Action"`
	Resource  []string       `json:"Resource,omitempty"`
	Condition map[string]any `json:"Condition,omitempty"`
}

// JSON renders the document.
func (d Document) JSON() (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to encode policy document: %w", err)
	}
	return string(b), nil
}

// MustJSON renders the document; the types above always marshal.
func (d Document) MustJSON() string {
	s, err := d.JSON()
	if err != nil {
		panic(err)
	}
	return s
}

func allow(actions []string, resources ...string) Statement {
	return Statement{Effect: "Allow", Action: actions, Resource: resources}
}

// FederatedTrust lets authenticated identities of one identity pool assume a role
// with a web-identity token.
func FederatedTrust(identityPoolID string) Document {
	return Document{Version: version, Statement: []Statement{{
		Effect:    "Allow",
		Principal: map[string]any{"Federated": "cognito-identity.amazonaws.com"},
		Action:    []string{"sts:AssumeRoleWithWebIdentity"},
		Condition: map[string]any{
			"StringEquals":           map[string]any{"cognito-identity.amazonaws.com:aud": identityPoolID},
			"ForAnyValue:StringLike": map[string]any{"cognito-identity.amazonaws.com:amr": "authenticated"},
		},
	}}}
}

// ServiceTrust lets a named service principal assume a role.
func ServiceTrust(servicePrincipal string) Document {
	return Document{Version: version, Statement: []Statement{{
		Effect:    "Allow",
		Principal: map[string]any{"Service": []string{servicePrincipal}},
		Action:    []string{"sts:AssumeRole"},
	}}}
}

// DomainArn renders the ARN of a search domain.
func DomainArn(partition, region, account, domainName string) string {
	return fmt.Sprintf("arn:%s:es:%s:%s:domain/%s", partition, region, account, domainName)
}

// DomainAccessPolicy is the domain resource policy: any principal may issue HTTP
// actions against the domain's own scope. Principal gating happens in IAM and in
// the security plugin.
func DomainAccessPolicy(domainArn string) Document {
	return Document{Version: version, Statement: []Statement{{
		Effect:    "Allow",
		Principal: map[string]any{"AWS": "*"},
		Action:    []string{"es:ESHttp*"},
		Resource:  []string{domainArn + "/*"},
	}}}
}

// DomainHTTPGrant is the capability grant attached to every principal that needs
// data-plane access to the domain.
func DomainHTTPGrant(domainArn string) Document {
	return Document{Version: version, Statement: []Statement{
		allow([]string{"es:ESHttp*"}, domainArn, domainArn+"/*"),
	}}
}

// DeliveryScope identifies the resources one ingestion pipeline may touch.
type DeliveryScope struct {
	Partition  string
	Region     string
	Account    string
	StreamName string
	BucketArn  string
	DomainArn  string
	// Broad grants kms:* and logs:* on every resource instead of the scoped set.
	Broad bool
}

var retryStoreActions = []string{
	"s3:AbortMultipartUpload",
	"s3:GetBucketLocation",
	"s3:GetObject",
	"s3:ListBucket",
	"s3:ListBucketMultipartUploads",
	"s3:PutObject",
}

var domainDeliveryActions = []string{
	"es:DescribeDomain",
	"es:DescribeDomains",
	"es:DescribeDomainConfig",
	"es:DescribeElasticsearchDomain",
	"es:DescribeElasticsearchDomains",
	"es:DescribeElasticsearchDomainConfig",
	"es:ESHttpPost",
	"es:ESHttpPut",
}

// DeliveryPolicy is the per-index policy attached to the shared delivery role.
func DeliveryPolicy(s DeliveryScope) Document {
	stmts := []Statement{}
	if s.Broad {
		stmts = append(stmts, allow([]string{"kms:*", "logs:*"}, "*"))
	} else {
		logGroup := fmt.Sprintf("arn:%s:logs:%s:%s:log-group:/aws/kinesisfirehose/%s", s.Partition, s.Region, s.Account, s.StreamName)
		stmts = append(stmts,
			allow([]string{"logs:CreateLogGroup", "logs:CreateLogStream", "logs:PutLogEvents"}, logGroup, logGroup+":*"),
			Statement{
				Effect:   "Allow",
				Action:   []string{"kms:Decrypt", "kms:GenerateDataKey"},
				Resource: []string{"*"},
				Condition: map[string]any{
					"StringEquals": map[string]any{"kms:ViaService": fmt.Sprintf("s3.%s.amazonaws.com", s.Region)},
				},
			},
		)
	}
	stmts = append(stmts,
		allow(retryStoreActions, s.BucketArn, s.BucketArn+"/*"),
		allow(domainDeliveryActions, s.DomainArn, s.DomainArn+"/*"),
	)
	return Document{Version: version, Statement: stmts}
}
