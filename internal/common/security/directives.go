// Package security applies the fine-grained access control configuration of a
// search domain through its security REST API.
package security

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mikecbrant/opensearch-search-stack/internal/utils"
)

const apiPrefix = "_plugins/_security/api/"

// Security plugin names addressed by the directives.
const (
	AllAccessRole       = "all_access"
	SecurityManagerRole = "security_manager"
	LimitedRole         = "kibana_limited_role"
	GlobalTenant        = "global"
)

// Directive is one administrative call against the security API.
type Directive struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Body   any    `json:"body"`
}

// RoleArns names the IAM roles the directives map into security plugin roles.
type RoleArns struct {
	Admin    string
	Limited  string
	Master   string
	Delivery string
}

func (r RoleArns) validate() error {
	for field, v := range map[string]string{"admin": r.Admin, "limited": r.Limited, "master": r.Master, "delivery": r.Delivery} {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("security: %s role ARN is required", field)
		}
	}
	return nil
}

// RoleMapping is the body of a rolesmapping PUT.
type RoleMapping struct {
	BackendRoles []string `json:"backend_roles"`
	Hosts        []string `json:"hosts"`
	Users        []string `json:"users"`
}

// IndexPermission grants actions on a set of index patterns.
type IndexPermission struct {
	IndexPatterns  []string `json:"index_patterns"`
	DLS            string   `json:"dls"`
	FLS            []string `json:"fls"`
	MaskedFields   []string `json:"masked_fields"`
	AllowedActions []string `json:"allowed_actions"`
}

// TenantPermission grants actions on dashboards tenants.
type TenantPermission struct {
	TenantPatterns []string `json:"tenant_patterns"`
	AllowedActions []string `json:"allowed_actions"`
}

// RoleDefinition is the body of a roles PUT.
type RoleDefinition struct {
	ClusterPermissions []string           `json:"cluster_permissions"`
	IndexPermissions   []IndexPermission  `json:"index_permissions"`
	TenantPermissions  []TenantPermission `json:"tenant_permissions"`
}

func mapping(backendRoles ...string) RoleMapping {
	return RoleMapping{BackendRoles: backendRoles, Hosts: []string{}, Users: []string{}}
}

// Directives returns the ordered configuration sequence:
//  1. all_access mapped to the admin, master and delivery roles
//  2. security_manager mapped to the same three roles
//  3. the limited role: composite reads, index monitoring and read-only
//     access to indexPatterns plus read-only access to the global tenant
//  4. the limited role mapped to the limited user and delivery roles
func Directives(roles RoleArns, indexPatterns []string) ([]Directive, error) {
	if err := roles.validate(); err != nil {
		return nil, err
	}
	if len(indexPatterns) == 0 {
		return nil, fmt.Errorf("security: at least one index pattern is required")
	}
	if err := utils.ValidatePatterns(indexPatterns); err != nil {
		return nil, fmt.Errorf("security: %w", err)
	}
	privileged := []string{roles.Admin, roles.Master, roles.Delivery}
	return []Directive{
		{Method: "PUT", Path: apiPrefix + "rolesmapping/" + AllAccessRole, Body: mapping(privileged...)},
		{Method: "PUT", Path: apiPrefix + "rolesmapping/" + SecurityManagerRole, Body: mapping(privileged...)},
		{Method: "PUT", Path: apiPrefix + "roles/" + LimitedRole, Body: RoleDefinition{
			ClusterPermissions: []string{"cluster_composite_ops", "indices_monitor"},
			IndexPermissions: []IndexPermission{{
				IndexPatterns:  append([]string(nil), indexPatterns...),
				DLS:            "",
				FLS:            []string{},
				MaskedFields:   []string{},
				AllowedActions: []string{"read"},
			}},
			TenantPermissions: []TenantPermission{{
				TenantPatterns: []string{GlobalTenant},
				AllowedActions: []string{"kibana_all_read"},
			}},
		}},
		{Method: "PUT", Path: apiPrefix + "rolesmapping/" + LimitedRole, Body: mapping(roles.Limited, roles.Delivery)},
	}, nil
}

// Digest fingerprints a directive list so callers can tell whether a
// re-application would change anything.
func Digest(directives []Directive) (string, error) {
	b, err := json.Marshal(directives)
	if err != nil {
		return "", fmt.Errorf("failed to encode directives: %w", err)
	}
	return utils.Digest(string(b)), nil
}
