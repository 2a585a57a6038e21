package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// TargetKind selects which entities a policy applies to.
type TargetKind string

const (
	TargetGlobal           TargetKind = "global"
	TargetOrganization     TargetKind = "organization"
	TargetOrganizationUnit TargetKind = "organization_unit"
	TargetRole             TargetKind = "role"
	TargetResource         TargetKind = "resource"
	TargetOperation        TargetKind = "operation"
	TargetComposite        TargetKind = "composite"
)

// ResourceType is an open set of resource categories.
type ResourceType string

const (
	ResourceCertificate ResourceType = "certificate"
	ResourceKey         ResourceType = "key"
	ResourceSecret      ResourceType = "secret"
	ResourceDocument    ResourceType = "document"
	ResourceService     ResourceType = "service"
	ResourceNetwork     ResourceType = "network"
)

// OperationType is an open set of operations a policy can govern.
type OperationType string

const (
	OperationCertificateIssuance   OperationType = "certificate_issuance"
	OperationCertificateRenewal    OperationType = "certificate_renewal"
	OperationCertificateRevocation OperationType = "certificate_revocation"
	OperationKeyGeneration         OperationType = "key_generation"
	OperationKeyRotation           OperationType = "key_rotation"
	OperationKeyExport             OperationType = "key_export"
	OperationRead                  OperationType = "read"
	OperationWrite                 OperationType = "write"
	OperationDelete                OperationType = "delete"
	OperationExecute               OperationType = "execute"
	OperationCreatePolicy          OperationType = "create_policy"
	OperationModifyPolicy          OperationType = "modify_policy"
	OperationDeletePolicy          OperationType = "delete_policy"
	OperationGrantExemption        OperationType = "grant_exemption"
)

// Target is the scope selector of a policy. Only the field matching Kind is
// meaningful.
type Target struct {
	Kind           TargetKind    `json:"kind"`
	OrganizationID uuid.UUID     `json:"organization_id,omitempty"`
	UnitID         uuid.UUID     `json:"unit_id,omitempty"`
	Role           string        `json:"role,omitempty"`
	Resource       ResourceType  `json:"resource,omitempty"`
	Operation      OperationType `json:"operation,omitempty"`
	Members        []Target      `json:"members,omitempty"`
}

// GlobalTarget matches everything.
func GlobalTarget() Target { return Target{Kind: TargetGlobal} }

// OrganizationTarget scopes a policy to one organization.
func OrganizationTarget(id uuid.UUID) Target {
	return Target{Kind: TargetOrganization, OrganizationID: id}
}

// OrganizationUnitTarget scopes a policy to one organization unit.
func OrganizationUnitTarget(id uuid.UUID) Target {
	return Target{Kind: TargetOrganizationUnit, UnitID: id}
}

// RoleTarget scopes a policy to a role.
func RoleTarget(role string) Target { return Target{Kind: TargetRole, Role: role} }

// ResourceTarget scopes a policy to a resource type.
func ResourceTarget(r ResourceType) Target { return Target{Kind: TargetResource, Resource: r} }

// OperationTarget scopes a policy to an operation.
func OperationTarget(op OperationType) Target {
	return Target{Kind: TargetOperation, Operation: op}
}

// CompositeTarget combines several targets.
func CompositeTarget(members ...Target) Target {
	return Target{Kind: TargetComposite, Members: members}
}

// Overlaps reports whether two targets can select a common entity. Global
// overlaps anything, a composite overlaps when any member does, and two
// simple targets overlap only when they are the same kind and identifier.
func (t Target) Overlaps(other Target) bool {
	if t.Kind == TargetGlobal || other.Kind == TargetGlobal {
		return true
	}
	if t.Kind == TargetComposite {
		for _, m := range t.Members {
			if m.Overlaps(other) {
				return true
			}
		}
		return false
	}
	if other.Kind == TargetComposite {
		return other.Overlaps(t)
	}
	if t.Kind != other.Kind {
		return false
	}

	switch t.Kind {
	case TargetOrganization:
		return t.OrganizationID == other.OrganizationID
	case TargetOrganizationUnit:
		return t.UnitID == other.UnitID
	case TargetRole:
		return t.Role == other.Role
	case TargetResource:
		return t.Resource == other.Resource
	case TargetOperation:
		return t.Operation == other.Operation
	default:
		return false
	}
}

func (t Target) String() string {
	switch t.Kind {
	case TargetGlobal:
		return "global"
	case TargetOrganization:
		return "organization:" + t.OrganizationID.String()
	case TargetOrganizationUnit:
		return "organization_unit:" + t.UnitID.String()
	case TargetRole:
		return "role:" + t.Role
	case TargetResource:
		return "resource:" + string(t.Resource)
	case TargetOperation:
		return "operation:" + string(t.Operation)
	case TargetComposite:
		return fmt.Sprintf("composite(%d)", len(t.Members))
	default:
		return string(t.Kind)
	}
}

// Clone returns a deep copy.
func (t Target) Clone() Target {
	if t.Members != nil {
		members := make([]Target, len(t.Members))
		for i, m := range t.Members {
			members[i] = m.Clone()
		}
		t.Members = members
	}
	return t
}
