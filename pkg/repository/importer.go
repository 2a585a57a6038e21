package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mercator-hq/tribune/pkg/eventstore"
	"mercator-hq/tribune/pkg/policy/domain"
	"mercator-hq/tribune/pkg/policy/event"
	"mercator-hq/tribune/pkg/policy/parser"
)

// ImportResult counts what an import wrote.
type ImportResult struct {
	Policies   int         `json:"policies"`
	Sets       int         `json:"sets"`
	Exemptions int         `json:"exemptions"`
	Events     int         `json:"events"`
	Skipped    []uuid.UUID `json:"skipped,omitempty"`
}

// Importer seeds the event store from a parsed bundle. Bundle ids are
// derived from names, so importing the same bundle twice skips every
// aggregate that already has a history.
type Importer struct {
	policies   *Repository[domain.Policy]
	sets       *Repository[domain.PolicySet]
	exemptions *Repository[domain.Exemption]
	actor      string
	clock      func() time.Time
	progress   func(done, total int)
}

// NewImporter creates an importer that writes events as actor.
func NewImporter(store eventstore.Store, actor string, opts ...Option) *Importer {
	return &Importer{
		policies:   NewPolicyRepository(store, opts...),
		sets:       NewPolicySetRepository(store, opts...),
		exemptions: NewExemptionRepository(store, opts...),
		actor:      actor,
		clock:      time.Now,
	}
}

// WithClock sets the clock used to timestamp imported events.
func (im *Importer) WithClock(clock func() time.Time) *Importer {
	im.clock = clock
	return im
}

// WithProgress sets a callback invoked after each aggregate is handled.
func (im *Importer) WithProgress(fn func(done, total int)) *Importer {
	im.progress = fn
	return im
}

// Import appends creation events for every policy, set and exemption in
// bundle. Policies are written first so sets and exemptions never refer to
// an aggregate that does not exist yet.
func (im *Importer) Import(ctx context.Context, bundle *parser.Bundle) (*ImportResult, error) {
	at := im.clock()
	result := &ImportResult{}
	total := len(bundle.Policies) + len(bundle.Sets) + len(bundle.Exemptions)
	done := 0
	step := func() {
		done++
		if im.progress != nil {
			im.progress(done, total)
		}
	}

	for _, p := range bundle.Policies {
		written, err := importOne(ctx, im.policies, p.ID, PolicyEvents(p, im.actor, at), result)
		if err != nil {
			return result, err
		}
		if written {
			result.Policies++
		}
		step()
	}
	for _, s := range bundle.Sets {
		written, err := importOne(ctx, im.sets, s.ID, PolicySetEvents(s, im.actor, at), result)
		if err != nil {
			return result, err
		}
		if written {
			result.Sets++
		}
		step()
	}
	for _, x := range bundle.Exemptions {
		written, err := importOne(ctx, im.exemptions, x.ID, ExemptionEvents(x, im.actor, at), result)
		if err != nil {
			return result, err
		}
		if written {
			result.Exemptions++
		}
		step()
	}
	return result, nil
}

func importOne[T any](ctx context.Context, repo *Repository[T], id uuid.UUID, events []event.Event, result *ImportResult) (bool, error) {
	exists, err := repo.Exists(ctx, id)
	if err != nil {
		return false, err
	}
	if exists {
		result.Skipped = append(result.Skipped, id)
		return false, nil
	}
	if err := repo.Save(ctx, events); err != nil {
		return false, fmt.Errorf("import %s: %w", id, err)
	}
	result.Events += len(events)
	return true, nil
}

// PolicyEvents returns the history that produces p: the creation event
// followed by the lifecycle events that lead to p.Status.
func PolicyEvents(p *domain.Policy, actor string, at time.Time) []event.Event {
	createdAt := p.Metadata.CreatedAt
	if createdAt.IsZero() {
		createdAt = at
	}
	createdBy := p.Metadata.CreatedBy
	if createdBy == "" {
		createdBy = actor
	}

	created := event.New(p.ID, event.PolicyCreated{
		PolicyID:            p.ID,
		Name:                p.Name,
		Description:         p.Description,
		Version:             p.Version,
		Rules:               p.Rules,
		Target:              p.Target,
		EnforcementLevel:    p.EnforcementLevel,
		EffectiveDate:       p.EffectiveDate,
		ExpiryDate:          p.ExpiryDate,
		ParentPolicyID:      p.ParentPolicyID,
		Tags:                p.Metadata.Tags,
		ComplianceStandards: p.Metadata.ComplianceStandards,
		DocumentationURL:    p.Metadata.DocumentationURL,
		CreatedBy:           createdBy,
		CreatedAt:           createdAt,
	}, actor, at)

	events := []event.Event{created}
	for _, payload := range lifecycle(p.ID, p.Status, actor) {
		events = append(events, event.New(p.ID, payload, actor, at, event.CausedBy(created)))
	}
	return events
}

// lifecycle lists the payloads that move a Draft policy to status.
func lifecycle(id uuid.UUID, status domain.PolicyStatus, actor string) []event.Payload {
	const reason = "imported from bundle"

	submitted := event.PolicySubmitted{PolicyID: id, SubmittedBy: actor}
	approved := event.PolicyApproved{PolicyID: id, ApprovedBy: actor, Comments: reason}
	activated := event.PolicyActivated{PolicyID: id, ActivatedBy: actor}
	revoked := event.PolicyRevoked{PolicyID: id, RevokedBy: actor, Reason: reason}

	switch status {
	case domain.StatusUnderReview:
		return []event.Payload{submitted}
	case domain.StatusApproved:
		return []event.Payload{submitted, approved}
	case domain.StatusActive:
		return []event.Payload{submitted, approved, activated}
	case domain.StatusSuspended:
		return []event.Payload{submitted, approved, activated,
			event.PolicySuspended{PolicyID: id, SuspendedBy: actor, Reason: reason}}
	case domain.StatusRevoked:
		return []event.Payload{submitted, approved, activated, revoked}
	case domain.StatusArchived:
		return []event.Payload{submitted, approved, activated, revoked,
			event.PolicyArchived{PolicyID: id, ArchivedBy: actor}}
	default:
		return nil
	}
}

// PolicySetEvents returns the history that produces s.
func PolicySetEvents(s *domain.PolicySet, actor string, at time.Time) []event.Event {
	createdAt := s.CreatedAt
	if createdAt.IsZero() {
		createdAt = at
	}
	createdBy := s.CreatedBy
	if createdBy == "" {
		createdBy = actor
	}

	created := event.New(s.ID, event.PolicySetCreated{
		SetID:              s.ID,
		Name:               s.Name,
		Description:        s.Description,
		Policies:           s.Policies,
		Composition:        s.Composition,
		ConflictResolution: s.ConflictResolution,
		CreatedBy:          createdBy,
		CreatedAt:          createdAt,
	}, actor, at)

	events := []event.Event{created}
	if s.Status == domain.StatusActive {
		events = append(events, event.New(s.ID, event.PolicySetActivated{SetID: s.ID, ActivatedBy: actor}, actor, at, event.CausedBy(created)))
	}
	return events
}

// ExemptionEvents returns the grant that produces x.
func ExemptionEvents(x *domain.Exemption, actor string, at time.Time) []event.Event {
	grantedBy := x.ApprovedBy
	if grantedBy == "" {
		grantedBy = actor
	}
	return []event.Event{event.New(x.ID, event.ExemptionGranted{
		ExemptionID:    x.ID,
		PolicyID:       x.PolicyID,
		GrantedBy:      grantedBy,
		Reason:         x.Reason,
		Justification:  x.Justification,
		RiskAcceptance: x.RiskAcceptance,
		ValidFrom:      x.ValidFrom,
		ValidUntil:     x.ValidUntil,
		Scope:          x.Scope,
		Conditions:     x.Conditions,
	}, actor, at)}
}
