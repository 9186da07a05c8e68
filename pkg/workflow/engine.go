package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/docuvault/docuvault/pkg/authz"
	"github.com/docuvault/docuvault/pkg/documents"
	"github.com/docuvault/docuvault/pkg/history"
	"github.com/docuvault/docuvault/pkg/identity"
	"github.com/docuvault/docuvault/pkg/observability"
)

// Engine evaluates and applies document status transitions
type Engine struct {
	transitions *Store
	docs        *documents.Store
	trail       *history.DBLogger
	logger      *observability.Logger
	metrics     *observability.Metrics
}

// NewEngine creates a workflow engine
func NewEngine(transitions *Store, docs *documents.Store, trail *history.DBLogger, logger *observability.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{
		transitions: transitions,
		docs:        docs,
		trail:       trail,
		logger:      logger,
		metrics:     metrics,
	}
}

// GetAllowedTransitions returns the edges out of the document's current
// status that the caller is authorized to take. Unauthorized edges are
// filtered out rather than reported, so the list doubles as the set of
// actions a UI may offer.
func (e *Engine) GetAllowedTransitions(ctx context.Context, grants *authz.GrantSet, doc *documents.Document) ([]AllowedTransition, error) {
	edges, err := e.transitions.ListTransitionsFrom(ctx, doc.Status)
	if err != nil {
		return nil, err
	}

	allowed := make([]AllowedTransition, 0, len(edges))
	for i := range edges {
		if rej := e.authorize(grants, &edges[i]); rej == nil {
			allowed = append(allowed, AllowedTransition{
				ToStatus:    edges[i].ToStatus,
				Description: edges[i].Description,
			})
		}
	}
	return allowed, nil
}

// ApplyTransition moves a document to a new status. The edge is looked up
// and authorized against the caller's grants, then committed with a
// conditional update so a document whose status changed since the caller
// loaded it is rejected as stale rather than overwritten. Every applied
// transition appends a permanent history record.
func (e *Engine) ApplyTransition(ctx context.Context, user *identity.User, grants *authz.GrantSet, doc *documents.Document, toStatus, reason string) error {
	from := documents.NormalizeStatus(doc.Status)
	to := documents.NormalizeStatus(toStatus)

	if !documents.ValidStatus(to) {
		return e.reject(user, doc, &RejectionError{Reason: ReasonInvalidTransition, Detail: fmt.Sprintf("unknown status %q", toStatus)})
	}

	edges, err := e.transitions.ListTransitionsFrom(ctx, from)
	if err != nil {
		return err
	}

	var edge *Transition
	for i := range edges {
		if edges[i].ToStatus == to {
			edge = &edges[i]
			break
		}
	}
	if edge == nil {
		// The destination may be reachable from some other status, which
		// suggests the caller is acting on a stale snapshot rather than
		// asking for a transition that does not exist at all.
		reachable, err := e.transitions.AnyTransitionTo(ctx, to)
		if err != nil {
			return err
		}
		if reachable {
			return e.reject(user, doc, &RejectionError{Reason: ReasonStaleState, Detail: fmt.Sprintf("no edge %s -> %s", from, to)})
		}
		return e.reject(user, doc, &RejectionError{Reason: ReasonInvalidTransition, Detail: fmt.Sprintf("no edge %s -> %s", from, to)})
	}

	if rej := e.authorize(grants, edge); rej != nil {
		return e.reject(user, doc, rej)
	}

	if err := e.docs.UpdateStatusIf(ctx, doc.ID, doc.Status, to); err != nil {
		if errors.Is(err, documents.ErrStatusConflict) {
			return e.reject(user, doc, &RejectionError{Reason: ReasonStaleState, Detail: "document status changed concurrently"})
		}
		return err
	}
	doc.Status = to

	entry := &history.Entry{
		DocumentID: doc.ID,
		Action:     history.ActionTransition,
		FromStatus: from,
		ToStatus:   to,
		Reason:     reason,
	}
	if user != nil {
		entry.UserID = &user.ID
		entry.Username = user.Username
	}
	if err := e.trail.Record(ctx, entry); err != nil {
		e.logger.WithError(err).Error("failed to record transition history")
	}

	if e.metrics != nil {
		e.metrics.TransitionsTotal.WithLabelValues(from, to).Inc()
	}
	e.logger.WithFields(map[string]interface{}{
		"document_id": doc.ID,
		"from":        from,
		"to":          to,
	}).Info("document transitioned")

	return nil
}

// authorize checks one edge against the caller's grants. It returns nil
// when the edge may be taken, or a rejection naming the first failing
// requirement. Superusers pass every check.
func (e *Engine) authorize(grants *authz.GrantSet, edge *Transition) *RejectionError {
	if grants.Superuser {
		return nil
	}

	if edge.MinLevel > 0 && grants.MaxLevel < edge.MinLevel {
		return &RejectionError{
			Reason: ReasonRoleLevel,
			Detail: fmt.Sprintf("requires level %d, caller has %d", edge.MinLevel, grants.MaxLevel),
		}
	}

	if len(edge.RequiredRoles) > 0 {
		held := false
		for _, name := range edge.RequiredRoles {
			if grants.HasRole(name) {
				held = true
				break
			}
		}
		if !held {
			return &RejectionError{
				Reason: ReasonRoleRequirement,
				Detail: fmt.Sprintf("requires one of %v", edge.RequiredRoles),
			}
		}
	}

	if edge.RequiredPermission != "" {
		tok := authz.ParseToken(edge.RequiredPermission)
		if tok.Kind == authz.KindUnknown {
			e.logger.WithFields(map[string]interface{}{
				"transition_id": edge.ID,
				"requirement":   edge.RequiredPermission,
			}).Warn("transition requirement matches neither grant vocabulary")
			return &RejectionError{
				Reason: ReasonUnknownRequirement,
				Detail: fmt.Sprintf("unrecognized requirement %q", edge.RequiredPermission),
			}
		}
		if !grants.HasToken(tok) {
			return &RejectionError{
				Reason: ReasonMissingGrant,
				Detail: fmt.Sprintf("missing %s", edge.RequiredPermission),
			}
		}
	}

	return nil
}

// reject records rejection metrics and logs before returning the error
func (e *Engine) reject(user *identity.User, doc *documents.Document, rej *RejectionError) error {
	if e.metrics != nil {
		e.metrics.TransitionRejectedTotal.WithLabelValues(rej.Reason).Inc()
	}
	fields := map[string]interface{}{
		"document_id": doc.ID,
		"reason":      rej.Reason,
		"detail":      rej.Detail,
	}
	if user != nil {
		fields["user_id"] = user.ID
	}
	e.logger.WithFields(fields).Info("transition rejected")
	return rej
}
