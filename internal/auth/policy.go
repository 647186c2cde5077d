package auth

import (
	"github.com/spec-kit/support-desk/internal/domain"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// Operation names a ticket action subject to access control.
type Operation string

const (
	OpCreateTicket Operation = "CreateTicket"
	OpListTickets  Operation = "ListTickets"
	OpReadTicket   Operation = "ReadTicket"
	OpUpdateStatus Operation = "UpdateStatus"
	OpDeleteTicket Operation = "DeleteTicket"
)

// Authorize decides whether identity may perform op on ticket. ticket is nil
// for operations without a target (create, list). It returns nil, ErrForbidden
// or ErrNotOwner.
//
//	role     create  list         read      status  delete
//	user     allow   own only     if owner  deny    if owner
//	support  allow   all          allow     allow   allow
//	admin    allow   all          allow     allow   allow
func Authorize(identity domain.Identity, op Operation, ticket *domain.Ticket) error {
	role := domain.ParseRole(string(identity.Role))
	if role.IsStaff() {
		return nil
	}

	switch op {
	case OpCreateTicket, OpListTickets:
		return nil
	case OpUpdateStatus:
		return apperrors.ErrForbidden.WithMessage("staff role required to change ticket status")
	case OpReadTicket, OpDeleteTicket:
		if ticket != nil && ticket.OwnedBy(identity.SubjectID) {
			return nil
		}
		return apperrors.ErrNotOwner
	default:
		return apperrors.ErrForbidden
	}
}

// ListScope returns the owner filter a ticket listing must be restricted to,
// or nil when the identity may see every ticket.
func ListScope(identity domain.Identity) *string {
	if domain.ParseRole(string(identity.Role)).IsStaff() {
		return nil
	}
	owner := identity.SubjectID
	return &owner
}
