package leave

import "slices"

// =============================================================================
// STATE MACHINE
// =============================================================================
//
//	PENDING ──► ACCEPTED_MANAGER ──► APPROVED_ADMIN
//	   │  └──────────────────────────────►┘
//	   ├──► DENIED ◄── ACCEPTED_MANAGER
//	   └──► CANCELED ◄── ACCEPTED_MANAGER, APPROVED_ADMIN
//	ERROR is reachable from every non-terminal status.

var transitions = map[Status][]Status{
	StatusPending:         {StatusAcceptedManager, StatusApprovedAdmin, StatusDenied, StatusCanceled, StatusError},
	StatusAcceptedManager: {StatusApprovedAdmin, StatusDenied, StatusCanceled, StatusError},
	StatusApprovedAdmin:   {StatusCanceled, StatusError},
}

// ActiveStatuses hold pool days and show up in conflicts.
var ActiveStatuses = []Status{StatusPending, StatusAcceptedManager, StatusApprovedAdmin}

func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

func (s Status) IsActive() bool   { return slices.Contains(ActiveStatuses, s) }
func (s Status) IsTerminal() bool { return len(transitions[s]) == 0 }

// refunds reports whether entering the status gives the days back.
func (s Status) refunds() bool { return s == StatusDenied || s == StatusCanceled }

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAcceptedManager, StatusApprovedAdmin, StatusDenied, StatusCanceled, StatusError:
		return true
	}
	return false
}
