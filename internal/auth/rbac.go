package auth

import (
	"fmt"
	"strings"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleAttendee  Role = "attendee"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

// ParseRole maps user input to a Role. An empty string yields the default attendee role.
func ParseRole(value string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return RoleAttendee, nil
	case string(RoleAttendee):
		return RoleAttendee, nil
	case string(RoleOrganizer):
		return RoleOrganizer, nil
	case string(RoleAdmin):
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("unknown role %q", value)
	}
}

func (r Role) Valid() bool {
	switch r {
	case RoleAttendee, RoleOrganizer, RoleAdmin:
		return true
	}
	return false
}

// SelfAssignable reports whether a user may pick this role when signing up.
func (r Role) SelfAssignable() bool {
	return r == RoleAttendee || r == RoleOrganizer
}

// Capability names an action guarded at the authorization boundary.
type Capability string

const (
	// CapManageEvents allows creating events and editing or deleting the caller's own events.
	CapManageEvents Capability = "events:manage"
	// CapModerate allows acting on events and registrations owned by other users.
	CapModerate Capability = "moderate"
	// CapRegister allows registering for events.
	CapRegister Capability = "registrations:create"
)

var capabilities = map[Role][]Capability{
	RoleAttendee:  {CapRegister},
	RoleOrganizer: {CapRegister, CapManageEvents},
	RoleAdmin:     {CapRegister, CapManageEvents, CapModerate},
}

// Can reports whether the role holds the capability.
func (r Role) Can(capability Capability) bool {
	for _, candidate := range capabilities[r] {
		if candidate == capability {
			return true
		}
	}
	return false
}

// Actor is the authenticated caller of a domain operation.
type Actor struct {
	UserID string
	Role   Role
}

// ActorFromClaims builds an Actor from validated token claims.
func ActorFromClaims(claims *Claims) Actor {
	if claims == nil {
		return Actor{}
	}
	return Actor{UserID: claims.UserID(), Role: claims.Role}
}

func (a Actor) Can(capability Capability) bool {
	return a.Role.Can(capability)
}

// Owns reports whether the actor is ownerID or may moderate resources owned by others.
func (a Actor) Owns(ownerID string) bool {
	if a.UserID != "" && a.UserID == ownerID {
		return true
	}
	return a.Can(CapModerate)
}
