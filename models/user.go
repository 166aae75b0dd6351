package models

import "github.com/octabyte/mmm-dashboard/enums"

// User is the identity snapshot returned by the backend's /me endpoint.
type User struct {
	UserID        string                   `json:"user_id"`
	Email         string                   `json:"email"`
	Organizations []OrganizationMembership `json:"organizations"`
}

type OrganizationMembership struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Role enums.Role `json:"role"`
}

// HasOrganization reports whether orgID is one of the user's memberships.
func (u *User) HasOrganization(orgID string) bool {
	if orgID == "" {
		return false
	}
	_, ok := u.Membership(orgID)
	return ok
}

// Membership returns the membership for orgID, if any.
func (u *User) Membership(orgID string) (OrganizationMembership, bool) {
	if u == nil {
		return OrganizationMembership{}, false
	}
	for _, m := range u.Organizations {
		if m.ID == orgID {
			return m, true
		}
	}
	return OrganizationMembership{}, false
}

// Clone returns a deep copy so snapshots handed to readers cannot be mutated.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Organizations != nil {
		c.Organizations = make([]OrganizationMembership, len(u.Organizations))
		copy(c.Organizations, u.Organizations)
	}
	return &c
}

type CreateOrganizationRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

type Organization struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at,omitempty"`
}
