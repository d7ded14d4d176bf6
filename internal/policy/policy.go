// Package policy answers whether a user may act on an image or its thread.
// Every predicate reads the user's role and scope on each call.
package policy

import "github.com/bannerdesk/banner-service/internal/identity"

// Target is the ownership chain of an image: the business that owns the
// image's product, and that business's municipality.
type Target struct {
	BusinessID     int64
	MunicipalityID int64
}

// CanApprove reports whether u may review (approve, reject, request
// revision) images owned by t.
func CanApprove(u *identity.User, t Target) bool {
	if u == nil {
		return false
	}
	switch u.Role {
	case identity.RoleSuperAdmin:
		return true
	case identity.RoleCreator:
		return false
	case identity.RoleMunicipalityUser:
		return u.MunicipalityID != nil && *u.MunicipalityID == t.MunicipalityID
	case identity.RoleBusinessUser:
		return u.BusinessID != nil && *u.BusinessID == t.BusinessID
	default:
		return false
	}
}

// CanUpload reports whether u may create images and upload new versions.
func CanUpload(u *identity.User) bool {
	if u == nil {
		return false
	}
	return u.Role == identity.RoleSuperAdmin || u.Role == identity.RoleCreator
}

// ChatPolicy controls access to the comment thread.
type ChatPolicy struct {
	// BusinessUsersCanChat lets business users read and post comments.
	BusinessUsersCanChat bool
}

// DefaultChatPolicy keeps business users out of the thread.
func DefaultChatPolicy() ChatPolicy {
	return ChatPolicy{}
}

// CanViewChat reports whether u may read comment threads.
func (p ChatPolicy) CanViewChat(u *identity.User) bool {
	if u == nil || !u.Role.Valid() {
		return false
	}
	if u.Role == identity.RoleBusinessUser {
		return p.BusinessUsersCanChat
	}
	return true
}

// CanSendChat reports whether u may post comments.
func (p ChatPolicy) CanSendChat(u *identity.User) bool {
	return p.CanViewChat(u)
}

// CanViewChat applies the default chat policy.
func CanViewChat(u *identity.User) bool {
	return DefaultChatPolicy().CanViewChat(u)
}

// CanSendChat applies the default chat policy.
func CanSendChat(u *identity.User) bool {
	return DefaultChatPolicy().CanSendChat(u)
}
