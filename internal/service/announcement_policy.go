package service

import (
	"encoding/json"

	"github.com/noah-isme/metropolis-api/internal/models"
)

// Field names an announcement attribute subject to role based visibility.
type Field string

const (
	FieldOrganization    Field = "organization"
	FieldAuthor          Field = "author"
	FieldTitle           Field = "title"
	FieldBody            Field = "body"
	FieldTags            Field = "tags"
	FieldShowAfter       Field = "show_after"
	FieldIsPublic        Field = "is_public"
	FieldStatus          Field = "status"
	FieldRejectionReason Field = "rejection_reason"
	FieldSupervisor      Field = "supervisor"
)

var fieldOrder = []Field{
	FieldOrganization, FieldAuthor, FieldTitle, FieldBody, FieldTags,
	FieldShowAfter, FieldIsPublic, FieldStatus, FieldRejectionReason, FieldSupervisor,
}

// FieldSet is a set of fields.
type FieldSet uint16

func fieldBit(f Field) FieldSet {
	for i, candidate := range fieldOrder {
		if candidate == f {
			return 1 << uint(i)
		}
	}
	return 0
}

func fieldsOf(fs ...Field) FieldSet {
	var set FieldSet
	for _, f := range fs {
		set |= fieldBit(f)
	}
	return set
}

// Has reports whether f is in the set.
func (s FieldSet) Has(f Field) bool {
	bit := fieldBit(f)
	return bit != 0 && s&bit == bit
}

// List returns the fields in declaration order.
func (s FieldSet) List() []Field {
	out := make([]Field, 0, len(fieldOrder))
	for _, f := range fieldOrder {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// MarshalJSON renders the set as a list of field names.
func (s FieldSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.List())
}

// FieldPolicy says which fields a role may see and write.
type FieldPolicy struct {
	Visible  FieldSet `json:"visible"`
	Editable FieldSet `json:"editable"`
}

// ModerationRole is the caller's standing relative to an announcement's organization.
type ModerationRole string

const (
	RoleNone           ModerationRole = "none"
	RoleExec           ModerationRole = "exec"
	RoleSupervisor     ModerationRole = "supervisor"
	RoleExecSupervisor ModerationRole = "exec+supervisor"
	RoleSuperuser      ModerationRole = "superuser"
)

// IsExec reports whether the role includes the authoring side.
func (r ModerationRole) IsExec() bool {
	return r == RoleExec || r == RoleExecSupervisor
}

// IsSupervisor reports whether the role includes the approving side.
func (r ModerationRole) IsSupervisor() bool {
	return r == RoleSupervisor || r == RoleExecSupervisor
}

// ModerationRoleFor derives the actor's role for an organization. Inactive organizations grant nothing
// except to superusers.
func ModerationRoleFor(actor models.Actor, org *models.Organization) ModerationRole {
	if actor.IsSuperuser() {
		return RoleSuperuser
	}
	if org == nil || !org.IsActive || actor.UserID == "" {
		return RoleNone
	}
	exec, supervisor := org.IsExec(actor.UserID), org.IsSupervisor(actor.UserID)
	switch {
	case exec && supervisor:
		return RoleExecSupervisor
	case exec:
		return RoleExec
	case supervisor:
		return RoleSupervisor
	default:
		return RoleNone
	}
}

var (
	allFields      = fieldsOf(fieldOrder...)
	contentFields  = fieldsOf(FieldTitle, FieldBody, FieldTags, FieldShowAfter, FieldIsPublic)
	authoredFields = fieldsOf(FieldOrganization, FieldAuthor) | contentFields | fieldsOf(FieldStatus)
	creationFields = fieldsOf(FieldOrganization) | contentFields | fieldsOf(FieldStatus)
)

var moderationMatrix = map[ModerationRole]map[models.AnnouncementStatus]FieldPolicy{
	RoleExec: {
		models.AnnouncementStatusDraft:    {Visible: authoredFields, Editable: contentFields | fieldsOf(FieldStatus)},
		models.AnnouncementStatusPending:  {Visible: authoredFields | fieldsOf(FieldSupervisor), Editable: contentFields | fieldsOf(FieldStatus)},
		models.AnnouncementStatusApproved: {Visible: allFields &^ fieldsOf(FieldRejectionReason)},
		models.AnnouncementStatusRejected: {Visible: allFields, Editable: contentFields | fieldsOf(FieldStatus)},
	},
	RoleSupervisor: {
		models.AnnouncementStatusDraft:    {Visible: authoredFields, Editable: contentFields | fieldsOf(FieldStatus)},
		models.AnnouncementStatusPending:  {Visible: allFields, Editable: fieldsOf(FieldBody, FieldShowAfter, FieldStatus, FieldRejectionReason)},
		models.AnnouncementStatusApproved: {Visible: fieldsOf(FieldOrganization, FieldAuthor, FieldStatus, FieldSupervisor)},
		models.AnnouncementStatusRejected: {Visible: fieldsOf(FieldOrganization, FieldAuthor, FieldStatus, FieldRejectionReason, FieldSupervisor)},
	},
}

// AnnouncementPolicy evaluates the moderation matrix.
type AnnouncementPolicy struct {
	// AllowApprovedResubmit lets execs edit approved announcements, which sends them back to review.
	AllowApprovedResubmit bool
}

// FieldsFor returns the policy for role at status. Exec plus supervisor is the union of both rows.
func (p AnnouncementPolicy) FieldsFor(role ModerationRole, status models.AnnouncementStatus) FieldPolicy {
	switch role {
	case RoleSuperuser:
		return FieldPolicy{Visible: allFields, Editable: allFields}
	case RoleExec, RoleSupervisor:
		return p.row(role, status)
	case RoleExecSupervisor:
		exec, supervisor := p.row(RoleExec, status), p.row(RoleSupervisor, status)
		return FieldPolicy{Visible: exec.Visible | supervisor.Visible, Editable: exec.Editable | supervisor.Editable}
	default:
		return FieldPolicy{}
	}
}

func (p AnnouncementPolicy) row(role ModerationRole, status models.AnnouncementStatus) FieldPolicy {
	policy := moderationMatrix[role][status]
	if role == RoleExec && status == models.AnnouncementStatusApproved && p.AllowApprovedResubmit {
		policy.Editable = moderationMatrix[RoleExec][models.AnnouncementStatusRejected].Editable
	}
	return policy
}

// CreationPolicy returns the fields role may set on a new announcement.
func (p AnnouncementPolicy) CreationPolicy(role ModerationRole) FieldPolicy {
	switch role {
	case RoleNone:
		return FieldPolicy{}
	case RoleSuperuser:
		return FieldPolicy{Visible: allFields, Editable: creationFields}
	default:
		return FieldPolicy{Visible: authoredFields, Editable: creationFields}
	}
}

// supervisorTransitions lists the statuses a supervisor may move an announcement to.
var supervisorTransitions = map[models.AnnouncementStatus][]models.AnnouncementStatus{
	models.AnnouncementStatusDraft: {models.AnnouncementStatusDraft, models.AnnouncementStatusPending},
	models.AnnouncementStatusPending: {
		models.AnnouncementStatusPending, models.AnnouncementStatusApproved, models.AnnouncementStatusRejected,
	},
}

func supervisorMayMove(from, to models.AnnouncementStatus) bool {
	for _, allowed := range supervisorTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
