package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/metropolis-api/internal/models"
)

func TestModerationRoleFor(t *testing.T) {
	owner := "owner"
	org := &models.Organization{ID: "club", IsActive: true, OwnerID: &owner, ExecIDs: []string{"e1", "both"}, SupervisorIDs: []string{"s1", "both"}}

	cases := map[string]ModerationRole{
		"owner":    RoleExec,
		"e1":       RoleExec,
		"s1":       RoleSupervisor,
		"both":     RoleExecSupervisor,
		"stranger": RoleNone,
	}
	for user, want := range cases {
		assert.Equal(t, want, ModerationRoleFor(models.Actor{UserID: user, Role: models.RoleStudent}, org), user)
	}

	admin := models.Actor{UserID: "root", Role: models.RoleSuperAdmin}
	assert.Equal(t, RoleSuperuser, ModerationRoleFor(admin, nil))

	org.IsActive = false
	assert.Equal(t, RoleNone, ModerationRoleFor(models.Actor{UserID: "e1"}, org))
	assert.Equal(t, RoleSuperuser, ModerationRoleFor(admin, org))
}

func TestFieldsForMatrix(t *testing.T) {
	p := AnnouncementPolicy{}

	execDraft := p.FieldsFor(RoleExec, models.AnnouncementStatusDraft)
	assert.True(t, execDraft.Editable.Has(FieldTitle))
	assert.True(t, execDraft.Editable.Has(FieldStatus))
	assert.False(t, execDraft.Visible.Has(FieldSupervisor))
	assert.False(t, execDraft.Editable.Has(FieldRejectionReason))

	execApproved := p.FieldsFor(RoleExec, models.AnnouncementStatusApproved)
	assert.Zero(t, execApproved.Editable)
	assert.False(t, execApproved.Visible.Has(FieldRejectionReason))
	assert.True(t, execApproved.Visible.Has(FieldSupervisor))

	supPending := p.FieldsFor(RoleSupervisor, models.AnnouncementStatusPending)
	assert.Equal(t, []Field{FieldBody, FieldShowAfter, FieldStatus, FieldRejectionReason}, supPending.Editable.List())
	assert.False(t, supPending.Editable.Has(FieldTitle))

	supApproved := p.FieldsFor(RoleSupervisor, models.AnnouncementStatusApproved)
	assert.Equal(t, []Field{FieldOrganization, FieldAuthor, FieldStatus, FieldSupervisor}, supApproved.Visible.List())
	assert.Zero(t, supApproved.Editable)

	supRejected := p.FieldsFor(RoleSupervisor, models.AnnouncementStatusRejected)
	assert.True(t, supRejected.Visible.Has(FieldRejectionReason))
	assert.False(t, supRejected.Visible.Has(FieldBody))

	assert.Equal(t, FieldPolicy{}, p.FieldsFor(RoleNone, models.AnnouncementStatusPending))
	assert.Equal(t, allFields, p.FieldsFor(RoleSuperuser, models.AnnouncementStatusApproved).Editable)
}

func TestFieldsForExecSupervisorIsUnion(t *testing.T) {
	p := AnnouncementPolicy{}
	both := p.FieldsFor(RoleExecSupervisor, models.AnnouncementStatusPending)

	assert.True(t, both.Editable.Has(FieldTitle))
	assert.True(t, both.Editable.Has(FieldRejectionReason))
	assert.Equal(t, allFields, both.Visible)
}

func TestApprovedResubmitOpensExecEditing(t *testing.T) {
	closed := AnnouncementPolicy{}.FieldsFor(RoleExec, models.AnnouncementStatusApproved)
	open := AnnouncementPolicy{AllowApprovedResubmit: true}.FieldsFor(RoleExec, models.AnnouncementStatusApproved)

	assert.Zero(t, closed.Editable)
	assert.True(t, open.Editable.Has(FieldTitle))
	assert.True(t, open.Editable.Has(FieldStatus))
	assert.Equal(t, closed.Visible, open.Visible)

	sup := AnnouncementPolicy{AllowApprovedResubmit: true}.FieldsFor(RoleSupervisor, models.AnnouncementStatusApproved)
	assert.Zero(t, sup.Editable)
}

func TestCreationPolicy(t *testing.T) {
	p := AnnouncementPolicy{}
	assert.Equal(t, FieldPolicy{}, p.CreationPolicy(RoleNone))

	exec := p.CreationPolicy(RoleExec)
	assert.True(t, exec.Editable.Has(FieldOrganization))
	assert.False(t, exec.Editable.Has(FieldRejectionReason))
	assert.False(t, exec.Editable.Has(FieldSupervisor))
}

func TestSupervisorTransitions(t *testing.T) {
	assert.True(t, supervisorMayMove(models.AnnouncementStatusDraft, models.AnnouncementStatusPending))
	assert.False(t, supervisorMayMove(models.AnnouncementStatusDraft, models.AnnouncementStatusApproved))
	assert.True(t, supervisorMayMove(models.AnnouncementStatusPending, models.AnnouncementStatusRejected))
	assert.False(t, supervisorMayMove(models.AnnouncementStatusPending, models.AnnouncementStatusDraft))
	assert.False(t, supervisorMayMove(models.AnnouncementStatusApproved, models.AnnouncementStatusPending))
}

func TestFieldSetMarshalsAsNames(t *testing.T) {
	raw, err := json.Marshal(fieldsOf(FieldStatus, FieldTitle))
	require.NoError(t, err)
	assert.JSONEq(t, `["title","status"]`, string(raw))

	raw, err = json.Marshal(FieldSet(0))
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}
