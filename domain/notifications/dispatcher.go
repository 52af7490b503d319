// Package notifications decides that a notification is due, queues its
// payload, and delivers it asynchronously. Enqueue failures are logged
// and never propagate: no membership operation is rolled back because
// an email could not be queued.
package notifications

import (
	"context"
	"log/slog"

	"github.com/slotwise/slotwise-core/pkg/logger"
)

// Dispatcher is the fire-and-forget notification interface consumed by
// the membership and invitation managers.
type Dispatcher interface {
	MemberInvited(ctx context.Context, p MemberInvitedPayload)
	MemberRoleChanged(ctx context.Context, p MemberRoleChangedPayload)
	MemberRemoved(ctx context.Context, p MemberRemovedPayload)
	MemberSetupLink(ctx context.Context, p MemberSetupLinkPayload)
	InvitationCreated(ctx context.Context, p InvitationCreatedPayload)
}

// MemberInvitedPayload describes a member-added notification.
type MemberInvitedPayload struct {
	Email      string
	MemberName string
	TenantName string
	InvitedBy  string
	SetupLink  string
}

// MemberRoleChangedPayload describes a role-change notification.
type MemberRoleChangedPayload struct {
	Email      string
	MemberName string
	TenantName string
	RoleLabel  string
}

// MemberRemovedPayload describes a removal notification.
type MemberRemovedPayload struct {
	Email      string
	MemberName string
	TenantName string
}

// MemberSetupLinkPayload describes a password-setup notification.
type MemberSetupLinkPayload struct {
	Email      string
	MemberName string
	TenantName string
	SetupLink  string
}

// InvitationCreatedPayload describes an invitation notification.
type InvitationCreatedPayload struct {
	Email      string
	TenantName string
	InvitedBy  string
	RoleLabel  string
	InviteLink string
	InviteCode string
	ExpiresAt  string
}

// QueueDispatcher enqueues notification jobs for the worker.
type QueueDispatcher struct {
	jobs *JobsService
	log  *slog.Logger
}

// NewDispatcher creates the queue-backed dispatcher.
func NewDispatcher(jobs *JobsService, log *slog.Logger) Dispatcher {
	return &QueueDispatcher{
		jobs: jobs,
		log:  log.With(logger.Scope("notifications.dispatch")),
	}
}

func (d *QueueDispatcher) enqueue(ctx context.Context, template, toEmail, toName, subject string, data map[string]any) {
	var namePtr *string
	if toName != "" {
		namePtr = &toName
	}
	_, err := d.jobs.Enqueue(ctx, EnqueueOptions{
		TemplateName: template,
		ToEmail:      toEmail,
		ToName:       namePtr,
		Subject:      subject,
		TemplateData: data,
	})
	if err != nil {
		d.log.Error("failed to enqueue notification",
			slog.String("template", template),
			slog.String("to", toEmail),
			logger.Error(err),
		)
		return
	}
	enqueuedTotal.WithLabelValues(template).Inc()
}

func (d *QueueDispatcher) MemberInvited(ctx context.Context, p MemberInvitedPayload) {
	d.enqueue(ctx, "member_invited", p.Email, p.MemberName,
		"You've been added to "+p.TenantName,
		map[string]any{
			"memberName": p.MemberName,
			"tenantName": p.TenantName,
			"invitedBy":  p.InvitedBy,
			"setupLink":  p.SetupLink,
		})
}

func (d *QueueDispatcher) MemberRoleChanged(ctx context.Context, p MemberRoleChangedPayload) {
	d.enqueue(ctx, "member_role_changed", p.Email, p.MemberName,
		"Your role at "+p.TenantName+" changed",
		map[string]any{
			"memberName": p.MemberName,
			"tenantName": p.TenantName,
			"roleLabel":  p.RoleLabel,
		})
}

func (d *QueueDispatcher) MemberRemoved(ctx context.Context, p MemberRemovedPayload) {
	d.enqueue(ctx, "member_removed", p.Email, p.MemberName,
		"Your access to "+p.TenantName+" was removed",
		map[string]any{
			"memberName": p.MemberName,
			"tenantName": p.TenantName,
		})
}

func (d *QueueDispatcher) MemberSetupLink(ctx context.Context, p MemberSetupLinkPayload) {
	d.enqueue(ctx, "password_setup", p.Email, p.MemberName,
		"Finish setting up your "+p.TenantName+" account",
		map[string]any{
			"memberName": p.MemberName,
			"tenantName": p.TenantName,
			"setupLink":  p.SetupLink,
		})
}

func (d *QueueDispatcher) InvitationCreated(ctx context.Context, p InvitationCreatedPayload) {
	d.enqueue(ctx, "invitation", p.Email, "",
		"You're invited to join "+p.TenantName,
		map[string]any{
			"tenantName": p.TenantName,
			"invitedBy":  p.InvitedBy,
			"roleLabel":  p.RoleLabel,
			"inviteLink": p.InviteLink,
			"inviteCode": p.InviteCode,
			"expiresAt":  p.ExpiresAt,
		})
}
