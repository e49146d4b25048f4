// Package notify composes and sends submission/status-change emails (C10).
package notify

import (
	"context"
	"fmt"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog/log"

	"github.com/formwright/formwright/internal/forms"
	"github.com/formwright/formwright/internal/responses"
	"github.com/formwright/formwright/internal/workflow"
)

// EmailGateway sends a plaintext+HTML message. SMTP details are out of
// scope (§4.10); this mirrors the narrow injected-collaborator shape
// auth.SMSGateway uses for OTP delivery.
type EmailGateway interface {
	SendEmail(ctx context.Context, to []string, subject, textBody, htmlBody string) error
}

// Notifier composes submission and status-change emails and sends them via
// an injected EmailGateway. It implements both approval.Notifier
// (NotifyStatusChanged) and workflow.Notifier (NotifyWorkflowUser).
type Notifier struct {
	gateway   EmailGateway
	baseURL   string
	sanitizer *bluemonday.Policy
}

// New builds a Notifier. baseURL is prefixed to response ids to build the
// "link" §4.10 requires in the email body (e.g. "https://forms.example.com").
func New(gateway EmailGateway, baseURL string) *Notifier {
	return &Notifier{gateway: gateway, baseURL: baseURL, sanitizer: bluemonday.UGCPolicy()}
}

// NotifySubmitted sends the submission-confirmation email to a form's
// configured notification_emails, when any are configured. Swallows and
// logs failures per §4.10: "never propagated to the submitter".
func (n *Notifier) NotifySubmitted(ctx context.Context, form *forms.Form, resp *responses.FormResponse) {
	if len(form.NotificationEmails) == 0 {
		return
	}

	subject := fmt.Sprintf("New submission: %s", form.Title)
	text, html := n.composeBody(form, resp, "submitted", "")
	n.send(ctx, form.NotificationEmails, subject, text, html)
}

// NotifyStatusChanged sends the approval status-change email to the
// submitter, when they have an email on file, implementing
// approval.Notifier so C7 can call it directly.
func (n *Notifier) NotifyStatusChanged(ctx context.Context, form *forms.Form, resp *responses.FormResponse, entry responses.StatusLogEntry) {
	to := submitterEmail(resp)
	if to == "" {
		return
	}

	subject := fmt.Sprintf("Your submission was %s: %s", entry.To, form.Title)
	text, html := n.composeBody(form, resp, "status_updated", entry.Comment)
	n.send(ctx, []string{to}, subject, text, html)
}

// NotifyWorkflowUser sends a workflow-triggered notification to userRef,
// implementing workflow.Notifier for C8's notify_user action.
func (n *Notifier) NotifyWorkflowUser(ctx context.Context, userRef string, wf *workflow.FormWorkflow, resp *responses.FormResponse) {
	if userRef == "" {
		return
	}
	// userRef may be an email address directly (the common case for a
	// form's assign_to_user_field) or an opaque user id the caller has
	// already resolved to one; either way it's the send target here.
	subject := "A form submission needs your attention"
	text := fmt.Sprintf("Response %s requires your attention.\n", resp.ID)
	html := n.sanitizer.Sanitize(fmt.Sprintf("<p>Response <strong>%s</strong> requires your attention.</p>", resp.ID))
	n.send(ctx, []string{userRef}, subject, text, html)
}

func (n *Notifier) composeBody(form *forms.Form, resp *responses.FormResponse, event, comment string) (text, html string) {
	link := fmt.Sprintf("%s/forms/%s/responses/%s", n.baseURL, form.ID, resp.ID)

	text = fmt.Sprintf(
		"Form: %s\nResponse: %s\nSubmitted by: %s\nEvent: %s\n",
		form.Title, resp.ID, resp.SubmittedBy, event,
	)
	if comment != "" {
		text += fmt.Sprintf("Comment: %s\n", comment)
	}
	text += fmt.Sprintf("View: %s\n", link)

	rawHTML := fmt.Sprintf(
		"<p><strong>Form:</strong> %s</p><p><strong>Response:</strong> %s</p><p><strong>Submitted by:</strong> %s</p>",
		form.Title, resp.ID, resp.SubmittedBy,
	)
	if comment != "" {
		rawHTML += fmt.Sprintf("<p><strong>Comment:</strong> %s</p>", comment)
	}
	rawHTML += fmt.Sprintf(`<p><a href="%s">View submission</a></p>`, link)

	return text, n.sanitizer.Sanitize(rawHTML)
}

func (n *Notifier) send(ctx context.Context, to []string, subject, text, html string) {
	if n.gateway == nil {
		return
	}
	if err := n.gateway.SendEmail(ctx, to, subject, text, html); err != nil {
		log.Error().Err(err).Strs("to", to).Str("subject", subject).Msg("sending notification email failed")
	}
}

func submitterEmail(resp *responses.FormResponse) string {
	if resp.SubmittedBy == "" || resp.SubmittedBy == "anonymous" {
		return ""
	}
	return resp.SubmittedBy
}
