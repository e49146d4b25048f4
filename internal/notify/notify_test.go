package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/formwright/formwright/internal/forms"
	"github.com/formwright/formwright/internal/responses"
)

type recordingGateway struct {
	sent []sentEmail
	err  error
}

type sentEmail struct {
	to      []string
	subject string
	text    string
	html    string
}

func (g *recordingGateway) SendEmail(ctx context.Context, to []string, subject, text, html string) error {
	g.sent = append(g.sent, sentEmail{to: to, subject: subject, text: text, html: html})
	return g.err
}

func testForm() *forms.Form {
	return &forms.Form{ID: "form-1", Title: "Intake", NotificationEmails: []string{"admin@example.com"}}
}

func testResponse() *responses.FormResponse {
	return &responses.FormResponse{ID: "resp-1", FormID: "form-1", SubmittedBy: "ada@example.com", SubmittedAt: time.Now()}
}

func TestNotifySubmitted_SkipsWhenNoNotificationEmails(t *testing.T) {
	gw := &recordingGateway{}
	n := New(gw, "https://forms.example.com")

	form := &forms.Form{ID: "form-1", Title: "Intake"}
	n.NotifySubmitted(context.Background(), form, testResponse())

	if len(gw.sent) != 0 {
		t.Fatalf("expected no email sent, got %d", len(gw.sent))
	}
}

func TestNotifySubmitted_SendsToConfiguredEmails(t *testing.T) {
	gw := &recordingGateway{}
	n := New(gw, "https://forms.example.com")

	n.NotifySubmitted(context.Background(), testForm(), testResponse())

	if len(gw.sent) != 1 {
		t.Fatalf("expected one email sent, got %d", len(gw.sent))
	}
	msg := gw.sent[0]
	if msg.to[0] != "admin@example.com" {
		t.Fatalf("expected send to notification_emails, got %v", msg.to)
	}
	if !strings.Contains(msg.text, "resp-1") || !strings.Contains(msg.html, "resp-1") {
		t.Fatalf("expected response id in body, got text=%q html=%q", msg.text, msg.html)
	}
}

func TestNotifyStatusChanged_SendsToSubmitter(t *testing.T) {
	gw := &recordingGateway{}
	n := New(gw, "https://forms.example.com")

	entry := responses.StatusLogEntry{From: responses.StatusPending, To: responses.StatusApproved, Actor: "owner", At: time.Now(), Comment: "looks good"}
	n.NotifyStatusChanged(context.Background(), testForm(), testResponse(), entry)

	if len(gw.sent) != 1 {
		t.Fatalf("expected one email sent, got %d", len(gw.sent))
	}
	if gw.sent[0].to[0] != "ada@example.com" {
		t.Fatalf("expected send to submitter, got %v", gw.sent[0].to)
	}
	if !strings.Contains(gw.sent[0].text, "looks good") {
		t.Fatalf("expected comment in body, got %q", gw.sent[0].text)
	}
}

func TestNotifyStatusChanged_SkipsAnonymousSubmitter(t *testing.T) {
	gw := &recordingGateway{}
	n := New(gw, "https://forms.example.com")

	resp := testResponse()
	resp.SubmittedBy = "anonymous"
	entry := responses.StatusLogEntry{From: responses.StatusPending, To: responses.StatusRejected, Actor: "owner", At: time.Now()}
	n.NotifyStatusChanged(context.Background(), testForm(), resp, entry)

	if len(gw.sent) != 0 {
		t.Fatalf("expected no email sent for anonymous submitter, got %d", len(gw.sent))
	}
}

func TestNotifyHTMLBodyIsSanitized(t *testing.T) {
	gw := &recordingGateway{}
	n := New(gw, "https://forms.example.com")

	form := testForm()
	form.Title = `<script>alert(1)</script>Intake`
	n.NotifySubmitted(context.Background(), form, testResponse())

	if strings.Contains(gw.sent[0].html, "<script>") {
		t.Fatalf("expected script tag stripped from html body, got %q", gw.sent[0].html)
	}
}

func TestSend_GatewayErrorSwallowed(t *testing.T) {
	gw := &recordingGateway{err: errors.New("smtp down")}
	n := New(gw, "https://forms.example.com")

	// Should not panic or propagate the gateway error.
	n.NotifySubmitted(context.Background(), testForm(), testResponse())
}
