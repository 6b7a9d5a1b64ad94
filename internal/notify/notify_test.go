package notify

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestTLSPolicy(t *testing.T) {
	for _, s := range []string{"", "opportunistic", "mandatory", "none", "NONE"} {
		if _, err := tlsPolicy(s); err != nil {
			t.Errorf("tlsPolicy(%q) error = %v", s, err)
		}
	}
	if _, err := tlsPolicy("starttls-maybe"); err == nil {
		t.Error("tlsPolicy() should reject unknown policies")
	}
}

func TestNewSMTP(t *testing.T) {
	if _, err := NewSMTP(SMTPConfig{Host: "smtp.example.com", TLS: "none"}); err != nil {
		t.Fatalf("NewSMTP() failed: %v", err)
	}
	if _, err := NewSMTP(SMTPConfig{Host: "smtp.example.com", TLS: "bogus"}); err == nil {
		t.Fatal("NewSMTP() should fail on a bad TLS policy")
	}
}

func TestBuildMessage(t *testing.T) {
	_, err := buildMessage(Message{
		From:    "uploader@example.com",
		To:      "ops@example.com",
		Subject: "PDF Upload Error",
		Body:    "body",
	})
	if err != nil {
		t.Fatalf("buildMessage() failed: %v", err)
	}

	if _, err := buildMessage(Message{From: "not an address", To: "ops@example.com"}); err == nil {
		t.Error("buildMessage() should reject an invalid sender")
	}
	if _, err := buildMessage(Message{From: "uploader@example.com", To: ""}); err == nil {
		t.Error("buildMessage() should reject an empty recipient")
	}
}

func TestLogOnly(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := LogOnly{Logger: zap.New(core)}

	if err := n.Send(context.Background(), Message{Subject: "subj", Body: "body"}); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}
	if logs.Len() != 1 {
		t.Fatalf("got %d log entries, want 1", logs.Len())
	}
	if got := logs.All()[0].ContextMap()["subject"]; got != "subj" {
		t.Errorf("subject field = %v", got)
	}
}
