package notifier

import (
	"net/smtp"
	"strings"
	"testing"
	"time"
)

func TestCooldownGate(t *testing.T) {
	now := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	gate := NewCooldownGate(30 * time.Minute)
	gate.now = func() time.Time { return now }

	if !gate.Allow("robot down") {
		t.Fatal("first alert must pass")
	}
	if gate.Allow("robot down") {
		t.Fatal("repeat inside the window must be suppressed")
	}
	if !gate.Allow("different subject") {
		t.Fatal("other subjects are independent")
	}

	now = now.Add(29 * time.Minute)
	if gate.Allow("robot down") {
		t.Fatal("still inside the window")
	}

	now = now.Add(2 * time.Minute)
	if !gate.Allow("robot down") {
		t.Fatal("window elapsed, alert must pass again")
	}
	if gate.Allow("robot down") {
		t.Fatal("passing resets the window")
	}
}

func TestSendAlert(t *testing.T) {
	var sent []string
	m := New(Config{
		Server:     "localhost",
		Port:       25,
		From:       "botfleet@localhost",
		Recipients: []string{"ops@example.com"},
		Cooldown:   30 * time.Minute,
	})
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		sent = append(sent, string(msg))
		return nil
	}

	if !m.SendAlert("deploy failures", "robot 7 failed on device 10", true) {
		t.Fatal("first critical alert must send")
	}
	if m.SendAlert("deploy failures", "robot 7 failed again", true) {
		t.Fatal("second critical alert inside cooldown must be suppressed")
	}
	if !m.SendAlert("deploy failures", "summary", false) {
		t.Fatal("non-critical alerts bypass the cooldown")
	}

	if len(sent) != 2 {
		t.Fatalf("sent %d mails, want 2", len(sent))
	}
	if !strings.Contains(sent[0], "Subject: [CRITICAL] deploy failures") {
		t.Errorf("critical subject missing prefix:\n%s", sent[0])
	}
	if !strings.Contains(sent[1], "Subject: [ALERT] deploy failures") {
		t.Errorf("informational subject missing prefix:\n%s", sent[1])
	}
	if !strings.Contains(sent[0], "robot 7 failed on device 10") {
		t.Error("body missing from message")
	}
}

func TestSendAlertNoRecipients(t *testing.T) {
	m := New(Config{Cooldown: time.Minute})
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("must not attempt delivery without recipients")
		return nil
	}
	if m.SendAlert("anything", "body", true) {
		t.Fatal("no recipients means not sent")
	}
}
