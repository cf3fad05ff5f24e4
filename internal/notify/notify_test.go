package notify_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/daymind/internal/notify"
)

type sent struct{ title, message string }

func recorder(n *notify.Notifier, err error) *[]sent {
	var got []sent
	n.SetSender(func(title, message, _ string) error {
		got = append(got, sent{title, message})
		return err
	})
	return &got
}

func TestNotifier_Disabled(t *testing.T) {
	t.Parallel()

	n := notify.New(false)
	got := recorder(n, nil)
	n.Delivered("abc123", "hello")
	if len(*got) != 0 {
		t.Errorf("sent %d notifications while disabled", len(*got))
	}
}

func TestNotifier_DeliveredTruncates(t *testing.T) {
	t.Parallel()

	n := notify.New(true)
	got := recorder(n, errors.New("no dbus"))
	n.Delivered("abc123", strings.Repeat("ä", 150))
	n.Failed("abc123", errors.New("upload failed: 503"))

	if len(*got) != 2 {
		t.Fatalf("sent %d notifications, want 2", len(*got))
	}
	if (*got)[0].title != "DayMind: chunk abc123 sent" {
		t.Errorf("title = %q", (*got)[0].title)
	}
	if r := []rune((*got)[0].message); len(r) != 103 {
		t.Errorf("message runes = %d, want 103", len(r))
	}
	if (*got)[1].message != "upload failed: 503" {
		t.Errorf("failure message = %q", (*got)[1].message)
	}
}

func TestNotifier_SetEnabled(t *testing.T) {
	t.Parallel()

	n := notify.New(false)
	n.SetEnabled(true)
	if !n.Enabled() {
		t.Fatal("Enabled() = false after SetEnabled(true)")
	}
}
