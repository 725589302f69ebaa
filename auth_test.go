package dialtone

import "testing"

func TestAuthHandlerAcceptsValidCredentials(t *testing.T) {
	checker := NewStaticCredentialChecker(map[string]string{"Alice": "hunter1"})
	a := NewAuthHandler(checker, GuestPolicy{Allowed: false})
	sess := NewSession()

	payload := append([]byte("ALICE\x00"), []byte("hunter1")...)
	outcome := a.Login(sess, payload)

	if !outcome.Accepted {
		t.Fatalf("expected acceptance, got %+v", outcome)
	}
	if !sess.Authed {
		t.Fatal("session should be marked authed")
	}
	if sess.Ephemeral {
		t.Fatal("a real credential login should not be ephemeral")
	}
}

func TestAuthHandlerRejectsBadPasswordNoGuests(t *testing.T) {
	checker := NewStaticCredentialChecker(map[string]string{"alice": "hunter1"})
	a := NewAuthHandler(checker, GuestPolicy{Allowed: false})
	sess := NewSession()

	payload := append([]byte("alice\x00"), []byte("wrongpw")...)
	outcome := a.Login(sess, payload)

	if outcome.Accepted {
		t.Fatal("expected rejection")
	}
	if sess.Authed {
		t.Fatal("session must not be marked authed on failure")
	}
}

func TestAuthHandlerFallsBackToGuestWhenAllowed(t *testing.T) {
	checker := NewStaticCredentialChecker(map[string]string{"alice": "hunter1"})
	a := NewAuthHandler(checker, GuestPolicy{Allowed: true})
	sess := NewSession()

	payload := append([]byte("alice\x00"), []byte("wrongpw")...)
	outcome := a.Login(sess, payload)

	if !outcome.Accepted || !outcome.Ephemeral {
		t.Fatalf("expected ephemeral acceptance, got %+v", outcome)
	}
	if !sess.Ephemeral || sess.TransientPassword() == "" {
		t.Fatal("expected a transient guest password to be stored")
	}
	if sess.DisplayName[:len(GuestPrefix)] != GuestPrefix {
		t.Fatalf("guest display name = %q, want %s prefix", sess.DisplayName, GuestPrefix)
	}
}

func TestAuthHandlerRejectsOversizedFields(t *testing.T) {
	a := NewAuthHandler(NewStaticCredentialChecker(nil), GuestPolicy{Allowed: false})
	sess := NewSession()

	longUser := make([]byte, MaxUsernameLen+1)
	for i := range longUser {
		longUser[i] = 'a'
	}
	payload := append(longUser, append([]byte{0x00}, []byte("pw")...)...)

	outcome := a.Login(sess, payload)
	if outcome.Accepted {
		t.Fatal("expected rejection for an oversized username")
	}
}

func TestGenerateGuestPasswordWithinBounds(t *testing.T) {
	for i := 0; i < 50; i++ {
		pw := GenerateGuestPassword()
		if len(pw) < GuestPasswordMinLen || len(pw) > GuestPasswordMaxLen {
			t.Fatalf("password length %d out of [%d,%d]", len(pw), GuestPasswordMinLen, GuestPasswordMaxLen)
		}
	}
}

func TestIssueGuestNameHasPrefix(t *testing.T) {
	name := IssueGuestName()
	if name[:len(GuestPrefix)] != GuestPrefix {
		t.Fatalf("guest name %q missing prefix %q", name, GuestPrefix)
	}
}

func TestSplitCredentialsRejectsMissingSeparator(t *testing.T) {
	_, _, ok := splitCredentials([]byte("nouserpassheresomehow"))
	if ok {
		t.Fatal("expected ok=false with no NUL separator")
	}
}
