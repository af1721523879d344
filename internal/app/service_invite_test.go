package app

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"taskflow/api/internal/invite"
	"taskflow/api/internal/store"
)

// inviteToken extracts the token from the last invitation email.
func inviteToken(t *testing.T, env *testEnv) string {
	t.Helper()
	env.svc.Drain()
	sent := env.mailer.messages()
	if len(sent) == 0 {
		t.Fatal("no invitation email sent")
	}
	link, err := url.Parse(sent[len(sent)-1].link)
	if err != nil {
		t.Fatalf("parse invite link: %v", err)
	}
	return link.Query().Get("tk")
}

func TestInviteAcceptRemoveScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ws, err := env.svc.CreateWorkspace(ctx, "usr_alice", CreateWorkspaceInput{Name: "W"})
	if err != nil {
		t.Fatalf("CreateWorkspace() error = %v", err)
	}

	result, err := env.svc.InviteUserToWorkspace(ctx, "usr_alice", ws.ID, "Bob@Example.com", "member")
	if err != nil {
		t.Fatalf("InviteUserToWorkspace() error = %v", err)
	}
	if result.UserID != "usr_bob" || result.Role != "member" {
		t.Fatalf("unexpected invite: %+v", result)
	}
	token := inviteToken(t, env)
	sent := env.mailer.messages()[0]
	if sent.to != "bob@example.com" || sent.inviter != "Alice" || !strings.HasPrefix(sent.link, "http://app.test/workspace-invite/"+ws.ID+"?tk=") {
		t.Fatalf("unexpected email: %+v", sent)
	}

	joined, err := env.svc.AcceptInviteByToken(ctx, "usr_bob", token)
	if err != nil {
		t.Fatalf("AcceptInviteByToken() error = %v", err)
	}
	if len(joined.Members) != 2 || joined.Members[1].UserID != "usr_bob" || joined.Members[1].Role != "member" {
		t.Fatalf("members = %+v", joined.Members)
	}
	assertSingleOwner(t, joined)
	if _, err := env.store.GetInvite(ctx, ws.ID, "usr_bob"); err != store.ErrNotFound {
		t.Fatalf("invite not consumed: %v", err)
	}

	removed, err := env.svc.RemoveWorkspaceMember(ctx, "usr_alice", ws.ID, "usr_bob")
	if err != nil {
		t.Fatalf("RemoveWorkspaceMember() error = %v", err)
	}
	if len(removed.Members) != 1 {
		t.Fatalf("members after removal = %d, want 1", len(removed.Members))
	}

	_, err = env.svc.RemoveWorkspaceMember(ctx, "usr_alice", ws.ID, "usr_alice")
	assertKind(t, err, KindForbidden)
	_, err = env.svc.RemoveWorkspaceMember(ctx, "usr_alice", ws.ID, "usr_bob")
	assertKind(t, err, KindNotFound)

	// The consumed invite cannot be replayed after removal.
	_, err = env.svc.AcceptInviteByToken(ctx, "usr_bob", token)
	assertKind(t, err, KindNotFound)
}

func TestAcceptInviteTwiceConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ws, _ := env.svc.CreateWorkspace(ctx, "usr_alice", CreateWorkspaceInput{Name: "W"})
	if _, err := env.svc.InviteUserToWorkspace(ctx, "usr_alice", ws.ID, "carol@example.com", "admin"); err != nil {
		t.Fatalf("InviteUserToWorkspace() error = %v", err)
	}
	token := inviteToken(t, env)

	_, err := env.svc.AcceptInviteByToken(ctx, "usr_dave", token)
	assertKind(t, err, KindForbidden)

	if _, err := env.svc.AcceptInviteByToken(ctx, "usr_carol", token); err != nil {
		t.Fatalf("first accept error = %v", err)
	}
	_, err = env.svc.AcceptInviteByToken(ctx, "usr_carol", token)
	assertKind(t, err, KindConflict)

	stored, _ := env.store.GetWorkspace(ctx, ws.ID)
	if len(stored.Members) != 2 || stored.Members[1].Role != "admin" {
		t.Fatalf("members = %+v", stored.Members)
	}
}

func TestAcceptInviteRejectsBadTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ws, _ := env.svc.CreateWorkspace(ctx, "usr_alice", CreateWorkspaceInput{Name: "W"})

	expiredToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, invite.Claims{
		WorkspaceID: ws.ID,
		UserID:      "usr_bob",
		Role:        "member",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}).SignedString([]byte("invite-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	forged, _, err := invite.NewIssuer("other-secret", time.Hour).Issue(ws.ID, "usr_bob", "member")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	cases := []struct {
		name  string
		token string
		kind  Kind
	}{
		{name: "expired", token: expiredToken, kind: KindExpired},
		{name: "wrong secret", token: forged, kind: KindInvalidSignature},
		{name: "garbage", token: "not.a.token", kind: KindInvalidSignature},
		{name: "empty", token: "", kind: KindInvalidSignature},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.AcceptInviteByToken(ctx, "usr_bob", tc.token)
			assertKind(t, err, tc.kind)
		})
	}
}

func TestInviteValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ws := seedWorkspace(t, env)

	cases := []struct {
		name  string
		actor string
		email string
		role  string
		kind  Kind
	}{
		{name: "owner role", actor: "usr_alice", email: "carol@example.com", role: "owner", kind: KindInvalid},
		{name: "plain member inviting", actor: "usr_bob", email: "carol@example.com", kind: KindForbidden},
		{name: "unknown user", actor: "usr_alice", email: "nobody@example.com", kind: KindNotFound},
		{name: "already member", actor: "usr_alice", email: "bob@example.com", kind: KindConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.InviteUserToWorkspace(ctx, tc.actor, ws.ID, tc.email, tc.role)
			assertKind(t, err, tc.kind)
		})
	}

	if _, err := env.svc.InviteUserToWorkspace(ctx, "usr_alice", ws.ID, "carol@example.com", ""); err != nil {
		t.Fatalf("first invite error = %v", err)
	}
	_, err := env.svc.InviteUserToWorkspace(ctx, "usr_alice", ws.ID, "carol@example.com", "")
	assertKind(t, err, KindConflict)
}

func TestInviteReplacesExpiredInvite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ws, _ := env.svc.CreateWorkspace(ctx, "usr_alice", CreateWorkspaceInput{Name: "W"})
	stale := store.WorkspaceInvite{
		ID:          "inv_stale",
		WorkspaceID: ws.ID,
		UserID:      "usr_carol",
		Role:        "member",
		Token:       "stale",
		ExpiresAt:   time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := env.store.CreateInvite(ctx, stale); err != nil {
		t.Fatalf("CreateInvite() error = %v", err)
	}

	if _, err := env.svc.InviteUserToWorkspace(ctx, "usr_alice", ws.ID, "carol@example.com", "viewer"); err != nil {
		t.Fatalf("InviteUserToWorkspace() error = %v", err)
	}
	current, err := env.store.GetInvite(ctx, ws.ID, "usr_carol")
	if err != nil {
		t.Fatalf("GetInvite() error = %v", err)
	}
	if current.ID == stale.ID || current.Role != "viewer" {
		t.Fatalf("expired invite not replaced: %+v", current)
	}
}

func TestInviteWithoutMailerStillSucceeds(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.configured = false
	ctx := context.Background()
	ws, _ := env.svc.CreateWorkspace(ctx, "usr_alice", CreateWorkspaceInput{Name: "W"})

	if _, err := env.svc.InviteUserToWorkspace(ctx, "usr_alice", ws.ID, "bob@example.com", ""); err != nil {
		t.Fatalf("InviteUserToWorkspace() error = %v", err)
	}
	env.svc.Drain()
	if got := len(env.mailer.messages()); got != 0 {
		t.Fatalf("sent %d emails with mailer unconfigured", got)
	}
}

func TestRemoveMemberDropsProjectMembership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ws, project := seedProject(t, env)

	if _, err := env.svc.RemoveWorkspaceMember(ctx, "usr_bob", ws.ID, "usr_alice"); err == nil {
		t.Fatal("expected plain member to be refused")
	}
	if _, err := env.svc.RemoveWorkspaceMember(ctx, "usr_alice", ws.ID, "usr_bob"); err != nil {
		t.Fatalf("RemoveWorkspaceMember() error = %v", err)
	}
	_, err := env.svc.GetProject(ctx, "usr_bob", project.ID)
	assertKind(t, err, KindForbidden)
}

func TestAcceptInviteToleratesPaddedToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ws, _ := env.svc.CreateWorkspace(ctx, "usr_alice", CreateWorkspaceInput{Name: "W"})
	if _, err := env.svc.InviteUserToWorkspace(ctx, "usr_alice", ws.ID, "bob@example.com", ""); err != nil {
		t.Fatalf("InviteUserToWorkspace() error = %v", err)
	}
	token := inviteToken(t, env)

	joined, err := env.svc.AcceptInviteByToken(ctx, "usr_bob", "  "+token+"\n")
	if err != nil {
		t.Fatalf("AcceptInviteByToken() error = %v", err)
	}
	if len(joined.Members) != 2 {
		t.Fatalf("members = %+v", joined.Members)
	}
}

func TestConcurrentInviteInsertIsConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ws, _ := env.svc.CreateWorkspace(ctx, "usr_alice", CreateWorkspaceInput{Name: "W"})

	// Another request inserts its invite between the lookup and our insert.
	env.store.beforeCreateInvite = func(inv store.WorkspaceInvite) {
		env.store.beforeCreateInvite = nil
		competing := inv
		competing.ID = "inv_competing"
		if err := env.store.CreateInvite(ctx, competing); err != nil {
			t.Errorf("competing CreateInvite() error = %v", err)
		}
	}

	_, err := env.svc.InviteUserToWorkspace(ctx, "usr_alice", ws.ID, "bob@example.com", "")
	assertKind(t, err, KindConflict)
	env.svc.Drain()
	if got := len(env.mailer.messages()); got != 0 {
		t.Fatalf("sent %d emails for a rejected invite", got)
	}
}
