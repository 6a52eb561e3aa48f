package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cipherdial/cipherdial/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return s
}

func mustCreateIdentity(t *testing.T, s *SQLiteStore, phone string) *models.Identity {
	t.Helper()
	ident, err := s.CreateIdentity(context.Background(), phone, "hash", "", "")
	if err != nil {
		t.Fatal(err)
	}
	return ident
}

func TestCreateIdentityDuplicatePhone(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustCreateIdentity(t, s, "+15550001")

	_, err := s.CreateIdentity(ctx, "+15550001", "otherhash", "", "")
	if !errors.Is(err, ErrPhoneTaken) {
		t.Fatalf("expected ErrPhoneTaken, got %v", err)
	}
}

func TestGetIdentityNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ident, err := s.GetIdentityByID(ctx, 999)
	if err != nil {
		t.Fatal(err)
	}
	if ident != nil {
		t.Fatalf("expected nil for missing identity, got %+v", ident)
	}

	ident, err = s.GetIdentityByPhone(ctx, "+10000000")
	if err != nil {
		t.Fatal(err)
	}
	if ident != nil {
		t.Fatalf("expected nil for missing phone, got %+v", ident)
	}
}

func TestUpdateIdentityNamePartial(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ident, err := s.CreateIdentity(ctx, "+15550002", "hash", "Ada", "Lovelace")
	if err != nil {
		t.Fatal(err)
	}

	first := "Grace"
	updated, err := s.UpdateIdentityName(ctx, ident.ID, NameUpdate{FirstName: &first})
	if err != nil {
		t.Fatal(err)
	}
	if updated.FirstName != "Grace" {
		t.Fatalf("expected first name Grace, got %q", updated.FirstName)
	}
	if updated.LastName != "Lovelace" {
		t.Fatalf("nil field should be untouched, got %q", updated.LastName)
	}
}

func TestSearchIdentitiesExcludesViewer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	viewer := mustCreateIdentity(t, s, "+15551234")
	other := mustCreateIdentity(t, s, "+15551299")
	mustCreateIdentity(t, s, "+16660000")

	results, err := s.SearchIdentities(ctx, "555", viewer.ID, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].ID != other.ID {
		t.Fatalf("expected identity %d, got %d", other.ID, results[0].ID)
	}
}

func TestGetOrCreateDialogCanonical(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := mustCreateIdentity(t, s, "+15550010")
	bob := mustCreateIdentity(t, s, "+15550011")

	d1, created, err := s.GetOrCreateDialog(ctx, bob.ID, alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("first call should create the dialog")
	}
	if d1.User1ID >= d1.User2ID {
		t.Fatalf("pair not canonical: %d, %d", d1.User1ID, d1.User2ID)
	}

	// Reversed order must converge on the same row.
	d2, created, err := s.GetOrCreateDialog(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Fatal("second call should not create a new dialog")
	}
	if d2.ID != d1.ID {
		t.Fatalf("expected dialog %d, got %d", d1.ID, d2.ID)
	}

	count, err := s.CountDialogs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected 1 dialog, got %d", count)
	}
}

func TestListDialogsForIdentity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := mustCreateIdentity(t, s, "+15550020")
	bob := mustCreateIdentity(t, s, "+15550021")
	carol := mustCreateIdentity(t, s, "+15550022")

	if _, _, err := s.GetOrCreateDialog(ctx, alice.ID, bob.ID); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.GetOrCreateDialog(ctx, carol.ID, alice.ID); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.GetOrCreateDialog(ctx, bob.ID, carol.ID); err != nil {
		t.Fatal(err)
	}

	dialogs, err := s.ListDialogsForIdentity(ctx, alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(dialogs) != 2 {
		t.Fatalf("expected 2 dialogs for alice, got %d", len(dialogs))
	}
	for _, d := range dialogs {
		if !d.HasParticipant(alice.ID) {
			t.Fatalf("dialog %d does not include alice", d.ID)
		}
	}
}

func seedMessages(t *testing.T, s *SQLiteStore, dialogID, senderID int64, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := s.CreateMessage(context.Background(), &models.Message{
			DialogID:    dialogID,
			SenderID:    senderID,
			Ciphertext:  "payload",
			ContentType: models.ContentText,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestListMessagesOrderingAndPaging(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := mustCreateIdentity(t, s, "+15550030")
	bob := mustCreateIdentity(t, s, "+15550031")
	dialog, _, err := s.GetOrCreateDialog(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatal(err)
	}

	seedMessages(t, s, dialog.ID, alice.ID, 5)

	msgs, total, err := s.ListMessages(ctx, dialog.ID, MessageFilter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if total != 5 {
		t.Fatalf("expected total 5, got %d", total)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].ID >= msgs[1].ID {
		t.Fatal("messages should be oldest-first")
	}
}

func TestListMessagesAfterFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := mustCreateIdentity(t, s, "+15550040")
	bob := mustCreateIdentity(t, s, "+15550041")
	dialog, _, err := s.GetOrCreateDialog(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatal(err)
	}

	first, err := s.CreateMessage(ctx, &models.Message{
		DialogID: dialog.ID, SenderID: alice.ID, Ciphertext: "old", ContentType: models.ContentText,
	})
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(10 * time.Millisecond)
	cutoff := time.Now().UTC()
	time.Sleep(10 * time.Millisecond)

	second, err := s.CreateMessage(ctx, &models.Message{
		DialogID: dialog.ID, SenderID: bob.ID, Ciphertext: "new", ContentType: models.ContentText,
	})
	if err != nil {
		t.Fatal(err)
	}

	msgs, total, err := s.ListMessages(ctx, dialog.ID, MessageFilter{After: &cutoff, Limit: 50})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(msgs) != 1 {
		t.Fatalf("expected exactly 1 message after cutoff, got total=%d len=%d", total, len(msgs))
	}
	if msgs[0].ID != second.ID {
		t.Fatalf("expected message %d, got %d", second.ID, msgs[0].ID)
	}
	if msgs[0].ID == first.ID {
		t.Fatal("old message leaked past the after filter")
	}
}

func TestLatestMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := mustCreateIdentity(t, s, "+15550050")
	bob := mustCreateIdentity(t, s, "+15550051")
	dialog, _, err := s.GetOrCreateDialog(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatal(err)
	}

	latest, err := s.LatestMessage(ctx, dialog.ID)
	if err != nil {
		t.Fatal(err)
	}
	if latest != nil {
		t.Fatalf("expected nil for empty dialog, got %+v", latest)
	}

	seedMessages(t, s, dialog.ID, alice.ID, 3)

	latest, err = s.LatestMessage(ctx, dialog.ID)
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil {
		t.Fatal("expected a message")
	}

	msgs, _, err := s.ListMessages(ctx, dialog.ID, MessageFilter{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if latest.ID != msgs[len(msgs)-1].ID {
		t.Fatalf("latest should be the newest message, got %d", latest.ID)
	}
}

func TestImageMessageMediaFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := mustCreateIdentity(t, s, "+15550060")
	bob := mustCreateIdentity(t, s, "+15550061")
	dialog, _, err := s.GetOrCreateDialog(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatal(err)
	}

	size := int64(2048)
	created, err := s.CreateMessage(ctx, &models.Message{
		DialogID:    dialog.ID,
		SenderID:    alice.ID,
		Ciphertext:  "blob",
		ContentType: models.ContentImage,
		MediaMime:   "image/png",
		MediaName:   "photo.png",
		MediaSize:   &size,
	})
	if err != nil {
		t.Fatal(err)
	}

	if created.ContentType != models.ContentImage {
		t.Fatalf("expected image content type, got %q", created.ContentType)
	}
	if created.MediaMime != "image/png" || created.MediaName != "photo.png" {
		t.Fatalf("media metadata not persisted: %+v", created)
	}
	if created.MediaSize == nil || *created.MediaSize != 2048 {
		t.Fatalf("expected media size 2048, got %v", created.MediaSize)
	}
}

func TestLastMessageTime(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ts, err := s.LastMessageTime(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ts != nil {
		t.Fatalf("expected nil with no messages, got %v", ts)
	}

	alice := mustCreateIdentity(t, s, "+15550070")
	bob := mustCreateIdentity(t, s, "+15550071")
	dialog, _, err := s.GetOrCreateDialog(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	seedMessages(t, s, dialog.ID, alice.ID, 1)

	ts, err = s.LastMessageTime(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ts == nil {
		t.Fatal("expected a timestamp")
	}
	if time.Since(*ts) > time.Minute {
		t.Fatalf("timestamp looks stale: %v", *ts)
	}
}
