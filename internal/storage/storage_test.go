package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"cymbytes.com/cymlure/pkg/contract"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(context.Background(), Config{
		Path:         filepath.Join(t.TempDir(), "cymlure-test.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		EnableWAL:    false,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testBundle(id string, created time.Time) *contract.FinalBundle {
	return &contract.FinalBundle{
		ID:      id,
		Channel: contract.ChannelEmail,
		Blueprint: contract.Blueprint{
			Scenario: "Invoice follow-up",
			Name:     "Invoice Follow-up",
			Kind:     contract.KindLink,
		},
		Language:   "en-US",
		Difficulty: contract.DifficultyMedium,
		CreatedAt:  created,
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := setupTestDB(t)

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Second migration run failed: %v", err)
	}

	status, err := db.Health(context.Background())
	if err != nil || status != "healthy" {
		t.Errorf("Expected healthy, got %s (%v)", status, err)
	}
}

func TestBundles_SaveGetListDelete(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	older := testBundle("b-older", base)
	newer := testBundle("b-newer", base.Add(time.Hour))
	newer.Channel = contract.ChannelSMS

	for _, b := range []*contract.FinalBundle{older, newer} {
		if err := db.SaveBundle(ctx, b); err != nil {
			t.Fatalf("SaveBundle(%s) failed: %v", b.ID, err)
		}
	}

	got, err := db.GetBundle(ctx, "b-older")
	if err != nil {
		t.Fatalf("GetBundle failed: %v", err)
	}
	if got == nil || got.Blueprint.Name != "Invoice Follow-up" {
		t.Fatalf("Unexpected bundle: %+v", got)
	}

	list, err := db.ListBundles(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListBundles failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "b-newer" {
		t.Fatalf("Expected newest first, got %+v", list)
	}
	if list[0].Channel != contract.ChannelSMS {
		t.Errorf("Expected channel sms, got %s", list[0].Channel)
	}

	if err := db.DeleteBundle(ctx, "b-older"); err != nil {
		t.Fatalf("DeleteBundle failed: %v", err)
	}
	if err := db.DeleteBundle(ctx, "b-older"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	missing, err := db.GetBundle(ctx, "b-older")
	if err != nil || missing != nil {
		t.Errorf("Expected nil bundle after delete, got %+v (%v)", missing, err)
	}
}

func TestJobs_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	req := &contract.Request{Topic: "Payroll update", Channel: contract.ChannelEmail}
	job, err := db.CreateJob(ctx, req)
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	claimed, err := db.ClaimNextJob(ctx)
	if err != nil {
		t.Fatalf("ClaimNextJob failed: %v", err)
	}
	if claimed == nil || claimed.ID != job.ID {
		t.Fatalf("Expected to claim %s, got %+v", job.ID, claimed)
	}
	if claimed.Request.Topic != "Payroll update" {
		t.Errorf("Request not round-tripped: %+v", claimed.Request)
	}

	// Queue is empty now
	next, err := db.ClaimNextJob(ctx)
	if err != nil || next != nil {
		t.Fatalf("Expected empty queue, got %+v (%v)", next, err)
	}

	if err := db.UpdateJobStage(ctx, job.ID, "content_generating"); err != nil {
		t.Fatalf("UpdateJobStage failed: %v", err)
	}
	if err := db.CompleteJob(ctx, job.ID, "bundle-1"); err != nil {
		t.Fatalf("CompleteJob failed: %v", err)
	}

	got, err := db.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != JobStatusCompleted || got.BundleID == nil || *got.BundleID != "bundle-1" {
		t.Errorf("Unexpected job: %+v", got)
	}
	if got.Stage == nil || *got.Stage != "content_generating" {
		t.Errorf("Expected stage content_generating, got %v", got.Stage)
	}

	counts, err := db.CountJobsByStatus(ctx)
	if err != nil {
		t.Fatalf("CountJobsByStatus failed: %v", err)
	}
	if counts[JobStatusCompleted] != 1 {
		t.Errorf("Expected 1 completed job, got %v", counts)
	}
}

func TestJobs_FailAndReset(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	failing, _ := db.CreateJob(ctx, &contract.Request{Topic: "a"})
	stuck, _ := db.CreateJob(ctx, &contract.Request{Topic: "b"})

	if _, err := db.ClaimNextJob(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ClaimNextJob(ctx); err != nil {
		t.Fatal(err)
	}

	if err := db.FailJob(ctx, failing.ID, "generation_failed", "analyze failed"); err != nil {
		t.Fatalf("FailJob failed: %v", err)
	}

	reset, err := db.ResetRunningJobs(ctx)
	if err != nil {
		t.Fatalf("ResetRunningJobs failed: %v", err)
	}
	if reset != 1 {
		t.Errorf("Expected 1 reset job, got %d", reset)
	}

	got, _ := db.GetJob(ctx, stuck.ID)
	if got.Status != JobStatusPending {
		t.Errorf("Expected stuck job back to pending, got %s", got.Status)
	}

	failed, _ := db.GetJob(ctx, failing.ID)
	if failed.Status != JobStatusFailed || *failed.ErrorCode != "generation_failed" {
		t.Errorf("Unexpected failed job: %+v", failed)
	}

	if err := db.FailJob(ctx, "missing", "x", "y"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	removed, err := db.CleanupOldJobs(ctx, -time.Minute)
	if err != nil {
		t.Fatalf("CleanupOldJobs failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 removed job, got %d", removed)
	}
}

func TestTargets_CRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	target := &Target{
		Name:            "Finance team",
		Department:      "Finance",
		Title:           "Accounts Payable",
		Triggers:        []string{"urgency", "authority"},
		Vulnerabilities: []string{"invoice fraud"},
	}
	if err := db.CreateTarget(ctx, target); err != nil {
		t.Fatalf("CreateTarget failed: %v", err)
	}
	if target.ID == "" {
		t.Fatal("Expected generated ID")
	}

	got, err := db.GetTarget(ctx, target.ID)
	if err != nil || got == nil {
		t.Fatalf("GetTarget failed: %+v (%v)", got, err)
	}
	if len(got.Triggers) != 2 || got.Vulnerabilities[0] != "invoice fraud" {
		t.Errorf("Slices not round-tripped: %+v", got)
	}

	profile := got.Profile()
	if profile.Name != "Finance team (Accounts Payable)" || profile.Department != "Finance" {
		t.Errorf("Unexpected profile: %+v", profile)
	}

	if err := db.CreateTarget(ctx, &Target{Name: "Finance team"}); err == nil {
		t.Error("Expected duplicate name to fail")
	}

	list, err := db.ListTargets(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListTargets: %d targets (%v)", len(list), err)
	}

	if err := db.DeleteTarget(ctx, target.ID); err != nil {
		t.Fatalf("DeleteTarget failed: %v", err)
	}
	if err := db.DeleteTarget(ctx, target.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestInboxes_SaveReplaceDeliver(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.SaveBundle(ctx, testBundle("b1", time.Now().UTC())); err != nil {
		t.Fatal(err)
	}

	items := []contract.InboxItem{{
		Position:  1,
		Variant:   contract.VariantObvious,
		Timestamp: "Just now",
		Email:     contract.InboxEmail{Subject: "Reset your password", IsPhishing: true},
	}}

	if _, err := db.SaveInbox(ctx, "b1", items); err != nil {
		t.Fatalf("SaveInbox failed: %v", err)
	}
	if err := db.MarkInboxDelivered(ctx, "b1", "INBOX", time.Now().UTC()); err != nil {
		t.Fatalf("MarkInboxDelivered failed: %v", err)
	}

	got, err := db.GetInbox(ctx, "b1")
	if err != nil || got == nil {
		t.Fatalf("GetInbox failed: %+v (%v)", got, err)
	}
	if got.Mailbox == nil || *got.Mailbox != "INBOX" {
		t.Errorf("Expected mailbox INBOX, got %v", got.Mailbox)
	}

	// Regenerating replaces the items and clears delivery
	items[0].Email.Subject = "Updated"
	if _, err := db.SaveInbox(ctx, "b1", items); err != nil {
		t.Fatalf("SaveInbox replace failed: %v", err)
	}
	got, _ = db.GetInbox(ctx, "b1")
	if got.Items[0].Email.Subject != "Updated" || got.DeliveredAt != nil {
		t.Errorf("Expected replaced, undelivered inbox, got %+v", got)
	}

	if _, err := db.SaveInbox(ctx, "no-such-bundle", items); err == nil {
		t.Error("Expected foreign key failure for unknown bundle")
	}

	if err := db.DeleteBundle(ctx, "b1"); err != nil {
		t.Fatal(err)
	}
	gone, err := db.GetInbox(ctx, "b1")
	if err != nil || gone != nil {
		t.Errorf("Expected inbox removed with bundle, got %+v (%v)", gone, err)
	}
}
