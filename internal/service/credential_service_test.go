package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"tprm-service/internal/model"
	"tprm-service/pkg/config"
)

func newCredentialFixture(t *testing.T) (*CredentialService, *gorm.DB, *captureSender) {
	t.Helper()
	db := setupTestDB(t)
	sender := newCaptureSender()
	portal := config.PortalConfig{BaseURL: "https://portal.example.com"}
	s := NewCredentialService(db, testLogger(), sender, portal)
	s.now = fixedNow
	return s, db, sender
}

func seedAwardedResponse(t *testing.T, db *gorm.DB, email string) *model.RFPResponse {
	t.Helper()
	rfp := &model.RFP{
		TenantID:  1,
		RFPNumber: "RFP-2026-06-0001",
		Title:     "Endpoint protection platform",
		Status:    model.RFPStatusAwarded,
		CreatedBy: 1,
	}
	if err := db.Create(rfp).Error; err != nil {
		t.Fatalf("seed rfp: %v", err)
	}
	resp := &model.RFPResponse{
		TenantID:         1,
		RFPID:            rfp.ID,
		VendorName:       "Newcomer Labs",
		VendorEmail:      email,
		SubmissionStatus: "SUBMITTED",
		EvaluationStatus: model.EvaluationStatusAwarded,
	}
	if err := db.Create(resp).Error; err != nil {
		t.Fatalf("seed response: %v", err)
	}
	return resp
}

func seedAwardNotification(t *testing.T, db *gorm.DB, responseID uint, token, status string) *model.RFPAwardNotification {
	t.Helper()
	n := &model.RFPAwardNotification{
		TenantID:           1,
		ResponseID:         responseID,
		NotificationType:   model.NotificationTypeWinner,
		NotificationStatus: status,
		AcceptRejectToken:  token,
		AwardMessage:       "Congratulations",
		NextSteps:          "Credential provisioning follows acceptance",
	}
	if err := db.Create(n).Error; err != nil {
		t.Fatalf("seed notification: %v", err)
	}
	return n
}

func TestAcceptProvisionsVendorAccount(t *testing.T) {
	s, db, sender := newCredentialFixture(t)
	resp := seedAwardedResponse(t, db, "Bids@Newcomer.Example")
	seedAwardNotification(t, db, resp.ID, "award-tok", model.NotificationStatusSent)

	result, err := s.Respond(context.Background(), "award-tok", AwardResponseInput{Action: AwardActionAccept})
	if err != nil {
		t.Fatalf("Respond accept: %v", err)
	}
	if result.NotificationStatus != model.NotificationStatusAccepted || result.AlreadyResponded {
		t.Fatalf("result = %+v", result)
	}
	if result.Username != "bids" {
		t.Fatalf("username = %q, want local part of the email", result.Username)
	}

	var user model.User
	if err := db.Where("email = ?", "bids@newcomer.example").First(&user).Error; err != nil {
		t.Fatalf("provisioned user: %v", err)
	}
	if user.Role != "vendor" || !user.IsActive || user.PasswordHash == "" {
		t.Fatalf("user row: role=%q active=%v hash set=%v", user.Role, user.IsActive, user.PasswordHash != "")
	}
	if user.TenantID == nil || *user.TenantID != 1 {
		t.Fatalf("user tenant = %v, want 1", user.TenantID)
	}

	var perm model.UserPermission
	if err := db.Where("user_id = ?", user.ID).First(&perm).Error; err != nil {
		t.Fatalf("permission row: %v", err)
	}
	if !perm.ViewRFP || !perm.SubmitRFPResponse || !perm.ViewDashboardTrend {
		t.Fatalf("portal grants missing: %+v", perm)
	}
	if perm.CreateContract || perm.ApproveRFP {
		t.Fatal("vendor user received buyer-side grants")
	}

	var temp model.TempVendor
	if err := db.Where("response_id = ?", resp.ID).First(&temp).Error; err != nil {
		t.Fatalf("temp vendor row: %v", err)
	}
	if !strings.HasPrefix(temp.VendorCode, "VEN-2026-06-") {
		t.Fatalf("vendor code = %q", temp.VendorCode)
	}
	if temp.CompanyName != "Newcomer Labs" || temp.UserID != user.ID {
		t.Fatalf("temp vendor row: %+v", temp)
	}

	var reloaded model.RFPAwardNotification
	if err := db.First(&reloaded).Error; err != nil {
		t.Fatalf("reload notification: %v", err)
	}
	if reloaded.NotificationStatus != model.NotificationStatusAccepted {
		t.Fatalf("notification status = %q", reloaded.NotificationStatus)
	}
	if reloaded.ResponseDate == nil || !reloaded.ResponseDate.Equal(fixedTime) {
		t.Fatalf("response date = %v", reloaded.ResponseDate)
	}

	mail := sender.waitForMail(t)
	if mail.To != "bids@newcomer.example" {
		t.Fatalf("credentials email to %q", mail.To)
	}
	if !strings.Contains(mail.Body, user.Username) {
		t.Fatal("credentials email does not carry the username")
	}
}

func TestAcceptIsIdempotent(t *testing.T) {
	s, db, sender := newCredentialFixture(t)
	resp := seedAwardedResponse(t, db, "bids@newcomer.example")
	seedAwardNotification(t, db, resp.ID, "award-tok", model.NotificationStatusSent)

	if _, err := s.Respond(context.Background(), "award-tok", AwardResponseInput{Action: AwardActionAccept}); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	sender.waitForMail(t)

	result, err := s.Respond(context.Background(), "award-tok", AwardResponseInput{Action: AwardActionAccept})
	if err != nil {
		t.Fatalf("second accept: %v", err)
	}
	if !result.AlreadyResponded {
		t.Fatal("second accept not reported as already responded")
	}

	var users, perms, temps int64
	db.Model(&model.User{}).Count(&users)
	db.Model(&model.UserPermission{}).Count(&perms)
	db.Model(&model.TempVendor{}).Count(&temps)
	if users != 1 || perms != 1 || temps != 1 {
		t.Fatalf("provisioning duplicated: users=%d perms=%d temps=%d", users, perms, temps)
	}

	select {
	case m := <-sender.sent:
		t.Fatalf("second accept re-sent credentials to %q", m.To)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestAcceptRechecksStatusInsideTransaction(t *testing.T) {
	s, db, sender := newCredentialFixture(t)
	resp := seedAwardedResponse(t, db, "bids@newcomer.example")
	seedAwardNotification(t, db, resp.ID, "award-tok", model.NotificationStatusSent)

	// A second request reads the notification while it is still SENT.
	stale, err := s.byToken(context.Background(), "award-tok")
	if err != nil {
		t.Fatalf("load notification: %v", err)
	}

	// The first request commits its accept before the second proceeds.
	first, err := s.Respond(context.Background(), "award-tok", AwardResponseInput{Action: AwardActionAccept})
	if err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if first.AlreadyResponded {
		t.Fatal("first accept reported as already responded")
	}
	sender.waitForMail(t)

	// The stale request passes the pre-transaction check but must be caught
	// by the locked re-read and land as a no-op.
	result, err := s.accept(context.Background(), stale, "")
	if err != nil {
		t.Fatalf("raced accept: %v", err)
	}
	if !result.AlreadyResponded || result.NotificationStatus != model.NotificationStatusAccepted {
		t.Fatalf("raced accept result = %+v, want already responded", result)
	}

	var users, perms, temps int64
	db.Model(&model.User{}).Count(&users)
	db.Model(&model.UserPermission{}).Count(&perms)
	db.Model(&model.TempVendor{}).Count(&temps)
	if users != 1 || perms != 1 || temps != 1 {
		t.Fatalf("raced accept re-provisioned: users=%d perms=%d temps=%d", users, perms, temps)
	}

	select {
	case m := <-sender.sent:
		t.Fatalf("raced accept re-sent credentials to %q", m.To)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRejectRechecksStatusInsideTransaction(t *testing.T) {
	s, db, _ := newCredentialFixture(t)
	resp := seedAwardedResponse(t, db, "bids@newcomer.example")
	seedAwardNotification(t, db, resp.ID, "award-tok", model.NotificationStatusSent)

	stale, err := s.byToken(context.Background(), "award-tok")
	if err != nil {
		t.Fatalf("load notification: %v", err)
	}

	if _, err := s.Respond(context.Background(), "award-tok", AwardResponseInput{Action: AwardActionReject}); err != nil {
		t.Fatalf("first reject: %v", err)
	}

	// Raced duplicate reject folds into the committed state.
	result, err := s.reject(context.Background(), stale)
	if err != nil {
		t.Fatalf("raced reject: %v", err)
	}
	if !result.AlreadyResponded || result.NotificationStatus != model.NotificationStatusRejected {
		t.Fatalf("raced reject result = %+v, want already responded", result)
	}

	// A raced accept against the committed reject conflicts instead of
	// provisioning anything.
	staleAgain := *stale
	staleAgain.NotificationStatus = model.NotificationStatusSent
	if _, err := s.accept(context.Background(), &staleAgain, ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("raced accept after reject: got %v, want ErrConflict", err)
	}
	var users int64
	db.Model(&model.User{}).Count(&users)
	if users != 0 {
		t.Fatalf("conflicting accept provisioned %d users", users)
	}
}

func TestAcceptExistingUserSkipsCredentialEmail(t *testing.T) {
	s, db, sender := newCredentialFixture(t)
	resp := seedAwardedResponse(t, db, "bids@newcomer.example")
	seedAwardNotification(t, db, resp.ID, "award-tok", model.NotificationStatusSent)

	existing := &model.User{
		Email:        "bids@newcomer.example",
		Username:     "newcomer-sales",
		PasswordHash: "$2a$10$existinghash",
		Role:         "vendor",
		IsActive:     false,
	}
	if err := db.Create(existing).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}

	result, err := s.Respond(context.Background(), "award-tok", AwardResponseInput{Action: AwardActionAccept})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if result.Username != "newcomer-sales" {
		t.Fatalf("username = %q, want the existing account", result.Username)
	}

	var user model.User
	if err := db.First(&user, existing.ID).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if !user.IsActive {
		t.Fatal("existing account was not reactivated")
	}
	if user.PasswordHash != "$2a$10$existinghash" {
		t.Fatal("existing password was replaced")
	}
	if user.TenantID == nil || *user.TenantID != 1 {
		t.Fatalf("tenant not bound: %v", user.TenantID)
	}

	var users int64
	db.Model(&model.User{}).Count(&users)
	if users != 1 {
		t.Fatalf("got %d users, want 1", users)
	}

	select {
	case m := <-sender.sent:
		t.Fatalf("credentials emailed for an existing account to %q", m.To)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRejectIsIdempotentAndBlocksAccept(t *testing.T) {
	s, db, _ := newCredentialFixture(t)
	resp := seedAwardedResponse(t, db, "bids@newcomer.example")
	seedAwardNotification(t, db, resp.ID, "award-tok", model.NotificationStatusSent)

	result, err := s.Respond(context.Background(), "award-tok", AwardResponseInput{Action: AwardActionReject})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if result.NotificationStatus != model.NotificationStatusRejected {
		t.Fatalf("status = %q", result.NotificationStatus)
	}

	result, err = s.Respond(context.Background(), "award-tok", AwardResponseInput{Action: AwardActionReject})
	if err != nil {
		t.Fatalf("repeat reject: %v", err)
	}
	if !result.AlreadyResponded {
		t.Fatal("repeat reject not reported as already responded")
	}

	_, err = s.Respond(context.Background(), "award-tok", AwardResponseInput{Action: AwardActionAccept})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("accept after reject: got %v, want ErrConflict", err)
	}

	var users int64
	db.Model(&model.User{}).Count(&users)
	if users != 0 {
		t.Fatal("reject provisioned an account")
	}
}

func TestRejectAfterAcceptConflicts(t *testing.T) {
	s, db, sender := newCredentialFixture(t)
	resp := seedAwardedResponse(t, db, "bids@newcomer.example")
	seedAwardNotification(t, db, resp.ID, "award-tok", model.NotificationStatusSent)

	if _, err := s.Respond(context.Background(), "award-tok", AwardResponseInput{Action: AwardActionAccept}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	sender.waitForMail(t)

	_, err := s.Respond(context.Background(), "award-tok", AwardResponseInput{Action: AwardActionReject})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("reject after accept: got %v, want ErrConflict", err)
	}
}

func TestRespondValidation(t *testing.T) {
	s, db, _ := newCredentialFixture(t)
	resp := seedAwardedResponse(t, db, "bids@newcomer.example")
	seedAwardNotification(t, db, resp.ID, "award-tok", model.NotificationStatusSent)

	if _, err := s.Respond(context.Background(), "no-such-token", AwardResponseInput{Action: AwardActionAccept}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown token: got %v, want ErrNotFound", err)
	}

	var verr *ValidationError
	if _, err := s.Respond(context.Background(), "award-tok", AwardResponseInput{Action: "maybe"}); !errors.As(err, &verr) {
		t.Fatalf("bad action: got %v, want validation error", err)
	}
}

func TestNotifyWinnerMarksSent(t *testing.T) {
	s, db, sender := newCredentialFixture(t)
	resp := seedAwardedResponse(t, db, "bids@newcomer.example")
	n := seedAwardNotification(t, db, resp.ID, "award-tok", model.NotificationStatusPending)

	err := s.NotifyWinner(context.Background(), Scope{TenantID: 1}, n.ID, "Endpoint protection platform")
	if err != nil {
		t.Fatalf("NotifyWinner: %v", err)
	}

	mail := sender.waitForMail(t)
	if mail.To != "bids@newcomer.example" {
		t.Fatalf("winner email to %q", mail.To)
	}
	if !strings.Contains(mail.Body, "award-tok") {
		t.Fatal("winner email does not carry the accept link")
	}

	var reloaded model.RFPAwardNotification
	if err := db.First(&reloaded, n.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.NotificationStatus != model.NotificationStatusSent {
		t.Fatalf("status = %q, want sent", reloaded.NotificationStatus)
	}

	if err := s.NotifyWinner(context.Background(), Scope{TenantID: 2}, n.ID, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant notify: got %v, want ErrNotFound", err)
	}
}
