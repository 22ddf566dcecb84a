package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"tprm-service/internal/identifier"
	"tprm-service/internal/mailer"
	"tprm-service/internal/model"
	"tprm-service/pkg/config"
)

// Award response actions
const (
	AwardActionAccept = "accept"
	AwardActionReject = "reject"
)

// CredentialService handles the public award-response endpoint. Accepting an
// award provisions the vendor's user account, RBAC grants and temp_vendor
// record in one transaction, then emails the credentials. Repeat accepts are
// no-ops that never mint a second password or re-send the email.
type CredentialService struct {
	db     *gorm.DB
	log    *zap.Logger
	sender mailer.Sender
	portal config.PortalConfig
	now    func() time.Time
}

func NewCredentialService(db *gorm.DB, log *zap.Logger, sender mailer.Sender, portal config.PortalConfig) *CredentialService {
	return &CredentialService{db: db, log: log, sender: sender, portal: portal, now: time.Now}
}

// AwardResponseInput is the public accept or reject payload.
type AwardResponseInput struct {
	Action   string `json:"action"`
	Comments string `json:"comments"`
}

// AwardResponseResult reports the notification state after the call.
type AwardResponseResult struct {
	NotificationStatus string `json:"notification_status"`
	AlreadyResponded   bool   `json:"already_responded"`
	Username           string `json:"username,omitempty"`
}

// Respond processes an accept or reject against an award token.
func (s *CredentialService) Respond(ctx context.Context, token string, in AwardResponseInput) (*AwardResponseResult, error) {
	notification, err := s.byToken(ctx, token)
	if err != nil {
		return nil, err
	}

	switch in.Action {
	case AwardActionAccept:
		return s.accept(ctx, notification, in.Comments)
	case AwardActionReject:
		return s.reject(ctx, notification)
	default:
		return nil, NewValidationError("action must be accept or reject")
	}
}

func (s *CredentialService) accept(ctx context.Context, notification *model.RFPAwardNotification, comments string) (*AwardResponseResult, error) {
	if notification.NotificationStatus == model.NotificationStatusAccepted {
		return &AwardResponseResult{
			NotificationStatus: model.NotificationStatusAccepted,
			AlreadyResponded:   true,
		}, nil
	}
	if notification.NotificationStatus == model.NotificationStatusRejected {
		return nil, fmt.Errorf("award already rejected: %w", ErrConflict)
	}

	var (
		user             *model.User
		newPassword      string
		alreadyResponded bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Re-read under lock: two accepts racing on the same token must
		// serialize here, not both provision credentials.
		if err := lockForUpdate(tx).First(notification, notification.ID).Error; err != nil {
			return err
		}
		switch notification.NotificationStatus {
		case model.NotificationStatusAccepted:
			alreadyResponded = true
			return nil
		case model.NotificationStatusRejected:
			return fmt.Errorf("award already rejected: %w", ErrConflict)
		}

		var response model.RFPResponse
		err := tx.Where("tenant_id = ? AND id = ?", notification.TenantID, notification.ResponseID).
			First(&response).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrNotFound
			}
			return err
		}
		if response.VendorEmail == "" {
			return NewValidationError("the awarded response has no vendor email on record")
		}

		user, newPassword, err = s.ensureUser(tx, notification.TenantID, response.VendorEmail, response.VendorID)
		if err != nil {
			return err
		}
		if err := s.grantVendorPortalPermissions(tx, user.ID, notification.TenantID); err != nil {
			return err
		}
		if err := s.ensureTempVendor(tx, notification.TenantID, &response, user.ID); err != nil {
			return err
		}

		now := s.now()
		notification.NotificationStatus = model.NotificationStatusAccepted
		notification.ResponseDate = &now
		notification.AcknowledgedDate = &now
		if comments != "" {
			if notification.AwardMessage != "" {
				notification.AwardMessage += "\n"
			}
			notification.AwardMessage += "Vendor comments: " + comments
		}
		return tx.Save(notification).Error
	})
	if err != nil {
		return nil, err
	}
	if alreadyResponded {
		return &AwardResponseResult{
			NotificationStatus: model.NotificationStatusAccepted,
			AlreadyResponded:   true,
		}, nil
	}

	// Credentials go out only for a freshly created account; the email is a
	// side channel enqueued after commit.
	if newPassword != "" {
		s.sendCredentials(user.Email, user.Username, newPassword)
	}

	s.log.Info("award accepted",
		zap.Uint("tenant_id", notification.TenantID),
		zap.Uint("notification_id", notification.ID),
		zap.Uint("response_id", notification.ResponseID),
		zap.Bool("user_created", newPassword != ""))
	return &AwardResponseResult{
		NotificationStatus: model.NotificationStatusAccepted,
		Username:           user.Username,
	}, nil
}

func (s *CredentialService) reject(ctx context.Context, notification *model.RFPAwardNotification) (*AwardResponseResult, error) {
	if notification.NotificationStatus == model.NotificationStatusRejected {
		return &AwardResponseResult{
			NotificationStatus: model.NotificationStatusRejected,
			AlreadyResponded:   true,
		}, nil
	}
	if notification.NotificationStatus == model.NotificationStatusAccepted {
		return nil, fmt.Errorf("award already accepted: %w", ErrConflict)
	}

	var alreadyResponded bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(notification, notification.ID).Error; err != nil {
			return err
		}
		switch notification.NotificationStatus {
		case model.NotificationStatusRejected:
			alreadyResponded = true
			return nil
		case model.NotificationStatusAccepted:
			return fmt.Errorf("award already accepted: %w", ErrConflict)
		}

		now := s.now()
		notification.NotificationStatus = model.NotificationStatusRejected
		notification.ResponseDate = &now
		return tx.Save(notification).Error
	})
	if err != nil {
		return nil, err
	}
	if alreadyResponded {
		return &AwardResponseResult{
			NotificationStatus: model.NotificationStatusRejected,
			AlreadyResponded:   true,
		}, nil
	}

	s.log.Info("award rejected",
		zap.Uint("tenant_id", notification.TenantID),
		zap.Uint("notification_id", notification.ID))
	return &AwardResponseResult{NotificationStatus: model.NotificationStatusRejected}, nil
}

// ensureUser finds the user by email or creates one with a deduplicated
// username derived from the email local part and a fresh generated password.
// The returned password is empty when the user already existed.
func (s *CredentialService) ensureUser(tx *gorm.DB, tenantID uint, email string, vendorID *uint) (*model.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var existing model.User
	err := tx.Where("email = ?", email).First(&existing).Error
	if err == nil {
		updates := map[string]interface{}{"is_active": true}
		if existing.TenantID == nil {
			updates["tenant_id"] = tenantID
		}
		if existing.VendorID == nil && vendorID != nil {
			updates["vendor_id"] = *vendorID
		}
		if err := tx.Model(&existing).Updates(updates).Error; err != nil {
			return nil, "", err
		}
		return &existing, "", nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, "", err
	}

	password, err := identifier.GeneratePassword()
	if err != nil {
		return nil, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	local := email
	if at := strings.Index(email, "@"); at > 0 {
		local = email[:at]
	}

	for attempt := 0; attempt < identifier.MaxMintAttempts; attempt++ {
		username := local
		if attempt > 0 {
			username = fmt.Sprintf("%s-%d", local, attempt+1)
		}
		user := &model.User{
			TenantID:     &tenantID,
			Email:        email,
			Username:     username,
			PasswordHash: string(hash),
			VendorID:     vendorID,
			Role:         "vendor",
			IsActive:     true,
		}
		insertErr := tx.Transaction(func(inner *gorm.DB) error {
			return inner.Create(user).Error
		})
		if insertErr == nil {
			return user, password, nil
		}
		if !IsUniqueViolation(insertErr) {
			return nil, "", insertErr
		}
	}
	return nil, "", fmt.Errorf("username for %s: %w", email, ErrIdMintingExhausted)
}

// grantVendorPortalPermissions upserts the RBAC row with the vendor-portal
// permission set. Existing rows are updated in place; other grants the user
// already holds are left alone.
func (s *CredentialService) grantVendorPortalPermissions(tx *gorm.DB, userID, tenantID uint) error {
	grants := map[string]interface{}{
		"view_rfp":               true,
		"view_rfp_responses":     true,
		"submit_rfp_response":    true,
		"withdraw_rfp_response":  true,
		"download_rfp_documents": true,
		"preview_rfp_documents":  true,
		"upload_rfp_documents":   true,
		"view_vendors":           true,
		"edit_vendors":           true,
		"view_questionnaires":    true,
		"submit_questionnaires":  true,
		"view_risk_assessments":  true,
		"view_performance":       true,
		"view_dashboard_trend":   true,
	}

	var perm model.UserPermission
	err := tx.Where("user_id = ? AND tenant_id = ?", userID, tenantID).First(&perm).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		perm = model.UserPermission{UserID: userID, TenantID: tenantID}
		if err := tx.Create(&perm).Error; err != nil {
			return err
		}
		fallthrough
	case err == nil:
		return tx.Model(&model.UserPermission{}).
			Where("user_id = ? AND tenant_id = ?", userID, tenantID).
			Updates(grants).Error
	default:
		return err
	}
}

// ensureTempVendor upserts the temp_vendor row keyed by response_id.
func (s *CredentialService) ensureTempVendor(tx *gorm.DB, tenantID uint, response *model.RFPResponse, userID uint) error {
	var existing model.TempVendor
	err := tx.Where("response_id = ?", response.ID).First(&existing).Error
	if err == nil {
		existing.UserID = userID
		if existing.CompanyName == "" {
			existing.CompanyName = response.VendorName
		}
		return tx.Save(&existing).Error
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}

	code, err := identifier.MintVendorCode(tx, tenantID, s.now())
	if err != nil {
		return err
	}
	row := model.TempVendor{
		TenantID:    tenantID,
		ResponseID:  response.ID,
		UserID:      userID,
		VendorCode:  code,
		CompanyName: response.VendorName,
	}
	return tx.Create(&row).Error
}

func (s *CredentialService) sendCredentials(email, username, password string) {
	body := mailer.CredentialsHTML(username, password, s.portal.BaseURL)
	mailer.SendAsync(s.sender, s.log, "credentials", email, "Your vendor portal credentials", body)
}

func (s *CredentialService) byToken(ctx context.Context, token string) (*model.RFPAwardNotification, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	var notification model.RFPAwardNotification
	err := s.db.WithContext(ctx).
		Where("accept_reject_token = ?", token).
		First(&notification).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &notification, nil
}

// NotifyWinner emails the award-winner notification and flips its status to
// sent. Side channel: failures log and leave the notification pending.
func (s *CredentialService) NotifyWinner(ctx context.Context, scope Scope, notificationID uint, rfpTitle string) error {
	var notification model.RFPAwardNotification
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", scope.TenantID, notificationID).
		First(&notification).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrNotFound
		}
		return err
	}

	var response model.RFPResponse
	err = s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", scope.TenantID, notification.ResponseID).
		First(&response).Error
	if err != nil {
		return err
	}
	if response.VendorEmail == "" {
		return NewValidationError("the awarded response has no vendor email on record")
	}

	link := mailer.AwardResponseURL(s.portal, notification.AcceptRejectToken)
	body := mailer.AwardWinnerHTML(rfpTitle, notification.AwardMessage, notification.NextSteps, link)
	mailer.SendAsync(s.sender, s.log, "award_winner", response.VendorEmail, "RFP award decision", body)

	return s.db.WithContext(ctx).Model(&model.RFPAwardNotification{}).
		Where("id = ? AND notification_status = ?", notification.ID, model.NotificationStatusPending).
		Update("notification_status", model.NotificationStatusSent).Error
}
