package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"tprm-service/internal/identifier"
	"tprm-service/internal/mailer"
	"tprm-service/internal/model"
	"tprm-service/pkg/config"
)

// InvitationService owns vendor invitations, the public token endpoints, and
// submission ingestion including draft autosave.
type InvitationService struct {
	db     *gorm.DB
	log    *zap.Logger
	sender mailer.Sender
	portal config.PortalConfig
	now    func() time.Time
}

func NewInvitationService(db *gorm.DB, log *zap.Logger, sender mailer.Sender, portal config.PortalConfig) *InvitationService {
	return &InvitationService{db: db, log: log, sender: sender, portal: portal, now: time.Now}
}

// InviteInput creates invitations for selected vendors, or a single open
// invitation when VendorIDs is empty and Open is true.
type InviteInput struct {
	VendorIDs []uint `json:"vendor_ids"`
	Open      bool   `json:"open"`
	// OpenEmail receives the open invitation link when set.
	OpenEmail string `json:"open_email"`
}

// InvitationView pairs an invitation with its portal URL.
type InvitationView struct {
	Invitation *model.VendorInvitation `json:"invitation"`
	URL        string                  `json:"url"`
}

// Invite creates invitation rows with fresh tokens and sends the invitation
// emails asynchronously. Email failures flip the row to FAILED but never fail
// the call.
func (s *InvitationService) Invite(ctx context.Context, scope Scope, rfpID uint, in InviteInput) ([]InvitationView, error) {
	if len(in.VendorIDs) == 0 && !in.Open {
		return nil, NewValidationError("vendor_ids or open is required")
	}

	var rfp model.RFP
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", scope.TenantID, rfpID).
		First(&rfp).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if rfp.Status != model.RFPStatusPublished && rfp.Status != model.RFPStatusSubmissionOpen {
		return nil, NewValidationError(fmt.Sprintf(
			"invitations require a PUBLISHED or SUBMISSION_OPEN rfp, current status is %s", rfp.Status))
	}

	var views []InvitationView
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, vendorID := range in.VendorIDs {
			var vendor model.Vendor
			err := tx.Where("tenant_id = ? AND id = ?", scope.TenantID, vendorID).
				First(&vendor).Error
			if err != nil {
				if err == gorm.ErrRecordNotFound {
					return fmt.Errorf("vendor %d: %w", vendorID, ErrNotFound)
				}
				return err
			}

			invitation, err := s.createInvitation(tx, scope, rfpID, &vendorID, primaryContactEmail(tx, scope, vendorID), model.SubmissionSourceInvited)
			if err != nil {
				return err
			}
			views = append(views, InvitationView{
				Invitation: invitation,
				URL:        mailer.InvitationURL(s.portal, invitation.UniqueToken),
			})
		}

		if in.Open {
			invitation, err := s.createInvitation(tx, scope, rfpID, nil, in.OpenEmail, model.SubmissionSourceOpen)
			if err != nil {
				return err
			}
			views = append(views, InvitationView{
				Invitation: invitation,
				URL:        mailer.InvitationURL(s.portal, invitation.UniqueToken),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Email delivery is a side channel: enqueue after commit, mark SENT or
	// FAILED as it resolves.
	for _, v := range views {
		if v.Invitation.Email == "" {
			continue
		}
		s.deliverInvitation(v.Invitation, rfp.Title, v.URL)
	}

	s.log.Info("invitations created",
		zap.Uint("tenant_id", scope.TenantID),
		zap.Uint("rfp_id", rfpID),
		zap.Int("count", len(views)))
	return views, nil
}

func (s *InvitationService) createInvitation(tx *gorm.DB, scope Scope, rfpID uint, vendorID *uint, email, source string) (*model.VendorInvitation, error) {
	for attempt := 0; attempt < identifier.MaxMintAttempts; attempt++ {
		token, err := identifier.NewToken()
		if err != nil {
			return nil, err
		}
		invitation := &model.VendorInvitation{
			TenantID:         scope.TenantID,
			RFPID:            rfpID,
			VendorID:         vendorID,
			Email:            email,
			UniqueToken:      token,
			InvitationStatus: model.InvitationStatusCreated,
			SubmissionSource: source,
		}
		insertErr := tx.Transaction(func(inner *gorm.DB) error {
			return inner.Create(invitation).Error
		})
		if insertErr == nil {
			return invitation, nil
		}
		if !IsUniqueViolation(insertErr) {
			return nil, insertErr
		}
	}
	return nil, fmt.Errorf("invitation token: %w", ErrIdMintingExhausted)
}

func (s *InvitationService) deliverInvitation(invitation *model.VendorInvitation, rfpTitle, url string) {
	go func() {
		err := s.sender.Send(invitation.Email, "You are invited to respond to an RFP",
			mailer.InvitationHTML(rfpTitle, url))

		now := s.now()
		status := model.InvitationStatusSent
		if err != nil {
			status = model.InvitationStatusFailed
			s.log.Error("invitation email failed",
				zap.Uint("invitation_id", invitation.ID),
				zap.Error(err))
		}
		updates := map[string]interface{}{"invitation_status": status}
		if err == nil {
			updates["sent_at"] = now
		}
		if dbErr := s.db.Model(&model.VendorInvitation{}).
			Where("id = ?", invitation.ID).
			Updates(updates).Error; dbErr != nil {
			s.log.Error("invitation status update failed",
				zap.Uint("invitation_id", invitation.ID),
				zap.Error(dbErr))
		}
	}()
}

// PublicView is what an unauthenticated vendor sees when following an
// invitation link.
type PublicView struct {
	Invitation *model.VendorInvitation `json:"invitation"`
	RFP        *model.RFP              `json:"rfp"`
	Response   *model.RFPResponse      `json:"response,omitempty"`
}

// Open locates an invitation by token and logs the open. Tokens are the sole
// capability; there is no tenant context on this path.
func (s *InvitationService) Open(ctx context.Context, token string) (*PublicView, error) {
	invitation, err := s.byToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if invitation.InvitationStatus == model.InvitationStatusCreated ||
		invitation.InvitationStatus == model.InvitationStatusSent ||
		invitation.InvitationStatus == model.InvitationStatusDelivered {
		now := s.now()
		invitation.InvitationStatus = model.InvitationStatusOpened
		invitation.OpenedAt = &now
		if err := s.db.WithContext(ctx).Save(invitation).Error; err != nil {
			return nil, err
		}
	}

	var rfp model.RFP
	if err := s.db.WithContext(ctx).First(&rfp, invitation.RFPID).Error; err != nil {
		return nil, err
	}

	view := &PublicView{Invitation: invitation, RFP: &rfp}
	var response model.RFPResponse
	err = s.db.WithContext(ctx).
		Where("invitation_id = ?", invitation.ID).
		First(&response).Error
	if err == nil {
		view.Response = &response
	}
	return view, nil
}

// Acknowledge marks the invitation acknowledged. Re-acknowledge and calls
// after a terminal state return the current row without mutation.
func (s *InvitationService) Acknowledge(ctx context.Context, token string) (*model.VendorInvitation, error) {
	invitation, err := s.byToken(ctx, token)
	if err != nil {
		return nil, err
	}

	switch invitation.InvitationStatus {
	case model.InvitationStatusAcknowledged, model.InvitationStatusDeclined, model.InvitationStatusSubmitted:
		return invitation, nil
	}

	now := s.now()
	invitation.InvitationStatus = model.InvitationStatusAcknowledged
	invitation.AcknowledgedAt = &now
	if err := s.db.WithContext(ctx).Save(invitation).Error; err != nil {
		return nil, err
	}
	return invitation, nil
}

// Decline marks the invitation declined with a reason. Idempotent on repeat
// declines; a submitted invitation cannot be declined.
func (s *InvitationService) Decline(ctx context.Context, token, reason string) (*model.VendorInvitation, error) {
	invitation, err := s.byToken(ctx, token)
	if err != nil {
		return nil, err
	}

	switch invitation.InvitationStatus {
	case model.InvitationStatusDeclined:
		return invitation, nil
	case model.InvitationStatusSubmitted:
		return nil, NewValidationError("a submitted invitation cannot be declined")
	}

	invitation.InvitationStatus = model.InvitationStatusDeclined
	invitation.DeclineReason = reason
	if err := s.db.WithContext(ctx).Save(invitation).Error; err != nil {
		return nil, err
	}
	return invitation, nil
}

// DraftInput autosaves a response draft.
type DraftInput struct {
	VendorName           string          `json:"vendor_name"`
	VendorEmail          string          `json:"vendor_email"`
	DraftData            json.RawMessage `json:"draft_data"`
	CompletionPercentage float64         `json:"completion_percentage"`
}

// SaveDraft creates or updates the draft response tied to an invitation.
// Every save stamps last_saved_at.
func (s *InvitationService) SaveDraft(ctx context.Context, token string, in DraftInput) (*model.RFPResponse, error) {
	invitation, err := s.byToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if invitation.InvitationStatus == model.InvitationStatusDeclined {
		return nil, NewValidationError("a declined invitation cannot save drafts")
	}
	if invitation.InvitationStatus == model.InvitationStatusSubmitted {
		return nil, NewValidationError("the response has already been submitted")
	}

	draftData, err := normalizeJSONBag(in.DraftData, "answers")
	if err != nil {
		return nil, err
	}
	if in.CompletionPercentage < 0 || in.CompletionPercentage > 100 {
		return nil, NewValidationError("completion_percentage must be between 0 and 100")
	}

	var response *model.RFPResponse
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()
		response = &model.RFPResponse{}
		err := tx.Where("invitation_id = ?", invitation.ID).First(response).Error
		switch {
		case err == gorm.ErrRecordNotFound:
			response = &model.RFPResponse{
				TenantID:             invitation.TenantID,
				RFPID:                invitation.RFPID,
				InvitationID:         &invitation.ID,
				VendorID:             invitation.VendorID,
				VendorName:           in.VendorName,
				VendorEmail:          defaultString(in.VendorEmail, invitation.Email),
				SubmissionStatus:     "DRAFT",
				EvaluationStatus:     model.EvaluationStatusDraft,
				DraftData:            draftData,
				CompletionPercentage: in.CompletionPercentage,
				LastSavedAt:          &now,
			}
			return tx.Create(response).Error
		case err != nil:
			return err
		default:
			if in.VendorName != "" {
				response.VendorName = in.VendorName
			}
			if in.VendorEmail != "" {
				response.VendorEmail = in.VendorEmail
			}
			response.DraftData = draftData
			response.CompletionPercentage = in.CompletionPercentage
			response.LastSavedAt = &now
			return tx.Save(response).Error
		}
	})
	if err != nil {
		return nil, err
	}
	return response, nil
}

// SubmitInput finalizes a response.
type SubmitInput struct {
	VendorName  string          `json:"vendor_name"`
	VendorEmail string          `json:"vendor_email"`
	CompanyName string          `json:"company_name"`
	DraftData   json.RawMessage `json:"draft_data"`
	IP          string          `json:"-"`
	UserAgent   string          `json:"-"`
}

// Submit finalizes the response for an invitation. Late submissions are
// rejected unless the RFP allows them; submissions without a resolvable
// vendor produce an unmatched-vendor capture row.
func (s *InvitationService) Submit(ctx context.Context, token string, in SubmitInput) (*model.RFPResponse, error) {
	invitation, err := s.byToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if invitation.InvitationStatus == model.InvitationStatusDeclined {
		return nil, NewValidationError("a declined invitation cannot submit")
	}
	if invitation.InvitationStatus == model.InvitationStatusSubmitted {
		return nil, fmt.Errorf("response already submitted: %w", ErrConflict)
	}

	var rfp model.RFP
	if err := s.db.WithContext(ctx).First(&rfp, invitation.RFPID).Error; err != nil {
		return nil, err
	}
	now := s.now()
	if rfp.SubmissionDeadline != nil && now.After(*rfp.SubmissionDeadline) && !rfp.AllowLateSubmissions {
		return nil, NewValidationError("the submission deadline has passed")
	}

	var response *model.RFPResponse
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		response = &model.RFPResponse{}
		err := tx.Where("invitation_id = ?", invitation.ID).First(response).Error
		if err == gorm.ErrRecordNotFound {
			response = &model.RFPResponse{
				TenantID:     invitation.TenantID,
				RFPID:        invitation.RFPID,
				InvitationID: &invitation.ID,
				VendorID:     invitation.VendorID,
			}
		} else if err != nil {
			return err
		}

		if in.VendorName != "" {
			response.VendorName = in.VendorName
		}
		if response.VendorEmail == "" {
			response.VendorEmail = defaultString(in.VendorEmail, invitation.Email)
		}
		if len(in.DraftData) > 0 {
			draftData, err := normalizeJSONBag(in.DraftData, "answers")
			if err != nil {
				return err
			}
			response.DraftData = draftData
		}
		if response.VendorEmail == "" {
			return NewValidationError("vendor_email is required to submit")
		}

		response.SubmissionStatus = "SUBMITTED"
		response.EvaluationStatus = model.EvaluationStatusSubmitted
		response.CompletionPercentage = 100
		response.SubmittedAt = &now
		response.SubmissionIP = in.IP
		response.SubmissionUA = in.UserAgent
		response.LastSavedAt = &now

		if response.ID == 0 {
			if err := tx.Create(response).Error; err != nil {
				return err
			}
		} else if err := tx.Save(response).Error; err != nil {
			return err
		}

		invitation.InvitationStatus = model.InvitationStatusSubmitted
		if err := tx.Save(invitation).Error; err != nil {
			return err
		}

		if response.VendorID == nil {
			capture := model.RFPUnmatchedVendor{
				TenantID:       invitation.TenantID,
				InvitationID:   invitation.ID,
				ResponseID:     &response.ID,
				CompanyName:    defaultString(in.CompanyName, in.VendorName),
				ContactEmail:   response.VendorEmail,
				MatchingStatus: model.MatchingStatusUnmatched,
			}
			if err := tx.Create(&capture).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("rfp response submitted",
		zap.Uint("tenant_id", invitation.TenantID),
		zap.Uint("rfp_id", invitation.RFPID),
		zap.Uint("response_id", response.ID))
	return response, nil
}

// MatchVendor links an unmatched submission to a real vendor.
func (s *InvitationService) MatchVendor(ctx context.Context, scope Scope, unmatchedID, vendorID uint) (*model.RFPUnmatchedVendor, error) {
	var capture model.RFPUnmatchedVendor
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("tenant_id = ? AND id = ?", scope.TenantID, unmatchedID).
			First(&capture).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrNotFound
			}
			return err
		}

		var vendor model.Vendor
		err = tx.Where("tenant_id = ? AND id = ?", scope.TenantID, vendorID).
			First(&vendor).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("vendor %d: %w", vendorID, ErrNotFound)
			}
			return err
		}

		capture.MatchedVendorID = &vendorID
		capture.MatchingStatus = model.MatchingStatusMatched
		if err := tx.Save(&capture).Error; err != nil {
			return err
		}

		if capture.ResponseID != nil {
			err = tx.Model(&model.RFPResponse{}).
				Where("tenant_id = ? AND id = ?", scope.TenantID, *capture.ResponseID).
				Update("vendor_id", vendorID).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &capture, nil
}

// ListResponses returns the responses for an RFP.
func (s *InvitationService) ListResponses(ctx context.Context, scope Scope, rfpID uint) ([]model.RFPResponse, error) {
	var rfp model.RFP
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", scope.TenantID, rfpID).
		First(&rfp).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}

	q := s.db.WithContext(ctx).
		Where("tenant_id = ? AND rfp_id = ?", scope.TenantID, rfpID)
	if scope.VendorID != nil {
		q = q.Where("vendor_id = ?", *scope.VendorID)
	}
	var responses []model.RFPResponse
	if err := q.Order("id ASC").Find(&responses).Error; err != nil {
		return nil, err
	}
	return responses, nil
}

// primaryContactEmail returns the vendor's primary active contact email, or
// an empty string when none exists.
func primaryContactEmail(tx *gorm.DB, scope Scope, vendorID uint) string {
	var contact model.VendorContact
	err := tx.Where("tenant_id = ? AND vendor_id = ? AND is_primary = ? AND is_active = ?",
		scope.TenantID, vendorID, true, true).
		Order("id ASC").
		First(&contact).Error
	if err != nil {
		return ""
	}
	return contact.Email
}

func (s *InvitationService) byToken(ctx context.Context, token string) (*model.VendorInvitation, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	var invitation model.VendorInvitation
	err := s.db.WithContext(ctx).
		Where("unique_token = ?", token).
		First(&invitation).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &invitation, nil
}
