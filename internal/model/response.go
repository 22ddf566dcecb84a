package model

import (
	"time"

	"gorm.io/datatypes"
)

// Invitation statuses
const (
	InvitationStatusCreated      = "CREATED"
	InvitationStatusSent         = "SENT"
	InvitationStatusDelivered    = "DELIVERED"
	InvitationStatusOpened       = "OPENED"
	InvitationStatusClicked      = "CLICKED"
	InvitationStatusAcknowledged = "ACKNOWLEDGED"
	InvitationStatusDeclined     = "DECLINED"
	InvitationStatusSubmitted    = "SUBMITTED"
	InvitationStatusFailed       = "FAILED"
)

// Submission sources
const (
	SubmissionSourceInvited = "invited"
	SubmissionSourceOpen    = "open"
)

// VendorInvitation invites a vendor to respond to an RFP. UniqueToken is the
// sole capability bearer for the public, unauthenticated endpoints.
type VendorInvitation struct {
	ID               uint       `json:"id" gorm:"primaryKey"`
	TenantID         uint       `json:"tenant_id" gorm:"index;not null"`
	RFPID            uint       `json:"rfp_id" gorm:"index;not null"`
	VendorID         *uint      `json:"vendor_id,omitempty" gorm:"index"`
	Email            string     `json:"email" gorm:"type:varchar(255)"`
	UniqueToken      string     `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	InvitationStatus string     `json:"invitation_status" gorm:"type:varchar(20);default:'CREATED'"`
	SubmissionSource string     `json:"submission_source" gorm:"type:varchar(10);default:'invited'"`
	DeclineReason    string     `json:"decline_reason,omitempty" gorm:"type:text"`
	SentAt           *time.Time `json:"sent_at,omitempty"`
	OpenedAt         *time.Time `json:"opened_at,omitempty"`
	AcknowledgedAt   *time.Time `json:"acknowledged_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Response evaluation statuses
const (
	EvaluationStatusDraft           = "DRAFT"
	EvaluationStatusSubmitted       = "SUBMITTED"
	EvaluationStatusUnderEvaluation = "UNDER_EVALUATION"
	EvaluationStatusShortlisted     = "SHORTLISTED"
	EvaluationStatusRejected        = "REJECTED"
	EvaluationStatusAwarded         = "AWARDED"
)

// RFPResponse is a vendor's proposal for an RFP. InvitationID is nil for
// open (unsolicited) submissions.
type RFPResponse struct {
	ID           uint   `json:"id" gorm:"primaryKey"`
	TenantID     uint   `json:"tenant_id" gorm:"index;not null"`
	RFPID        uint   `json:"rfp_id" gorm:"index;not null"`
	InvitationID *uint  `json:"invitation_id,omitempty" gorm:"index"`
	VendorID     *uint  `json:"vendor_id,omitempty" gorm:"index"`
	VendorName   string `json:"vendor_name" gorm:"type:varchar(255)"`
	VendorEmail  string `json:"vendor_email" gorm:"type:varchar(255)"`

	SubmissionStatus string `json:"submission_status" gorm:"type:varchar(20);default:'DRAFT'"`
	EvaluationStatus string `json:"evaluation_status" gorm:"type:varchar(20);default:'DRAFT'"`

	TechnicalScore     float64 `json:"technical_score"`
	CommercialScore    float64 `json:"commercial_score"`
	OverallScore       float64 `json:"overall_score"`
	WeightedFinalScore float64 `json:"weighted_final_score"`

	AutoRejected    bool   `json:"auto_rejected" gorm:"default:false"`
	RejectionReason string `json:"rejection_reason,omitempty" gorm:"type:text"`

	DraftData            datatypes.JSON `json:"draft_data" gorm:"type:jsonb"`
	CompletionPercentage float64        `json:"completion_percentage"`
	LastSavedAt          *time.Time     `json:"last_saved_at,omitempty"`

	SubmittedAt        *time.Time `json:"submitted_at,omitempty"`
	SubmissionIP       string     `json:"submission_ip,omitempty" gorm:"type:varchar(45)"`
	SubmissionUA       string     `json:"submission_ua,omitempty" gorm:"type:varchar(255)"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Matching statuses for unmatched vendor capture
const (
	MatchingStatusUnmatched = "unmatched"
	MatchingStatusMatched   = "matched"
)

// RFPUnmatchedVendor captures submissions that arrived without a resolvable
// vendor. Back-office later links the real vendor and flips the status.
type RFPUnmatchedVendor struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	TenantID        uint      `json:"tenant_id" gorm:"index;not null"`
	InvitationID    uint      `json:"invitation_id" gorm:"index;not null"`
	ResponseID      *uint     `json:"response_id,omitempty" gorm:"index"`
	CompanyName     string    `json:"company_name" gorm:"type:varchar(255)"`
	ContactEmail    string    `json:"contact_email" gorm:"type:varchar(255)"`
	MatchingStatus  string    `json:"matching_status" gorm:"type:varchar(15);default:'unmatched'"`
	MatchedVendorID *uint     `json:"matched_vendor_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// RFPEvaluationScore holds one evaluator's score for one criterion of one
// response. The composite key is unique.
type RFPEvaluationScore struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	TenantID    uint      `json:"tenant_id" gorm:"index;not null"`
	ResponseID  uint      `json:"response_id" gorm:"not null;uniqueIndex:idx_resp_crit_eval"`
	CriteriaID  uint      `json:"criteria_id" gorm:"not null;uniqueIndex:idx_resp_crit_eval"`
	EvaluatorID uint      `json:"evaluator_id" gorm:"not null;uniqueIndex:idx_resp_crit_eval"`
	ScoreValue  float64   `json:"score_value"`
	RawResponse string    `json:"raw_response" gorm:"type:text"`
	Comments    string    `json:"comments" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Evaluator assignment statuses
const (
	AssignmentStatusAssigned   = "ASSIGNED"
	AssignmentStatusInProgress = "IN_PROGRESS"
	AssignmentStatusCompleted  = "COMPLETED"
	AssignmentStatusCancelled  = "CANCELLED"
)

// RFPEvaluatorAssignment assigns an evaluator to a proposal. StartedDate and
// CompletedDate are each set exactly once, on the first transition into
// IN_PROGRESS and COMPLETED respectively.
type RFPEvaluatorAssignment struct {
	ID             uint       `json:"id" gorm:"primaryKey"`
	TenantID       uint       `json:"tenant_id" gorm:"index;not null"`
	ProposalID     uint       `json:"proposal_id" gorm:"not null;uniqueIndex:idx_prop_eval_type"`
	EvaluatorID    uint       `json:"evaluator_id" gorm:"not null;uniqueIndex:idx_prop_eval_type"`
	AssignmentType string     `json:"assignment_type" gorm:"type:varchar(30);not null;uniqueIndex:idx_prop_eval_type"`
	Status         string     `json:"status" gorm:"type:varchar(20);default:'ASSIGNED'"`
	StartedDate    *time.Time `json:"started_date,omitempty"`
	CompletedDate  *time.Time `json:"completed_date,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// RFPCommitteeMember is a committee member assigned to an RFP. At most one
// chair per RFP; the service demotes the previous chair on promotion.
type RFPCommitteeMember struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	TenantID  uint      `json:"tenant_id" gorm:"index;not null"`
	RFPID     uint      `json:"rfp_id" gorm:"not null;uniqueIndex:idx_rfp_member"`
	UserID    uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_rfp_member"`
	IsChair   bool      `json:"is_chair" gorm:"default:false"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RFPFinalEvaluation is one committee member's ranking of one response.
type RFPFinalEvaluation struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	TenantID        uint      `json:"tenant_id" gorm:"index;not null"`
	RFPID           uint      `json:"rfp_id" gorm:"not null;uniqueIndex:idx_rfp_resp_eval"`
	ResponseID      uint      `json:"response_id" gorm:"not null;uniqueIndex:idx_rfp_resp_eval"`
	EvaluatorID     uint      `json:"evaluator_id" gorm:"not null;uniqueIndex:idx_rfp_resp_eval"`
	RankingScore    float64   `json:"ranking_score"`
	RankingPosition int       `json:"ranking_position"`
	Comments        string    `json:"comments" gorm:"type:text"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Award notification types
const (
	NotificationTypeWinner            = "winner"
	NotificationTypeParticipantThanks = "participant_thanks"
)

// Award notification statuses
const (
	NotificationStatusPending      = "pending"
	NotificationStatusSent         = "sent"
	NotificationStatusAcknowledged = "acknowledged"
	NotificationStatusAccepted     = "accepted"
	NotificationStatusRejected     = "rejected"
)

// RFPAwardNotification carries the award decision to a vendor. The
// accept/reject token is the capability for the public award-response
// endpoint.
type RFPAwardNotification struct {
	ID                 uint       `json:"id" gorm:"primaryKey"`
	TenantID           uint       `json:"tenant_id" gorm:"index;not null"`
	ResponseID         uint       `json:"response_id" gorm:"index;not null"`
	NotificationType   string     `json:"notification_type" gorm:"type:varchar(30);default:'winner'"`
	NotificationStatus string     `json:"notification_status" gorm:"type:varchar(15);default:'pending'"`
	AcceptRejectToken  string     `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	AwardMessage       string     `json:"award_message" gorm:"type:text"`
	NextSteps          string     `json:"next_steps" gorm:"type:text"`
	ResponseDate       *time.Time `json:"response_date,omitempty"`
	AcknowledgedDate   *time.Time `json:"acknowledged_date,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}
