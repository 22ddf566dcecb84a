package model

import (
	"time"
)

// User represents an authenticated account. VendorID is set for vendor users,
// whose reads are additionally filtered down to that vendor.
type User struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	TenantID     *uint      `json:"tenant_id" gorm:"index"` // nil means no tenant bound yet
	Email        string     `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	Username     string     `json:"username" gorm:"type:varchar(150);uniqueIndex;not null"`
	PasswordHash string     `json:"-" gorm:"type:varchar(255);not null"`
	FirstName    string     `json:"first_name" gorm:"type:varchar(100)"`
	LastName     string     `json:"last_name" gorm:"type:varchar(100)"`
	VendorID     *uint      `json:"vendor_id,omitempty" gorm:"index"`
	Role         string     `json:"role" gorm:"type:varchar(50)"`
	IsActive     bool       `json:"is_active" gorm:"default:true"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Session backs the opaque session-token fallback for callers that do not
// present a JWT.
type Session struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Token     string    `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	UserID    uint      `json:"user_id" gorm:"index;not null"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// UserPermission is the RBAC row for a user within a tenant: one boolean
// column per permission. The permission middleware reads exactly one column
// per route.
type UserPermission struct {
	ID       uint `json:"id" gorm:"primaryKey"`
	UserID   uint `json:"user_id" gorm:"index;not null;uniqueIndex:idx_user_tenant_perm"`
	TenantID uint `json:"tenant_id" gorm:"index;not null;uniqueIndex:idx_user_tenant_perm"`

	CreateContract  bool `json:"create_contract" gorm:"default:false"`
	EditContract    bool `json:"edit_contract" gorm:"default:false"`
	ViewContracts   bool `json:"view_contracts" gorm:"default:false"`
	ApproveContract bool `json:"approve_contract" gorm:"default:false"`

	CreateRFP        bool `json:"create_rfp" gorm:"default:false"`
	EditRFP          bool `json:"edit_rfp" gorm:"default:false"`
	ViewRFP          bool `json:"view_rfp" gorm:"default:false"`
	ApproveRFP       bool `json:"approve_rfp" gorm:"default:false"`
	AwardRFP         bool `json:"award_rfp" gorm:"default:false"`
	InviteVendors    bool `json:"invite_vendors" gorm:"default:false"`
	AssignEvaluators bool `json:"assign_evaluators" gorm:"default:false"`
	ScoreRFPResponse bool `json:"score_rfp_response" gorm:"default:false"`
	ViewRFPResponses bool `json:"view_rfp_responses" gorm:"default:false"`
	ManageCommittee  bool `json:"manage_committee" gorm:"default:false"`

	SubmitRFPResponse    bool `json:"submit_rfp_response" gorm:"default:false"`
	WithdrawRFPResponse  bool `json:"withdraw_rfp_response" gorm:"default:false"`
	DownloadRFPDocuments bool `json:"download_rfp_documents" gorm:"default:false"`
	PreviewRFPDocuments  bool `json:"preview_rfp_documents" gorm:"default:false"`
	UploadRFPDocuments   bool `json:"upload_rfp_documents" gorm:"default:false"`

	ViewVendors          bool `json:"view_vendors" gorm:"default:false"`
	EditVendors          bool `json:"edit_vendors" gorm:"default:false"`
	ViewQuestionnaires   bool `json:"view_questionnaires" gorm:"default:false"`
	SubmitQuestionnaires bool `json:"submit_questionnaires" gorm:"default:false"`
	ViewRiskAssessments  bool `json:"view_risk_assessments" gorm:"default:false"`
	ViewPerformance      bool `json:"view_performance" gorm:"default:false"`
	ViewDashboardTrend   bool `json:"view_dashboard_trend" gorm:"default:false"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TempVendor links an awarded RFP response to the provisioned vendor user
// until full vendor onboarding completes. Keyed by ResponseID so repeated
// award acceptances cannot create duplicates.
type TempVendor struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	TenantID    uint      `json:"tenant_id" gorm:"index;not null"`
	ResponseID  uint      `json:"response_id" gorm:"uniqueIndex;not null"`
	UserID      uint      `json:"user_id" gorm:"index;not null"`
	VendorCode  string    `json:"vendor_code" gorm:"type:varchar(50)"`
	CompanyName string    `json:"company_name" gorm:"type:varchar(255)"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
