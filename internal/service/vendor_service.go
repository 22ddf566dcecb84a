package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"tprm-service/internal/identifier"
	"tprm-service/internal/model"
)

// VendorService owns the vendor registry and vendor contacts.
type VendorService struct {
	db  *gorm.DB
	log *zap.Logger
	now func() time.Time
}

func NewVendorService(db *gorm.DB, log *zap.Logger) *VendorService {
	return &VendorService{db: db, log: log, now: time.Now}
}

// vendorStatusRank orders the forward-only lifecycle. Admin reset back to
// DRAFT is the one allowed reversal.
var vendorStatusRank = map[string]int{
	model.VendorStatusDraft:      0,
	model.VendorStatusSubmitted:  1,
	model.VendorStatusInReview:   2,
	model.VendorStatusApproved:   3,
	model.VendorStatusRejected:   3,
	model.VendorStatusSuspended:  4,
	model.VendorStatusTerminated: 5,
}

// CreateVendorInput creates a DRAFT vendor. The vendor code is minted.
type CreateVendorInput struct {
	CompanyName    string          `json:"company_name"`
	RiskLevel      string          `json:"risk_level"`
	Capabilities   json.RawMessage `json:"capabilities"`
	Certifications json.RawMessage `json:"certifications"`
	Website        string          `json:"website"`
	TaxID          string          `json:"tax_id"`
}

// UpdateVendorInput patches a vendor.
type UpdateVendorInput struct {
	CompanyName    *string         `json:"company_name"`
	RiskLevel      *string         `json:"risk_level"`
	Capabilities   json.RawMessage `json:"capabilities"`
	Certifications json.RawMessage `json:"certifications"`
	Website        *string         `json:"website"`
	TaxID          *string         `json:"tax_id"`
}

// ContactInput creates or replaces a vendor contact.
type ContactInput struct {
	ContactType string `json:"contact_type"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	IsPrimary   bool   `json:"is_primary"`
}

// ListVendorsInput filters vendor listings.
type ListVendorsInput struct {
	Status    string
	RiskLevel string
	Search    string
	Page      PageRequest
}

// Create mints a VEN code and persists the vendor.
func (s *VendorService) Create(ctx context.Context, scope Scope, actorID uint, in CreateVendorInput) (*model.Vendor, error) {
	if err := rejectSQLTokens(map[string]string{"company_name": in.CompanyName}); err != nil {
		return nil, err
	}
	if in.CompanyName == "" {
		return nil, NewValidationError("company_name is required")
	}

	capabilities, err := normalizeJSONBag(in.Capabilities, "capabilities")
	if err != nil {
		return nil, err
	}
	certifications, err := normalizeJSONBag(in.Certifications, "certifications")
	if err != nil {
		return nil, err
	}

	vendor := &model.Vendor{
		TenantID:       scope.TenantID,
		CompanyName:    in.CompanyName,
		RiskLevel:      defaultString(in.RiskLevel, model.RiskLevelMedium),
		Status:         model.VendorStatusDraft,
		Capabilities:   capabilities,
		Certifications: certifications,
		Website:        in.Website,
		TaxID:          in.TaxID,
		CreatedBy:      actorID,
		UpdatedBy:      actorID,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for attempt := 0; attempt < identifier.MaxMintAttempts; attempt++ {
			code, err := identifier.MintVendorCode(tx, scope.TenantID, s.now())
			if err != nil {
				return err
			}
			vendor.ID = 0
			vendor.VendorCode = code

			insertErr := tx.Transaction(func(inner *gorm.DB) error {
				return inner.Create(vendor).Error
			})
			if insertErr == nil {
				return nil
			}
			if !IsUniqueViolation(insertErr) {
				return insertErr
			}
		}
		return fmt.Errorf("vendor code for tenant %d: %w", scope.TenantID, ErrIdMintingExhausted)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("vendor created",
		zap.Uint("tenant_id", scope.TenantID),
		zap.Uint("vendor_id", vendor.ID),
		zap.String("vendor_code", vendor.VendorCode))
	return vendor, nil
}

// Update patches vendor fields.
func (s *VendorService) Update(ctx context.Context, scope Scope, actorID uint, vendorID uint, in UpdateVendorInput) (*model.Vendor, error) {
	var vendor *model.Vendor
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		vendor, err = s.load(tx, scope, vendorID)
		if err != nil {
			return err
		}

		if in.CompanyName != nil {
			if err := rejectSQLTokens(map[string]string{"company_name": *in.CompanyName}); err != nil {
				return err
			}
			vendor.CompanyName = *in.CompanyName
		}
		if in.RiskLevel != nil {
			vendor.RiskLevel = *in.RiskLevel
		}
		if in.Website != nil {
			vendor.Website = *in.Website
		}
		if in.TaxID != nil {
			vendor.TaxID = *in.TaxID
		}
		if len(in.Capabilities) > 0 {
			bag, err := normalizeJSONBag(in.Capabilities, "capabilities")
			if err != nil {
				return err
			}
			vendor.Capabilities = bag
		}
		if len(in.Certifications) > 0 {
			bag, err := normalizeJSONBag(in.Certifications, "certifications")
			if err != nil {
				return err
			}
			vendor.Certifications = bag
		}
		vendor.UpdatedBy = actorID
		return tx.Save(vendor).Error
	})
	if err != nil {
		return nil, err
	}
	return vendor, nil
}

// TransitionStatus moves the vendor forward in its lifecycle. The only
// allowed reversal is the admin reset to DRAFT.
func (s *VendorService) TransitionStatus(ctx context.Context, scope Scope, actorID uint, vendorID uint, status string, adminReset bool) (*model.Vendor, error) {
	rank, ok := vendorStatusRank[status]
	if !ok {
		return nil, NewValidationError(fmt.Sprintf("unknown vendor status %q", status))
	}

	var vendor *model.Vendor
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		vendor, err = s.load(tx, scope, vendorID)
		if err != nil {
			return err
		}
		if adminReset && status == model.VendorStatusDraft {
			vendor.Status = model.VendorStatusDraft
		} else {
			if rank < vendorStatusRank[vendor.Status] {
				return NewValidationError(fmt.Sprintf(
					"vendor status cannot move backwards from %s to %s", vendor.Status, status))
			}
			vendor.Status = status
		}
		vendor.UpdatedBy = actorID
		return tx.Save(vendor).Error
	})
	if err != nil {
		return nil, err
	}
	return vendor, nil
}

// Get returns one vendor with its contacts.
func (s *VendorService) Get(ctx context.Context, scope Scope, vendorID uint) (*model.Vendor, []model.VendorContact, error) {
	vendor, err := s.load(s.db.WithContext(ctx), scope, vendorID)
	if err != nil {
		return nil, nil, err
	}
	var contacts []model.VendorContact
	err = s.db.WithContext(ctx).
		Where("tenant_id = ? AND vendor_id = ?", scope.TenantID, vendorID).
		Order("id ASC").
		Find(&contacts).Error
	if err != nil {
		return nil, nil, err
	}
	return vendor, contacts, nil
}

// List returns a page of vendors. Vendor users only see their own vendor.
func (s *VendorService) List(ctx context.Context, scope Scope, in ListVendorsInput) ([]model.Vendor, *Pagination, error) {
	in.Page.Normalize()

	q := s.db.WithContext(ctx).Model(&model.Vendor{}).
		Where("tenant_id = ?", scope.TenantID)
	if scope.VendorID != nil {
		q = q.Where("id = ?", *scope.VendorID)
	}
	if in.Status != "" {
		q = q.Where("status = ?", in.Status)
	}
	if in.RiskLevel != "" {
		q = q.Where("risk_level = ?", in.RiskLevel)
	}
	if in.Search != "" {
		like := "%" + in.Search + "%"
		q = q.Where("company_name LIKE ? OR vendor_code LIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, nil, err
	}

	allowed := map[string]bool{
		"created_at": true, "company_name": true, "vendor_code": true,
		"status": true, "risk_level": true,
	}
	q = applyOrdering(q, in.Page.Ordering, allowed, "created_at DESC")

	var rows []model.Vendor
	if err := q.Offset(in.Page.Offset()).Limit(in.Page.PageSize).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	return rows, NewPagination(in.Page, total), nil
}

// AddContact adds a contact. Promoting a contact to primary demotes the
// previous primary of the same contact type inside the same transaction.
func (s *VendorService) AddContact(ctx context.Context, scope Scope, vendorID uint, in ContactInput) (*model.VendorContact, error) {
	if in.Name == "" || in.ContactType == "" {
		return nil, NewValidationError("contact name and contact_type are required")
	}

	var contact *model.VendorContact
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.load(tx, scope, vendorID); err != nil {
			return err
		}

		if in.IsPrimary {
			err := tx.Model(&model.VendorContact{}).
				Where("tenant_id = ? AND vendor_id = ? AND contact_type = ? AND is_primary = ?",
					scope.TenantID, vendorID, in.ContactType, true).
				Update("is_primary", false).Error
			if err != nil {
				return err
			}
		}

		contact = &model.VendorContact{
			TenantID:    scope.TenantID,
			VendorID:    vendorID,
			ContactType: in.ContactType,
			Name:        in.Name,
			Email:       in.Email,
			Phone:       in.Phone,
			IsPrimary:   in.IsPrimary,
			IsActive:    true,
		}
		return tx.Create(contact).Error
	})
	if err != nil {
		return nil, err
	}
	return contact, nil
}

func (s *VendorService) load(tx *gorm.DB, scope Scope, vendorID uint) (*model.Vendor, error) {
	q := tx.Where("tenant_id = ? AND id = ?", scope.TenantID, vendorID)
	if scope.VendorID != nil {
		q = q.Where("id = ?", *scope.VendorID)
	}
	var vendor model.Vendor
	if err := q.First(&vendor).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &vendor, nil
}
