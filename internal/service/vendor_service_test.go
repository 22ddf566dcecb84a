package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"tprm-service/internal/model"
)

func newVendorService(t *testing.T) (*VendorService, Scope) {
	t.Helper()
	s := NewVendorService(setupTestDB(t), testLogger())
	s.now = fixedNow
	return s, Scope{TenantID: 1}
}

func mustCreateVendor(t *testing.T, s *VendorService, scope Scope, name string) *model.Vendor {
	t.Helper()
	vendor, err := s.Create(context.Background(), scope, 1, CreateVendorInput{CompanyName: name})
	if err != nil {
		t.Fatalf("create vendor %q: %v", name, err)
	}
	return vendor
}

func TestCreateVendorMintsSequencedCode(t *testing.T) {
	s, scope := newVendorService(t)

	first := mustCreateVendor(t, s, scope, "Acme Security")
	second := mustCreateVendor(t, s, scope, "Borealis Networks")

	if first.VendorCode != "VEN-2026-06-0001" {
		t.Fatalf("first code = %q, want VEN-2026-06-0001", first.VendorCode)
	}
	if second.VendorCode != "VEN-2026-06-0002" {
		t.Fatalf("second code = %q, want VEN-2026-06-0002", second.VendorCode)
	}
	if first.Status != model.VendorStatusDraft {
		t.Fatalf("new vendor status = %q, want DRAFT", first.Status)
	}
	if first.RiskLevel != model.RiskLevelMedium {
		t.Fatalf("default risk level = %q, want MEDIUM", first.RiskLevel)
	}

	// Sequences are per tenant.
	other := Scope{TenantID: 2}
	tenant2, err := s.Create(context.Background(), other, 1, CreateVendorInput{CompanyName: "Cobalt"})
	if err != nil {
		t.Fatalf("tenant 2 create: %v", err)
	}
	if tenant2.VendorCode != "VEN-2026-06-0001" {
		t.Fatalf("tenant 2 code = %q, want its own sequence", tenant2.VendorCode)
	}
}

func TestCreateVendorValidation(t *testing.T) {
	s, scope := newVendorService(t)

	var verr *ValidationError
	_, err := s.Create(context.Background(), scope, 1, CreateVendorInput{})
	if !errors.As(err, &verr) {
		t.Fatalf("missing name: got %v, want validation error", err)
	}

	_, err = s.Create(context.Background(), scope, 1, CreateVendorInput{CompanyName: "x'; DROP TABLE vendors;--"})
	if !errors.As(err, &verr) {
		t.Fatalf("sql tokens: got %v, want validation error", err)
	}
}

func TestVendorStatusForwardOnly(t *testing.T) {
	s, scope := newVendorService(t)
	vendor := mustCreateVendor(t, s, scope, "Acme Security")

	for _, status := range []string{
		model.VendorStatusSubmitted,
		model.VendorStatusInReview,
		model.VendorStatusApproved,
	} {
		var err error
		vendor, err = s.TransitionStatus(context.Background(), scope, 1, vendor.ID, status, false)
		if err != nil {
			t.Fatalf("to %s: %v", status, err)
		}
	}
	if vendor.Status != model.VendorStatusApproved {
		t.Fatalf("status = %q, want APPROVED", vendor.Status)
	}

	var verr *ValidationError
	_, err := s.TransitionStatus(context.Background(), scope, 1, vendor.ID, model.VendorStatusSubmitted, false)
	if !errors.As(err, &verr) {
		t.Fatalf("backwards transition: got %v, want validation error", err)
	}

	_, err = s.TransitionStatus(context.Background(), scope, 1, vendor.ID, "PAUSED", false)
	if !errors.As(err, &verr) {
		t.Fatalf("unknown status: got %v, want validation error", err)
	}

	// The admin reset is the one allowed reversal.
	vendor, err = s.TransitionStatus(context.Background(), scope, 1, vendor.ID, model.VendorStatusDraft, true)
	if err != nil {
		t.Fatalf("admin reset: %v", err)
	}
	if vendor.Status != model.VendorStatusDraft {
		t.Fatalf("status after reset = %q, want DRAFT", vendor.Status)
	}
}

func TestUpdateVendorPatchesFields(t *testing.T) {
	s, scope := newVendorService(t)
	vendor := mustCreateVendor(t, s, scope, "Acme Security")

	updated, err := s.Update(context.Background(), scope, 2, vendor.ID, UpdateVendorInput{
		RiskLevel:    strPtr(model.RiskLevelHigh),
		Website:      strPtr("https://acme.example"),
		Capabilities: json.RawMessage(`{"soc":"24x7"}`),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.CompanyName != "Acme Security" {
		t.Fatalf("untouched field changed: %q", updated.CompanyName)
	}
	if updated.RiskLevel != model.RiskLevelHigh || updated.Website != "https://acme.example" {
		t.Fatalf("patched fields: risk=%q website=%q", updated.RiskLevel, updated.Website)
	}
	if updated.UpdatedBy != 2 {
		t.Fatalf("updated_by = %d, want 2", updated.UpdatedBy)
	}

	if _, err := s.Update(context.Background(), Scope{TenantID: 2}, 1, vendor.ID, UpdateVendorInput{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant update: got %v, want ErrNotFound", err)
	}
}

func TestAddContactDemotesPreviousPrimary(t *testing.T) {
	s, scope := newVendorService(t)
	vendor := mustCreateVendor(t, s, scope, "Acme Security")

	first, err := s.AddContact(context.Background(), scope, vendor.ID, ContactInput{
		ContactType: "sales", Name: "Pat Doe", Email: "pat@acme.example", IsPrimary: true,
	})
	if err != nil {
		t.Fatalf("first contact: %v", err)
	}
	// A primary of a different type is unaffected by later sales promotions.
	billing, err := s.AddContact(context.Background(), scope, vendor.ID, ContactInput{
		ContactType: "billing", Name: "Lee Ray", Email: "billing@acme.example", IsPrimary: true,
	})
	if err != nil {
		t.Fatalf("billing contact: %v", err)
	}
	second, err := s.AddContact(context.Background(), scope, vendor.ID, ContactInput{
		ContactType: "sales", Name: "Sam Cho", Email: "sam@acme.example", IsPrimary: true,
	})
	if err != nil {
		t.Fatalf("second sales contact: %v", err)
	}
	if !second.IsPrimary {
		t.Fatal("new contact not primary")
	}

	_, contacts, err := s.Get(context.Background(), scope, vendor.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(contacts) != 3 {
		t.Fatalf("got %d contacts, want 3", len(contacts))
	}
	for _, c := range contacts {
		switch c.ID {
		case first.ID:
			if c.IsPrimary {
				t.Fatal("previous sales primary was not demoted")
			}
		case billing.ID:
			if !c.IsPrimary {
				t.Fatal("billing primary was demoted by a sales promotion")
			}
		case second.ID:
			if !c.IsPrimary {
				t.Fatal("new sales primary lost its flag")
			}
		}
	}

	var verr *ValidationError
	if _, err := s.AddContact(context.Background(), scope, vendor.ID, ContactInput{Name: "No Type"}); !errors.As(err, &verr) {
		t.Fatalf("missing contact_type: got %v, want validation error", err)
	}
}

func TestListVendorsFiltersAndScoping(t *testing.T) {
	s, scope := newVendorService(t)
	acme := mustCreateVendor(t, s, scope, "Acme Security")
	mustCreateVendor(t, s, scope, "Borealis Networks")
	if _, err := s.TransitionStatus(context.Background(), scope, 1, acme.ID, model.VendorStatusSubmitted, false); err != nil {
		t.Fatalf("transition: %v", err)
	}

	rows, page, err := s.List(context.Background(), scope, ListVendorsInput{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 2 || page.TotalCount != 2 {
		t.Fatalf("unfiltered list: %d rows, total %d", len(rows), page.TotalCount)
	}

	rows, _, err = s.List(context.Background(), scope, ListVendorsInput{Status: model.VendorStatusSubmitted})
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != acme.ID {
		t.Fatalf("status filter returned %d rows", len(rows))
	}

	rows, _, err = s.List(context.Background(), scope, ListVendorsInput{Search: "Borealis"})
	if err != nil {
		t.Fatalf("search list: %v", err)
	}
	if len(rows) != 1 || rows[0].CompanyName != "Borealis Networks" {
		t.Fatalf("search returned %d rows", len(rows))
	}

	// Vendor users only ever see their own record.
	vendorScope := Scope{TenantID: 1, VendorID: uintPtr(acme.ID)}
	rows, _, err = s.List(context.Background(), vendorScope, ListVendorsInput{})
	if err != nil {
		t.Fatalf("vendor-scoped list: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != acme.ID {
		t.Fatalf("vendor scope returned %d rows", len(rows))
	}
}
