// Package identifier mints the human-readable codes and opaque capability
// tokens used across the contract and RFP lifecycle. Minting is not
// transactional with the subsequent insert: callers must catch a unique
// violation on insert and retry, up to MaxMintAttempts times.
package identifier

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MaxMintAttempts bounds collision retries before minting fails.
const MaxMintAttempts = 50

// Version bump kinds for contract lineage.
const (
	VersionTypeMajor = "major"
	VersionTypeMinor = "minor"
)

var versionSuffix = regexp.MustCompile(`-v\d+(\.\d+)?$`)

// NewToken returns a cryptographically random URL-safe token. Used for
// invitation and award tokens, which are the sole capability bearers of the
// public endpoints.
func NewToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewSessionToken returns a shorter opaque token for session rows.
func NewSessionToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NextSequedCode mints a `<prefix>-YYYY-MM-NNNN` code by scanning the current
// month's codes for the tenant in the given table/column and taking
// max(seq)+1.
func NextSequedCode(db *gorm.DB, table, column, prefix string, tenantID uint, now time.Time) (string, error) {
	monthPrefix := fmt.Sprintf("%s-%04d-%02d-", prefix, now.Year(), int(now.Month()))

	var codes []string
	err := db.Table(table).
		Where("tenant_id = ? AND "+column+" LIKE ?", tenantID, monthPrefix+"%").
		Pluck(column, &codes).Error
	if err != nil {
		return "", fmt.Errorf("failed to scan existing codes: %w", err)
	}

	maxSeq := 0
	for _, code := range codes {
		seqPart := strings.TrimPrefix(code, monthPrefix)
		if seq, err := strconv.Atoi(seqPart); err == nil && seq > maxSeq {
			maxSeq = seq
		}
	}

	return fmt.Sprintf("%s%04d", monthPrefix, maxSeq+1), nil
}

// MintVendorCode mints the next VEN-YYYY-MM-NNNN code for a tenant.
func MintVendorCode(db *gorm.DB, tenantID uint, now time.Time) (string, error) {
	return NextSequedCode(db, "vendors", "vendor_code", "VEN", tenantID, now)
}

// MintRFPNumber mints the next RFP-YYYY-MM-NNNN number for a tenant.
func MintRFPNumber(db *gorm.DB, tenantID uint, now time.Time) (string, error) {
	return NextSequedCode(db, "rfps", "rfp_number", "RFP", tenantID, now)
}

// StripVersionSuffix removes a trailing -v<major>.<minor> from a contract
// number, returning the lineage base.
func StripVersionSuffix(contractNumber string) string {
	return versionSuffix.ReplaceAllString(contractNumber, "")
}

// VersionedContractNumber appends the version suffix to a lineage base.
// The base is stripped of any existing suffix first.
func VersionedContractNumber(base string, version decimal.Decimal) string {
	return fmt.Sprintf("%s-v%s", StripVersionSuffix(base), FormatVersion(version))
}

// NextVersion computes the successor version from the parent's version only.
// major: (M+1).0, minor: M.(m+1). Increments never re-read freshly written
// rows; collisions are handled by unique-violation retries at insert time.
func NextVersion(parent decimal.Decimal, versionType string) (decimal.Decimal, error) {
	major := parent.IntPart()
	switch versionType {
	case VersionTypeMajor:
		return decimal.NewFromInt(major + 1), nil
	case VersionTypeMinor:
		return parent.Add(decimal.NewFromFloat(0.1)).Round(1), nil
	default:
		return decimal.Zero, fmt.Errorf("unknown version type %q", versionType)
	}
}

// FormatVersion renders a version as M.m with exactly one fractional digit.
func FormatVersion(v decimal.Decimal) string {
	return v.StringFixed(1)
}

// MintTermID mints a term identifier scoped to a contract. The attempt
// counter widens the randomness: the first draw uses a short suffix, retries
// fall back to a full UUID.
func MintTermID(contractID uint, attempt int) (string, error) {
	if attempt > 0 {
		return fmt.Sprintf("term_%d_%s", contractID, uuid.New().String()), nil
	}
	suffix, err := gonanoid.Generate("0123456789abcdef", 8)
	if err != nil {
		return "", fmt.Errorf("failed to generate term id suffix: %w", err)
	}
	return fmt.Sprintf("term_%d_%d_%s", contractID, time.Now().UnixMicro(), suffix), nil
}

// MintClauseID mints a clause identifier scoped to a contract.
func MintClauseID(contractID uint, attempt int) (string, error) {
	if attempt > 0 {
		return fmt.Sprintf("clause_%d_%s", contractID, uuid.New().String()), nil
	}
	suffix, err := gonanoid.Generate("0123456789abcdef", 8)
	if err != nil {
		return "", fmt.Errorf("failed to generate clause id suffix: %w", err)
	}
	return fmt.Sprintf("clause_%d_%d_%s", contractID, time.Now().UnixMicro(), suffix), nil
}

// GeneratePassword returns a 12-character password drawn from letters,
// digits and a fixed symbol set, for vendor credential provisioning.
func GeneratePassword() (string, error) {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*"
	return gonanoid.Generate(alphabet, 12)
}
