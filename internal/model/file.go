package model

import "time"

// File operation statuses
const (
	FileOpStatusSuccess = "success"
	FileOpStatusFailed  = "failed"
)

// FileOperationLog records every storage gateway call for audit.
type FileOperationLog struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	TenantID      uint      `json:"tenant_id" gorm:"index"`
	OperationType string    `json:"operation_type" gorm:"type:varchar(20);not null"` // upload, download, presign, merge
	UserID        uint      `json:"user_id" gorm:"index"`
	FileName      string    `json:"file_name" gorm:"type:varchar(255)"`
	S3Key         string    `json:"s3_key" gorm:"type:varchar(512)"`
	Status        string    `json:"status" gorm:"type:varchar(10)"`
	ErrorDetail   string    `json:"error_detail,omitempty" gorm:"type:text"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
