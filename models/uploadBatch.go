package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// UploadBatch identifies one uploaded file's worth of orders. It is created
// once per successfully parsed filename and never mutated afterwards.
type UploadBatch struct {
	ID             uint      `gorm:"primary_key" json:"id"`
	Brand          string    `gorm:"uniqueIndex:idx_upload_batch,priority:1;size:100;not null" json:"brand"`
	SalesChannel   string    `gorm:"uniqueIndex:idx_upload_batch,priority:2;size:100;not null" json:"sales_channel"`
	DateToken      string    `gorm:"uniqueIndex:idx_upload_batch,priority:3;size:20;not null" json:"date_token"`
	BatchNumber    string    `gorm:"uniqueIndex:idx_upload_batch,priority:4;size:20;not null" json:"batch_number"`
	SourceFilename string    `gorm:"size:255;not null" json:"source_filename"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// FindOrCreateUploadBatch resolves the batch row for a parsed filename.
// Re-uploading the same file reuses the existing batch.
func FindOrCreateUploadBatch(ctx context.Context, tx *gorm.DB, brand, salesChannel, dateToken, batchNumber, sourceFilename string) (*UploadBatch, error) {
	var batch UploadBatch
	err := tx.WithContext(ctx).
		Where("brand = ? AND sales_channel = ? AND date_token = ? AND batch_number = ?",
			brand, salesChannel, dateToken, batchNumber).
		First(&batch).Error
	if err == nil {
		return &batch, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	batch = UploadBatch{
		Brand:          brand,
		SalesChannel:   salesChannel,
		DateToken:      dateToken,
		BatchNumber:    batchNumber,
		SourceFilename: sourceFilename,
	}
	if err := tx.WithContext(ctx).Create(&batch).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}
