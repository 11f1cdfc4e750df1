package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/totegamma/bookshelf"
	"github.com/totegamma/bookshelf/internal/domain"
	"github.com/totegamma/bookshelf/internal/infra/database/models"
)

const defaultHistoryLimit = 50

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func normalizeAccount(account string) string {
	if normalized, err := bookshelf.NormalizeAddress(account); err == nil {
		return normalized
	}
	return account
}

func (r *TransactionRepository) Save(ctx context.Context, record domain.TransactionRecord) error {
	row := models.Transaction{
		ID:              record.ID,
		Kind:            record.Kind,
		Account:         normalizeAccount(record.Account),
		BookID:          record.BookID,
		Status:          record.Status,
		From:            record.From,
		To:              record.To,
		TransactionHash: record.TransactionHash,
		BlockHash:       record.BlockHash,
		BlockNumber:     record.BlockNumber,
		Error:           record.Error,
		CDate:           record.CreatedAt,
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "from_address", "to_address", "transaction_hash", "block_hash", "block_number", "error"}),
	}).Create(&row).Error
}

func (r *TransactionRepository) List(ctx context.Context, account string, limit int) ([]domain.TransactionRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	var rows []models.Transaction
	err := r.db.WithContext(ctx).
		Where("account = ?", normalizeAccount(account)).
		Order("c_date DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	records := make([]domain.TransactionRecord, len(rows))
	for i, row := range rows {
		records[i] = domain.TransactionRecord{
			ID:              row.ID,
			Kind:            row.Kind,
			Account:         row.Account,
			BookID:          row.BookID,
			Status:          row.Status,
			From:            row.From,
			To:              row.To,
			TransactionHash: row.TransactionHash,
			BlockHash:       row.BlockHash,
			BlockNumber:     row.BlockNumber,
			Error:           row.Error,
			CreatedAt:       row.CDate,
		}
	}
	return records, nil
}

func (r *TransactionRepository) Get(ctx context.Context, id string) (domain.TransactionRecord, error) {
	var row models.Transaction
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.TransactionRecord{}, domain.NotFoundError{Resource: "transaction"}
		}
		return domain.TransactionRecord{}, err
	}
	return domain.TransactionRecord{
		ID:              row.ID,
		Kind:            row.Kind,
		Account:         row.Account,
		BookID:          row.BookID,
		Status:          row.Status,
		From:            row.From,
		To:              row.To,
		TransactionHash: row.TransactionHash,
		BlockHash:       row.BlockHash,
		BlockNumber:     row.BlockNumber,
		Error:           row.Error,
		CreatedAt:       row.CDate,
	}, nil
}
