package models

import (
	"time"
)

type Transaction struct {
	ID              string    `json:"id" gorm:"primaryKey;type:text"`
	Kind            string    `json:"kind" gorm:"type:text;not null"`
	Account         string    `json:"account" gorm:"type:text;index"`
	BookID          uint64    `json:"bookID"`
	Status          string    `json:"status" gorm:"type:text;not null"`
	From            string    `json:"from" gorm:"column:from_address;type:text"`
	To              string    `json:"to" gorm:"column:to_address;type:text"`
	TransactionHash string    `json:"transactionHash" gorm:"type:text;index"`
	BlockHash       string    `json:"blockHash" gorm:"type:text"`
	BlockNumber     uint64    `json:"blockNumber"`
	Error           string    `json:"error" gorm:"type:text"`
	CDate           time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}
