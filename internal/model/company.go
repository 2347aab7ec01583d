package model

import "time"

// Company はインターンシップ受け入れ企業を表す。
type Company struct {
	ID           int64
	Name         string
	Address      string
	Contact      string
	BusinessLine string
	Email        string
	Phone        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
