package models

import "time"

type ProductCategory struct {
	ID        uint   `gorm:"primaryKey"`
	BranchID  uint   `gorm:"index;not null;uniqueIndex:idx_category_branch_name"`
	Branch    Branch
	Name      string `gorm:"size:100;not null;uniqueIndex:idx_category_branch_name"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Products []Product `gorm:"foreignKey:CategoryID"`
}
