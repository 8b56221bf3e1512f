package models

import "time"

// Floor groups the dining tables of a branch for the floor-plan view.
type Floor struct {
	ID         uint `gorm:"primaryKey"`
	BranchID   uint `gorm:"index;not null;uniqueIndex:idx_floor_branch_name"`
	Branch     Branch
	Name       string `gorm:"size:100;not null;uniqueIndex:idx_floor_branch_name"`
	TableCount int    `gorm:"not null;default:0"`
	CreatedAt  time.Time
	UpdatedAt  time.Time

	Tables []DiningTable
}

type TableStatus string

const (
	TableAvailable TableStatus = "AVAILABLE"
	TableOccupied  TableStatus = "OCCUPIED"
	TableReserved  TableStatus = "RESERVED"
)

type DiningTable struct {
	ID        uint `gorm:"primaryKey"`
	FloorID   uint `gorm:"index;not null"`
	Floor     Floor
	Number    int         `gorm:"not null"`
	Seats     int         `gorm:"not null;default:4"`
	Status    TableStatus `gorm:"size:20;not null;default:AVAILABLE"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
