package specification

import (
	"gorm.io/gorm"
)

// ByNumericID filters by an auto-increment primary key.
// Documents use numeric ids so the frontend can toggle them cheaply.
type ByNumericID struct {
	ID uint
}

func (s ByNumericID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("id = ?", s.ID)
}

// ByNumericIDs filters by a list of auto-increment primary keys
type ByNumericIDs struct {
	IDs []uint
}

func (s ByNumericIDs) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("id IN ?", s.IDs)
}

// ByName filters documents by exact name match
type ByName struct {
	Name string
}

func (s ByName) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("name = ?", s.Name)
}
