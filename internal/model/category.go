package model

import (
	"time"

	"gorm.io/gorm"
)

// DefaultCategoryColor is used when a category is created without a color.
const DefaultCategoryColor = "#808080"

// Category is a global tag shared by all users. Removing a category detaches
// it from its tasks and never deletes them.
type Category struct {
	ID        string `gorm:"primaryKey;size:26"`
	Name      string `gorm:"size:100;not null;uniqueIndex"`
	Color     string `gorm:"size:7;not null;default:'#808080'"`
	CreatedAt time.Time

	// TasksCount is filled only by listing queries.
	TasksCount int64 `gorm:"->;-:migration"`
}

func (c *Category) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = NewID()
	}
	if c.Color == "" {
		c.Color = DefaultCategoryColor
	}
	return nil
}
