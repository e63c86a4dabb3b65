package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Customer maps an internal account to its payment history. Customers are
// created lazily on the first payment intent and are never deleted, only
// deactivated.
type Customer struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AccountID string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"account_id" validate:"required,min=1,max=191"`
	Email     string    `gorm:"type:varchar(200);default:null" json:"email,omitempty" validate:"omitempty,email"`
	Active    bool      `gorm:"default:true;index" json:"active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *Customer) Validate() error {
	v := validator.New()
	return v.Struct(c)
}
