package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/payflowhq/payflow/app/models"
)

// customerRepository implements the CustomerRepository interface
type customerRepository struct {
	db *gorm.DB
}

// NewCustomerRepository creates a new customer repository instance
func NewCustomerRepository(db *gorm.DB) CustomerRepository {
	return &customerRepository{db: db}
}

func (r *customerRepository) Create(customer *models.Customer) error {
	if err := customer.Validate(); err != nil {
		return err
	}
	return r.db.Create(customer).Error
}

func (r *customerRepository) GetByID(id uint) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.First(&customer, id).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *customerRepository) GetByAccountID(accountID string) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.Where("account_id = ?", accountID).First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

// GetOrCreateByAccountID lazily creates the customer on first payment. The
// conflict clause makes racing creators converge on one row.
func (r *customerRepository) GetOrCreateByAccountID(accountID, email string) (*models.Customer, error) {
	customer := &models.Customer{
		AccountID: accountID,
		Email:     email,
		Active:    true,
	}
	if err := customer.Validate(); err != nil {
		return nil, err
	}
	if err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}},
		DoNothing: true,
	}).Create(customer).Error; err != nil {
		return nil, err
	}
	var stored models.Customer
	if err := r.db.Where("account_id = ?", accountID).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *customerRepository) Deactivate(id uint) error {
	return r.db.Model(&models.Customer{}).Where("id = ?", id).Update("active", false).Error
}

func (r *customerRepository) Update(customer *models.Customer) error {
	return r.db.Save(customer).Error
}
