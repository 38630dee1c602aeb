package models

import "gorm.io/gorm"

// Church represents a tenant. Every row the engine touches is scoped by ChurchID.
type Church struct {
	gorm.Model
	Name      string `gorm:"not null" json:"name"`
	Subdomain string `gorm:"uniqueIndex" json:"subdomain"`
	Timezone  string `gorm:"default:'UTC'" json:"timezone"`
	IsActive  bool   `gorm:"default:true;index" json:"is_active"`

	// Contact details used in rendered messages
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Website string `json:"website"`
}

// User represents a staff member of a church (sequence owners, admins)
type User struct {
	gorm.Model
	ChurchID uint `gorm:"not null;index" json:"church_id"`

	Email string `gorm:"not null;index" json:"email"`
	Name  string `gorm:"not null" json:"name"`
	Role  string `gorm:"default:'staff'" json:"role"` // admin, staff

	IsActive     bool `gorm:"default:true" json:"is_active"`
	TokenVersion int  `gorm:"default:1" json:"-"`

	// Relations
	Church Church `json:"-"`
}
