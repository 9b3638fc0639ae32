package models

import (
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleViewer  Role = "viewer"
)

// Capability tags that can be attached to a report. A recipient must hold
// the report's capability to receive its results.
const (
	CapabilityView    = "reports:view"
	CapabilityViewAll = "reports:viewall"
	CapabilityConfig  = "reports:config"
)

// CapabilityOptions lists the capabilities a report can require, with
// display labels.
func CapabilityOptions() map[string]string {
	return map[string]string{
		CapabilityView:    "Anyone who can view this report",
		CapabilityViewAll: "Users who can view site reports",
		CapabilityConfig:  "Users who can configure the site",
	}
}

type User struct {
	gorm.Model
	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Password string `gorm:"not null" json:"-"`
	Role     Role   `gorm:"not null" json:"role"`
	Email    string `gorm:"uniqueIndex" json:"email"`
	IsActive bool   `gorm:"default:true" json:"is_active"`
}

func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
	return err == nil
}

// HasCapability reports whether the user's role grants a capability.
func (u *User) HasCapability(capability string) bool {
	switch u.Role {
	case RoleAdmin:
		return true
	case RoleManager:
		return capability == CapabilityView || capability == CapabilityViewAll
	case RoleViewer:
		return capability == CapabilityView
	default:
		return false
	}
}
