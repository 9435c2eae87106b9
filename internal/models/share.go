package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GrantStatus string

const (
	GrantStatusPending  GrantStatus = "pending"
	GrantStatusAccepted GrantStatus = "accepted"
	// GrantStatusRejected is terminal. Rejected rows are kept for audit but
	// are excluded from every read path, so externally a rejected grant is
	// indistinguishable from one that never existed.
	GrantStatusRejected GrantStatus = "rejected"
)

// PublicLink is an unauthenticated, token-addressable grant: anyone holding
// the token may view and download the file. At most one active link exists
// per (file, owner); creation is idempotent against the active one.
type PublicLink struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	FileID    uuid.UUID `json:"fileID" gorm:"type:uuid;not null;index"`
	OwnerID   uuid.UUID `json:"ownerID" gorm:"type:uuid;not null;index"`
	Token     string    `json:"token" gorm:"type:varchar(64);uniqueIndex;not null"`
	IsActive  bool      `json:"isActive" gorm:"not null;default:true"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null"`

	File  File `json:"file,omitempty" gorm:"foreignKey:FileID;references:ID"`
	Owner User `json:"owner,omitempty" gorm:"foreignKey:OwnerID;references:ID"`
}

func (p *PublicLink) BeforeCreate(_ *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (PublicLink) TableName() string {
	return "public_links"
}

// DirectGrant is an addressed share request: the recipient must accept it
// before the file shows up among their received shares. One live (pending or
// accepted) grant row exists per (file, owner, recipient) at a time; the
// partial unique index installed by the database package is the backstop for
// the duplicate-grant pre-check. Rejected rows do not block a fresh share.
type DirectGrant struct {
	ID          uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey"`
	FileID      uuid.UUID   `json:"fileID" gorm:"type:uuid;not null;index"`
	OwnerID     uuid.UUID   `json:"ownerID" gorm:"type:uuid;not null"`
	RecipientID uuid.UUID   `json:"recipientID" gorm:"type:uuid;not null;index"`
	Token       string      `json:"token" gorm:"type:varchar(64);uniqueIndex;not null"`
	Status      GrantStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	CreatedAt   time.Time   `json:"createdAt" gorm:"not null"`

	File      File `json:"file,omitempty" gorm:"foreignKey:FileID;references:ID"`
	Owner     User `json:"owner,omitempty" gorm:"foreignKey:OwnerID;references:ID"`
	Recipient User `json:"recipient,omitempty" gorm:"foreignKey:RecipientID;references:ID"`
}

func (g *DirectGrant) BeforeCreate(_ *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

func (DirectGrant) TableName() string {
	return "direct_grants"
}
