package models

import (
	"time"

	"github.com/google/uuid"
)

// File metadata. Bytes live in the object store under StorageKey. A trashed
// file (IsDeleted) is always detached from the folder tree: FolderID is NULL
// and DeletedAt records when it entered the trash.
type File struct {
	BaseModel
	Name       string     `json:"name" gorm:"type:varchar(255);not null"`
	Size       int64      `json:"size" gorm:"not null;default:0"`
	MimeType   string     `json:"mimeType" gorm:"type:varchar(255);not null"`
	StorageKey string     `json:"-" gorm:"type:text;not null"`
	OwnerID    uuid.UUID  `json:"ownerID" gorm:"type:uuid;not null;index"`
	FolderID   *uuid.UUID `json:"folderID,omitempty" gorm:"type:uuid;index"`
	IsDeleted  bool       `json:"isDeleted" gorm:"not null;default:false;index"`
	DeletedAt  *time.Time `json:"deletedAt,omitempty"`

	Folder *Folder `json:"folder,omitempty" gorm:"foreignKey:FolderID"`
	Owner  User    `json:"owner,omitempty" gorm:"foreignKey:OwnerID;references:ID"`
}

func (File) TableName() string {
	return "files"
}
