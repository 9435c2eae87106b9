package models

import "github.com/google/uuid"

// Folder rows form a per-owner parent-pointer tree. The composite unique
// index is the storage-level backstop for the duplicate-name pre-check; note
// that SQL treats NULL parent ids as distinct, so root-level duplicates are
// caught by the pre-check alone.
type Folder struct {
	BaseModel
	Name     string     `json:"name" gorm:"type:varchar(255);not null;uniqueIndex:idx_folders_owner_parent_name"`
	OwnerID  uuid.UUID  `json:"ownerID" gorm:"type:uuid;not null;index;uniqueIndex:idx_folders_owner_parent_name"`
	ParentID *uuid.UUID `json:"parentID,omitempty" gorm:"type:uuid;index;uniqueIndex:idx_folders_owner_parent_name"`

	Parent   *Folder  `json:"parent,omitempty" gorm:"foreignKey:ParentID"`
	Children []Folder `json:"children,omitempty" gorm:"foreignKey:ParentID"`
	Owner    User     `json:"owner,omitempty" gorm:"foreignKey:OwnerID;references:ID"`
	Files    []File   `json:"-" gorm:"foreignKey:FolderID"`
}

func (Folder) TableName() string {
	return "folders"
}
