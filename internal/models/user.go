package models

type User struct {
	BaseModel
	Email        string  `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string  `json:"-" gorm:"type:text;not null"`
	FullName     string  `json:"fullName" gorm:"type:varchar(200);not null"`
	Avatar       *string `json:"avatar,omitempty" gorm:"type:text"`
	UsedStorage  int64   `json:"usedStorage" gorm:"not null;default:0"`

	Folders []Folder `json:"-" gorm:"foreignKey:OwnerID"`
	Files   []File   `json:"-" gorm:"foreignKey:OwnerID"`
}

func (User) TableName() string {
	return "users"
}
