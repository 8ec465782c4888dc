package entities

import (
	"time"

	"github.com/google/uuid"
)

type MeetingImage struct {
	ID uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`

	// MeetingID is nil when no eligible active session existed at
	// capture time. Once set it is never rewritten.
	MeetingID *uuid.UUID `json:"meeting_id" gorm:"type:uuid;index:idx_meeting_images_meeting"`

	Filename        string    `json:"filename" gorm:"type:varchar(255)"`
	FilePath        string    `json:"file_path" gorm:"type:varchar(500)"`
	UploadTimestamp time.Time `json:"upload_timestamp" gorm:"not null"`
	DeviceType      string    `json:"device_type" gorm:"type:varchar(20)"`
	MACAddress      string    `json:"mac_address" gorm:"column:mac_address;type:varchar(50)"`
}

func (MeetingImage) TableName() string {
	return "meeting_images"
}
