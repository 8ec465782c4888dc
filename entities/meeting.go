package entities

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"meetinghub/constant"
)

// TranscriptWord is a single word with its offsets (seconds) inside the
// recording, as returned by the transcription capability.
type TranscriptWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// TranscriptWordList stores word timestamps as a JSON text column.
type TranscriptWordList []TranscriptWord

func (l TranscriptWordList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *TranscriptWordList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

// StringList stores a list of strings as a JSON text column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

func scanJSON(value interface{}, dest interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported column type %T", value)
	}
}

type Meeting struct {
	ID              uuid.UUID              `json:"id" gorm:"type:uuid;primary_key"`
	Filename        string                 `json:"filename" gorm:"type:varchar(255)"`
	FilePath        string                 `json:"file_path" gorm:"type:varchar(500)"`
	FileSize        int64                  `json:"file_size" gorm:"type:bigint;default:0"`
	Status          constant.MeetingStatus `json:"status" gorm:"type:varchar(50);not null;default:'processing';index:idx_meetings_status"`
	UploadTimestamp time.Time              `json:"upload_timestamp" gorm:"not null"`

	// MACAddress is nil for manually uploaded files.
	MACAddress *string `json:"mac_address" gorm:"column:mac_address;type:varchar(50);index:idx_meetings_mac"`
	DeviceType string  `json:"device_type" gorm:"type:varchar(20);default:'mic'"`

	SessionActive  bool       `json:"session_active" gorm:"index:idx_active_sessions"`
	SessionStartTs time.Time  `json:"session_start_ts"`
	SessionEndTs   *time.Time `json:"session_end_ts"`

	TranscriptText  *string            `json:"transcript_text" gorm:"type:text"`
	TranscriptWords TranscriptWordList `json:"transcript_words" gorm:"type:text"`
	Summary         *string            `json:"summary" gorm:"type:text"`
	ActionItems     StringList         `json:"action_items" gorm:"type:text"`

	// FailureReason holds the diagnostic for a failed pipeline stage,
	// kept separate so a real summary is never mistaken for one.
	FailureReason *string `json:"failure_reason" gorm:"type:text"`

	DurationSeconds *float64 `json:"duration_seconds"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Meeting) TableName() string {
	return "meetings"
}
