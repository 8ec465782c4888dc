package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"meetinghub/apperr"
	"meetinghub/constant"
	"meetinghub/entities"
)

type MeetingRepository interface {
	Migrate(ctx context.Context) error

	CreateMeeting(ctx context.Context, meeting *entities.Meeting) error
	FindMeetingById(ctx context.Context, id uuid.UUID) (*entities.Meeting, error)
	ListMeetings(ctx context.Context) ([]*entities.Meeting, error)
	ListActiveSessions(ctx context.Context) ([]*entities.Meeting, error)
	RenameMeeting(ctx context.Context, id uuid.UUID, filename string) error
	DeleteMeeting(ctx context.Context, id uuid.UUID) error

	// EndSession clears session_active and stamps session_end_ts. Ending
	// an already ended session is a no-op.
	EndSession(ctx context.Context, id uuid.UUID, endedAt time.Time) error
	SetMeetingFile(ctx context.Context, id uuid.UUID, path string, size int64, durationSeconds *float64) error

	// Pipeline writes. All of these are conditional updates keyed by id:
	// a meeting deleted while processing was in flight makes them silent
	// no-ops, not errors.
	SetTranscript(ctx context.Context, id uuid.UUID, text string, words []entities.TranscriptWord) error
	CompleteMeeting(ctx context.Context, id uuid.UUID, summary string, actionItems []string) error
	FailMeeting(ctx context.Context, id uuid.UUID, diagnostic string, intoSummary bool) error

	CreateImage(ctx context.Context, image *entities.MeetingImage) error
	FindImageById(ctx context.Context, id uuid.UUID) (*entities.MeetingImage, error)
	ListImages(ctx context.Context) ([]*entities.MeetingImage, error)
	ListImagesByMeeting(ctx context.Context, meetingID uuid.UUID) ([]*entities.MeetingImage, error)
	DeleteImagesByMeeting(ctx context.Context, meetingID uuid.UUID) error
}

type repo struct {
	db *gorm.DB
}

func NewRepo(db *sql.DB) MeetingRepository {
	gormDB, _ := gorm.Open(postgres.New(postgres.Config{
		Conn: db}),
		&gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		},
	)
	return &repo{
		db: gormDB,
	}
}

// NewWithDatabase wraps an already opened gorm database. Tests use this
// with the sqlite driver.
func NewWithDatabase(db *gorm.DB) MeetingRepository {
	return &repo{db: db}
}

func (r *repo) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&entities.Meeting{}, &entities.MeetingImage{})
}

func (r *repo) CreateMeeting(ctx context.Context, meeting *entities.Meeting) error {
	if err := r.db.WithContext(ctx).Create(meeting).Error; err != nil {
		return fmt.Errorf("%w: create meeting: %v", apperr.ErrStorage, err)
	}
	return nil
}

func (r *repo) FindMeetingById(ctx context.Context, id uuid.UUID) (*entities.Meeting, error) {
	meeting := &entities.Meeting{}
	err := r.db.WithContext(ctx).First(meeting, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: meeting %s", apperr.ErrNotFound, id)
		}
		return nil, err
	}
	return meeting, nil
}

func (r *repo) ListMeetings(ctx context.Context) ([]*entities.Meeting, error) {
	var meetings []*entities.Meeting
	err := r.db.WithContext(ctx).Order("upload_timestamp DESC").Find(&meetings).Error
	if err != nil {
		return nil, err
	}
	return meetings, nil
}

func (r *repo) ListActiveSessions(ctx context.Context) ([]*entities.Meeting, error) {
	var meetings []*entities.Meeting
	err := r.db.WithContext(ctx).
		Where("session_active = ?", true).
		Order("session_start_ts ASC").
		Find(&meetings).Error
	if err != nil {
		return nil, err
	}
	return meetings, nil
}

func (r *repo) RenameMeeting(ctx context.Context, id uuid.UUID, filename string) error {
	res := r.db.WithContext(ctx).Model(&entities.Meeting{}).
		Where("id = ?", id).
		Update("filename", filename)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: meeting %s", apperr.ErrNotFound, id)
	}
	return nil
}

func (r *repo) DeleteMeeting(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&entities.Meeting{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: meeting %s", apperr.ErrNotFound, id)
	}
	return nil
}

func (r *repo) EndSession(ctx context.Context, id uuid.UUID, endedAt time.Time) error {
	return r.db.WithContext(ctx).Model(&entities.Meeting{}).
		Where("id = ? AND session_active = ?", id, true).
		Updates(map[string]interface{}{
			"session_active": false,
			"session_end_ts": endedAt,
		}).Error
}

func (r *repo) SetMeetingFile(ctx context.Context, id uuid.UUID, path string, size int64, durationSeconds *float64) error {
	updates := map[string]interface{}{
		"file_path": path,
		"file_size": size,
	}
	if durationSeconds != nil {
		updates["duration_seconds"] = *durationSeconds
	}
	return r.db.WithContext(ctx).Model(&entities.Meeting{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repo) SetTranscript(ctx context.Context, id uuid.UUID, text string, words []entities.TranscriptWord) error {
	return r.db.WithContext(ctx).Model(&entities.Meeting{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"transcript_text":  text,
			"transcript_words": entities.TranscriptWordList(words),
		}).Error
}

func (r *repo) CompleteMeeting(ctx context.Context, id uuid.UUID, summary string, actionItems []string) error {
	return r.db.WithContext(ctx).Model(&entities.Meeting{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"summary":      summary,
			"action_items": entities.StringList(actionItems),
			"status":       constant.MeetingStatusCompleted,
		}).Error
}

func (r *repo) FailMeeting(ctx context.Context, id uuid.UUID, diagnostic string, intoSummary bool) error {
	updates := map[string]interface{}{
		"status":         constant.MeetingStatusFailed,
		"failure_reason": diagnostic,
	}
	if intoSummary {
		updates["summary"] = diagnostic
	}
	return r.db.WithContext(ctx).Model(&entities.Meeting{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repo) CreateImage(ctx context.Context, image *entities.MeetingImage) error {
	if err := r.db.WithContext(ctx).Create(image).Error; err != nil {
		return fmt.Errorf("%w: create image: %v", apperr.ErrStorage, err)
	}
	return nil
}

func (r *repo) FindImageById(ctx context.Context, id uuid.UUID) (*entities.MeetingImage, error) {
	image := &entities.MeetingImage{}
	err := r.db.WithContext(ctx).First(image, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: image %s", apperr.ErrNotFound, id)
		}
		return nil, err
	}
	return image, nil
}

func (r *repo) ListImages(ctx context.Context) ([]*entities.MeetingImage, error) {
	var images []*entities.MeetingImage
	err := r.db.WithContext(ctx).Order("upload_timestamp DESC").Find(&images).Error
	if err != nil {
		return nil, err
	}
	return images, nil
}

func (r *repo) ListImagesByMeeting(ctx context.Context, meetingID uuid.UUID) ([]*entities.MeetingImage, error) {
	var images []*entities.MeetingImage
	err := r.db.WithContext(ctx).
		Where("meeting_id = ?", meetingID).
		Order("upload_timestamp ASC").
		Find(&images).Error
	if err != nil {
		return nil, err
	}
	return images, nil
}

func (r *repo) DeleteImagesByMeeting(ctx context.Context, meetingID uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&entities.MeetingImage{}, "meeting_id = ?", meetingID).Error
}
