package dto

import "github.com/google/uuid"

// ProcessMessage asks the pipeline workers to run transcription and
// summarization for one meeting.
type ProcessMessage struct {
	MeetingID uuid.UUID `json:"meetingId"`
}

type DeviceCommandRequest struct {
	MACAddress string `json:"mac" binding:"required"`
	Command    string `json:"command" binding:"required"`
}

type RenameMeetingRequest struct {
	Filename string `json:"filename" binding:"required"`
}
