package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"meetinghub/apperr"
	"meetinghub/constant"
	"meetinghub/dto"
	"meetinghub/pkg/objectstore"
	"meetinghub/repository"
	"meetinghub/service"
)

// API exposes device ingest and the meeting CRUD surface over gin.
type API struct {
	Repo       repository.MeetingRepository
	Correlator *service.SessionCorrelator
	Ingest     service.Ingest
	Store      objectstore.ObjectStore
}

func NewAPI(repo repository.MeetingRepository, correlator *service.SessionCorrelator, ingest service.Ingest, store objectstore.ObjectStore) *API {
	return &API{
		Repo:       repo,
		Correlator: correlator,
		Ingest:     ingest,
		Store:      store,
	}
}

func (h *API) Register(r *gin.Engine) {
	r.GET("/api/info", h.Info)

	r.POST("/api/ingest/audio", h.IngestAudio)
	r.POST("/api/ingest/image", h.IngestImage)
	r.POST("/api/device/command", h.DeviceCommand)

	r.POST("/api/meetings/upload", h.UploadMeeting)
	r.GET("/api/meetings", h.ListMeetings)
	r.GET("/api/meetings/:id", h.GetMeeting)
	r.GET("/api/meetings/:id/audio", h.GetMeetingAudio)
	r.GET("/api/meetings/:id/images", h.ListMeetingImages)
	r.PATCH("/api/meetings/:id", h.RenameMeeting)
	r.DELETE("/api/meetings/:id", h.DeleteMeeting)

	r.GET("/api/images", h.ListImages)
	r.GET("/api/images/:id/file", h.GetImageFile)
}

func (h *API) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "meetinghub",
	})
}

// IngestAudio receives a live chunked audio stream. The connection stays
// open for the whole recording; the session starts on the first byte
// and the file is finalized when the stream ends, however it ends.
func (h *API) IngestAudio(c *gin.Context) {
	mac := c.Query("mac")
	if mac == "" {
		writeError(c, apperr.ErrValidation, "missing mac parameter")
		return
	}

	ctx := c.Request.Context()
	meeting, err := h.Correlator.StartSession(ctx, mac, true)
	if err != nil {
		writeError(c, err, "failed to start session")
		return
	}

	// Finalization must survive the device dropping the connection,
	// which cancels the request context.
	finishCtx := context.WithoutCancel(ctx)

	stream, err := h.Ingest.BeginAudioStream(ctx, meeting.ID)
	if err != nil {
		// No spool file means no audio will ever arrive for this
		// meeting; close the session so the pipeline records the miss.
		h.Correlator.EndSession(finishCtx, mac)
		h.Correlator.AudioFinalized(finishCtx, meeting.ID)
		writeError(c, err, "failed to open audio stream")
		return
	}

	var streamErr error
	buf := make([]byte, 32*1024)
	for {
		n, readErr := c.Request.Body.Read(buf)
		if n > 0 {
			if appendErr := stream.Append(buf[:n]); appendErr != nil {
				streamErr = appendErr
				break
			}
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				streamErr = readErr
			}
			break
		}
	}

	if streamErr != nil {
		zerolog.Ctx(finishCtx).Warn().Err(streamErr).
			Str("meeting_id", meeting.ID.String()).
			Msg("audio stream interrupted")
	}

	if err := h.Ingest.EndAudioStream(finishCtx, stream); err != nil {
		writeError(c, err, "failed to finalize audio stream")
		return
	}

	c.JSON(http.StatusOK, gin.H{"meeting_id": meeting.ID})
}

func (h *API) IngestImage(c *gin.Context) {
	mac := c.Query("mac")
	if mac == "" {
		writeError(c, apperr.ErrValidation, "missing mac parameter")
		return
	}
	deviceType := c.DefaultQuery("device_type", "cam")

	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, apperr.ErrValidation, "failed to read image payload")
		return
	}

	image, err := h.Ingest.StoreImage(c.Request.Context(), mac, deviceType, data)
	if err != nil {
		writeError(c, err, "failed to store image")
		return
	}

	c.JSON(http.StatusCreated, image)
}

// DeviceCommand handles out-of-band start/stop. A stop ends the session
// even while the device's audio connection is still physically open.
func (h *API) DeviceCommand(c *gin.Context) {
	var req dto.DeviceCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.ErrValidation, "invalid command payload")
		return
	}

	ctx := c.Request.Context()
	switch constant.DeviceCommand(req.Command) {
	case constant.DeviceCommandStart:
		meeting, err := h.Correlator.StartSession(ctx, req.MACAddress, false)
		if err != nil {
			writeError(c, err, "failed to start session")
			return
		}
		c.JSON(http.StatusOK, gin.H{"meeting_id": meeting.ID, "session_active": true})
	case constant.DeviceCommandStop:
		h.Correlator.EndSession(ctx, req.MACAddress)
		c.JSON(http.StatusOK, gin.H{"session_active": false})
	default:
		writeError(c, apperr.ErrValidation, "unknown command")
	}
}

func (h *API) UploadMeeting(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		writeError(c, apperr.ErrValidation, "missing file field")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		writeError(c, apperr.ErrValidation, "failed to read upload")
		return
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	meeting, err := h.Ingest.StoreManualUpload(c.Request.Context(), fileHeader.Filename, contentType, file, fileHeader.Size)
	if err != nil {
		writeError(c, err, "failed to store upload")
		return
	}

	c.JSON(http.StatusCreated, meeting)
}

func (h *API) ListMeetings(c *gin.Context) {
	meetings, err := h.Repo.ListMeetings(c.Request.Context())
	if err != nil {
		writeError(c, err, "failed to list meetings")
		return
	}
	c.JSON(http.StatusOK, meetings)
}

func (h *API) GetMeeting(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	meeting, err := h.Repo.FindMeetingById(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "failed to get meeting")
		return
	}
	c.JSON(http.StatusOK, meeting)
}

func (h *API) GetMeetingAudio(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	meeting, err := h.Repo.FindMeetingById(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "failed to get meeting")
		return
	}
	if meeting.FilePath == "" {
		writeError(c, apperr.ErrNotFound, "meeting has no audio file")
		return
	}

	rc, err := h.Store.Get(c.Request.Context(), meeting.FilePath)
	if err != nil {
		writeError(c, err, "failed to open audio object")
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, meeting.FileSize, "audio/wav", rc, map[string]string{
		"Content-Disposition": `inline; filename="` + meeting.Filename + `"`,
	})
}

func (h *API) ListMeetingImages(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	images, err := h.Repo.ListImagesByMeeting(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "failed to list images")
		return
	}
	c.JSON(http.StatusOK, images)
}

func (h *API) ListImages(c *gin.Context) {
	images, err := h.Repo.ListImages(c.Request.Context())
	if err != nil {
		writeError(c, err, "failed to list images")
		return
	}
	c.JSON(http.StatusOK, images)
}

func (h *API) GetImageFile(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	image, err := h.Repo.FindImageById(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "failed to get image")
		return
	}

	rc, err := h.Store.Get(c.Request.Context(), image.FilePath)
	if err != nil {
		writeError(c, err, "failed to open image object")
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, -1, "image/jpeg", rc, nil)
}

func (h *API) RenameMeeting(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req dto.RenameMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.ErrValidation, "invalid rename payload")
		return
	}

	if err := h.Repo.RenameMeeting(c.Request.Context(), id, req.Filename); err != nil {
		writeError(c, err, "failed to rename meeting")
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "filename": req.Filename})
}

// DeleteMeeting removes the meeting record, its audio object and every
// image attributed to it.
func (h *API) DeleteMeeting(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	meeting, err := h.Repo.FindMeetingById(ctx, id)
	if err != nil {
		writeError(c, err, "failed to get meeting")
		return
	}

	images, err := h.Repo.ListImagesByMeeting(ctx, id)
	if err != nil {
		writeError(c, err, "failed to list images")
		return
	}
	for _, image := range images {
		if err := h.Store.Remove(ctx, image.FilePath); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("object", image.FilePath).Msg("failed to remove image object")
		}
	}
	if meeting.FilePath != "" {
		if err := h.Store.Remove(ctx, meeting.FilePath); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("object", meeting.FilePath).Msg("failed to remove audio object")
		}
	}

	if err := h.Repo.DeleteImagesByMeeting(ctx, id); err != nil {
		writeError(c, err, "failed to delete images")
		return
	}
	if err := h.Repo.DeleteMeeting(ctx, id); err != nil {
		writeError(c, err, "failed to delete meeting")
		return
	}

	h.Correlator.Forget(id)
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, apperr.ErrValidation, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func writeError(c *gin.Context, err error, message string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrStorage):
		status = http.StatusServiceUnavailable
	case errors.Is(err, apperr.ErrCapability):
		status = http.StatusBadGateway
	}

	zerolog.Ctx(c.Request.Context()).Error().Err(err).Int("status", status).Msg(message)
	c.JSON(status, gin.H{"error": message, "detail": err.Error()})
}
