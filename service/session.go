package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"meetinghub/constant"
	"meetinghub/dto"
	"meetinghub/entities"
	"meetinghub/pkg/rabbitmq"
	"meetinghub/repository"
)

// ActiveSession is a currently recording session as seen by the image
// attribution strategy.
type ActiveSession struct {
	MeetingID  uuid.UUID
	MACAddress string
	StartTs    time.Time
}

// AttributionStrategy resolves which active session, if any, owns an
// image captured at now. A nil result leaves the image unassigned.
type AttributionStrategy func(candidates []ActiveSession, now time.Time) *uuid.UUID

// MostRecentActive attributes an image to the active session with the
// latest start across all devices, unless that session started more
// than staleness ago. Cameras do not share a MAC with the microphone,
// so this is a heuristic: with several simultaneous meetings from
// different device groups it can pick the wrong one.
func MostRecentActive(staleness time.Duration) AttributionStrategy {
	return func(candidates []ActiveSession, now time.Time) *uuid.UUID {
		var best *ActiveSession
		for i := range candidates {
			if best == nil || candidates[i].StartTs.After(best.StartTs) {
				best = &candidates[i]
			}
		}
		if best == nil || now.Sub(best.StartTs) > staleness {
			return nil
		}
		id := best.MeetingID
		return &id
	}
}

// sessionState tracks one meeting from first audio byte until its
// processing dispatch. The pipeline fires exactly once, when the
// session has ended and the audio file is finalized; sessions opened by
// a device command carry no stream, so ending them is enough.
type sessionState struct {
	meetingID  uuid.UUID
	mac        string
	startTs    time.Time
	hasStream  bool
	ended      bool
	audioReady bool
	dispatched bool
}

// SessionCorrelator owns the MAC to active-meeting mapping. Devices
// carry no session id, so every transition is keyed by MAC and arrival
// time alone. One mutex serializes all state mutations; the expected
// device count is small and no external call happens under the lock
// beyond meeting-store writes.
type SessionCorrelator struct {
	repo    repository.MeetingRepository
	queue   rabbitmq.Publisher
	resolve AttributionStrategy

	mu        sync.Mutex
	byMAC     map[string]*sessionState
	byMeeting map[uuid.UUID]*sessionState
}

func NewSessionCorrelator(repo repository.MeetingRepository, queue rabbitmq.Publisher, staleness time.Duration, strategy AttributionStrategy) *SessionCorrelator {
	if strategy == nil {
		strategy = MostRecentActive(staleness)
	}
	return &SessionCorrelator{
		repo:      repo,
		queue:     queue,
		resolve:   strategy,
		byMAC:     make(map[string]*sessionState),
		byMeeting: make(map[uuid.UUID]*sessionState),
	}
}

// Recover rebuilds the in-memory mapping from meetings left active in
// the store, so a restart does not orphan running sessions.
func (c *SessionCorrelator) Recover(ctx context.Context) error {
	meetings, err := c.repo.ListActiveSessions(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range meetings {
		if m.MACAddress == nil {
			continue
		}
		// A file path means the stream was finalized before the restart;
		// without one the stream died with the old process and there is
		// nothing left to wait for.
		st := &sessionState{
			meetingID:  m.ID,
			mac:        *m.MACAddress,
			startTs:    m.SessionStartTs,
			hasStream:  m.FilePath != "",
			audioReady: m.FilePath != "",
		}
		c.byMAC[st.mac] = st
		c.byMeeting[st.meetingID] = st
	}
	if len(meetings) > 0 {
		zerolog.Ctx(ctx).Info().Int("sessions", len(meetings)).Msg("recovered active sessions")
	}
	return nil
}

// StartSession opens a new meeting for the MAC. A prior active meeting
// for the same MAC is implicitly ended first (device reconnect policy):
// at no point do two meetings for one MAC record simultaneously.
// withAudio marks sessions opened by an actual audio stream, as opposed
// to a bare start command.
func (c *SessionCorrelator) StartSession(ctx context.Context, mac string, withAudio bool) (*entities.Meeting, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prior, ok := c.byMAC[mac]; ok {
		zerolog.Ctx(ctx).Warn().
			Str("mac", mac).
			Str("meeting_id", prior.meetingID.String()).
			Msg("new stream for MAC with active session, force-ending prior meeting")
		c.endLocked(ctx, prior)
	}

	now := time.Now().UTC()
	meeting := &entities.Meeting{
		ID:              uuid.New(),
		Filename:        sessionFilename(mac, now),
		Status:          constant.MeetingStatusProcessing,
		UploadTimestamp: now,
		MACAddress:      &mac,
		DeviceType:      "mic",
		SessionActive:   true,
		SessionStartTs:  now,
	}
	if err := c.repo.CreateMeeting(ctx, meeting); err != nil {
		return nil, err
	}

	st := &sessionState{
		meetingID: meeting.ID,
		mac:       mac,
		startTs:   now,
		hasStream: withAudio,
	}
	c.byMAC[mac] = st
	c.byMeeting[meeting.ID] = st

	zerolog.Ctx(ctx).Info().
		Str("mac", mac).
		Str("meeting_id", meeting.ID.String()).
		Msg("session started")
	return meeting, nil
}

// EndSession closes the active session for the MAC. Unknown or already
// ended MACs are a no-op, not an error.
func (c *SessionCorrelator) EndSession(ctx context.Context, mac string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.byMAC[mac]
	if !ok {
		zerolog.Ctx(ctx).Debug().Str("mac", mac).Msg("end-session for MAC with no active session, ignoring")
		return
	}
	c.endLocked(ctx, st)
}

// AudioFinalized reports that the meeting's audio file is complete and
// uploaded. Called by ingest whenever a device stream terminates, for
// any reason.
func (c *SessionCorrelator) AudioFinalized(ctx context.Context, meetingID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.byMeeting[meetingID]
	if !ok {
		return
	}
	st.audioReady = true
	c.maybeDispatchLocked(ctx, st)
}

// ResolveImageOwner picks the meeting an incoming image belongs to, or
// nil for unassigned.
func (c *SessionCorrelator) ResolveImageOwner(now time.Time) *uuid.UUID {
	c.mu.Lock()
	candidates := make([]ActiveSession, 0, len(c.byMAC))
	for _, st := range c.byMAC {
		candidates = append(candidates, ActiveSession{
			MeetingID:  st.meetingID,
			MACAddress: st.mac,
			StartTs:    st.startTs,
		})
	}
	c.mu.Unlock()

	return c.resolve(candidates, now)
}

// Forget drops all correlator state for a deleted meeting.
func (c *SessionCorrelator) Forget(meetingID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.byMeeting[meetingID]
	if !ok {
		return
	}
	delete(c.byMeeting, meetingID)
	if cur, ok := c.byMAC[st.mac]; ok && cur.meetingID == meetingID {
		delete(c.byMAC, st.mac)
	}
}

func (c *SessionCorrelator) endLocked(ctx context.Context, st *sessionState) {
	if st.ended {
		return
	}
	st.ended = true
	delete(c.byMAC, st.mac)

	if err := c.repo.EndSession(ctx, st.meetingID, time.Now().UTC()); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).
			Str("meeting_id", st.meetingID.String()).
			Msg("failed to mark session ended")
	}
	zerolog.Ctx(ctx).Info().
		Str("mac", st.mac).
		Str("meeting_id", st.meetingID.String()).
		Msg("session ended")

	c.maybeDispatchLocked(ctx, st)
}

func (c *SessionCorrelator) maybeDispatchLocked(ctx context.Context, st *sessionState) {
	ready := st.audioReady || !st.hasStream
	if !st.ended || !ready || st.dispatched {
		return
	}
	st.dispatched = true
	delete(c.byMeeting, st.meetingID)

	if err := c.queue.PublishProcess(ctx, dto.ProcessMessage{MeetingID: st.meetingID}); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).
			Str("meeting_id", st.meetingID.String()).
			Msg("failed to publish processing message")
		return
	}
	zerolog.Ctx(ctx).Info().
		Str("meeting_id", st.meetingID.String()).
		Msg("processing dispatched")
}

func sessionFilename(mac string, ts time.Time) string {
	cleaned := strings.NewReplacer(":", "", "-", "").Replace(mac)
	return fmt.Sprintf("session_%s_%s.wav", cleaned, ts.Format("20060102_150405"))
}
