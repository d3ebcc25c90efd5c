// File: archive/conductor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package archive

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/momentics/hioload-archive/api"
	"github.com/momentics/hioload-archive/catalog"
	"github.com/momentics/hioload-archive/driver"
	"github.com/momentics/hioload-archive/internal/concurrency"
	"github.com/momentics/hioload-archive/segment"
	"github.com/momentics/hioload-archive/worker"
)

// conductorCommandLimit bounds commands handled per duty cycle.
const conductorCommandLimit = 8

// recordingSubscription tracks one channel:stream being recorded and
// the sessions spawned from its images.
type recordingSubscription struct {
	originalChannel string
	strippedChannel string
	streamID        int32
	sub             *driver.Subscription
	sessions        []*RecordingSession
}

// Conductor owns the control plane: it drains client commands, watches
// recording subscriptions for new images, hands sessions to the
// recorder and replayer and runs the listing sessions itself. It is
// the sole producer into every client response ring.
type Conductor struct {
	*worker.SessionWorker[api.Session]
	ctx      *Context
	cat      *catalog.Catalog
	drv      *driver.Driver
	recorder *Recorder
	replayer *Replayer
	events   *eventsFeed
	commands *commandQueue
	logger   *slog.Logger

	recSubs       map[string]*recordingSubscription
	nextSessionID int64
}

func newConductor(ctx *Context, cat *catalog.Catalog, recorder *Recorder, replayer *Replayer, events *eventsFeed) *Conductor {
	c := &Conductor{
		SessionWorker: worker.New[api.Session]("archive-conductor", ctx.ErrorHandler),
		ctx:           ctx,
		cat:           cat,
		drv:           ctx.Driver,
		recorder:      recorder,
		replayer:      replayer,
		events:        events,
		commands:      newCommandQueue(),
		logger:        ctx.Logger,
		recSubs:       map[string]*recordingSubscription{},
	}
	c.PreWork = c.preWork
	c.PostSessionsClose = c.releaseSubscriptions
	return c
}

func (c *Conductor) newClient() *Client {
	return &Client{
		commands:  c.commands,
		responses: concurrency.NewRingBuffer[controlResponse](uint64(c.ctx.ControlResponseRingCapacity)),
	}
}

func (c *Conductor) preWork() int {
	work := c.commands.drain(conductorCommandLimit, c.dispatch)
	work += c.pollRecordingSubscriptions()
	return work
}

func (c *Conductor) releaseSubscriptions() {
	c.commands.close()
	for _, rs := range c.recSubs {
		rs.sub.Close()
	}
	c.recSubs = map[string]*recordingSubscription{}
}

func (c *Conductor) dispatch(cmd command) {
	c.ctx.Metrics.ControlRequests.Inc()
	switch cmd.op {
	case opStartRecording:
		c.onStartRecording(cmd)
	case opStopRecording:
		c.onStopRecording(cmd)
	case opListRecordings:
		c.onListRecordings(cmd)
	case opReplay:
		c.onReplay(cmd)
	}
}

func recordingKey(strippedChannel string, streamID int32) string {
	return fmt.Sprintf("%s:%d", strippedChannel, streamID)
}

func (c *Conductor) onStartRecording(cmd command) {
	u, err := driver.ParseChannelURI(cmd.channel)
	if err != nil || u.Scheme != driver.Scheme {
		c.respondError(cmd, api.NewError(api.ErrCodeInvalidChannel, "cannot record channel %q", cmd.channel))
		return
	}
	stripped := u.Stripped()
	key := recordingKey(stripped, cmd.streamID)
	if _, ok := c.recSubs[key]; ok {
		c.respondError(cmd, api.NewError(api.ErrCodeRecordingActive, "recording already started for %s stream %d", stripped, cmd.streamID))
		return
	}

	sub, err := c.drv.AddSubscription(cmd.channel, cmd.streamID)
	if err != nil {
		c.respondError(cmd, api.NewError(api.ErrCodeInvalidChannel, "subscribe %q: %v", cmd.channel, err))
		return
	}
	c.recSubs[key] = &recordingSubscription{
		originalChannel: cmd.channel,
		strippedChannel: stripped,
		streamID:        cmd.streamID,
		sub:             sub,
	}
	c.logger.Info("recording subscription added",
		"channel", cmd.channel, "streamId", cmd.streamID, "sourceLocation", cmd.sourceLocation.String())
	c.respondOK(cmd, 0)
}

func (c *Conductor) onStopRecording(cmd command) {
	u, err := driver.ParseChannelURI(cmd.channel)
	if err != nil {
		c.respondError(cmd, api.NewError(api.ErrCodeInvalidChannel, "cannot parse channel %q", cmd.channel))
		return
	}
	key := recordingKey(u.Stripped(), cmd.streamID)
	rs, ok := c.recSubs[key]
	if !ok {
		c.respondError(cmd, api.NewError(api.ErrCodeGeneric, "no recording in progress for %s stream %d", u.Stripped(), cmd.streamID))
		return
	}

	// Sessions drain what the stream already published, then finalize
	// on the recorder cycle. Closing the subscription only releases
	// images never handed to a session.
	for _, session := range rs.sessions {
		session.RequestStop()
	}
	rs.sub.Close()
	delete(c.recSubs, key)
	c.logger.Info("recording subscription removed",
		"channel", rs.originalChannel, "streamId", rs.streamID, "sessions", len(rs.sessions))
	c.respondOK(cmd, int64(len(rs.sessions)))
}

func (c *Conductor) onListRecordings(cmd command) {
	if cmd.count <= 0 {
		c.respondError(cmd, api.NewError(api.ErrCodeGeneric, "invalid list count %d", cmd.count))
		return
	}
	c.nextSessionID++
	c.AddSession(newListRecordingsSession(c.nextSessionID, cmd.client, cmd.correlationID, c.cat, cmd.fromID, cmd.count))
}

func (c *Conductor) onReplay(cmd command) {
	desc, err := c.cat.Get(cmd.recordingID)
	if err != nil {
		c.respondError(cmd, api.NewError(api.ErrCodeRecordingUnknown, "unknown recording %d", cmd.recordingID))
		return
	}
	if cmd.length <= 0 {
		c.respondError(cmd, api.NewError(api.ErrCodeReplayRange, "invalid replay length %d", cmd.length))
		return
	}
	recorded, _, err := c.cat.RecordingExtent(cmd.recordingID)
	if err != nil {
		c.respondError(cmd, api.NewError(api.ErrCodeRecordingUnknown, "unknown recording %d", cmd.recordingID))
		return
	}

	from := cmd.position
	if from == api.NullPosition {
		from = desc.StartPosition
	}
	if from < desc.StartPosition || from > recorded || from%segment.FrameAlignment != 0 {
		c.respondError(cmd, api.NewError(api.ErrCodeReplayRange,
			"replay position %d outside recorded range [%d, %d]", from, desc.StartPosition, recorded))
		return
	}
	limit := int64(math.MaxInt64)
	if cmd.length < limit-from {
		limit = from + cmd.length
	}

	pub, err := c.drv.AddPublicationAt(cmd.replayChannel, cmd.replayStreamID,
		desc.InitialTermID, desc.TermBufferLength, desc.MTULength, from)
	if err != nil {
		c.respondError(cmd, api.NewError(api.ErrCodeInvalidChannel, "replay publication %q: %v", cmd.replayChannel, err))
		return
	}
	reader, err := segment.NewReader(c.ctx.ArchiveDir, cmd.recordingID,
		desc.StartPosition, desc.TermBufferLength, desc.SegmentFileLength, from)
	if err != nil {
		pub.Close()
		c.respondError(cmd, api.NewError(api.ErrCodeStorage, "open recording %d storage: %v", cmd.recordingID, err))
		return
	}

	c.nextSessionID++
	replayID := c.nextSessionID
	session := newReplaySession(replayID, cmd.recordingID, reader, pub, c.cat, c.ctx.Metrics,
		c.ctx.EpochClock, c.ctx.EpochClock()+c.ctx.ConnectTimeout.Milliseconds(),
		c.ctx.ReplayFragmentLimit, from, limit)
	if !c.replayer.addSession(session) {
		reader.Close()
		pub.Close()
		c.respondError(cmd, api.NewError(api.ErrCodeGeneric, "replayer at capacity"))
		return
	}
	c.ctx.Metrics.ReplaysStarted.Inc()
	c.logger.Info("replay started",
		"replaySessionId", replayID, "recordingId", cmd.recordingID,
		"position", from, "length", cmd.length,
		"channel", cmd.replayChannel, "streamId", cmd.replayStreamID)
	c.respondOK(cmd, replayID)
}

// pollRecordingSubscriptions starts a recording session per new image
// and prunes the finished ones from stop bookkeeping.
func (c *Conductor) pollRecordingSubscriptions() int {
	work := 0
	for _, rs := range c.recSubs {
		work += rs.sub.PollNewImages(func(img *driver.Image) {
			c.startRecordingSession(rs, img)
		})
		live := rs.sessions[:0]
		for _, session := range rs.sessions {
			if !session.IsDone() {
				live = append(live, session)
			}
		}
		for i := len(live); i < len(rs.sessions); i++ {
			rs.sessions[i] = nil
		}
		rs.sessions = live
	}
	return work
}

func (c *Conductor) startRecordingSession(rs *recordingSubscription, img *driver.Image) {
	termLength := img.TermBufferLength()
	desc := api.RecordingDescriptor{
		StartPosition:     img.JoinPosition(),
		InitialTermID:     img.InitialTermID(),
		SegmentFileLength: segmentLengthFor(c.ctx.SegmentFileLength, termLength),
		TermBufferLength:  termLength,
		MTULength:         img.MTULength(),
		SessionID:         img.SessionID(),
		StreamID:          rs.streamID,
		StrippedChannel:   rs.strippedChannel,
		OriginalChannel:   rs.originalChannel,
		SourceIdentity:    img.SourceIdentity(),
	}
	recordingID, err := c.cat.Create(&desc)
	if err != nil {
		c.ctx.ErrorHandler(fmt.Errorf("conductor: catalog create for %s: %w", rs.strippedChannel, err))
		img.Close()
		return
	}
	writer, err := segment.NewWriter(c.ctx.ArchiveDir, recordingID,
		desc.StartPosition, termLength, desc.SegmentFileLength, c.ctx.FileSyncLevel)
	if err != nil {
		c.ctx.ErrorHandler(fmt.Errorf("conductor: open storage for recording %d: %w", recordingID, err))
		if stopErr := c.cat.RecordingStopped(recordingID, desc.StartPosition); stopErr != nil {
			c.ctx.ErrorHandler(fmt.Errorf("conductor: settle recording %d: %w", recordingID, stopErr))
		}
		img.Close()
		return
	}

	session := newRecordingSession(recordingID, desc, img, writer, c.cat,
		c.events, c.ctx.Metrics, c.ctx.RecordBlockLength)
	if !c.recorder.addSession(session) {
		c.ctx.ErrorHandler(fmt.Errorf("conductor: recorder at capacity, dropping recording %d", recordingID))
		img.Close()
		if closeErr := writer.Close(); closeErr != nil {
			c.ctx.ErrorHandler(fmt.Errorf("conductor: close storage for recording %d: %w", recordingID, closeErr))
		}
		if stopErr := c.cat.RecordingStopped(recordingID, desc.StartPosition); stopErr != nil {
			c.ctx.ErrorHandler(fmt.Errorf("conductor: settle recording %d: %w", recordingID, stopErr))
		}
		return
	}
	rs.sessions = append(rs.sessions, session)
	c.ctx.Metrics.RecordingsStarted.Inc()
	c.logger.Info("recording started",
		"recordingId", recordingID, "channel", rs.originalChannel,
		"streamId", rs.streamID, "sessionId", desc.SessionID,
		"startPosition", desc.StartPosition)
}

func (c *Conductor) respondOK(cmd command, relevantID int64) {
	c.offerToClient(cmd.client, controlResponse{
		kind:          kindControl,
		correlationID: cmd.correlationID,
		code:          api.ResponseOK,
		relevantID:    relevantID,
	})
}

func (c *Conductor) respondError(cmd command, aerr *api.Error) {
	c.logger.Debug("control request rejected",
		"correlationId", cmd.correlationID, "code", aerr.Code.String(), "error", aerr.Message)
	c.offerToClient(cmd.client, controlResponse{
		kind:          kindControl,
		correlationID: cmd.correlationID,
		code:          api.ResponseError,
		relevantID:    int64(aerr.Code),
		message:       aerr.Message,
	})
}

// offerToClient attempts delivery once. Command responses are not
// retried: a client that lets its ring fill loses responses, counted
// by the dropped metric. Listing sessions pace themselves instead.
func (c *Conductor) offerToClient(client *Client, r controlResponse) {
	if !client.offerResponse(r) {
		c.ctx.Metrics.ResponsesDropped.Inc()
		c.logger.Warn("control response dropped", "correlationId", r.correlationID)
	}
}
