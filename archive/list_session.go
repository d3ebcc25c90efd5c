// File: archive/list_session.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package archive

import (
	"errors"

	"github.com/momentics/hioload-archive/api"
	"github.com/momentics/hioload-archive/catalog"
)

// listBatchLimit bounds descriptors sent per duty cycle so one large
// listing cannot starve other control work.
const listBatchLimit = 4

// listRecordingsSession streams catalog descriptors to one client,
// pacing itself against the client's response ring: a full ring parks
// the session until the next cycle instead of dropping descriptors.
// It runs on the conductor, which keeps the conductor the sole
// producer into the ring.
type listRecordingsSession struct {
	sessionID     int64
	client        *Client
	correlationID int64
	cat           *catalog.Catalog

	nextID    int64
	remaining int
	sent      int64
	done      bool
}

func newListRecordingsSession(sessionID int64, client *Client, correlationID int64, cat *catalog.Catalog, fromID int64, count int) *listRecordingsSession {
	return &listRecordingsSession{
		sessionID:     sessionID,
		client:        client,
		correlationID: correlationID,
		cat:           cat,
		nextID:        fromID,
		remaining:     count,
	}
}

func (s *listRecordingsSession) ID() int64 { return s.sessionID }

func (s *listRecordingsSession) DoWork() (int, error) {
	work := 0
	for work < listBatchLimit && !s.done {
		if s.remaining == 0 {
			if !s.sendTerminal(api.ResponseOK, s.sent) {
				return work, nil
			}
			work++
			continue
		}

		desc, err := s.cat.Get(s.nextID)
		if err != nil {
			if !errors.Is(err, catalog.ErrUnknownRecording) {
				return work, err
			}
			if s.sent > 0 {
				// Catalog exhausted mid listing ends it normally.
				if !s.sendTerminal(api.ResponseOK, s.sent) {
					return work, nil
				}
			} else if !s.sendTerminal(api.ResponseRecordingUnknown, s.nextID) {
				return work, nil
			}
			work++
			continue
		}

		ok := s.client.offerResponse(controlResponse{
			kind:          kindDescriptor,
			correlationID: s.correlationID,
			descriptor:    desc,
		})
		if !ok {
			return work, nil
		}
		s.sent++
		s.nextID++
		s.remaining--
		work++
	}
	return work, nil
}

func (s *listRecordingsSession) sendTerminal(code api.ResponseCode, relevantID int64) bool {
	ok := s.client.offerResponse(controlResponse{
		kind:          kindControl,
		correlationID: s.correlationID,
		code:          code,
		relevantID:    relevantID,
	})
	if ok {
		s.done = true
	}
	return ok
}

func (s *listRecordingsSession) IsDone() bool { return s.done }

func (s *listRecordingsSession) Abort() { s.done = true }

func (s *listRecordingsSession) Close() error { return nil }
