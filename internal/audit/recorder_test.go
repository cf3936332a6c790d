package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "orgcore/pkg/domain"
	dErrors "orgcore/pkg/domain-errors"
	"orgcore/pkg/requestcontext"
)

type RecorderSuite struct {
	suite.Suite
	store    *InMemory
	recorder *Recorder
	ctx      context.Context
	tenantID id.TenantID
	actor    id.UserID
}

func (s *RecorderSuite) SetupTest() {
	s.store = NewInMemory()
	s.recorder = NewRecorder(s.store)
	s.tenantID = id.NewTenantID()
	s.actor = id.NewUserID()
	s.ctx = requestcontext.WithActorID(context.Background(), s.actor)
}

func TestRecorderSuite(t *testing.T) {
	suite.Run(t, new(RecorderSuite))
}

type snapshot struct {
	Name string `json:"name"`
}

func (s *RecorderSuite) record(recordID string, action Action, at time.Time) Event {
	ctx := requestcontext.WithTime(s.ctx, at)
	event, err := s.recorder.Record(ctx, Entry{
		TenantID: s.tenantID,
		Entity:   EntityOrganization,
		RecordID: recordID,
		Action:   action,
		Old:      snapshot{Name: "before"},
		New:      snapshot{Name: "after"},
	})
	s.Require().NoError(err)
	return event
}

func (s *RecorderSuite) TestRecord() {
	s.Run("captures snapshots and the context actor", func() {
		event := s.record("rec-1", ActionUpdate, time.Now())
		s.Equal(s.actor, event.ActorID)

		var old snapshot
		s.Require().NoError(json.Unmarshal(event.OldValues, &old))
		s.Equal("before", old.Name)
	})

	s.Run("insert carries no old values", func() {
		event, err := s.recorder.Record(s.ctx, Entry{
			TenantID: s.tenantID,
			Entity:   EntityOrganization,
			RecordID: "rec-insert",
			Action:   ActionInsert,
			New:      snapshot{Name: "fresh"},
		})
		s.Require().NoError(err)
		s.Nil(event.OldValues)
		s.NotNil(event.NewValues)
	})

	s.Run("explicit actor overrides context", func() {
		override := id.NewUserID()
		event, err := s.recorder.Record(s.ctx, Entry{
			TenantID: s.tenantID,
			Entity:   EntityOrganization,
			RecordID: "rec-actor",
			Action:   ActionUpdate,
			ActorID:  override,
		})
		s.Require().NoError(err)
		s.Equal(override, event.ActorID)
	})

	s.Run("rejects incomplete entries", func() {
		_, err := s.recorder.Record(s.ctx, Entry{
			TenantID: s.tenantID,
			Action:   ActionInsert,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *RecorderSuite) TestHistory() {
	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		s.record("rec-hist", ActionUpdate, base.Add(time.Duration(i)*time.Minute))
	}
	s.record("rec-other", ActionUpdate, base)

	s.Run("pages newest first", func() {
		page, err := s.recorder.History(s.ctx, EntityOrganization, "rec-hist", Cursor{}, 3)
		s.Require().NoError(err)
		s.Require().Len(page.Events, 3)
		s.False(page.Next.IsZero())
		s.Equal(base.Add(4*time.Minute), page.Events[0].RecordedAt)
		s.True(page.Events[0].RecordedAt.After(page.Events[2].RecordedAt))
	})

	s.Run("cursor resumes without overlap", func() {
		first, err := s.recorder.History(s.ctx, EntityOrganization, "rec-hist", Cursor{}, 3)
		s.Require().NoError(err)
		second, err := s.recorder.History(s.ctx, EntityOrganization, "rec-hist", first.Next, 3)
		s.Require().NoError(err)
		s.Require().Len(second.Events, 2)

		seen := map[id.EventID]bool{}
		for _, event := range append(first.Events, second.Events...) {
			s.False(seen[event.ID], "event %s paged twice", event.ID)
			seen[event.ID] = true
		}
	})

	s.Run("same cursor yields the same page", func() {
		first, err := s.recorder.History(s.ctx, EntityOrganization, "rec-hist", Cursor{}, 2)
		s.Require().NoError(err)
		again, err := s.recorder.History(s.ctx, EntityOrganization, "rec-hist", Cursor{}, 2)
		s.Require().NoError(err)
		s.Equal(first.Events, again.Events)
	})

	s.Run("scoped to one record", func() {
		page, err := s.recorder.History(s.ctx, EntityOrganization, "rec-other", Cursor{}, 10)
		s.Require().NoError(err)
		s.Len(page.Events, 1)
	})
}

func (s *RecorderSuite) TestListAfter() {
	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	var events []Event
	for i := 0; i < 4; i++ {
		events = append(events, s.record("rec-stream", ActionUpdate, base.Add(time.Duration(i)*time.Second)))
	}

	s.Run("zero cursor streams everything oldest first", func() {
		got, err := s.store.ListAfter(s.ctx, Cursor{}, 10)
		s.Require().NoError(err)
		s.Require().Len(got, 4)
		s.Equal(events[0].ID, got[0].ID)
		s.Equal(events[3].ID, got[3].ID)
	})

	s.Run("cursor excludes everything up to and including itself", func() {
		cursor := Cursor{RecordedAt: events[1].RecordedAt, ID: events[1].ID}
		got, err := s.store.ListAfter(s.ctx, cursor, 10)
		s.Require().NoError(err)
		s.Require().Len(got, 2)
		s.Equal(events[2].ID, got[0].ID)
	})
}
