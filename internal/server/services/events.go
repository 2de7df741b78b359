package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/dmitrijs2005/dlogr/internal/common"
	"github.com/dmitrijs2005/dlogr/internal/logging"
	"github.com/dmitrijs2005/dlogr/internal/server/config"
	"github.com/dmitrijs2005/dlogr/internal/server/models"
	"github.com/dmitrijs2005/dlogr/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/dlogr/internal/server/validation"
	"github.com/google/uuid"
)

// EventInput is the writable part of an event. Nil fields were not sent.
// Metadata is nil when absent and the JSON literal null when cleared.
type EventInput struct {
	ObjectID        *string
	ObjectType      *string
	HumanIdentifier *string
	Message         *string
	Timestamp       *time.Time
	Metadata        json.RawMessage
}

// EventService gives an account access to its own events only.
type EventService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	validator   *validation.Validator
	logger      logging.Logger

	pageSize    int
	maxPageSize int

	now func() time.Time
}

func NewEventService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) *EventService {
	return &EventService{
		db:          db,
		repomanager: m,
		validator:   validation.New(),
		logger:      logger.With("module", "events"),
		pageSize:    cfg.PageSize,
		maxPageSize: cfg.MaxPageSize,
		now:         time.Now,
	}
}

// missing reports required fields absent from a full write.
func (in EventInput) missing() *validation.Error {
	verr := &validation.Error{}
	if in.ObjectID == nil {
		verr.Add("object_id", validation.MsgRequired)
	}
	if in.ObjectType == nil {
		verr.Add("object_type", validation.MsgRequired)
	}
	if in.HumanIdentifier == nil {
		verr.Add("human_identifier", validation.MsgRequired)
	}
	if in.Message == nil {
		verr.Add("message", validation.MsgRequired)
	}
	if in.Timestamp == nil {
		verr.Add("timestamp", validation.MsgRequired)
	}
	return verr
}

// apply copies the supplied fields onto e. Absent fields keep their value,
// full updates included; an explicit null clears the metadata.
func (in EventInput) apply(e *models.Event) {
	if in.ObjectID != nil {
		e.ObjectID = *in.ObjectID
	}
	if in.ObjectType != nil {
		e.ObjectType = *in.ObjectType
	}
	if in.HumanIdentifier != nil {
		e.HumanIdentifier = *in.HumanIdentifier
	}
	if in.Message != nil {
		e.Message = *in.Message
	}
	if in.Timestamp != nil {
		e.Timestamp = *in.Timestamp
	}

	switch {
	case in.Metadata == nil:
	case string(in.Metadata) == "null":
		e.Metadata = nil
	default:
		e.Metadata = in.Metadata
	}
}

// validate runs the gate on e and merges its findings into verr. Fields
// already reported as missing keep that single message.
func (s *EventService) validate(e *models.Event, verr *validation.Error) error {
	if err := s.validator.Struct(e); err != nil {
		ve, ok := validation.AsError(err)
		if !ok {
			return err
		}
		for field, msgs := range ve.Fields {
			if _, seen := verr.Fields[field]; seen {
				continue
			}
			for _, m := range msgs {
				verr.Add(field, m)
			}
		}
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// Create stores a new event owned by caller. Ownership never comes from input.
func (s *EventService) Create(ctx context.Context, caller *models.Account, in EventInput) (*models.Event, error) {
	e := &models.Event{}
	in.apply(e)

	if err := s.validate(e, in.missing()); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	e.ID = uuid.NewString()
	e.AccountID = caller.ID
	e.Created = now
	e.Modified = now

	if err := s.repomanager.Events(s.db).Create(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Get returns one of caller's events. Foreign and unknown ids are not found.
func (s *EventService) Get(ctx context.Context, caller *models.Account, id string) (*models.Event, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, common.ErrorNotFound
	}
	return s.repomanager.Events(s.db).Get(ctx, caller.ID, id)
}

// Update replaces (partial=false) or patches (partial=true) one of caller's
// events. Both re-validate the merged event.
func (s *EventService) Update(ctx context.Context, caller *models.Account, id string, in EventInput, partial bool) (*models.Event, error) {
	e, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	verr := &validation.Error{}
	if !partial {
		verr = in.missing()
	}
	in.apply(e)

	if err := s.validate(e, verr); err != nil {
		return nil, err
	}

	e.AccountID = caller.ID
	e.Modified = s.now().UTC()
	if err := s.repomanager.Events(s.db).Update(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *EventService) Delete(ctx context.Context, caller *models.Account, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return common.ErrorNotFound
	}
	return s.repomanager.Events(s.db).Delete(ctx, caller.ID, id)
}

// clamp applies the page size defaults and bounds.
func (s *EventService) clamp(f models.EventFilter) models.EventFilter {
	if f.Limit <= 0 {
		f.Limit = s.pageSize
	}
	if s.maxPageSize > 0 && f.Limit > s.maxPageSize {
		f.Limit = s.maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// List returns one page of caller's events and the filtered total.
func (s *EventService) List(ctx context.Context, caller *models.Account, f models.EventFilter) (*models.EventPage, models.EventFilter, error) {
	f = s.clamp(f)
	page, err := s.repomanager.Events(s.db).List(ctx, caller.ID, f)
	if err != nil {
		return nil, f, err
	}
	return page, f, nil
}
