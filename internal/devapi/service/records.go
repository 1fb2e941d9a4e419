package service

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/pmboard/internal/devapi/domain"
	"github.com/aussiebroadwan/pmboard/internal/devapi/store"
	"github.com/aussiebroadwan/pmboard/pkg/idx"
)

// Fields owned by the server; clients cannot set them.
var reservedFields = []string{"id", "created_by", "created_at", "updated_at"}

// RecordService is generic CRUD over the dashboard resources. It does not
// model business rules.
type RecordService struct {
	Store store.Store
}

func (s *RecordService) List(ctx context.Context, resource string, filter store.Filter) ([]domain.Record, error) {
	if !domain.IsResource(resource) {
		return nil, ErrUnknownResource
	}
	recs, err := s.Store.Records().ListRecords(ctx, resource, filter)
	if errors.Is(err, store.ErrInvalidFilter) {
		return nil, ErrInvalidPayload
	}
	return recs, err
}

func (s *RecordService) Get(ctx context.Context, resource, id string) (domain.Record, error) {
	if !domain.IsResource(resource) {
		return domain.Record{}, ErrUnknownResource
	}
	rec, err := s.Store.Records().GetRecord(ctx, resource, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Record{}, ErrNotFound
	}
	return rec, err
}

func (s *RecordService) Create(ctx context.Context, resource, userID string, data map[string]any) (domain.Record, error) {
	if !domain.IsResource(resource) {
		return domain.Record{}, ErrUnknownResource
	}
	if data == nil {
		return domain.Record{}, ErrInvalidPayload
	}

	now := time.Now()
	rec := domain.Record{
		ID:        idx.NewAt(now).String(),
		Resource:  resource,
		Data:      stripReserved(data),
		CreatedBy: userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.Records().CreateRecord(ctx, rec); err != nil {
		return domain.Record{}, err
	}
	return rec, nil
}

// Update replaces the payload of an existing record.
func (s *RecordService) Update(ctx context.Context, resource, id string, data map[string]any) (domain.Record, error) {
	if !domain.IsResource(resource) {
		return domain.Record{}, ErrUnknownResource
	}
	if data == nil {
		return domain.Record{}, ErrInvalidPayload
	}

	var out domain.Record
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		rec, err := tx.Records().GetRecord(ctx, resource, id)
		if err != nil {
			return err
		}
		rec.Data = stripReserved(data)
		rec.UpdatedAt = time.Now()
		if err := tx.Records().UpdateRecord(ctx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return domain.Record{}, ErrNotFound
	}
	return out, err
}

func (s *RecordService) Delete(ctx context.Context, resource, id string) error {
	if !domain.IsResource(resource) {
		return ErrUnknownResource
	}
	err := s.Store.Records().DeleteRecord(ctx, resource, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func stripReserved(data map[string]any) map[string]any {
	for _, k := range reservedFields {
		delete(data, k)
	}
	return data
}
