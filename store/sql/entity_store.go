package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ingress/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// maxUpsertAttempts bounds retries after losing an insert race.
const maxUpsertAttempts = 3

type EntityStore struct {
	db   *bun.DB
	repo repository.Repository[*entityRecord]
	Now  func() time.Time
}

func NewEntityStore(db *bun.DB) (*EntityStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*entityRecord](db, entityHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid entity repository wiring: %w", err)
		}
	}
	return &EntityStore{db: db, repo: repo}, nil
}

// Upsert finds the row for key and updates it, or inserts a new one. A
// unique violation means a concurrent insert won; the next attempt finds
// that row and merges into it, so the id stays stable.
func (s *EntityStore) Upsert(ctx context.Context, key core.EntityKey, fields map[string]any) (core.StoredEntity, error) {
	if s == nil || s.db == nil {
		return core.StoredEntity{}, fmt.Errorf("sqlstore: entity store is not configured")
	}
	key = key.Normalize()
	if err := key.Validate(); err != nil {
		return core.StoredEntity{}, core.BadInputError(err.Error(), entityMetadata(key))
	}

	var stored *entityRecord
	var err error
	for attempt := 1; attempt <= maxUpsertAttempts; attempt++ {
		stored, err = s.upsertOnce(ctx, key, fields)
		if err == nil {
			return stored.toDomain(), nil
		}
		if !isUniqueViolation(err) {
			break
		}
	}
	return core.StoredEntity{}, core.WrapError(err, goerrors.CategoryOperation,
		"sqlstore: upsert entity failed", core.ErrorPersistenceFailed, entityMetadata(key))
}

func (s *EntityStore) upsertOnce(ctx context.Context, key core.EntityKey, fields map[string]any) (*entityRecord, error) {
	var out *entityRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := s.now()
		existing := &entityRecord{}
		err := tx.NewSelect().
			Model(existing).
			Where("?TableAlias.tenant_id = ?", key.TenantID).
			Where("?TableAlias.collection = ?", key.Collection).
			Where("?TableAlias.external_id = ?", key.ExternalID).
			Limit(1).
			Scan(ctx)
		switch {
		case err == nil:
			existing.merge(fields, now)
			if _, err := tx.NewUpdate().
				Model(existing).
				Column("provider_id", "fields", "updated_at").
				Where("id = ?", existing.ID).
				Exec(ctx); err != nil {
				return err
			}
			out = existing
			return nil
		case errors.Is(err, sql.ErrNoRows):
			record := newEntityRecord(uuid.NewString(), key, fields, now)
			if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
				return err
			}
			out = record
			return nil
		default:
			return err
		}
	})
	return out, err
}

func (s *EntityStore) Find(ctx context.Context, key core.EntityKey) (core.StoredEntity, bool, error) {
	if s == nil || s.repo == nil {
		return core.StoredEntity{}, false, fmt.Errorf("sqlstore: entity store is not configured")
	}
	key = key.Normalize()
	if err := key.Validate(); err != nil {
		return core.StoredEntity{}, false, core.BadInputError(err.Error(), entityMetadata(key))
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("tenant_id", "=", key.TenantID),
		repository.SelectBy("collection", "=", key.Collection),
		repository.SelectBy("external_id", "=", key.ExternalID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.StoredEntity{}, false, err
	}
	if len(records) == 0 {
		return core.StoredEntity{}, false, nil
	}
	return records[0].toDomain(), true, nil
}

// Get loads an entity by its internal id.
func (s *EntityStore) Get(ctx context.Context, id string) (core.StoredEntity, error) {
	if s == nil || s.repo == nil {
		return core.StoredEntity{}, fmt.Errorf("sqlstore: entity store is not configured")
	}
	record, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return core.StoredEntity{}, err
	}
	return record.toDomain(), nil
}

// List returns the tenant's entities in a collection, oldest first.
func (s *EntityStore) List(ctx context.Context, tenantID, collection string, limit int) ([]core.StoredEntity, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: entity store is not configured")
	}
	if limit <= 0 {
		limit = 100
	}
	key := core.EntityKey{TenantID: tenantID, Collection: collection}.Normalize()
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("tenant_id", "=", key.TenantID),
		repository.SelectBy("collection", "=", key.Collection),
		repository.OrderBy("created_at ASC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.StoredEntity, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// Delete is a hard delete; a missing row is not an error.
func (s *EntityStore) Delete(ctx context.Context, key core.EntityKey) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: entity store is not configured")
	}
	key = key.Normalize()
	if err := key.Validate(); err != nil {
		return core.BadInputError(err.Error(), entityMetadata(key))
	}
	_, err := s.db.NewDelete().
		Model((*entityRecord)(nil)).
		Where("tenant_id = ?", key.TenantID).
		Where("collection = ?", key.Collection).
		Where("external_id = ?", key.ExternalID).
		Exec(ctx)
	if err != nil {
		return core.WrapError(err, goerrors.CategoryOperation,
			"sqlstore: delete entity failed", core.ErrorPersistenceFailed, entityMetadata(key))
	}
	return nil
}

func (s *EntityStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func entityMetadata(key core.EntityKey) map[string]any {
	return map[string]any{
		"tenant_id":   key.TenantID,
		"collection":  key.Collection,
		"external_id": key.ExternalID,
	}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
