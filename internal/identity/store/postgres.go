package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/lib/pq"

	"github.com/breederhq/identity/internal/identity/models"
	id "github.com/breederhq/identity/pkg/domain"
)

// Postgres persists the identity graph in PostgreSQL. Schema lives in
// migrations/001_identity.sql.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed identity store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) CreateIdentity(ctx context.Context, identity *models.GlobalAnimalIdentity) error {
	query := `
		INSERT INTO global_animal_identities (species, sex, birth_date, name, dam_id, sire_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := s.db.QueryRowContext(ctx, query,
		identity.Species,
		string(identity.Sex),
		nullTime(identity.BirthDate),
		identity.Name,
		nullIdentityID(identity.DamID),
		nullIdentityID(identity.SireID),
	).Scan(&identity.ID, &identity.CreatedAt)
	if err != nil {
		return fmt.Errorf("create identity: %w", err)
	}
	return nil
}

func (s *Postgres) FindIdentity(ctx context.Context, identityID id.IdentityID) (*models.GlobalAnimalIdentity, error) {
	query := `
		SELECT id, species, sex, birth_date, name, dam_id, sire_id, created_at
		FROM global_animal_identities
		WHERE id = $1
	`
	identity, err := scanIdentity(s.db.QueryRowContext(ctx, query, identityID.Int64()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find identity: %w", err)
	}
	return identity, nil
}

func (s *Postgres) SearchIdentities(ctx context.Context, search IdentitySearch) ([]*models.GlobalAnimalIdentity, error) {
	// Sex filters only on a known conflict; unknown on either side passes.
	query := `
		SELECT id, species, sex, birth_date, name, dam_id, sire_id, created_at
		FROM global_animal_identities
		WHERE lower(species) = lower($1)
		  AND (sex = '' OR $2 = '' OR sex = $2)
		  AND birth_date IS NOT NULL
		  AND birth_date BETWEEN $3 AND $4
		ORDER BY id
		LIMIT $5
	`
	rows, err := s.db.QueryContext(ctx, query,
		search.Species,
		string(search.Sex),
		search.BornAfter,
		search.BornBefore,
		search.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search identities: %w", err)
	}
	defer rows.Close()

	var out []*models.GlobalAnimalIdentity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("search identities: %w", err)
		}
		out = append(out, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search identities: %w", err)
	}
	return out, nil
}

func (s *Postgres) CreateIdentifier(ctx context.Context, identifier *models.GlobalAnimalIdentifier) error {
	// Skip-if-duplicate on (identity_id, type, value).
	query := `
		INSERT INTO global_animal_identifiers (identity_id, type, value, raw_value, source_tenant_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (identity_id, type, value) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		identifier.IdentityID.Int64(),
		string(identifier.Type),
		identifier.Value,
		identifier.RawValue,
		identifier.SourceTenantID.String(),
	)
	if err != nil {
		return fmt.Errorf("create identifier: %w", err)
	}
	return nil
}

func (s *Postgres) FindIdentifiers(ctx context.Context, identifierType models.IdentifierType, value string) ([]*models.GlobalAnimalIdentifier, error) {
	query := `
		SELECT identity_id, type, value, raw_value, source_tenant_id, created_at
		FROM global_animal_identifiers
		WHERE type = $1 AND value = $2
		ORDER BY identity_id
	`
	rows, err := s.db.QueryContext(ctx, query, string(identifierType), value)
	if err != nil {
		return nil, fmt.Errorf("find identifiers: %w", err)
	}
	defer rows.Close()

	var out []*models.GlobalAnimalIdentifier
	for rows.Next() {
		var (
			identifier models.GlobalAnimalIdentifier
			tenantID   string
		)
		if err := rows.Scan(
			&identifier.IdentityID,
			&identifier.Type,
			&identifier.Value,
			&identifier.RawValue,
			&tenantID,
			&identifier.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("find identifiers: %w", err)
		}
		parsed, err := id.ParseTenantID(tenantID)
		if err != nil {
			return nil, fmt.Errorf("find identifiers: parse tenant id: %w", err)
		}
		identifier.SourceTenantID = parsed
		out = append(out, &identifier)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find identifiers: %w", err)
	}
	return out, nil
}

func (s *Postgres) UpsertLink(ctx context.Context, link *models.AnimalIdentityLink) error {
	query := `
		INSERT INTO animal_identity_links
			(animal_id, identity_id, confidence, matched_on, auto_matched, confirmed_at, confirmed_by_user)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (animal_id) DO UPDATE SET
			identity_id       = EXCLUDED.identity_id,
			confidence        = EXCLUDED.confidence,
			matched_on        = EXCLUDED.matched_on,
			auto_matched      = EXCLUDED.auto_matched,
			confirmed_at      = EXCLUDED.confirmed_at,
			confirmed_by_user = EXCLUDED.confirmed_by_user,
			updated_at        = now()
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		link.AnimalID.Int64(),
		link.IdentityID.Int64(),
		link.Confidence,
		pq.Array(link.MatchedOn),
		link.AutoMatched,
		nullTime(link.ConfirmedAt),
		link.ConfirmedByUser,
	).Scan(&link.CreatedAt, &link.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert link: %w", err)
	}
	return nil
}

func (s *Postgres) FindLinkByAnimal(ctx context.Context, animalID id.AnimalID) (*models.AnimalIdentityLink, error) {
	query := `
		SELECT animal_id, identity_id, confidence, matched_on, auto_matched,
		       confirmed_at, confirmed_by_user, created_at, updated_at
		FROM animal_identity_links
		WHERE animal_id = $1
	`
	var (
		link        models.AnimalIdentityLink
		matchedOn   pq.StringArray
		confirmedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, animalID.Int64()).Scan(
		&link.AnimalID,
		&link.IdentityID,
		&link.Confidence,
		&matchedOn,
		&link.AutoMatched,
		&confirmedAt,
		&link.ConfirmedByUser,
		&link.CreatedAt,
		&link.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find link: %w", err)
	}
	link.MatchedOn = []string(matchedOn)
	if confirmedAt.Valid {
		link.ConfirmedAt = &confirmedAt.Time
	}
	return &link, nil
}

func (s *Postgres) ListLinkedAnimals(ctx context.Context, identityID id.IdentityID) ([]*models.LocalAnimalRecord, error) {
	query := `
		SELECT a.id, a.tenant_id, a.name, a.species, a.sex, a.birth_date,
		       a.breed, a.dam_id, a.sire_id, a.microchip, a.show_name, a.show_full_dob
		FROM animal_identity_links l
		JOIN animals a ON a.id = l.animal_id
		WHERE l.identity_id = $1
		ORDER BY a.id
	`
	rows, err := s.db.QueryContext(ctx, query, identityID.Int64())
	if err != nil {
		return nil, fmt.Errorf("list linked animals: %w", err)
	}
	defer rows.Close()

	var out []*models.LocalAnimalRecord
	for rows.Next() {
		var (
			animal    models.LocalAnimalRecord
			tenantID  string
			birthDate sql.NullTime
			damID     sql.NullInt64
			sireID    sql.NullInt64
		)
		if err := rows.Scan(
			&animal.ID,
			&tenantID,
			&animal.Name,
			&animal.Species,
			&animal.Sex,
			&birthDate,
			&animal.Breed,
			&damID,
			&sireID,
			&animal.Microchip,
			&animal.Privacy.ShowName,
			&animal.Privacy.ShowFullDOB,
		); err != nil {
			return nil, fmt.Errorf("list linked animals: %w", err)
		}
		parsed, err := id.ParseTenantID(tenantID)
		if err != nil {
			return nil, fmt.Errorf("list linked animals: parse tenant id: %w", err)
		}
		animal.TenantID = parsed
		if birthDate.Valid {
			animal.BirthDate = &birthDate.Time
		}
		if damID.Valid {
			dam := id.AnimalID(damID.Int64)
			animal.DamID = &dam
		}
		if sireID.Valid {
			sire := id.AnimalID(sireID.Int64)
			animal.SireID = &sire
		}
		out = append(out, &animal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list linked animals: %w", err)
	}
	return out, nil
}

// SaveAnimal upserts a row into the animals read model. Production rows come
// from the tenant subsystem's write path; integration tests seed through this.
func (s *Postgres) SaveAnimal(ctx context.Context, animal *models.LocalAnimalRecord) error {
	query := `
		INSERT INTO animals
			(id, tenant_id, name, species, sex, birth_date, breed, dam_id, sire_id, microchip, show_name, show_full_dob)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name          = EXCLUDED.name,
			species       = EXCLUDED.species,
			sex           = EXCLUDED.sex,
			birth_date    = EXCLUDED.birth_date,
			breed         = EXCLUDED.breed,
			dam_id        = EXCLUDED.dam_id,
			sire_id       = EXCLUDED.sire_id,
			microchip     = EXCLUDED.microchip,
			show_name     = EXCLUDED.show_name,
			show_full_dob = EXCLUDED.show_full_dob
	`
	_, err := s.db.ExecContext(ctx, query,
		animal.ID.Int64(),
		animal.TenantID.String(),
		animal.Name,
		animal.Species,
		string(animal.Sex),
		nullTime(animal.BirthDate),
		animal.Breed,
		nullAnimalID(animal.DamID),
		nullAnimalID(animal.SireID),
		animal.Microchip,
		animal.Privacy.ShowName,
		animal.Privacy.ShowFullDOB,
	)
	if err != nil {
		return fmt.Errorf("save animal: %w", err)
	}
	return nil
}

// WithCreateGuard runs fn inside a transaction holding a session advisory
// lock derived from key. Two concurrent first-time matches of the same
// not-yet-known animal serialize here instead of creating duplicate
// identities.
func (s *Postgres) WithCreateGuard(ctx context.Context, key string, fn func(context.Context) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create guard: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, guardLockID(key)); err != nil {
		return fmt.Errorf("acquire create guard: %w", err)
	}

	if err := fn(ctx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create guard: %w", err)
	}
	return nil
}

// guardLockID folds a guard key into the 64-bit advisory lock keyspace.
func guardLockID(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}

func scanIdentity(row interface{ Scan(...any) error }) (*models.GlobalAnimalIdentity, error) {
	var (
		identity  models.GlobalAnimalIdentity
		birthDate sql.NullTime
		damID     sql.NullInt64
		sireID    sql.NullInt64
	)
	if err := row.Scan(
		&identity.ID,
		&identity.Species,
		&identity.Sex,
		&birthDate,
		&identity.Name,
		&damID,
		&sireID,
		&identity.CreatedAt,
	); err != nil {
		return nil, err
	}
	if birthDate.Valid {
		identity.BirthDate = &birthDate.Time
	}
	if damID.Valid {
		dam := id.IdentityID(damID.Int64)
		identity.DamID = &dam
	}
	if sireID.Valid {
		sire := id.IdentityID(sireID.Int64)
		identity.SireID = &sire
	}
	return &identity, nil
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *value, Valid: true}
}

func nullIdentityID(value *id.IdentityID) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: value.Int64(), Valid: true}
}

func nullAnimalID(value *id.AnimalID) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: value.Int64(), Valid: true}
}
