package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"popgrid/pkg/domain"
	"time"

	"github.com/google/uuid"
)

// PgRun is the database row shape of a pipeline run.
type PgRun struct {
	ID uuid.UUID `db:"id" goqu:"skipinsert"`

	Params    json.RawMessage `db:"params"`
	ParamsKey string          `db:"params_key"`

	Status      string          `db:"status"`
	Metadata    json.RawMessage `db:"metadata"      goqu:"skipinsert"`
	ResultRunID uuid.NullUUID   `db:"result_run_id" goqu:"skipinsert"`
	LastError   sql.NullString  `db:"last_error"    goqu:"skipinsert"`

	CreatedAt time.Time    `db:"created_at" goqu:"skipinsert"`
	UpdatedAt sql.NullTime `db:"updated_at" goqu:"skipinsert"`
}

func (p *PgRun) ToDomain() (*domain.Run, error) {
	var params domain.RunParams
	if err := json.Unmarshal(p.Params, &params); err != nil {
		return nil, fmt.Errorf("could not unmarshal run params: %w", err)
	}

	var metadata *domain.RunMetadata
	if len(p.Metadata) > 0 {
		metadata = &domain.RunMetadata{}
		if err := json.Unmarshal(p.Metadata, metadata); err != nil {
			return nil, fmt.Errorf("could not unmarshal run metadata: %w", err)
		}
	}

	var resultRunID *domain.RunID
	if p.ResultRunID.Valid {
		id := domain.RunID(p.ResultRunID.UUID)
		resultRunID = &id
	}

	return &domain.Run{
		ID:          domain.RunID(p.ID),
		Params:      params,
		ParamsKey:   p.ParamsKey,
		Status:      domain.RunStatus(p.Status),
		Metadata:    metadata,
		ResultRunID: resultRunID,
		LastError:   p.LastError.String,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt.Time,
	}, nil
}

func (p *PgRun) FromDomain(run domain.Run) error {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("could not marshal run params: %w", err)
	}

	*p = PgRun{
		ID:        uuid.UUID(run.ID),
		Params:    params,
		ParamsKey: run.ParamsKey,
		Status:    string(run.Status),
		LastError: sql.NullString{
			String: run.LastError,
			Valid:  run.LastError != "",
		},
		CreatedAt: run.CreatedAt,
		UpdatedAt: sql.NullTime{
			Time:  run.UpdatedAt,
			Valid: !run.UpdatedAt.IsZero(),
		},
	}

	return nil
}

func domainRunsToPg(runs []domain.Run) ([]PgRun, error) {
	out := make([]PgRun, len(runs))
	for i, r := range runs {
		if err := out[i].FromDomain(r); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func pgRunsToDomain(rows []PgRun) ([]domain.Run, error) {
	out := make([]domain.Run, len(rows))
	for i := range rows {
		r, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		out[i] = *r
	}

	return out, nil
}

// PgCount is the database row shape of one aggregated population count.
type PgCount struct {
	RunID uuid.UUID `db:"run_id"`

	Country    string `db:"country"`
	DistrictID string `db:"district_id"`
	District   string `db:"district"`
	Region     string `db:"region"`
	AgeGroup   string `db:"age_group"`
	Sex        string `db:"sex"`

	Population float64 `db:"population"`
	Cells      int     `db:"cells"`
}

func (p *PgCount) ToDomain() domain.AggregatedCount {
	return domain.AggregatedCount{
		Key: domain.CountKey{
			Country:    p.Country,
			DistrictID: p.DistrictID,
			AgeGroup:   p.AgeGroup,
			Sex:        p.Sex,
		},
		District: p.District,
		Region:   p.Region,
		Sum:      p.Population,
		Cells:    p.Cells,
	}
}

// PgIndicator is the database row shape of one computed indicator value.
// Undefined values are stored as NULL.
type PgIndicator struct {
	RunID uuid.UUID `db:"run_id"`

	Country    string `db:"country"`
	DistrictID string `db:"district_id"`
	District   string `db:"district"`

	Indicator string          `db:"indicator"`
	Value     sql.NullFloat64 `db:"value"`
}
