package dataset

import "context"

// Service defines dataset operations. The PostgreSQL implementation lives in
// internal/store/pg.
type Service interface {
	CreateDataset(ctx context.Context, name, description string) (Dataset, error)
	GetDataset(ctx context.Context, id int64) (Dataset, error)
	ListDatasets(ctx context.Context, filter Filter) ([]Dataset, error)
	UpdateDataset(ctx context.Context, id int64, upd Update) (Dataset, error)
	DeleteDataset(ctx context.Context, id int64) error
}
