package inmemdb

import (
	"context"

	"github.com/ekklesia-app/ekklesia/core/readiness"
)

// cellDirectory stands in for the cell management module, serving cells and their metrics.
type cellDirectory struct {
	db *cellTable
}

var (
	_ readiness.CellDirectory    = (*cellDirectory)(nil) // interface compliance check
	_ readiness.MetricsCollector = (*cellDirectory)(nil)
)

func NewCellDirectory(db *DB) *cellDirectory {
	return &cellDirectory{db: db.cell}
}

// SaveCell adds or replaces a cell.
func (dir *cellDirectory) SaveCell(cell readiness.Cell) {
	dir.db.Lock()
	defer dir.db.Unlock()
	if _, ok := dir.db.table[cell.ID]; !ok {
		dir.db.order = append(dir.db.order, cell.ID)
	}
	dir.db.table[cell.ID] = &cell
}

// SetMetrics sets the metrics served for a cell. A non-nil err is returned instead of them.
func (dir *cellDirectory) SetMetrics(cellID string, metrics readiness.CellMetrics, err error) {
	dir.db.Lock()
	defer dir.db.Unlock()
	dir.db.metrics[cellID] = metrics
	if err != nil {
		dir.db.errs[cellID] = err
	} else {
		delete(dir.db.errs, cellID)
	}
}

func (dir *cellDirectory) GetCell(_ context.Context, cellID string) (readiness.Cell, error) {
	dir.db.RLock()
	defer dir.db.RUnlock()
	if cell, ok := dir.db.table[cellID]; ok {
		return *cell, nil
	}
	return readiness.Cell{}, readiness.ErrNotFound
}

func (dir *cellDirectory) QueryCells(_ context.Context, tenantID string, scope readiness.CellScope) ([]readiness.Cell, error) {
	dir.db.RLock()
	defer dir.db.RUnlock()

	cells := make([]readiness.Cell, 0)
	for _, id := range dir.db.order {
		cell := dir.db.table[id]
		if cell.TenantID == tenantID && scope.Includes(*cell) {
			cells = append(cells, *cell)
		}
	}
	return cells, nil
}

func (dir *cellDirectory) GetCellMetrics(ctx context.Context, cellID string) (readiness.CellMetrics, error) {
	if err := ctx.Err(); err != nil {
		return readiness.CellMetrics{}, err
	}
	dir.db.RLock()
	defer dir.db.RUnlock()
	if err, ok := dir.db.errs[cellID]; ok {
		return readiness.CellMetrics{}, err
	}
	if _, ok := dir.db.table[cellID]; !ok {
		return readiness.CellMetrics{}, readiness.ErrNotFound
	}
	return dir.db.metrics[cellID], nil
}
