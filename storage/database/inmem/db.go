package inmemdb

import (
	"sync"

	"github.com/ekklesia-app/ekklesia/core/readiness"
)

type (
	// DB keeps every table in memory. Used by tests and local demos.
	DB struct {
		criterion *criterionTable
		record    *recordTable
		cell      *cellTable
	}

	criterionTable struct {
		sync.RWMutex
		table map[string]*readiness.Criterion
	}

	recordTable struct {
		sync.RWMutex
		table map[string]*readiness.Record // by cell ID
	}

	cellTable struct {
		sync.RWMutex
		table   map[string]*readiness.Cell
		order   []string // insertion order
		metrics map[string]readiness.CellMetrics
		errs    map[string]error
	}
)

func Open() *DB {
	return &DB{
		criterion: &criterionTable{table: make(map[string]*readiness.Criterion)},
		record:    &recordTable{table: make(map[string]*readiness.Record)},
		cell: &cellTable{
			table:   make(map[string]*readiness.Cell),
			metrics: make(map[string]readiness.CellMetrics),
			errs:    make(map[string]error),
		},
	}
}
