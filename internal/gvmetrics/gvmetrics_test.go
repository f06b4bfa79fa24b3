package gvmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dashpay/grovedb-sub006/cost"
)

func TestNewCollectorRegistersAndObserves(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg, "test")

	c.Observe(cost.OperationCost{
		SeekCount:     3,
		AddedBytes:    10,
		ReplacedBytes: 5,
		RemovedBytes:  cost.RemovedBytes{NormalBytes: 2, TreeBytes: 1},
	})
	c.BatchApplied()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("Gather returned no metric families after Observe")
	}
}

func TestNewCollectorDuplicateSubsystemPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg, "dup")

	defer func() {
		if recover() == nil {
			t.Fatal("expected MustRegister to panic on duplicate registration")
		}
	}()
	NewCollector(reg, "dup")
}
