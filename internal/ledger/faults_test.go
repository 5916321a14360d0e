package ledger

import (
	"errors"
	"testing"
)

func TestFaultsFireOnce(t *testing.T) {
	var f Faults
	if err := f.Fire(StepDayHistory); err != nil {
		t.Fatalf("unexpected fault %v", err)
	}

	boom := errors.New("boom")
	f.InjectFault(StepDayHistory, boom)
	if err := f.Fire(StepMonthHistory); err != nil {
		t.Fatalf("fault fired on wrong step: %v", err)
	}
	if err := f.Fire(StepDayHistory); err != boom {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := f.Fire(StepDayHistory); err != nil {
		t.Fatalf("fault must fire once, got %v", err)
	}

	f.InjectFault(StepInsertTransaction, boom)
	f.InjectFault(StepInsertTransaction, nil)
	if err := f.Fire(StepInsertTransaction); err != nil {
		t.Fatalf("cleared fault fired: %v", err)
	}
}
