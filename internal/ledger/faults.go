package ledger

import "sync"

// Faults is a ready-made FaultInjector for store implementations to embed.
type Faults struct {
	mu      sync.Mutex
	pending map[Step]error
}

func (f *Faults) InjectFault(step Step, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.pending, step)
		return
	}
	if f.pending == nil {
		f.pending = make(map[Step]error)
	}
	f.pending[step] = err
}

// Fire returns and clears the fault armed for step, if any.
func (f *Faults) Fire(step Step) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.pending[step]
	delete(f.pending, step)
	return err
}
