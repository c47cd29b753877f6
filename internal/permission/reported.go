package permission

import (
	"context"
	"sync"
)

// ReportedProvider adapts device-reported permission state to the Provider
// interface for server-side session coordination. The device runs the
// actual OS prompt and reports the outcome; Check and Request both read the
// latest report.
type ReportedProvider struct {
	mu    sync.Mutex
	state State
}

func NewReportedProvider() *ReportedProvider {
	return &ReportedProvider{state: StateUnknown}
}

// Set records the latest device-reported state.
func (p *ReportedProvider) Set(st State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = st
}

func (p *ReportedProvider) CheckPermission(ctx context.Context) (State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, nil
}

func (p *ReportedProvider) RequestPermission(ctx context.Context) (State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, nil
}
