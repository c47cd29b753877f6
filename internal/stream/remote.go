package stream

import "context"

// Remote stands in for a stream owned by the courier's device. The
// coordinator process does not read GPS hardware; the device publishes
// samples through the ingest pipeline, so Start and Stop only mark the
// server-side session. Availability gating happens in the session layer.
type Remote struct{}

func (Remote) Start(ctx context.Context, courierID string) error { return nil }
func (Remote) Stop()                                             {}
