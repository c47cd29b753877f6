package dispatch

import (
	"context"
	"log/slog"

	"github.com/example/delivery-coordinator/internal/models"
)

// Transport delivers one notification to one recipient.
type Transport interface {
	Notify(ctx context.Context, recipientID, title, body string, payload any) error
}

type statusCopy struct {
	title string
	body  string
}

// copyByStatus maps a committed target status to the requester-facing
// message.
var copyByStatus = map[models.JobStatus]statusCopy{
	models.StatusAccepted:   {"Corrida aceita", "Um motoboy aceitou sua corrida"},
	models.StatusCollected:  {"Item coletado", "Seu pedido foi coletado e está a caminho"},
	models.StatusInProgress: {"Em entrega", "Sua entrega está a caminho do destino"},
	models.StatusCompleted:  {"Entrega concluída", "Sua entrega foi finalizada com sucesso"},
	models.StatusCancelled:  {"Corrida cancelada", "A corrida foi cancelada"},
}

// StatusNotifier tells the parties about committed transitions. The
// requester hears about every courier-driven change; the assigned courier
// additionally hears about cancellations.
type StatusNotifier struct {
	transport Transport
	logger    *slog.Logger
}

func NewStatusNotifier(transport Transport, logger *slog.Logger) *StatusNotifier {
	return &StatusNotifier{transport: transport, logger: logger}
}

func (n *StatusNotifier) JobCreated(ctx context.Context, job models.Job) {}

func (n *StatusNotifier) JobTransitioned(ctx context.Context, job models.Job) {
	c, ok := copyByStatus[job.Status]
	if !ok {
		return
	}
	n.notify(ctx, job.RequesterID, c, job)
	if job.Status == models.StatusCancelled && job.CourierID != "" {
		n.notify(ctx, job.CourierID, c, job)
	}
}

func (n *StatusNotifier) notify(ctx context.Context, recipientID string, c statusCopy, job models.Job) {
	if err := n.transport.Notify(ctx, recipientID, c.title, c.body, job); err != nil {
		n.logger.Warn("status notification failed",
			"job_id", job.ID,
			"recipient_id", recipientID,
			"status", string(job.Status),
			"err", err,
		)
	}
}

// JobObserver is a component interested in committed lifecycle changes.
type JobObserver interface {
	JobCreated(ctx context.Context, job models.Job)
	JobTransitioned(ctx context.Context, job models.Job)
}

// Fanout multiplexes lifecycle changes to several observers.
type Fanout []JobObserver

func (f Fanout) JobCreated(ctx context.Context, job models.Job) {
	for _, o := range f {
		o.JobCreated(ctx, job)
	}
}

func (f Fanout) JobTransitioned(ctx context.Context, job models.Job) {
	for _, o := range f {
		o.JobTransitioned(ctx, job)
	}
}
