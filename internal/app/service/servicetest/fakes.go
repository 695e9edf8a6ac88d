// Package servicetest provides in-memory collaborators for service tests.
package servicetest

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/fatflowers/payment-engine/internal/app/service/events"
	"github.com/fatflowers/payment-engine/internal/app/service/jobs"
	"github.com/fatflowers/payment-engine/internal/platform/provider"
	"github.com/fatflowers/payment-engine/pkg/types"

	"github.com/samber/lo"
)

// EnqueuedJob is a job captured by Queue together with its delay.
type EnqueuedJob struct {
	Job   jobs.RetryJob
	Delay time.Duration
}

type Queue struct {
	mu   sync.Mutex
	jobs []EnqueuedJob
	Err  error
}

func (q *Queue) Enqueue(_ context.Context, job jobs.RetryJob, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return q.Err
	}
	// a job still queued for the same payment and attempt is kept
	for _, j := range q.jobs {
		if j.Job == job {
			return nil
		}
	}
	q.jobs = append(q.jobs, EnqueuedJob{Job: job, Delay: delay})
	return nil
}

func (q *Queue) HasPending(_ context.Context, paymentID string, maxAttempt int) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range q.jobs {
		if j.Job.PaymentID == paymentID && j.Job.Attempt <= maxAttempt {
			return true, nil
		}
	}
	return false, nil
}

func (q *Queue) Jobs() []EnqueuedJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]EnqueuedJob(nil), q.jobs...)
}

// Pop removes and returns the oldest job.
func (q *Queue) Pop() (EnqueuedJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return EnqueuedJob{}, false
	}
	j := q.jobs[0]
	q.jobs = q.jobs[1:]
	return j, true
}

type DeadLetters struct {
	mu      sync.Mutex
	entries []jobs.DeadLetter
}

func (d *DeadLetters) Push(_ context.Context, dl jobs.DeadLetter) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if lo.ContainsBy(d.entries, func(e jobs.DeadLetter) bool { return e.PaymentID == dl.PaymentID }) {
		return nil
	}
	d.entries = append(d.entries, dl)
	return nil
}

func (d *DeadLetters) List(_ context.Context, _, _ int) ([]jobs.DeadLetter, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]jobs.DeadLetter(nil), d.entries...), nil
}

func (d *DeadLetters) Remove(_ context.Context, paymentID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	before := len(d.entries)
	d.entries = lo.Reject(d.entries, func(e jobs.DeadLetter, _ int) bool { return e.PaymentID == paymentID })
	if len(d.entries) == before {
		return jobs.ErrDeadLetterNotFound
	}
	return nil
}

func (d *DeadLetters) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// PublishedEvent is an event captured by Publisher.
type PublishedEvent struct {
	Name    string
	Payload json.RawMessage
}

type Publisher struct {
	mu     sync.Mutex
	events []PublishedEvent
	Err    error
}

func (p *Publisher) Publish(_ context.Context, name string, payload any) error {
	if p.Err != nil {
		return p.Err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, PublishedEvent{Name: name, Payload: raw})
	return nil
}

func (p *Publisher) Events() []PublishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PublishedEvent(nil), p.events...)
}

func (p *Publisher) Named(name string) []PublishedEvent {
	return lo.Filter(p.Events(), func(e PublishedEvent, _ int) bool { return e.Name == name })
}

var (
	_ jobs.Queue           = (*Queue)(nil)
	_ jobs.DeadLetterQueue = (*DeadLetters)(nil)
	_ events.Publisher     = (*Publisher)(nil)
)

// Adapter is a scriptable provider. Unset funcs succeed with fixed ids.
type Adapter struct {
	Provider       types.PaymentProvider
	ChargeFunc     func(req provider.ChargeRequest) (*provider.ChargeResult, error)
	RefundFunc     func(req provider.RefundRequest) (*provider.RefundResult, error)
	ValidSignature string
	Event          *provider.WebhookEvent
	ParseErr       error

	mu             sync.Mutex
	chargeRequests []provider.ChargeRequest
	refundRequests []provider.RefundRequest
}

var _ provider.Adapter = (*Adapter)(nil)

func (a *Adapter) Name() types.PaymentProvider { return a.Provider }

func (a *Adapter) CreateCharge(_ context.Context, req provider.ChargeRequest) (*provider.ChargeResult, error) {
	a.mu.Lock()
	a.chargeRequests = append(a.chargeRequests, req)
	a.mu.Unlock()
	if a.ChargeFunc != nil {
		return a.ChargeFunc(req)
	}
	return &provider.ChargeResult{ExternalID: "gw_order_" + req.Reference, ExternalStatus: "created"}, nil
}

func (a *Adapter) CreateRefund(_ context.Context, req provider.RefundRequest) (*provider.RefundResult, error) {
	a.mu.Lock()
	a.refundRequests = append(a.refundRequests, req)
	a.mu.Unlock()
	if a.RefundFunc != nil {
		return a.RefundFunc(req)
	}
	return &provider.RefundResult{ExternalID: "rf_1", ExternalStatus: "processed", Amount: req.Amount, Currency: req.Currency}, nil
}

func (a *Adapter) ChargeCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.chargeRequests)
}

func (a *Adapter) RefundRequests() []provider.RefundRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]provider.RefundRequest(nil), a.refundRequests...)
}

func (a *Adapter) SignatureHeader() string { return "X-Test-Signature" }

func (a *Adapter) VerifyWebhookSignature(_ []byte, signature string) bool {
	return signature != "" && signature == a.ValidSignature
}

func (a *Adapter) ParseWebhook(raw []byte, _ http.Header) (*provider.WebhookEvent, error) {
	if a.ParseErr != nil {
		return nil, a.ParseErr
	}
	if a.Event == nil {
		return &provider.WebhookEvent{EventType: "unknown", Kind: provider.WebhookIgnored, Payload: raw}, nil
	}
	ev := *a.Event
	ev.Payload = raw
	return &ev, nil
}

// OrderVerifier answers order checks with Err, or nil.
type OrderVerifier struct {
	Err   error
	Calls int
	mu    sync.Mutex
}

func (v *OrderVerifier) VerifyOrder(context.Context, string, string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Calls++
	return v.Err
}

// Guard is an in-memory delivery guard.
type Guard struct {
	mu      sync.Mutex
	claimed map[string]bool
	Err     error
}

func (g *Guard) Claim(_ context.Context, p, eventID string) (bool, error) {
	if g.Err != nil {
		return false, g.Err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.claimed == nil {
		g.claimed = map[string]bool{}
	}
	key := p + ":" + eventID
	if g.claimed[key] {
		return false, nil
	}
	g.claimed[key] = true
	return true, nil
}

func (g *Guard) Release(_ context.Context, p, eventID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.claimed, p+":"+eventID)
	return nil
}
