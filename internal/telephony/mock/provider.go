package mock

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/acme/lead-call-scheduler/internal/config"
	"github.com/acme/lead-call-scheduler/internal/queue"
	"github.com/acme/lead-call-scheduler/internal/telephony"
)

// Provider simulates the outbound calling vendor.
type Provider struct {
	successRate float64
	timeout     time.Duration

	mu  sync.Mutex
	rng *rand.Rand
	seq int
}

// NewProvider constructs a mock provider with deterministic randomness.
func NewProvider(cfg config.CallBridgeConfig) *Provider {
	seed := time.Now().UnixNano()
	return &Provider{
		successRate: 0.9,
		timeout:     cfg.RequestTimeout,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// PlaceCall simulates dialing one number.
func (p *Provider) PlaceCall(ctx context.Context, req telephony.PlaceCallRequest) (telephony.PlaceCallResult, error) {
	if err := p.simulateLatency(ctx); err != nil {
		return telephony.PlaceCallResult{}, err
	}
	if !p.roll() {
		return telephony.PlaceCallResult{}, fmt.Errorf("mock provider: line busy dialing %s", req.ToNumber)
	}
	return telephony.PlaceCallResult{VendorCallID: p.nextID("call")}, nil
}

// GetCallDetails simulates fetching an analyzed call.
func (p *Provider) GetCallDetails(ctx context.Context, vendorCallID string) (telephony.CallDetails, error) {
	if err := p.simulateLatency(ctx); err != nil {
		return telephony.CallDetails{}, err
	}
	return telephony.CallDetails{
		Status: "completed",
		Analysis: &queue.AnalysisPayload{
			Summary:   "simulated call",
			Sentiment: "Neutral",
		},
		DurationMs: int64(p.intn(180_000)),
	}, nil
}

// CreateBatch simulates submitting a dial batch.
func (p *Provider) CreateBatch(ctx context.Context, req telephony.CreateBatchRequest) (telephony.CreateBatchResult, error) {
	if err := p.simulateLatency(ctx); err != nil {
		return telephony.CreateBatchResult{}, err
	}
	if len(req.Tasks) == 0 {
		return telephony.CreateBatchResult{}, fmt.Errorf("mock provider: empty batch")
	}
	return telephony.CreateBatchResult{VendorBatchID: p.nextID("batch")}, nil
}

func (p *Provider) simulateLatency(ctx context.Context) error {
	delay := time.Duration(50+p.intn(200)) * time.Millisecond
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func (p *Provider) roll() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64() <= p.successRate
}

func (p *Provider) intn(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Intn(n)
}

func (p *Provider) nextID(kind string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	return fmt.Sprintf("mock_%s_%d_%06d", kind, time.Now().UnixNano(), p.seq)
}
