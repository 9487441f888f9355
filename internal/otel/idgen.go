package otel

import (
	"context"
	"encoding/binary"
	"math/rand/v2"
	"sync"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// FixedTraceIDGenerator gives every root span the same trace ID and random
// span IDs, so one capture maps to one trace chosen by the user.
type FixedTraceIDGenerator struct {
	traceID trace.TraceID

	mu  sync.Mutex
	rnd *rand.Rand
}

var _ sdktrace.IDGenerator = (*FixedTraceIDGenerator)(nil)

// NewFixedTraceIDGenerator returns a generator pinned to traceID.
func NewFixedTraceIDGenerator(traceID trace.TraceID) *FixedTraceIDGenerator {
	return &FixedTraceIDGenerator{
		traceID: traceID,
		rnd:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// NewIDs implements sdktrace.IDGenerator.
func (g *FixedTraceIDGenerator) NewIDs(ctx context.Context) (trace.TraceID, trace.SpanID) {
	return g.traceID, g.NewSpanID(ctx, g.traceID)
}

// NewSpanID implements sdktrace.IDGenerator.
func (g *FixedTraceIDGenerator) NewSpanID(context.Context, trace.TraceID) trace.SpanID {
	g.mu.Lock()
	defer g.mu.Unlock()

	var sid trace.SpanID
	for !sid.IsValid() {
		binary.BigEndian.PutUint64(sid[:], g.rnd.Uint64())
	}
	return sid
}
