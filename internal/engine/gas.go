package engine

import "math"

// GasSchedule prices a call in abstract units:
//
//	cost = Base + PerToken*tokens + PerByte*len(data)
//
// where tokens is the number of tokens the method mints or moves.
type GasSchedule struct {
	Base     int64
	PerToken int64
	PerByte  int64
}

// DefaultGasSchedule is used unless WithGasSchedule overrides it.
var DefaultGasSchedule = GasSchedule{
	Base:     1_000,
	PerToken: 10_000,
	PerByte:  1,
}

// GasMeter accumulates the cost of one call against its limit.
//
// A limit of 0 means unmetered: Charge never fails but Used still reports
// the cost so receipts carry gasRequired.
type GasMeter struct {
	schedule GasSchedule
	limit    int64
	used     int64
	method   string
}

// NewGasMeter creates a meter for a single call.
func NewGasMeter(schedule GasSchedule, method string, limit int64) *GasMeter {
	return &GasMeter{schedule: schedule, limit: limit, method: method}
}

// Charge adds units and validates against the limit.
// Returns an OUT_OF_GAS RuntimeError once the limit is exceeded.
func (m *GasMeter) Charge(units int64) error {
	m.used = addSaturating(m.used, units)
	if m.limit > 0 && m.used > m.limit {
		return NewOutOfGasError(m.method, m.used, m.limit)
	}
	return nil
}

// ChargeBase charges the fixed per-call cost.
func (m *GasMeter) ChargeBase() error {
	return m.Charge(m.schedule.Base)
}

// ChargeTokens charges for n minted or moved tokens.
func (m *GasMeter) ChargeTokens(n int64) error {
	if n <= 0 {
		return nil
	}
	if m.schedule.PerToken > 0 && n > math.MaxInt64/m.schedule.PerToken {
		return m.Charge(math.MaxInt64)
	}
	return m.Charge(m.schedule.PerToken * n)
}

// ChargeData charges for an opaque payload.
func (m *GasMeter) ChargeData(data []byte) error {
	return m.Charge(m.schedule.PerByte * int64(len(data)))
}

// Used returns the units charged so far.
func (m *GasMeter) Used() int64 {
	return m.used
}

// Limit returns the limit, 0 when unmetered.
func (m *GasMeter) Limit() int64 {
	return m.limit
}

func addSaturating(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}
