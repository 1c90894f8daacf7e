package model

// GateResult is the aggregate pass/fail signal derived from the terminal
// statuses of the required job set. It is computed on demand, never stored,
// and is the only input release logic may depend on.
type GateResult struct {
	Success  bool
	Blocking []GateReason
}

// GateReason records why one required job blocked the gate.
type GateReason struct {
	Job    string
	Reason string
}
