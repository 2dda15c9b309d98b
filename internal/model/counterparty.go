package model

// Counterparty is a partner that lines can be reconciled against.
type Counterparty struct {
	ID             string
	Name           string
	RememberedHint string
	// HintDiverged is set once two validated lines disagreed on the hint.
	// The remembered hint then stays empty for good.
	HintDiverged bool
}
