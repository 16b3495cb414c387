package conflict

// Type classifies the nature of a detected conflict between two claims.
// Tie-break priority when signal strengths are equal follows the order
// these constants are declared.
type Type string

const (
	TypeDirectNegation     Type = "direct_negation"
	TypeValueConflict      Type = "value_conflict"
	TypeTemporalConflict   Type = "temporal_conflict"
	TypeScopeConflict      Type = "scope_conflict"
	TypeImplicationConflict Type = "implication_conflict"
)

// tieBreakOrder ranks types from highest to lowest priority when two
// signals report the same strength.
var tieBreakOrder = map[Type]int{
	TypeDirectNegation:      0,
	TypeValueConflict:       1,
	TypeTemporalConflict:    2,
	TypeScopeConflict:       3,
	TypeImplicationConflict: 4,
}

// Conflict is one detected contradiction between two claims.
type Conflict struct {
	Type     Type
	Strength float64
	ClaimA   string
	ClaimB   string
	Evidence []string
}
