package cycle

import (
	"github.com/dyluth/kiln/internal/config"
	"github.com/dyluth/kiln/internal/strategy"
)

// SharedContext is the state the three stages hand to one another. It carries
// no lock: only the stage holding the baton touches it, and each stage only
// sees it through its own view.
type SharedContext struct {
	goal       *string
	analysis   *string
	production config.ProductionData
	strategies []strategy.Record
}

// NewSharedContext returns a context with goal and analysis unset and no strategies.
func NewSharedContext(production config.ProductionData) *SharedContext {
	return &SharedContext{production: production}
}

// Snapshot is a copy of the shared context at one moment.
type Snapshot struct {
	Goal                  *string               `json:"goal"`
	HistoricalAnalysis    *string               `json:"historical_analysis"`
	CurrentProductionData config.ProductionData `json:"current_production_data"`
	PreviousStrategies    []strategy.Record     `json:"previous_strategies"`
}

// RawStrategies returns the verbatim text of each previous strategy, oldest first.
func (s Snapshot) RawStrategies() []string {
	raw := make([]string, len(s.PreviousStrategies))
	for i, r := range s.PreviousStrategies {
		raw[i] = r.Raw
	}
	return raw
}

func (c *SharedContext) snapshot() Snapshot {
	return Snapshot{
		Goal:                  copyString(c.goal),
		HistoricalAnalysis:    copyString(c.analysis),
		CurrentProductionData: c.production,
		PreviousStrategies:    append([]strategy.Record(nil), c.strategies...),
	}
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// ReadView gives read-only access to the shared context.
type ReadView struct{ c *SharedContext }

// Snapshot copies the current values.
func (v ReadView) Snapshot() Snapshot { return v.c.snapshot() }

// GoalView is the goal stage's handle: it may set the goal and the analysis.
type GoalView struct{ ReadView }

// SetGoal records the cycle's objective.
func (v GoalView) SetGoal(goal string) { v.c.goal = &goal }

// SetAnalysis records the historical analysis.
func (v GoalView) SetAnalysis(analysis string) { v.c.analysis = &analysis }

// StrategyView is the strategy stage's handle: it may only append strategies.
type StrategyView struct{ ReadView }

// AppendStrategy adds a strategy to the end of the list.
func (v StrategyView) AppendStrategy(r strategy.Record) {
	v.c.strategies = append(v.c.strategies, r)
}

// ReadView returns a read-only view.
func (c *SharedContext) ReadView() ReadView { return ReadView{c} }

// GoalView returns the goal stage's view.
func (c *SharedContext) GoalView() GoalView { return GoalView{ReadView{c}} }

// StrategyView returns the strategy stage's view.
func (c *SharedContext) StrategyView() StrategyView { return StrategyView{ReadView{c}} }
