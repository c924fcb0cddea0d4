package models

import "fmt"

// Stage is one step in the fixed production pipeline. It carries no storage
// of its own; it parameterizes stage ledger entries, jobs and pay rates.
type Stage string

const (
	StageCarving   Stage = "CARVING"
	StageCutting   Stage = "CUTTING"
	StagePainting  Stage = "PAINTING"
	StageSanding   Stage = "SANDING"
	StageFinishing Stage = "FINISHING"
	StageFinished  Stage = "FINISHED"
)

// Stages lists every pipeline stage in canonical order.
var Stages = []Stage{
	StageCarving,
	StageCutting,
	StagePainting,
	StageSanding,
	StageFinishing,
	StageFinished,
}

// stagePredecessors maps each stage to the stages new work may draw stock
// from, in resolution order. Entry stages (carving, cutting) have none.
var stagePredecessors = map[Stage][]Stage{
	StageCarving:   nil,
	StageCutting:   nil,
	StageSanding:   {StageCarving, StageCutting},
	StagePainting:  {StageSanding},
	StageFinishing: {StagePainting},
	StageFinished:  {StageFinishing},
}

// Predecessors returns the eligible source stages for the given stage in
// declared resolution order. The returned slice must not be mutated.
func (s Stage) Predecessors() []Stage {
	return stagePredecessors[s]
}

// Valid reports whether the stage belongs to the pipeline.
func (s Stage) Valid() bool {
	_, ok := stagePredecessors[s]
	return ok
}

// ParseStage validates a raw stage value.
func ParseStage(raw string) (Stage, error) {
	s := Stage(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown stage %q", raw)
	}
	return s, nil
}
