package runstate

import "github.com/ashita-ai/auditfront/internal/model"

// RatioProgress returns done/total clamped to [0,1]. A non-positive total,
// or more done than the total allows, means the total is not actually known.
func RatioProgress(done, total int) model.Progress {
	if total <= 0 || done > total {
		return model.Indeterminate
	}
	if done < 0 {
		done = 0
	}
	return model.Progress{Ratio: float64(done) / float64(total), Determinate: true}
}

// StageProgress projects live-run progress against the pipeline's canonical
// stage count. A stage from outside the pipeline makes the total unknown.
func StageProgress(p model.Pipeline, t Tally) model.Progress {
	if t.UnknownStage {
		return model.Indeterminate
	}
	return RatioProgress(t.CompletedStages, p.Stages())
}
