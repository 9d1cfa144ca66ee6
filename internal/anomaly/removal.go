package anomaly

import (
	"github.com/inferloop/reviewqa/pkg/interfaces"
)

// detectResolver builds a detect strategy by key from the owning factory.
type detectResolver func(key string, spec interfaces.StrategySpec) (interfaces.DetectStrategy, error)

// pairedDetect builds the detector a repair depends on. The key comes from the
// detect_strategy param, else defaultKey; it writes the repair's flag column.
func pairedDetect(spec interfaces.StrategySpec, b base, defaultKey string, resolve detectResolver) (interfaces.DetectStrategy, error) {
	p := params(spec.Params)
	key, err := p.str("detect_strategy", defaultKey)
	if err != nil {
		return nil, err
	}
	detectSpec := spec
	detectSpec.NewColumn = b.newColumn
	detectSpec.Params = p.without("detect_strategy")
	return resolve(key, detectSpec)
}

// newRemoval builds a removal repair keyed repairKey around a detector.
// rerun re-applies detection even if the flag column is present.
func newRemoval(e env, spec interfaces.StrategySpec, repairKey, defaultDetect string, rerun bool, resolve detectResolver) (interfaces.RepairStrategy, error) {
	b, err := newBase(e, repairKey, spec)
	if err != nil {
		return nil, err
	}
	detect, err := pairedDetect(spec, b, defaultDetect, resolve)
	if err != nil {
		return nil, err
	}
	return &removal{base: b, detect: detect, rerun: rerun}, nil
}
