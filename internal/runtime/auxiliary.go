package runtime

// ResolveAuxiliary computes and publishes every distinct auxiliary
// indicator declared by stop/take handlers, deduplicated by alias, before
// the backtest begins. A handler never recomputes an
// indicator itself; it looks the alias up via Get after this call.
func (e *Evaluator) ResolveAuxiliary(specs []AuxiliaryIndicatorSpec) error {
	seen := make(map[string]bool, len(specs))
	bindings := make([]IndicatorBinding, 0, len(specs))
	for _, spec := range specs {
		if seen[spec.Alias] {
			continue
		}
		seen[spec.Alias] = true
		if _, already := e.Get(spec.Alias); already {
			continue
		}
		bindings = append(bindings, IndicatorBinding{
			Alias:     spec.Alias,
			Timeframe: spec.Timeframe,
			Source: BindingSource{
				Kind:   SourceRegistry,
				Name:   spec.IndicatorName,
				Params: spec.Parameters,
			},
		})
	}
	if len(bindings) == 0 {
		return nil
	}
	return e.Prepare(bindings)
}
