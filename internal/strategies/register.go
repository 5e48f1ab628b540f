package strategies

import "cta-core/internal/cta"

// RegisterAll registers every built-in strategy class on the engine.
// Called once at startup, before Engine.Init.
func RegisterAll(engine *cta.Engine) error {
	if err := engine.RegisterClass("DoubleMaStrategy", NewDoubleMa); err != nil {
		return err
	}
	if err := engine.RegisterClass("AtrRsiStrategy", NewAtrRsi); err != nil {
		return err
	}
	return nil
}

func settingFloat(setting map[string]any, key string, def float64) float64 {
	switch v := setting[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

func settingInt(setting map[string]any, key string, def int) int {
	switch v := setting[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}
