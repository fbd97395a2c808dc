package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
)

// Unit is the billable quantity a price applies to.
type Unit string

const (
	UnitInputToken  Unit = "input_token"
	UnitOutputToken Unit = "output_token"
	UnitCharacter   Unit = "character"
	UnitAudioSecond Unit = "audio_second"
)

type priceKey struct {
	provider string
	unit     Unit
}

// CostModel is the immutable per-provider unit price table, loaded once at
// startup. A missing entry is a configuration problem the aggregator reports;
// it is never a reason to crash.
type CostModel struct {
	prices map[priceKey]float64
}

// DefaultCostModel carries the stock prices: $5/1M input and $15/1M output
// LLM tokens, $0.0125 per minute of STT audio, $0.30 per 1K TTS characters.
func DefaultCostModel() *CostModel {
	return &CostModel{prices: map[priceKey]float64{
		{provider: "openai", unit: UnitInputToken}:    5.0 / 1_000_000,
		{provider: "openai", unit: UnitOutputToken}:   15.0 / 1_000_000,
		{provider: "deepgram", unit: UnitAudioSecond}: 0.0125 / 60,
		{provider: "elevenlabs", unit: UnitCharacter}: 0.30 / 1_000,
	}}
}

// LoadCostModel reads a JSON price table shaped as
// {"provider": {"unit": price, ...}, ...} and overlays it on the defaults.
// An empty path returns the defaults unchanged.
func LoadCostModel(path string) (*CostModel, error) {
	m := DefaultCostModel()
	if path == "" {
		return m, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read price table: %w", err)
	}
	var table map[string]map[string]float64
	if err := json.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("parse price table %s: %w", path, err)
	}
	for provider, units := range table {
		for unit, price := range units {
			switch Unit(unit) {
			case UnitInputToken, UnitOutputToken, UnitCharacter, UnitAudioSecond:
				m.prices[priceKey{provider: provider, unit: Unit(unit)}] = price
			default:
				return nil, fmt.Errorf("price table %s: unknown unit %q for provider %q", path, unit, provider)
			}
		}
	}
	return m, nil
}

// Price returns the unit price for (provider, unit) and whether it is known.
func (m *CostModel) Price(provider string, unit Unit) (float64, bool) {
	p, ok := m.prices[priceKey{provider: provider, unit: unit}]
	return p, ok
}
