package reporter

import (
	"fmt"

	"github.com/chriserin/ftr/internal/client"
)

// Strategy selects how deep the reported tree goes and which item types each
// level gets.
type Strategy struct {
	Name             string
	FeatureItemType  client.ItemType
	ScenarioItemType client.ItemType
	StepHasStats     bool

	// RootItemName, when set, adds one item above every feature.
	RootItemName string
	RootItemType client.ItemType

	// BackgroundStepType overrides the item type of background steps.
	BackgroundStepType client.ItemType

	// CompactHookLog logs "@Before\n<location>" instead of
	// "Before hook: <location>" when a hook finishes.
	CompactHookLog bool
}

// StepStrategy reports steps as test items: feature suites, scenarios and
// steps each count towards statistics.
var StepStrategy = Strategy{
	Name:               "step",
	FeatureItemType:    client.ItemSuite,
	ScenarioItemType:   client.ItemScenario,
	StepHasStats:       true,
	BackgroundStepType: client.ItemBeforeTest,
}

// ScenarioStrategy reports scenarios as test items: one root suite, a story
// per feature, and steps nested without statistics.
var ScenarioStrategy = Strategy{
	Name:             "scenario",
	FeatureItemType:  client.ItemStory,
	ScenarioItemType: client.ItemStep,
	StepHasStats:     false,
	RootItemName:     "Root User Story",
	RootItemType:     client.ItemSuite,
	CompactHookLog:   true,
}

// StrategyFor returns the strategy called name.
func StrategyFor(name string) (Strategy, error) {
	switch name {
	case "", StepStrategy.Name:
		return StepStrategy, nil
	case ScenarioStrategy.Name:
		return ScenarioStrategy, nil
	default:
		return Strategy{}, fmt.Errorf("unknown reporter %q (want step or scenario)", name)
	}
}

func (s Strategy) hookMessage(before bool, location string) string {
	if s.CompactHookLog {
		if before {
			return "@Before\n" + location
		}
		return "@After\n" + location
	}
	if before {
		return "Before hook: " + location
	}
	return "After hook: " + location
}
