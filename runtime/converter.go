package runtime

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// mapToStructFromYAML decodes raw config values onto target using yaml tags.
// Durations may be given as strings ("800ms") and scalars are weakly typed,
// since env-substituted values always arrive as strings.
func mapToStructFromYAML(m map[string]any, target any) error {
	return decodeWithTag(m, target, "yaml")
}

func decodeWithTag(m map[string]any, target any, tag string) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: tag,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(m); err != nil {
		return fmt.Errorf("failed to decode map to struct: %w", err)
	}

	return nil
}

// DecodeSection decodes one section of a loaded config file into target,
// applying defaults and validation the same way InitializeConfig does.
func DecodeSection(section any, target any) error {
	if section == nil {
		return InitializeConfig(target, nil)
	}
	raw, ok := section.(map[string]any)
	if !ok {
		return fmt.Errorf("config section must be a mapping, got %T", section)
	}
	return InitializeConfig(target, raw)
}
