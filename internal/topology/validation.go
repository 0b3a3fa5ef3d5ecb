package topology

import (
	"fmt"
	"math"
	"net/url"
	"strings"
)

// Validation constants.
const (
	maxNameLength = 128

	// Size limits for entry attributes.
	maxAttrKeys       = 50
	maxStringValueLen = 1024
	maxNestingDepth   = 10
)

// ValidatePeerAddress checks that addr is an absolute URI with a scheme and host,
// e.g. "ws://10.166.25.8:4431".
func ValidatePeerAddress(addr string) (*url.URL, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("%w: address is required", ErrValidation)
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: address %q: %w", ErrValidation, addr, err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("%w: address %q has no scheme", ErrValidation, addr)
	}
	if u.Host == "" || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: address %q has no host", ErrValidation, addr)
	}
	if port := u.Port(); port == "" && strings.HasSuffix(u.Host, ":") {
		return nil, fmt.Errorf("%w: address %q has an empty port", ErrValidation, addr)
	}
	return u, nil
}

// normalisePeerName is the form used for peer uniqueness checks.
func normalisePeerName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func validateName(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", ErrValidation, field)
	}
	if len(value) > maxNameLength {
		return fmt.Errorf("%w: %s exceeds %d characters", ErrValidation, field, maxNameLength)
	}
	return nil
}

func validateSpaceConfig(cfg SpaceConfig) error {
	if err := validateName("space name", cfg.Name); err != nil {
		return err
	}
	if err := validateName("space home", cfg.Home); err != nil {
		return fmt.Errorf("space %q: %w", cfg.Name, err)
	}
	return nil
}

func validateShardConfig(cfg ShardConfig) error {
	if cfg.ID < 0 {
		return fmt.Errorf("%w: shard id %d must not be negative", ErrValidation, cfg.ID)
	}
	if err := validateName("shard alias", cfg.Alias); err != nil {
		return fmt.Errorf("shard %d: %w", cfg.ID, err)
	}
	if err := validateName("shard schema", cfg.Schema); err != nil {
		return fmt.Errorf("shard %d: %w", cfg.ID, err)
	}
	if err := validateName("shard home", cfg.Home); err != nil {
		return fmt.Errorf("shard %d: %w", cfg.ID, err)
	}
	return nil
}

// ValidateEntry checks an entry's alias, kind and attributes.
func ValidateEntry(alias, kind string, attrs map[string]any) error {
	if err := validateName("entry alias", alias); err != nil {
		return err
	}
	if err := validateName("entry kind", kind); err != nil {
		return fmt.Errorf("entry %q: %w", alias, err)
	}
	if len(attrs) > maxAttrKeys {
		return fmt.Errorf("%w: entry %q attrs exceed max keys (%d)", ErrValidation, alias, maxAttrKeys)
	}
	if err := validateAttrs(attrs, 0); err != nil {
		return fmt.Errorf("entry %q: %w", alias, err)
	}
	if name, ok := attrs[AttrName]; ok {
		if _, isString := name.(string); !isString {
			return fmt.Errorf("%w: entry %q attr %q must be a string", ErrValidation, alias, AttrName)
		}
	}
	if mcast, ok := attrs[AttrMcast]; ok && mcast != nil {
		if _, isMap := mcast.(map[string]any); !isMap {
			return fmt.Errorf("%w: entry %q attr %q must be a mapping with id and alias", ErrValidation, alias, AttrMcast)
		}
	}
	return nil
}

func validateAttrs(m map[string]any, depth int) error {
	if depth > maxNestingDepth {
		return fmt.Errorf("%w: attrs exceed maximum nesting depth", ErrValidation)
	}
	for k, v := range m {
		if len(k) > maxStringValueLen {
			return fmt.Errorf("%w: attr key too long", ErrValidation)
		}
		if err := validateAttrValue(k, v, depth); err != nil {
			return err
		}
	}
	return nil
}

func validateAttrValue(key string, v any, depth int) error {
	switch val := v.(type) {
	case nil, bool, int, int64, uint64:
		return nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Errorf("%w: attr %q must be a finite number", ErrValidation, key)
		}
	case string:
		if len(val) > maxStringValueLen {
			return fmt.Errorf("%w: attr %q string value too long", ErrValidation, key)
		}
	case map[string]any:
		if len(val) > maxAttrKeys {
			return fmt.Errorf("%w: attr %q exceeds max keys (%d)", ErrValidation, key, maxAttrKeys)
		}
		return validateAttrs(val, depth+1)
	case []any:
		if len(val) > maxAttrKeys {
			return fmt.Errorf("%w: attr %q exceeds max elements (%d)", ErrValidation, key, maxAttrKeys)
		}
		for _, elem := range val {
			if err := validateAttrValue(key, elem, depth+1); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: attr %q has unsupported type %T", ErrValidation, key, v)
	}
	return nil
}
