package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"walletEngine/internal/kyc"
	"walletEngine/internal/model"
)

// tokenSpec is the config-file form of a seeded token.
type tokenSpec struct {
	Symbol   string `mapstructure:"symbol"`
	Address  string `mapstructure:"address"`
	Decimals uint8  `mapstructure:"decimals"`
	Network  string `mapstructure:"network"`
}

// tierLimits accepts either a list of maps or "tier;daily;monthly;single" strings.
func tierLimits(v *viper.Viper, key string) ([]kyc.TierLimit, error) {
	if !v.IsSet(key) {
		return nil, nil
	}
	if structured(v.Get(key)) {
		var out []kyc.TierLimit
		if err := v.UnmarshalKey(key, &out); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		return out, nil
	}

	var out []kyc.TierLimit
	for _, item := range getStringSlice(v, key) {
		parts := cleanStrings(strings.Split(item, ";"))
		if len(parts) != 4 {
			return nil, fmt.Errorf("%s entry %q: want tier;daily;monthly;single", key, item)
		}
		tier, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("%s entry %q: %w", key, item, err)
		}
		out = append(out, kyc.TierLimit{Tier: tier, Daily: parts[1], Monthly: parts[2], Single: parts[3]})
	}
	return out, nil
}

// tokens accepts either a list of maps or "SYMBOL:ADDRESS:DECIMALS" strings on the default network.
func tokens(v *viper.Viper, key, network string) ([]model.Token, error) {
	if !v.IsSet(key) {
		return nil, nil
	}

	var specs []tokenSpec
	if structured(v.Get(key)) {
		if err := v.UnmarshalKey(key, &specs); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
	} else {
		for _, item := range getStringSlice(v, key) {
			parts := strings.Split(item, ":")
			if len(parts) != 3 {
				return nil, fmt.Errorf("%s entry %q: want SYMBOL:ADDRESS:DECIMALS", key, item)
			}
			decimals, err := strconv.ParseUint(strings.TrimSpace(parts[2]), 10, 8)
			if err != nil {
				return nil, fmt.Errorf("%s entry %q: %w", key, item, err)
			}
			specs = append(specs, tokenSpec{
				Symbol:   strings.TrimSpace(parts[0]),
				Address:  strings.TrimSpace(parts[1]),
				Decimals: uint8(decimals),
			})
		}
	}

	out := make([]model.Token, 0, len(specs))
	for _, spec := range specs {
		if spec.Symbol == "" || spec.Address == "" {
			return nil, fmt.Errorf("%s: symbol and address are required", key)
		}
		net := strings.ToLower(spec.Network)
		if net == "" {
			net = network
		}
		out = append(out, model.Token{Symbol: spec.Symbol, Address: spec.Address, Decimals: spec.Decimals, Network: net})
	}
	return out, nil
}

// pairs parses key=value items.
func pairs(items []string) (map[string]string, error) {
	if len(items) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(items))
	for _, item := range items {
		key, value, ok := strings.Cut(item, "=")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			return nil, fmt.Errorf("invalid entry %q, want key=value", item)
		}
		out[key] = value
	}
	return out, nil
}

func structured(val interface{}) bool {
	items, ok := val.([]interface{})
	if !ok || len(items) == 0 {
		return false
	}
	_, isMap := items[0].(map[string]interface{})
	return isMap
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	case map[string]interface{}:
		items := make([]string, 0, len(typed))
		for k, item := range typed {
			items = append(items, fmt.Sprintf("%s=%v", k, item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
