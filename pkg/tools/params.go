package tools

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/richard-senior/forecast/pkg/util"
	"github.com/richard-senior/forecast/pkg/util/forecast"
)

func badParam(field, format string, args ...any) error {
	return &forecast.ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// paramsMap converts the raw arguments to a map. A missing arguments object
// is treated as empty.
func paramsMap(params any) (map[string]any, error) {
	if params == nil {
		return map[string]any{}, nil
	}
	m, ok := params.(map[string]any)
	if !ok {
		return nil, badParam("arguments", "expected an object, got %T", params)
	}
	return m, nil
}

func requiredString(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", badParam(key, "is required")
	}
	s, err := util.GetAsString(v)
	if err != nil {
		return "", badParam(key, "%v", err)
	}
	if strings.TrimSpace(s) == "" {
		return "", badParam(key, "must not be empty")
	}
	return s, nil
}

func optionalString(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", nil
	}
	s, err := util.GetAsString(v)
	if err != nil {
		return "", badParam(key, "%v", err)
	}
	return strings.TrimSpace(s), nil
}

func requiredInt(m map[string]any, key string) (int, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, badParam(key, "is required")
	}
	i, err := util.GetAsInteger(v)
	if err != nil {
		return 0, badParam(key, "%v", err)
	}
	return i, nil
}

func optionalInt(m map[string]any, key string, def int) (int, error) {
	if v, ok := m[key]; !ok || v == nil {
		return def, nil
	}
	return requiredInt(m, key)
}

// optionalSeed reads a non-negative seed. Seeds may exceed the int range so
// they go through the string form rather than GetAsInteger. A JSON number
// above 2^53 has already lost precision by the time it gets here, so such
// seeds must be passed as strings.
func optionalSeed(m map[string]any) (*uint64, error) {
	v, ok := m["seed"]
	if !ok || v == nil {
		return nil, nil
	}
	if f, ok := v.(float64); ok && f > forecast.MaxDrawnSeed {
		return nil, badParam("seed", "%.0f is too large for a JSON number, pass it as a string", f)
	}
	s, err := util.GetAsString(v)
	if err != nil {
		return nil, badParam("seed", "%v", err)
	}
	seed, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return nil, badParam("seed", "must be a non-negative integer, got %q", s)
	}
	return &seed, nil
}

// entrantsParam reads the entrants array. Each entry needs a team and may
// carry points and goalDifference; snake_case spellings are accepted too.
func entrantsParam(m map[string]any) ([]forecast.Entrant, error) {
	v, ok := m["entrants"]
	if !ok || v == nil {
		return nil, badParam("entrants", "is required")
	}
	list, ok := v.([]any)
	if !ok {
		return nil, badParam("entrants", "expected an array, got %T", v)
	}

	entrants := make([]forecast.Entrant, 0, len(list))
	for i, item := range list {
		field := fmt.Sprintf("entrants[%d]", i)
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, badParam(field, "expected an object, got %T", item)
		}
		e, err := standingParam(obj)
		if err != nil {
			return nil, badParam(field, "%v", err)
		}
		entrants = append(entrants, e)
	}
	return entrants, nil
}

// standingParam reads one team's team, points and goal difference
func standingParam(obj map[string]any) (forecast.Entrant, error) {
	team, err := optionalString(obj, "team")
	if err == nil && team == "" {
		team, err = optionalString(obj, "name")
	}
	if err != nil {
		return forecast.Entrant{}, err
	}
	points, err := optionalInt(obj, "points", 0)
	if err != nil {
		return forecast.Entrant{}, err
	}
	gdKey := "goalDifference"
	if _, ok := obj[gdKey]; !ok {
		gdKey = "goal_difference"
	}
	gd, err := optionalInt(obj, gdKey, 0)
	if err != nil {
		return forecast.Entrant{}, err
	}
	return forecast.Entrant{Team: team, Points: points, GoalDifference: gd}, nil
}

// positionsParam reads "positions" as an array of integers, or a single
// "position"
func positionsParam(m map[string]any) ([]int, error) {
	if v, ok := m["positions"]; ok && v != nil {
		list, ok := v.([]any)
		if !ok {
			return nil, badParam("positions", "expected an array, got %T", v)
		}
		out := make([]int, 0, len(list))
		for i, item := range list {
			p, err := util.GetAsInteger(item)
			if err != nil {
				return nil, badParam(fmt.Sprintf("positions[%d]", i), "%v", err)
			}
			out = append(out, p)
		}
		return out, nil
	}
	if _, ok := m["position"]; ok {
		p, err := requiredInt(m, "position")
		if err != nil {
			return nil, err
		}
		return []int{p}, nil
	}
	return nil, nil
}
