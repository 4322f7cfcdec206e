package grading

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

const (
	statusAnswered   = "answered"
	statusUnanswered = "unanswered"
	statusMalformed  = "malformed"
)

// decode accepts either a bare JSON value or a single element list, the
// latter being how form-style clients send scalar answers.
func decode(raw json.RawMessage) (interface{}, string) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, statusUnanswered
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, statusMalformed
	}
	if v == nil {
		return nil, statusUnanswered
	}
	return v, statusAnswered
}

func scalar(raw json.RawMessage) (interface{}, string) {
	v, status := decode(raw)
	if status != statusAnswered {
		return nil, status
	}
	if arr, ok := v.([]interface{}); ok {
		switch len(arr) {
		case 0:
			return nil, statusUnanswered
		case 1:
			return arr[0], statusAnswered
		default:
			return nil, statusMalformed
		}
	}
	return v, statusAnswered
}

func parseText(raw json.RawMessage) (string, string) {
	v, status := scalar(raw)
	if status != statusAnswered {
		return "", status
	}
	s, ok := v.(string)
	if !ok {
		return "", statusMalformed
	}
	if strings.TrimSpace(s) == "" {
		return "", statusUnanswered
	}
	return s, statusAnswered
}

func parseInteger(raw json.RawMessage) (int64, string) {
	v, status := scalar(raw)
	if status != statusAnswered {
		return 0, status
	}
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) {
			return 0, statusMalformed
		}
		return int64(t), statusAnswered
	case string:
		t = strings.TrimSpace(t)
		if t == "" {
			return 0, statusUnanswered
		}
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0, statusMalformed
		}
		return n, statusAnswered
	default:
		return 0, statusMalformed
	}
}

func parseFloat(raw json.RawMessage) (float64, string) {
	v, status := scalar(raw)
	if status != statusAnswered {
		return 0, status
	}
	switch t := v.(type) {
	case float64:
		return t, statusAnswered
	case string:
		t = strings.TrimSpace(t)
		if t == "" {
			return 0, statusUnanswered
		}
		f, err := strconv.ParseFloat(t, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, statusMalformed
		}
		return f, statusAnswered
	default:
		return 0, statusMalformed
	}
}

func parseSingleID(raw json.RawMessage) (int64, string) {
	v, status := scalar(raw)
	if status != statusAnswered {
		return 0, status
	}
	return toID(v)
}

func parseIDList(raw json.RawMessage) ([]int64, string) {
	v, status := decode(raw)
	if status != statusAnswered {
		return nil, status
	}
	arr, ok := v.([]interface{})
	if !ok {
		return nil, statusMalformed
	}
	if len(arr) == 0 {
		return nil, statusUnanswered
	}
	out := make([]int64, 0, len(arr))
	for _, it := range arr {
		id, st := toID(it)
		if st != statusAnswered {
			return nil, statusMalformed
		}
		out = append(out, id)
	}
	return out, statusAnswered
}

// parseIDSet is parseIDList with duplicates removed.
func parseIDSet(raw json.RawMessage) ([]int64, string) {
	list, status := parseIDList(raw)
	if status != statusAnswered {
		return nil, status
	}
	seen := make(map[int64]bool, len(list))
	out := list[:0]
	for _, id := range list {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, statusAnswered
}

func toID(v interface{}) (int64, string) {
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) || t <= 0 {
			return 0, statusMalformed
		}
		return int64(t), statusAnswered
	case string:
		t = strings.TrimSpace(t)
		if t == "" {
			return 0, statusUnanswered
		}
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil || n <= 0 {
			return 0, statusMalformed
		}
		return n, statusAnswered
	default:
		return 0, statusMalformed
	}
}
