package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Gas is either "auto" (estimate at deploy time) or a fixed limit
type Gas struct {
	Auto  bool
	Limit uint64
}

// AutoGas asks the pipeline to estimate the limit
var AutoGas = Gas{Auto: true}

// FixedGas is a fixed gas limit
func FixedGas(limit uint64) Gas {
	return Gas{Limit: limit}
}

// IsZero reports whether neither auto nor a limit was configured
func (g Gas) IsZero() bool {
	return !g.Auto && g.Limit == 0
}

func (g Gas) String() string {
	if g.Auto {
		return "auto"
	}
	return strconv.FormatUint(g.Limit, 10)
}

// MarshalJSON encodes auto as the string "auto" and limits as numbers
func (g Gas) MarshalJSON() ([]byte, error) {
	if g.Auto {
		return []byte(`"auto"`), nil
	}
	return []byte(strconv.FormatUint(g.Limit, 10)), nil
}

// UnmarshalJSON accepts "auto", a number, or a numeric string
func (g *Gas) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*g = Gas{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		return g.parse(s)
	}
	return g.parse(string(data))
}

func (g *Gas) parse(s string) error {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "auto") {
		*g = AutoGas
		return nil
	}
	if s == "" {
		*g = Gas{}
		return nil
	}

	limit, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		// Accept JSON numbers written as floats, e.g. 3e6
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f < 0 {
			return fmt.Errorf("invalid gas value %q", s)
		}
		limit = uint64(f)
	}
	*g = FixedGas(limit)
	return nil
}
