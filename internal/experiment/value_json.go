package experiment

import (
	"encoding/json"
	"fmt"
)

// wireValue is Value's on-the-wire JSON shape: a type tag plus the scalar
// payload, used by the Postgres backend's JSONB columns (internal/
// notebook/postgres) and any future on-disk codec (spec §6 "results
// record wire form").
type wireValue struct {
	Kind  string      `json:"kind"`
	Value interface{} `json:"value,omitempty"`
}

// MarshalJSON renders v as {"kind": ..., "value": ...}.
func (v Value) MarshalJSON() ([]byte, error) {
	w := wireValue{Kind: v.Kind.String()}

	switch v.Kind {
	case KindInt64:
		w.Value = v.Int
	case KindFloat64:
		w.Value = v.Float
	case KindComplex128:
		w.Value = [2]float64{real(v.Complex), imag(v.Complex)}
	case KindBool:
		w.Value = v.Bool
	case KindString:
		w.Value = v.Str
	case KindSequence:
		w.Value = v.Elems
	}

	return json.Marshal(w)
}

// UnmarshalJSON reverses MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	switch w.Kind {
	case "int64":
		n, ok := w.Value.(float64)
		if !ok {
			return fmt.Errorf("experiment: value: int64 payload is %T", w.Value)
		}

		*v = Int64(int64(n))
	case "float64":
		n, ok := w.Value.(float64)
		if !ok {
			return fmt.Errorf("experiment: value: float64 payload is %T", w.Value)
		}

		*v = Float64(n)
	case "complex128":
		pair, ok := w.Value.([]interface{})
		if !ok || len(pair) != 2 {
			return fmt.Errorf("experiment: value: complex128 payload is %T", w.Value)
		}

		re, _ := pair[0].(float64)
		im, _ := pair[1].(float64)
		*v = Complex128(complex(re, im))
	case "bool":
		b, _ := w.Value.(bool)
		*v = Bool(b)
	case "string":
		s, _ := w.Value.(string)
		*v = String(s)
	case "sequence":
		raw, err := json.Marshal(w.Value)
		if err != nil {
			return err
		}

		var elems []Value
		if err := json.Unmarshal(raw, &elems); err != nil {
			return err
		}

		*v = Sequence(elems...)
	default:
		return fmt.Errorf("experiment: value: unknown kind %q", w.Kind)
	}

	return nil
}
