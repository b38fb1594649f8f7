package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Amount описывает денежную сумму в целых единицах валюты.
// Сервер может присылать суммы с дробной частью ("50000000.00") или строкой, они округляются до целого.
type Amount int64

// UnmarshalJSON принимает целое или дробное число, в том числе записанное строкой.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(bytes.TrimSpace(data), `"`)
	if len(data) == 0 {
		*a = 0
		return nil
	}

	num := json.Number(data)
	if v, err := num.Int64(); err == nil {
		*a = Amount(v)
		return nil
	}
	f, err := num.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("amount %q: not a number", data)
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return fmt.Errorf("amount %q: out of range", data)
	}
	*a = Amount(math.Round(f))
	return nil
}

