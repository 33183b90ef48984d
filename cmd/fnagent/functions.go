package main

import (
	"context"
	"strings"

	"github.com/skosovsky/fnagent"
)

// TemperatureUnit is the unit the weather function reports in.
type TemperatureUnit string

const (
	Celsius    TemperatureUnit = "celsius"
	Fahrenheit TemperatureUnit = "fahrenheit"
)

func (TemperatureUnit) EnumValues() []any { return []any{Celsius, Fahrenheit} }

type weatherArgs struct {
	Location string          `json:"location"`
	Unit     TemperatureUnit `json:"unit" default:"fahrenheit"`
}

const weatherDoc = `Get the current weather

Args:
    location: The city and state, e.g. San Francisco, CA
    unit: The temperature unit to use. Infer this from the users location. Defaults to fahrenheit.
`

func getCurrentWeather(_ context.Context, a weatherArgs) (string, error) {
	if strings.Contains(strings.ToLower(a.Location), "rio") {
		return "sunny", nil
	}
	return "bloody terrible", nil
}

type sumDigitsArgs struct {
	Numbers []int `json:"numbers"`
}

const sumDigitsDoc = `Add up the decimal digits of a list of integers

Args:
    numbers: The integers whose digits are summed
`

func sumDigits(a sumDigitsArgs) int {
	total := 0
	for _, n := range a.Numbers {
		if n < 0 {
			n = -n
		}
		for ; n > 0; n /= 10 {
			total += n % 10
		}
	}
	return total
}

// registerDemo registers the functions the CLI offers to the model.
func registerDemo(reg *fnagent.Registry) error {
	if err := reg.RegisterFunc("get_current_weather", weatherDoc, getCurrentWeather); err != nil {
		return err
	}
	return reg.RegisterFunc("sum_digits", sumDigitsDoc, sumDigits)
}
