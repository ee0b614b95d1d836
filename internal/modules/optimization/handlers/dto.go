package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// DataDTO is an inline price history.
type DataDTO struct {
	Tickers         []string             `json:"tickers" msgpack:"tickers" validate:"required,min=2,dive,required"`
	Dates           []string             `json:"dates" msgpack:"dates" validate:"required,min=30"`
	Prices          map[string][]float64 `json:"prices" msgpack:"prices" validate:"required"`
	ExpectedReturns map[string]float64   `json:"expected_returns,omitempty" msgpack:"expected_returns,omitempty"`
}

// PositionLimitsDTO is the per-asset weight box.
type PositionLimitsDTO struct {
	Min float64 `json:"min" msgpack:"min" validate:"gte=-1,lte=1"`
	Max float64 `json:"max" msgpack:"max" validate:"gt=0,lte=1"`
}

// ConfigDTO mirrors optimization.OptimizationConfig.
type ConfigDTO struct {
	Method         string             `json:"method" msgpack:"method" validate:"required"`
	RiskFreeRate   *float64           `json:"risk_free_rate,omitempty" msgpack:"risk_free_rate,omitempty" validate:"omitempty,gte=0,lte=0.2"`
	TargetReturn   *float64           `json:"target_return,omitempty" msgpack:"target_return,omitempty" validate:"omitempty,gte=0,lte=1"`
	AllowShort     bool               `json:"allow_short" msgpack:"allow_short"`
	PositionLimits *PositionLimitsDTO `json:"position_limits,omitempty" msgpack:"position_limits,omitempty"`
	Views          map[string]float64 `json:"views,omitempty" msgpack:"views,omitempty"`
}

// OptimizeRequest is the body of POST /optimizer/optimize. Prices come either
// inline in Data or from the history database for Tickers.
type OptimizeRequest struct {
	Data         *DataDTO  `json:"data,omitempty" msgpack:"data,omitempty"`
	Tickers      []string  `json:"tickers,omitempty" msgpack:"tickers,omitempty" validate:"omitempty,min=2,dive,required"`
	LookbackDays int       `json:"lookback_days,omitempty" msgpack:"lookback_days,omitempty" validate:"omitempty,min=30,max=5000"`
	Config       ConfigDTO `json:"config" msgpack:"config"`
	Capital      float64   `json:"capital,omitempty" msgpack:"capital,omitempty" validate:"omitempty,gt=0"`
}

// FrontierRequest is the body of POST /optimizer/frontier.
type FrontierRequest struct {
	OptimizeRequest
	Points  int `json:"points,omitempty" msgpack:"points,omitempty" validate:"omitempty,min=10,max=500"`
	Workers int `json:"workers,omitempty" msgpack:"workers,omitempty" validate:"omitempty,min=1,max=64"`
}

// OptimizeResponse wraps the optimizer output with an optional notional allocation.
type OptimizeResponse struct {
	Result     *optimization.OptimizationOutput `json:"result" msgpack:"result"`
	Allocation map[string]float64               `json:"allocation,omitempty" msgpack:"allocation,omitempty"`
}

// FieldError describes one failed DTO rule.
type FieldError struct {
	Code    string `json:"code" msgpack:"code"`
	Field   string `json:"field" msgpack:"field"`
	Message string `json:"message" msgpack:"message"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string       `json:"error" msgpack:"error"`
	Message string       `json:"message" msgpack:"message"`
	Fields  []FieldError `json:"fields,omitempty" msgpack:"fields,omitempty"`
}

// fieldErrors converts validator errors to FieldErrors.
func fieldErrors(err error) []FieldError {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	out := make([]FieldError, 0, len(validationErrors))
	for _, e := range validationErrors {
		out = append(out, FieldError{
			Code:    "ERR_" + strings.ToUpper(e.Tag()),
			Field:   e.Namespace(),
			Message: fieldMessage(e),
		})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		if fe.Kind() == reflect.Slice || fe.Kind() == reflect.Map {
			return fmt.Sprintf("%s must have at least %s entries", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}

// ToConfig builds a domain config; all remaining rules live in the constructor.
func (c ConfigDTO) ToConfig(defaultRiskFree float64) (optimization.OptimizationConfig, error) {
	method, err := optimization.ParseMethod(c.Method)
	if err != nil {
		return optimization.OptimizationConfig{}, err
	}

	rf := defaultRiskFree
	if c.RiskFreeRate != nil {
		rf = *c.RiskFreeRate
	}
	opts := []optimization.ConfigOption{
		optimization.WithRiskFreeRate(rf),
		optimization.WithShortSelling(c.AllowShort),
	}
	if c.TargetReturn != nil {
		opts = append(opts, optimization.WithTargetReturn(*c.TargetReturn))
	}
	if c.PositionLimits != nil {
		opts = append(opts, optimization.WithPositionLimits(c.PositionLimits.Min, c.PositionLimits.Max))
	}
	if c.Views != nil {
		opts = append(opts, optimization.WithViews(c.Views))
	}
	return optimization.NewOptimizationConfig(method, opts...)
}

// ToInput converts inline data. Dates are YYYY-MM-DD or RFC3339.
func (d DataDTO) ToInput() (optimization.PortfolioDataInput, error) {
	dates := make([]time.Time, len(d.Dates))
	for i, s := range d.Dates {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			t, err = time.Parse(time.RFC3339, s)
		}
		if err != nil {
			return optimization.PortfolioDataInput{}, &optimization.ValidationError{
				Field:   "dates",
				Message: fmt.Sprintf("invalid date %q at index %d", s, i),
			}
		}
		dates[i] = t.UTC()
	}
	return optimization.PortfolioDataInput{
		Tickers:         d.Tickers,
		Dates:           dates,
		Prices:          d.Prices,
		ExpectedReturns: d.ExpectedReturns,
	}, nil
}
