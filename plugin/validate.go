package plugin

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/vultisig/trigger-plugin/common"
	"github.com/vultisig/trigger-plugin/internal/types"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report json field names so reasons match what the caller sent
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// ValidateOrder runs the structural checks shared by all order types and
// then the type specific group. Time dependent creation rules are not
// applied; that is the evaluator's job once an order exists.
func ValidateOrder(spec types.OrderSpec) (Trigger, error) {
	spec = spec.WithDefaults()

	if err := validate.Struct(spec); err != nil {
		return nil, types.NewValidationError("%s", describeValidationError(err))
	}
	if common.SameAsset(spec.SourceAsset, spec.DestinationAsset) {
		return nil, types.NewValidationError("fromTokenAddress and toTokenAddress must differ")
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(spec.Amount))
	if err != nil {
		return nil, types.NewValidationError("amount %q is not a decimal", spec.Amount)
	}
	if !amount.IsPositive() {
		return nil, types.NewValidationError("amount must be positive")
	}
	if _, err := common.ChainID(spec.Network); err != nil {
		return nil, types.NewValidationError("%v", err)
	}

	return NewTrigger(spec)
}

// ValidateNewOrder is ValidateOrder plus the rules that only hold at
// creation, such as a strictly future first execution or expiry.
func ValidateNewOrder(spec types.OrderSpec, now time.Time) (Trigger, error) {
	t, err := ValidateOrder(spec)
	if err != nil {
		return nil, err
	}
	if err := t.ValidateSchedule(now); err != nil {
		return nil, err
	}
	return t, nil
}

// Check reports creation time validity as a reason string.
func Check(spec types.OrderSpec, now time.Time) types.ValidationResult {
	if _, err := ValidateNewOrder(spec, now); err != nil {
		return types.ValidationResult{
			Valid:  false,
			Reason: strings.TrimPrefix(err.Error(), types.ErrValidation.Error()+": "),
		}
	}
	return types.ValidationResult{Valid: true}
}

func describeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	reasons := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			reasons = append(reasons, fmt.Sprintf("%s is required", fe.Field()))
		case "eth_addr":
			reasons = append(reasons, fmt.Sprintf("%s is not a valid address", fe.Field()))
		case "min":
			reasons = append(reasons, fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param()))
		case "max":
			reasons = append(reasons, fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param()))
		case "oneof":
			reasons = append(reasons, fmt.Sprintf("%s must be one of %s", fe.Field(), fe.Param()))
		default:
			reasons = append(reasons, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(reasons, "; ")
}
