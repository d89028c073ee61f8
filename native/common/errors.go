package common

import (
	"fmt"
	"math/big"
)

// InsufficientValueError reports attached native value below the charged
// price.
type InsufficientValueError struct {
	Required *big.Int
	Received *big.Int
}

func (e *InsufficientValueError) Error() string {
	return fmt.Sprintf("insufficient value: required %s, received %s", e.Required, e.Received)
}

// InsufficientBalanceError reports a payer balance below the charged price.
type InsufficientBalanceError struct {
	Asset    string
	Required *big.Int
	Actual   *big.Int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: required %s, have %s", e.Asset, e.Required, e.Actual)
}

// InsufficientAllowanceError reports a spender allowance below the charged
// price.
type InsufficientAllowanceError struct {
	Asset    string
	Required *big.Int
	Actual   *big.Int
}

func (e *InsufficientAllowanceError) Error() string {
	return fmt.Sprintf("insufficient %s allowance: required %s, approved %s", e.Asset, e.Required, e.Actual)
}
