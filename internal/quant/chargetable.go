package quant

import (
	"errors"
	"fmt"
)

// ErrChargeOutOfRange means a charge outside 1..MaxCharge was used
var ErrChargeOutOfRange = errors.New("quant: charge out of range")

// ChargeTable holds one value per charge state 1..MaxCharge
type ChargeTable[T any] struct {
	v []T
}

// NewChargeTable returns a table for charges 1..maxCharge
func NewChargeTable[T any](maxCharge int) *ChargeTable[T] {
	if maxCharge < 0 {
		maxCharge = 0
	}
	return &ChargeTable[T]{v: make([]T, maxCharge)}
}

// MaxCharge returns the highest charge in the table
func (t *ChargeTable[T]) MaxCharge() int {
	return len(t.v)
}

// Ptr returns a pointer to the value of charge z
func (t *ChargeTable[T]) Ptr(z int) (*T, error) {
	if z < 1 || z > len(t.v) {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrChargeOutOfRange, z, len(t.v))
	}
	return &t.v[z-1], nil
}

// Get returns the value of charge z
func (t *ChargeTable[T]) Get(z int) (T, error) {
	p, err := t.Ptr(z)
	if err != nil {
		var zero T
		return zero, err
	}
	return *p, nil
}

// Set stores the value of charge z
func (t *ChargeTable[T]) Set(z int, v T) error {
	p, err := t.Ptr(z)
	if err != nil {
		return err
	}
	*p = v
	return nil
}
