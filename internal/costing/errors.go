package costing

import "errors"

var (
	ErrProductNotFound = errors.New("product not found")
	ErrUnknownRole     = errors.New("unknown payroll role")
	ErrUnknownMode     = errors.New("unknown production mode")
	ErrUnknownPolicy   = errors.New("unknown synthetic split policy")
)
