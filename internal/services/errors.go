package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoScans                = errors.New("no scans above detection threshold")
	ErrNoTables               = errors.New("required calibration tables unavailable")
	ErrSolverInvocation       = errors.New("solver invocation failed")
	ErrFringeFitUnsalvageable = errors.New("fringe fit unsalvageable")
	ErrNoReferenceAntenna     = errors.New("no usable reference antenna")
	ErrNoCalibrators          = errors.New("no calibrator scans cover any antenna")
	ErrExternalTool           = errors.New("external tool error")
	ErrValidation             = errors.New("validation error")
	ErrConfiguration          = errors.New("configuration error")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsGroupFatal reports whether err aborts the enclosing frequency group. Sibling
// groups keep running regardless.
func IsGroupFatal(err error) bool {
	if err == nil {
		return false
	}
	for _, marker := range []error{
		ErrNoScans,
		ErrNoTables,
		ErrNoReferenceAntenna,
		ErrNoCalibrators,
		ErrSolverInvocation,
		ErrConfiguration,
	} {
		if errors.Is(err, marker) {
			return true
		}
	}
	return false
}

// Kind returns a short classification string for logs and the decision ledger.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoScans):
		return "no_scans"
	case errors.Is(err, ErrNoTables):
		return "no_tables"
	case errors.Is(err, ErrSolverInvocation):
		return "solver_invocation"
	case errors.Is(err, ErrFringeFitUnsalvageable):
		return "fringe_unsalvageable"
	case errors.Is(err, ErrNoReferenceAntenna):
		return "no_reference_antenna"
	case errors.Is(err, ErrNoCalibrators):
		return "no_calibrators"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	default:
		return "external"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
