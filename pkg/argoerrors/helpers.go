// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package argoerrors

import (
	"errors"
	"fmt"
)

// Wrap wraps err with additional context. Returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps err with formatted context. Returns nil if err is nil.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's tree matching target's type.
func As(err error, target any) bool { return errors.As(err, target) }

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsDuplicate reports whether err is (or wraps) a DuplicateError.
func IsDuplicate(err error) bool {
	var dup *DuplicateError
	return errors.As(err, &dup)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// HTTPStatus maps a typed error to the status code the API edge should
// return. Unmapped errors default to 500.
func HTTPStatus(err error) int {
	switch {
	case IsValidation(err):
		return 400
	case IsNotFound(err):
		return 404
	case IsDuplicate(err):
		return 409
	default:
		var pe *ProtocolError
		if errors.As(err, &pe) {
			return 400
		}
		var prov *ProviderError
		if errors.As(err, &prov) {
			return 502
		}
		return 500
	}
}
