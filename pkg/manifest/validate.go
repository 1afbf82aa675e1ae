package manifest

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	schemasassets "github.com/3leaps/loratune/internal/assets/schemas"
	"github.com/fulmenhq/gofulmen/schema"
)

// ErrInvalid is matched by every SchemaError.
var ErrInvalid = errors.New("invalid train manifest")

// FieldError is one schema violation. Field is a dotted path such as
// "hyperparameters.epochs", empty for problems with the document as a whole.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// SchemaError lists every violation found in one manifest.
type SchemaError []FieldError

func (e SchemaError) Error() string {
	parts := make([]string, len(e))
	for i, fe := range e {
		parts[i] = fe.Error()
	}
	return fmt.Sprintf("%s: %s", ErrInvalid, strings.Join(parts, "; "))
}

func (e SchemaError) Unwrap() error { return ErrInvalid }

var (
	schemaOnce      sync.Once
	schemaValidator *schema.Validator
	schemaErr       error
)

func trainSchema() (*schema.Validator, error) {
	schemaOnce.Do(func() {
		schemaValidator, schemaErr = schema.NewValidator(schemasassets.TrainManifestSchema)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile train manifest schema: %w", schemaErr)
		}
	})
	return schemaValidator, schemaErr
}

// checkSchema validates a JSON manifest document. Warnings are ignored.
func checkSchema(doc []byte) error {
	v, err := trainSchema()
	if err != nil {
		return err
	}
	diags, err := v.ValidateJSON(doc)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	var errs SchemaError
	for _, d := range diags {
		if d.Severity != schema.SeverityError {
			continue
		}
		errs = append(errs, FieldError{Field: fieldName(d.Pointer), Message: d.Message})
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// fieldName turns a JSON pointer like /hyperparameters/epochs into
// hyperparameters.epochs.
func fieldName(pointer string) string {
	return strings.ReplaceAll(strings.TrimPrefix(pointer, "/"), "/", ".")
}
