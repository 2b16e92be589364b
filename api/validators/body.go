package validators

import (
	"encoding/json"
	"io"
	"net/http"

	pkgerrors "github.com/MwailaCoding/storefront/pkg/errors"
	"github.com/MwailaCoding/storefront/pkg/validation"
)

// DecodeJSONBody decodes a strict JSON body into dest and runs struct validation.
func DecodeJSONBody(r *http.Request, dest any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").WithDetails(map[string]any{"error": err.Error()})
	}
	return validation.Struct(dest)
}
