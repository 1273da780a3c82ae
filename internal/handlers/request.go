package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 1 << 16

// decodeAndValidate reads a JSON body into dst and validates it. On failure
// it writes a 400 and returns false.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return false
	}

	if err := ValidateRequest(dst); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "bad_request", err.Error(), ve.Details())
			return false
		}
		pkghttp.WriteBadRequest(w, err.Error())
		return false
	}
	return true
}
