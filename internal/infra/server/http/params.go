package httpserver

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/coachpo/dexproxy/internal/app/dex"
)

var errBodyNotObject = errors.New("request body must be a JSON object")

// extractParams reads the JSON object body of POST and PUT requests. Other methods, and POST or PUT
// requests without a body, use the first value of each query parameter.
func extractParams(r *http.Request) (dex.Params, error) {
	if r.Method == http.MethodPost || r.Method == http.MethodPut {
		params, ok, err := decodeBodyParams(r)
		if err != nil {
			return nil, err
		}
		if ok {
			return params, nil
		}
	}
	return queryParams(r), nil
}

func decodeBodyParams(r *http.Request) (dex.Params, bool, error) {
	if r.Body == nil {
		return nil, false, nil
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, false, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, false, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var body any
	if err := decoder.Decode(&body); err != nil {
		return nil, false, fmt.Errorf("decode request body: %w", err)
	}
	object, ok := body.(map[string]any)
	if !ok {
		return nil, false, errBodyNotObject
	}
	return dex.Params(object), true, nil
}

func queryParams(r *http.Request) dex.Params {
	values := r.URL.Query()
	params := make(dex.Params, len(values))
	for key, list := range values {
		if len(list) > 0 {
			params[key] = list[0]
		}
	}
	return params
}

func limitRequestBody(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	}
}

func writeDecodeError(w http.ResponseWriter, err error) {
	if isRequestTooLarge(err) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

func isRequestTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}
