/***
Copyright 2014 Cisco Systems Inc. All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at
http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type httpAPIFunc func(w http.ResponseWriter, r *http.Request, vars map[string]string) (interface{}, error)

// HTTPError carries the status code a handler wants returned.
type HTTPError struct {
	Code int
	Msg  string
}

func (e *HTTPError) Error() string {
	return e.Msg
}

// NotFoundf returns a 404 HTTPError.
func NotFoundf(format string, args ...interface{}) error {
	return &HTTPError{Code: http.StatusNotFound, Msg: fmt.Sprintf(format, args...)}
}

// MakeHTTPHandler is a simple Wrapper for http handlers
func MakeHTTPHandler(handlerFunc httpAPIFunc) http.HandlerFunc {
	// Create a closure and return an anonymous function
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := handlerFunc(w, r, mux.Vars(r))
		if err != nil {
			log.Errorf("Handler for %s %s returned error: %s", r.Method, r.URL, err)

			code := http.StatusInternalServerError
			if httpErr, ok := err.(*HTTPError); ok {
				code = httpErr.Code
			}
			http.Error(w, err.Error(), code)
			return
		}

		if err := writeJSON(w, http.StatusOK, resp); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// writeJSON: writes the value v to the http response stream as json with standard
// json encoding.
func writeJSON(w http.ResponseWriter, code int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}

// UnknownAction is a catchall handler for unregistered routes
func UnknownAction(w http.ResponseWriter, r *http.Request) {
	log.Infof("Unknown action at %q", r.URL.Path)
	http.NotFound(w, r)
}

// HTTPGet performs http GET operation and decodes the json response into resp
func HTTPGet(url string, resp interface{}) error {
	res, err := http.Get(url)
	if err != nil {
		log.Errorf("Error during http GET. Err: %v", err)
		return err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}

	if res.StatusCode != http.StatusOK {
		log.Errorf("HTTP error response. Status: %s, StatusCode: %d", res.Status, res.StatusCode)
		return fmt.Errorf("HTTP error response. Status: %s, StatusCode: %d, Body: %s",
			res.Status, res.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, resp); err != nil {
		log.Errorf("Error during json unmarshall. Err: %v", err)
		return err
	}

	log.Debugf("Results for (%s): %+v\n", url, resp)
	return nil
}
