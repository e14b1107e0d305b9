// Copyright 2020 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package apiutil

import (
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"

	"github.com/pingcap-incubator/tinydur/pkg/logutil"
	"github.com/pingcap/log"
	"github.com/pkg/errors"
	"github.com/unrolled/render"
	"go.uber.org/zap"
)

// JSONError lets callers check for just one error type
type JSONError struct {
	Err error
}

func (e JSONError) Error() string {
	return e.Err.Error()
}

// ReadJSON reads a JSON body into data and closes r. A body that is not
// valid JSON yields a JSONError.
func ReadJSON(r io.ReadCloser, data interface{}) error {
	defer r.Close()

	b, err := ioutil.ReadAll(r)
	if err != nil {
		return errors.WithStack(err)
	}
	if err = json.Unmarshal(b, data); err != nil {
		return JSONError{Err: err}
	}
	return nil
}

// LogHandler changes the global log level of a server.
type LogHandler struct {
	rd *render.Render
}

func NewLogHandler(rd *render.Render) *LogHandler {
	return &LogHandler{
		rd: rd,
	}
}

// Handle sets the level named by the body, a JSON string such as "debug".
func (h *LogHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var level string
	if err := ReadJSON(r.Body, &level); err != nil {
		if _, ok := err.(JSONError); ok {
			h.rd.JSON(w, http.StatusBadRequest, err.Error())
		} else {
			h.rd.JSON(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	log.SetLevel(logutil.StringToZapLogLevel(level))
	log.Warn("log level changed", zap.String("level", log.GetLevel().String()))

	h.rd.JSON(w, http.StatusOK, nil)
}
