// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package acquisition

import (
	"net/http/httptest"
	"strings"

	"github.com/Thermoquad/quadtherm/pkg/metrics"
)

type recorder struct {
	body string
}

func newRecorder(m *metrics.Metrics) *recorder {
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return &recorder{body: rec.Body.String()}
}

func (r *recorder) contains(s string) bool {
	return strings.Contains(r.body, s)
}
