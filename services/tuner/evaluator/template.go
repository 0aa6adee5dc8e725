// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evaluator

import (
	"strconv"
	"strings"

	"github.com/omariosc/autotuning-cuda/services/tuner/space"
)

// idToken is replaced with the sequential test id in every template.
const idToken = "%%ID%%"

// Render substitutes a command template for one evaluation: %%ID%%
// becomes the test id, and %name% becomes the chosen value for every
// variable active in the valuation. Tokens naming variables that are
// not active in this valuation are left untouched; the shell sees
// them verbatim, which makes a template/tree mismatch visible in the
// failing command rather than silently blanked.
func Render(template string, id int, val space.Valuation) string {
	out := strings.ReplaceAll(template, idToken, strconv.Itoa(id))
	for _, p := range val.Pairs() {
		out = strings.ReplaceAll(out, "%"+p.Name+"%", p.Value)
	}
	return out
}
