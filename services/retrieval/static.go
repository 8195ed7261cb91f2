// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"sort"
	"strings"
	"unicode"
)

// DefaultPassages is a small primer on voltage stability used when no
// vector store is configured.
var DefaultPassages = []string{
	"A PV curve plots the voltage magnitude at a bus against the total active power load of the system. " +
		"As load increases, voltage decreases until the nose point, the maximum loadability of the system.",
	"The nose point of a PV curve marks the voltage stability limit. Beyond it the power flow has no solution " +
		"and the system experiences voltage collapse.",
	"Load margin is the distance in MW between the initial operating point and the nose point. " +
		"A larger load margin indicates a more voltage-stable operating condition.",
	"Power factor affects voltage stability. A lower lagging (inductive) power factor draws more reactive power " +
		"and lowers the nose point, while a leading (capacitive) load supports voltage and raises it.",
	"Continuation power flow traces both the upper and lower branches of the PV curve by parameterizing the load " +
		"and using predictor-corrector steps, which avoids the Jacobian singularity at the nose.",
	"Reactive power compensation such as shunt capacitors, SVCs, and STATCOMs raises bus voltages and increases " +
		"the load margin of weak buses.",
	"The IEEE 39-bus system, also known as the New England system, has 10 generators and a total load of about 6254 MW. " +
		"It is a common benchmark for voltage stability studies.",
	"The IEEE 14-bus system is a small benchmark with 5 generators and 11 loads totalling about 259 MW.",
	"Buses electrically far from generation, with long lines and high reactance, usually have the lowest nose " +
		"point voltages and the smallest margins.",
	"Voltage limits in stability studies are usually set between 0.9 and 0.95 pu for operating criteria; " +
		"lower limits are used to trace the curve toward collapse.",
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "at": {}, "be": {}, "by": {}, "does": {}, "for": {},
	"how": {}, "i": {}, "in": {}, "is": {}, "it": {}, "me": {}, "my": {}, "of": {}, "on": {},
	"or": {}, "the": {}, "this": {}, "to": {}, "what": {}, "when": {}, "why": {}, "with": {},
}

// StaticRetriever ranks a fixed corpus by query term overlap.
type StaticRetriever struct {
	passages []string
	terms    []map[string]struct{}
	TopK     int
}

// NewStaticRetriever indexes passages. A nil slice selects
// DefaultPassages.
func NewStaticRetriever(passages []string) *StaticRetriever {
	if passages == nil {
		passages = DefaultPassages
	}
	terms := make([]map[string]struct{}, len(passages))
	for i, p := range passages {
		terms[i] = termSet(p)
	}
	return &StaticRetriever{passages: passages, terms: terms, TopK: 3}
}

// Retrieve implements agent.Retriever. Passages sharing no term with the
// query are never returned; ties keep corpus order.
func (s *StaticRetriever) Retrieve(ctx context.Context, query string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := termSet(query)
	if len(q) == 0 {
		return nil, nil
	}

	type scored struct {
		idx   int
		score int
	}
	var hits []scored
	for i, t := range s.terms {
		n := 0
		for term := range q {
			if _, ok := t[term]; ok {
				n++
			}
		}
		if n > 0 {
			hits = append(hits, scored{idx: i, score: n})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	k := s.TopK
	if k <= 0 {
		k = DefaultTopK
	}
	if len(hits) > k {
		hits = hits[:k]
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = s.passages[h.idx]
	}
	return out, nil
}

func termSet(text string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, stop := stopWords[w]; stop {
			continue
		}
		set[w] = struct{}{}
	}
	return set
}
