package gates

import (
	"encoding/json"
	"fmt"

	"github.com/fyrsmithlabs/trackd/internal/item"
)

// ApplyEvidence forwards an executor's evidence payload into the work
// item's fields. For requirement ids whose criterion reads a typed
// field, the payload is decoded into that field; anything else is
// stored opaquely under the requirement id, untouched by the core.
//
// A payload that cannot be decoded for its requirement is an executor
// contract violation and is returned as an error rather than silently
// dropped.
func ApplyEvidence(wi *item.WorkItem, id RequirementID, payload json.RawMessage) error {
	decode := func(v any) error {
		if err := json.Unmarshal(payload, v); err != nil {
			return fmt.Errorf("evidence for %s does not match its contract: %w", id, err)
		}
		return nil
	}

	switch id {
	case ReqJustificationLength:
		var text string
		if err := decode(&text); err != nil {
			return err
		}
		wi.Justification = text

	case ReqCriteriaCount:
		var criteria []item.AcceptanceCriterion
		if err := decode(&criteria); err != nil {
			return err
		}
		wi.AcceptanceCriteria = append(wi.AcceptanceCriteria, criteria...)

	case ReqRiskDeclared:
		var risks []item.Risk
		if err := decode(&risks); err != nil {
			return err
		}
		wi.Risks = append(wi.Risks, risks...)

	case ReqConfidenceThreshold:
		var score float64
		if err := decode(&score); err != nil {
			return err
		}
		wi.Confidence = score

	case ReqCriteriaVerified:
		var verified []string
		if err := decode(&verified); err != nil {
			return err
		}
		ids := make(map[string]bool, len(verified))
		for _, v := range verified {
			ids[v] = true
		}
		for i := range wi.AcceptanceCriteria {
			if ids[wi.AcceptanceCriteria[i].ID] {
				wi.AcceptanceCriteria[i].Verified = true
			}
		}

	case ReqNoOpenDefects:
		var closed []string
		if err := decode(&closed); err != nil {
			return err
		}
		ids := make(map[string]bool, len(closed))
		for _, c := range closed {
			ids[c] = true
		}
		for i := range wi.Defects {
			if ids[wi.Defects[i].ID] {
				wi.Defects[i].Open = false
			}
		}

	case ReqReleaseRecorded:
		var record string
		if err := decode(&record); err != nil {
			return err
		}
		wi.ReleaseRecord = record

	default:
		// Task-shaped requirements (coverage, effort, cycles, done-ness)
		// cannot be satisfied by evidence on the item; executors report
		// those as blocked with a remediation hint instead. Unknown ids
		// are kept opaquely for external reporting.
		wi.SetEvidence(string(id), payload)
	}
	return nil
}
