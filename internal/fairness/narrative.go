package fairness

import (
	"fmt"
	"strings"
)

const ruleLine = "============================================================"

// narrative renders the deterministic, templated audit summary. Same
// report fields always produce the same text: groups are pre-sorted and
// nothing here reads the clock.
func narrative(r *Report) string {
	var b strings.Builder

	b.WriteString(ruleLine + "\n")
	b.WriteString("FAIRNESS AUDIT REPORT\n")
	b.WriteString(ruleLine + "\n")
	fmt.Fprintf(&b, "Total Records: %d\n", r.TotalRecords)
	fmt.Fprintf(&b, "Overall Approval Rate: %.2f%%\n", r.OverallApprovalRate*100)
	fmt.Fprintf(&b, "Reference Group: %s\n", r.ReferenceGroup)
	fmt.Fprintf(&b, "Disparate Impact Ratio: %.3f\n", r.DisparateImpactRatio)
	fmt.Fprintf(&b, "Demographic Parity Gap: %.3f\n", r.DemographicParityGap)

	if r.EqualOpportunityGap != nil {
		fmt.Fprintf(&b, "Equal Opportunity Gap: %.3f\n", *r.EqualOpportunityGap)
	} else {
		b.WriteString("Equal Opportunity Gap: not computable (no ground truth)\n")
	}
	if r.CalibrationError != nil {
		fmt.Fprintf(&b, "Calibration Error: %.4f\n", *r.CalibrationError)
	} else {
		b.WriteString("Calibration Error: not computable (no ground truth)\n")
	}

	if r.Passes80PctRule {
		b.WriteString("Passes 80% Rule: YES\n")
	} else {
		b.WriteString("Passes 80% Rule: NO\n")
	}

	b.WriteString("\nGroup Analysis:\n")
	for _, g := range r.Groups {
		status := "PASS"
		if !r.Degenerate && g.ApprovalRate < FairnessThreshold*maxApprovalRate(r) {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "  [%s] group %s: %d records, approval rate %.2f%%\n",
			status, g.Group, g.Count, g.ApprovalRate*100)
	}

	if r.Degenerate {
		b.WriteString("\nNote: every group approval rate is zero; disparate impact ratio defaulted to 1.0 (degenerate case)\n")
	}
	b.WriteString("Note: a disparate impact ratio below 0.8 may indicate adverse impact\n")
	b.WriteString(ruleLine)

	return b.String()
}

func maxApprovalRate(r *Report) float64 {
	max := 0.0
	for _, g := range r.Groups {
		if g.ApprovalRate > max {
			max = g.ApprovalRate
		}
	}
	return max
}
