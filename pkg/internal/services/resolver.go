package services

import (
	"fmt"
	"strings"

	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/models"
)

// Disposition is the final verdict for one upload. Blocking is set whenever
// the file has to leave the uploads root.
type Disposition struct {
	Status   models.ScanStatus
	Reason   models.QuarantineReason
	Detail   string
	Blocking bool
}

func clean(detail string) Disposition {
	return Disposition{Status: models.ScanStatusClean, Detail: detail}
}

func quarantined(reason models.QuarantineReason, detail string) Disposition {
	return Disposition{
		Status:   models.ScanStatusQuarantined,
		Reason:   reason,
		Detail:   detail,
		Blocking: true,
	}
}

// ResolveDisposition folds the sniffer and scanner outcomes into a terminal
// status. sniff and scan are nil for stages that did not run; sniffErr is an
// I/O failure of the sniffer. The result is never SCAN_FAILED, a failed scan
// resolves to either CLEAN or QUARANTINED depending on the policy.
func ResolveDisposition(policy UploadPolicy, sniff *ContentValidationResult, sniffErr error, scan *ScanResult) Disposition {
	if !policy.ScanEnabled {
		return clean("scanning disabled")
	}

	if sniff != nil && !sniff.Valid {
		return quarantined(models.QuarantineReasonMimeMismatch, derefOr(sniff.Error, "file content does not match its declared type"))
	}

	if scan != nil && scan.Infected() {
		return quarantined(models.QuarantineReasonVirus, fmt.Sprintf("virus detected: %s", *scan.VirusName))
	}

	var failures []string
	if sniffErr != nil {
		failures = append(failures, "content check could not be completed")
	}
	if scan != nil && scan.Failed() {
		failures = append(failures, derefOr(scan.Error, "virus scan failed"))
	}
	if len(failures) > 0 && policy.AutoQuarantineOnScanFailure {
		return quarantined(models.QuarantineReasonScanFailed, strings.Join(failures, "; "))
	}

	advisories := failures
	if sniff != nil && sniff.Error != nil {
		advisories = append(advisories, *sniff.Error)
	}
	if len(advisories) > 0 {
		return clean(strings.Join(advisories, "; "))
	}
	return clean("no threats found")
}

func derefOr(val *string, fallback string) string {
	if val == nil || len(*val) == 0 {
		return fallback
	}
	return *val
}
