package dlms

import (
	"strings"

	"github.com/spf13/cast"
)

// Sentinel labels substituted for missing textual fields.
const (
	Missing      = "Missing"
	NotAvailable = "N/A"
	Unknown      = "Unknown"
)

var applicationContexts = map[string]string{
	"LN": "2.16.756.5.8.1.1",
	"SN": "2.16.756.5.8.1.2",
}

var mechanisms = map[string]string{
	"LOW":      "2.16.756.5.8.2.1",
	"HIGH":     "2.16.756.5.8.2.2",
	"HLS_MD5":  "2.16.756.5.8.2.3",
	"HLS_SHA1": "2.16.756.5.8.2.4",
	"HLS_GMAC": "2.16.756.5.8.2.5",
}

var associationResults = map[string]AssociationResult{
	"0":                 AssociationAccepted,
	"00":                AssociationAccepted,
	"ACCEPTED":          AssociationAccepted,
	"1":                 AssociationRejectedPermanent,
	"01":                AssociationRejectedPermanent,
	"REJECTEDPERMANENT": AssociationRejectedPermanent,
	"2":                 AssociationRejectedTransient,
	"02":                AssociationRejectedTransient,
	"REJECTEDTRANSIENT": AssociationRejectedTransient,
}

var acseServiceUser = map[string]string{
	"00": "No reason given",
	"01": "No common ACSE version",
	"02": "User data not readable",
}

var actionResultCodes = map[int]ActionResult{
	0:   ActionSuccess,
	1:   ActionHardwareFault,
	2:   ActionTemporaryFailure,
	3:   ActionReadWriteDenied,
	4:   ActionObjectUndefined,
	9:   ActionObjectClassInconsistent,
	11:  ActionObjectUnavailable,
	12:  ActionTypeUnmatched,
	13:  ActionScopeOfAccessViolated,
	14:  ActionDataBlockUnavailable,
	15:  ActionLongActionAborted,
	16:  ActionNoLongActionInProgress,
	250: ActionOtherReason,
}

// actionResultNames is keyed by the squashed form of each result name.
var actionResultNames = func() map[string]ActionResult {
	m := make(map[string]ActionResult, len(actionResultCodes))
	for _, r := range actionResultCodes {
		m[squash(string(r))] = r
	}
	return m
}()

// squash upper-cases s and drops separators so that "type-unmatched",
// "TypeUnmatched" and "TYPE_UNMATCHED" compare equal.
func squash(s string) string {
	return strings.ToUpper(strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.TrimSpace(s)))
}

// MapApplicationContext resolves a context label to its dotted OID. Unknown
// labels pass through; empty input yields NotAvailable.
func MapApplicationContext(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return NotAvailable
	}
	if oid, ok := applicationContexts[strings.ToUpper(v)]; ok {
		return oid
	}
	return v
}

// MapMechanism resolves an authentication mechanism label to its dotted OID.
func MapMechanism(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return NotAvailable
	}
	if oid, ok := mechanisms[strings.ToUpper(v)]; ok {
		return oid
	}
	return v
}

// MapAssociationResult resolves a numeric or named result.
func MapAssociationResult(v string) AssociationResult {
	if r, ok := associationResults[squash(v)]; ok {
		return r
	}
	return AssociationUnknown
}

// MapACSEServiceUser resolves an ACSE service-user diagnostic code.
func MapACSEServiceUser(v string) string {
	if label, ok := acseServiceUser[strings.ToUpper(strings.TrimSpace(v))]; ok {
		return label
	}
	return Unknown
}

// MapActionResult resolves a hex code or a result name. Anything outside
// the table maps to ActionOtherReason.
func MapActionResult(v string) ActionResult {
	v = strings.TrimSpace(v)
	if v == "" {
		return ActionOtherReason
	}
	if code, err := cast.ToIntE("0x" + v); err == nil {
		if r, ok := actionResultCodes[code]; ok {
			return r
		}
		return ActionOtherReason
	}
	if r, ok := actionResultNames[squash(v)]; ok {
		return r
	}
	return ActionOtherReason
}

// ActionResultCode returns the wire code of r.
func ActionResultCode(r ActionResult) int {
	for code, name := range actionResultCodes {
		if name == r {
			return code
		}
	}
	return 250
}
