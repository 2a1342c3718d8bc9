package ocfl

import (
	"fmt"
	"strings"
)

type ValidationErrorCode string

const (
	E003 = ValidationErrorCode("E003")
	E004 = ValidationErrorCode("E004")
	E007 = ValidationErrorCode("E007")
	E008 = ValidationErrorCode("E008")
	E010 = ValidationErrorCode("E010")
	E011 = ValidationErrorCode("E011")
	E012 = ValidationErrorCode("E012")
	E013 = ValidationErrorCode("E013")
	E015 = ValidationErrorCode("E015")
	E023 = ValidationErrorCode("E023")
	E025 = ValidationErrorCode("E025")
	E033 = ValidationErrorCode("E033")
	E034 = ValidationErrorCode("E034")
	E036 = ValidationErrorCode("E036")
	E038 = ValidationErrorCode("E038")
	E040 = ValidationErrorCode("E040")
	E041 = ValidationErrorCode("E041")
	E046 = ValidationErrorCode("E046")
	E050 = ValidationErrorCode("E050")
	E058 = ValidationErrorCode("E058")
	E060 = ValidationErrorCode("E060")
	E061 = ValidationErrorCode("E061")
	E063 = ValidationErrorCode("E063")
	E064 = ValidationErrorCode("E064")
	E066 = ValidationErrorCode("E066")
	E092 = ValidationErrorCode("E092")
	E093 = ValidationErrorCode("E093")
	E095 = ValidationErrorCode("E095")
	E103 = ValidationErrorCode("E103")
	E104 = ValidationErrorCode("E104")
	E107 = ValidationErrorCode("E107")
	E110 = ValidationErrorCode("E110")
	E111 = ValidationErrorCode("E111")

	W001 = ValidationErrorCode("W001")
	W003 = ValidationErrorCode("W003")
	W004 = ValidationErrorCode("W004")
	W005 = ValidationErrorCode("W005")
	W007 = ValidationErrorCode("W007")
	W010 = ValidationErrorCode("W010")
	W011 = ValidationErrorCode("W011")
	W013 = ValidationErrorCode("W013")
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// ValidationError describes one entry of the OCFL validation code tables.
type ValidationError struct {
	Code        ValidationErrorCode
	Description string
	Ref         string
}

func (verr *ValidationError) Error() string {
	return fmt.Sprintf("Validation Error #%s - %s (%s)", verr.Code, verr.Description, verr.Ref)
}

var validationErrors = map[ValidationErrorCode]*ValidationError{
	E003: {E003, "there must be exactly one version declaration file in the storage root / object root", "https://ocfl.io/1.1/spec/#E003"},
	E004: {E004, "the version declaration must be a file whose content matches its name", "https://ocfl.io/1.1/spec/#E004"},
	E007: {E007, "the text contents of an object version declaration must be the file name with a line feed", "https://ocfl.io/1.1/spec/#E007"},
	E008: {E008, "an OCFL object must contain at least one version", "https://ocfl.io/1.1/spec/#E008"},
	E010: {E010, "the version sequence must be continuous without missing integers", "https://ocfl.io/1.1/spec/#E010"},
	E011: {E011, "version numbers must not be padded with more zeros than the configured width", "https://ocfl.io/1.1/spec/#E011"},
	E012: {E012, "all version numbers in an object must use the same zero-padding width", "https://ocfl.io/1.1/spec/#E012"},
	E013: {E013, "padded and unpadded version numbers must not be mixed within an object", "https://ocfl.io/1.1/spec/#E013"},
	E015: {E015, "an object version directory must contain no files other than the inventory, its sidecar, and the content directory", "https://ocfl.io/1.1/spec/#E015"},
	E023: {E023, "every file in a version's content directory must be referenced by the manifest", "https://ocfl.io/1.1/spec/#E023"},
	E025: {E025, "the inventory digest algorithm must be sha512 or sha256", "https://ocfl.io/1.1/spec/#E025"},
	E033: {E033, "an inventory file must be valid JSON", "https://ocfl.io/1.1/spec/#E033"},
	E034: {E034, "an inventory file must be a JSON object conforming to the inventory structure", "https://ocfl.io/1.1/spec/#E034"},
	E036: {E036, "an inventory must include id, type, digestAlgorithm and head", "https://ocfl.io/1.1/spec/#E036"},
	E038: {E038, "the inventory type must be an OCFL inventory URI", "https://ocfl.io/1.1/spec/#E038"},
	E040: {E040, "head must be the version number of the highest version", "https://ocfl.io/1.1/spec/#E040"},
	E041: {E041, "an inventory must include a manifest block", "https://ocfl.io/1.1/spec/#E041"},
	E046: {E046, "an inventory must include a versions block", "https://ocfl.io/1.1/spec/#E046"},
	E050: {E050, "every digest in a version's state must appear in the manifest", "https://ocfl.io/1.1/spec/#E050"},
	E058: {E058, "every inventory file must have a corresponding digest sidecar file", "https://ocfl.io/1.1/spec/#E058"},
	E060: {E060, "the digest recorded in the inventory sidecar must match the digest of the inventory file", "https://ocfl.io/1.1/spec/#E060"},
	E061: {E061, "the inventory sidecar must contain a digest followed by the inventory file name", "https://ocfl.io/1.1/spec/#E061"},
	E063: {E063, "an object root must contain an inventory file", "https://ocfl.io/1.1/spec/#E063"},
	E064: {E064, "the root inventory must be identical to the inventory of the head version", "https://ocfl.io/1.1/spec/#E064"},
	E066: {E066, "each version's state must be consistent with the states of prior versions", "https://ocfl.io/1.1/spec/#E066"},
	E092: {E092, "content referenced by the manifest must exist and match its recorded digest", "https://ocfl.io/1.1/spec/#E092"},
	E093: {E093, "fixity digests must match the content they reference", "https://ocfl.io/1.1/spec/#E093"},
	E095: {E095, "logical paths within a version's state must be unique and non-conflicting", "https://ocfl.io/1.1/spec/#E095"},
	E103: {E103, "the inventory spec version must not decrease in later object versions", "https://ocfl.io/1.1/spec/#E103"},
	E104: {E104, "a version directory name must be a 'v' followed by a positive integer", "https://ocfl.io/1.1/spec/#E104"},
	E107: {E107, "every entry in the manifest must be referenced by at least one version's state", "https://ocfl.io/1.1/spec/#E107"},
	E110: {E110, "the object id must be identical across all version inventories", "https://ocfl.io/1.1/spec/#E110"},
	E111: {E111, "the fixity block, if present, must be well-formed", "https://ocfl.io/1.1/spec/#E111"},

	W001: {W001, "version numbers should not be zero-padded", "https://ocfl.io/1.1/spec/#W001"},
	W003: {W003, "a storage root extensions directory should only contain extension directories", "https://ocfl.io/1.1/spec/#W003"},
	W004: {W004, "the digest algorithm should be sha512", "https://ocfl.io/1.1/spec/#W004"},
	W005: {W005, "the object id should be a URI", "https://ocfl.io/1.1/spec/#W005"},
	W007: {W007, "versions should record a message and user", "https://ocfl.io/1.1/spec/#W007"},
	W010: {W010, "every version directory should have its own inventory", "https://ocfl.io/1.1/spec/#W010"},
	W011: {W011, "version metadata should match between the root and version inventories", "https://ocfl.io/1.1/spec/#W011"},
	W013: {W013, "unregistered extensions should be avoided", "https://ocfl.io/1.1/spec/#W013"},
}

// GetValidationError looks up a code for the given spec version. Refs are
// rewritten for 1.0 repositories; the code tables are otherwise identical
// for the codes this validator emits.
func GetValidationError(version OCFLVersion, errno ValidationErrorCode) *ValidationError {
	verr, ok := validationErrors[errno]
	if !ok {
		return &ValidationError{
			Code:        errno,
			Description: fmt.Sprintf("unknown error %s", errno),
		}
	}
	if version == Version1_0 {
		return &ValidationError{
			Code:        verr.Code,
			Description: verr.Description,
			Ref:         strings.Replace(verr.Ref, "/1.1/", "/1.0/", 1),
		}
	}
	return verr
}

// Issue is one validation finding, streamed to the caller as it arises.
type Issue struct {
	Code     ValidationErrorCode
	Severity Severity
	ObjectID string
	Version  string
	Path     string
	Message  string
}

func (issue *Issue) String() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] (%s)", issue.Code, issue.Severity))
	if issue.ObjectID != "" {
		b.WriteString(" " + issue.ObjectID)
	}
	if issue.Version != "" {
		b.WriteString(" " + issue.Version)
	}
	if issue.Path != "" {
		b.WriteString(" '" + issue.Path + "'")
	}
	b.WriteString(": " + issue.Message)
	return b.String()
}
