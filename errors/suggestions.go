package errors

// Suggestions contains the default user-facing fix suggestion for each
// error code, kept separate from the taxonomy itself so a caller can
// localize or override without touching the programmatic codes.
var Suggestions = map[string]string{
	CodeNoInternet: "No network connectivity. Check your connection and retry once it's back.",
	CodeTimeout:    "The request timed out. Retry after the coordinator's cooldown elapses.",
	CodeCancelled:  "The download was cancelled.",
	CodeBadStatus:  "The server returned a non-2xx status. Retry later.",
	CodeBadURL:     "The module's download URL is malformed.",
	CodeUnknownNet: "An unexpected network error occurred. Retry later.",

	CodeRateLimitExceeded:     "This module was downloaded too recently. Wait for the cooldown to elapse.",
	CodeDownloadQuotaExceeded: "The hourly download quota has been reached. Try again next hour.",
	CodeAlreadyInProgress:     "A download for this module is already in progress.",
	CodeTooManyConcurrent:     "Too many concurrent downloads. Wait for one to finish.",

	CodeMalformedPublicKey:         "The embedded public key is malformed; this is a build-time defect, not a transient failure.",
	CodeInvalidSignature:           "The manifest signature did not verify against the pinned public key. The manifest is untrusted.",
	CodeSignatureVerificationError: "Signature verification failed due to an internal error.",
	CodeUnsupportedAlgorithm:       "The manifest declares a signing algorithm this client does not support.",

	CodeTimestampInFuture: "The manifest timestamp is in the future beyond clock-skew tolerance. Possible clock skew or replay attack.",
	CodeTooOld:            "The manifest is older than the replay window. Possible replay attack.",
	CodeInvalidNonce:      "The manifest nonce is too short to be trusted.",

	CodePathTraversal:   "The archive contains an entry that would escape the extraction root.",
	CodeSymlinkDetected: "The archive or installed tree contains a symbolic link, which is not permitted.",
	CodeForbiddenFile:   "The archive contains a forbidden file name or pattern.",
	CodeUnsupportedType: "The archive contains a file with an unsupported extension.",

	CodeFileSizeExceeded:  "A file exceeds the maximum allowed size.",
	CodeTotalSizeExceeded: "The archive's total uncompressed size exceeds the allowed maximum (possible zip bomb).",
	CodeFileCountExceeded: "The archive contains more entries than allowed.",
	CodeInsufficientDisk:  "Not enough free disk space to safely perform this download and install.",
	CodeChecksumMismatch:  "The downloaded archive's checksum does not match the manifest. The archive is untrusted.",

	CodeInstallationFailed:   "The install transaction failed and was rolled back.",
	CodeIntegrityCheckFailed: "The installed module failed a post-install integrity check.",
	CodeNotInQuarantine:      "No quarantine entry exists for this module id.",

	CodeEnvironmentMismatch: "The manifest's declared environment does not match this client's configured environment.",
}

// GetSuggestion returns the default suggestion for an error code, or the
// empty string if none is registered.
func GetSuggestion(code string) string {
	return Suggestions[code]
}
