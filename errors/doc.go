// # Classification
//
// Every error the pipeline returns falls into one of three classes:
//
//   - Transient: connection timeouts and unavailable destinations, worth a retry
//   - Invalid: malformed payloads, failed transforms, schema mismatches
//   - Fatal: bad or missing configuration, stop processing
//
// Classified errors are produced with WrapTransient, WrapInvalid and WrapFatal.
// Plain sentinels are classified by errors.Is against the known set.
//
// # Wrapping
//
// Wrap follows the "component.method: action failed: %w" pattern:
//
//	if err := doc.Parse(); err != nil {
//	    return errors.WrapInvalid(err, "transform", "Load", "parse projection")
//	}
//
// Detail pairs a domain sentinel with a lower-level diagnostic, so callers can
// match the sentinel while logs keep the parser's message:
//
//	return errors.Detail(errors.ErrMalformedPayload, parseErr)
package errors
