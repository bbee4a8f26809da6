// Package scripterr defines the failure taxonomy of the script executor.
//
// Every failure crossing the executor boundary is an *Error carrying a Kind
// and, for LimitExceeded, the Limit that tripped. Callers classify failures
// with errors.Is against the package sentinels or with errors.As:
//
//	var serr *scripterr.Error
//	if errors.As(err, &serr) && serr.Kind == scripterr.LimitExceeded {
//	    fmt.Println("limit hit:", serr.Limit)
//	}
package scripterr
