package soc

import "fmt"

// TransportError means the call never produced a usable remote response:
// connect failure, timeout, or a non-2xx HTTP status. Submissions failing
// this way are never persisted locally.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("soc: %s: HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("soc: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// BusinessError means the remote service accepted the call but signaled a
// domain failure. Code and Message come straight from the response fault.
type BusinessError struct {
	Op      string
	Code    string
	Message string
}

func (e *BusinessError) Error() string {
	return fmt.Sprintf("soc: %s: remote fault %s: %s", e.Op, e.Code, e.Message)
}

// faultCodeNoData is the remote's "query matched nothing" signal on result
// export. It is not an error: callers get zero rows.
const faultCodeNoData = "NO_DATA_FOUND"

// IsNoData reports whether err is the remote's empty-result fault.
func IsNoData(err error) bool {
	be, ok := err.(*BusinessError)
	return ok && be.Code == faultCodeNoData
}
