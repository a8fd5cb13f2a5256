package transport

import (
	"net"
	"strings"
)

const (
	minUDPBuffer = 256 * 1024
	maxUDPBuffer = 64 * 1024 * 1024
)

// Tuning outcomes reported in UDPTuneResult.Status.
const (
	StatusOK     = "ok"
	StatusDenied = "denied"
	StatusNA     = "n/a"
)

// UDPTuneResult reports which socket buffer sizes were requested and whether
// the kernel accepted them.
type UDPTuneResult struct {
	RequestedR int
	RequestedW int
	Status     string
	Err        string
}

// TuneUDPBuffers enlarges the socket buffers on a best-effort basis. A deep
// read buffer is the receiver's only defence against drops while the
// assembler is busy; a zero size leaves that direction untouched.
func TuneUDPBuffers(conn *net.UDPConn, r, w int) UDPTuneResult {
	result := UDPTuneResult{Status: StatusOK}
	if conn == nil {
		result.Status = StatusNA
		result.Err = "no access to underlying UDPConn"
		return result
	}

	var errs []string
	if r > 0 {
		result.RequestedR = clampUDPBuffer(r)
		if err := conn.SetReadBuffer(result.RequestedR); err != nil {
			errs = append(errs, "read: "+err.Error())
		}
	}
	if w > 0 {
		result.RequestedW = clampUDPBuffer(w)
		if err := conn.SetWriteBuffer(result.RequestedW); err != nil {
			errs = append(errs, "write: "+err.Error())
		}
	}
	if len(errs) > 0 {
		result.Status = StatusDenied
		result.Err = strings.Join(errs, "; ")
	}
	return result
}

func clampUDPBuffer(n int) int {
	if n < minUDPBuffer {
		return minUDPBuffer
	}
	if n > maxUDPBuffer {
		return maxUDPBuffer
	}
	return n
}
