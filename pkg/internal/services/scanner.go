package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	clamd "github.com/dutchcoders/go-clamd"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const DefaultScanTimeout = 30 * time.Second

// ScanResult is the verdict of a threat scan. Error is only set when the
// scan itself could not complete, which is distinct from a detection.
type ScanResult struct {
	Clean     bool    `json:"clean"`
	VirusName *string `json:"virus_name"`
	Error     *string `json:"error"`
}

func (v ScanResult) Infected() bool {
	return !v.Clean && v.VirusName != nil
}

func (v ScanResult) Failed() bool {
	return !v.Clean && v.VirusName == nil
}

type Scanner interface {
	Scan(ctx context.Context, path string) ScanResult
}

// NoopScanner reports every file as clean.
type NoopScanner struct{}

func (NoopScanner) Scan(context.Context, string) ScanResult {
	return ScanResult{Clean: true}
}

func scanFailure(format string, args ...any) ScanResult {
	return ScanResult{Error: lo.ToPtr(fmt.Sprintf(format, args...))}
}

// ClamdScanner streams files to a clamd daemon, for example
// tcp://127.0.0.1:3310 or unix:///run/clamav/clamd.ctl.
type ClamdScanner struct {
	client *clamd.Clamd
}

func NewClamdScanner(address string) *ClamdScanner {
	return &ClamdScanner{client: clamd.NewClamd(address)}
}

func (v *ClamdScanner) Ping() error {
	return v.client.Ping()
}

func (v *ClamdScanner) Scan(ctx context.Context, path string) ScanResult {
	file, err := os.Open(path)
	if err != nil {
		log.Warn().Err(err).Msg("Unable to open file for scanning...")
		return scanFailure("unable to read file for scanning")
	}
	defer file.Close()

	// Closing abort releases the clamd connection.
	abort := make(chan bool)
	defer close(abort)

	response, err := v.client.ScanStream(&contextReader{ctx: ctx, r: file}, abort)
	if err != nil {
		log.Warn().Err(err).Msg("Unable to reach clamd...")
		return scanFailure("virus scanner unavailable")
	}
	if ctx.Err() != nil {
		return scanFailure("scan timed out")
	}

	result := ScanResult{Clean: true}
	for {
		select {
		case <-ctx.Done():
			return scanFailure("scan timed out")
		case res, ok := <-response:
			if !ok {
				return result
			}
			switch res.Status {
			case clamd.RES_OK:
			case clamd.RES_FOUND:
				result = ScanResult{VirusName: lo.ToPtr(strings.TrimSpace(res.Description))}
			default:
				if result.Clean {
					result = scanFailure("virus scanner error: %s", strings.TrimSpace(res.Description))
				}
			}
		}
	}
}

// contextReader stops feeding clamd once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (v *contextReader) Read(p []byte) (int, error) {
	if err := v.ctx.Err(); err != nil {
		return 0, err
	}
	return v.r.Read(p)
}

// ScanWithTimeout bounds a single scan call. A scan that outlives the
// timeout, or whose context is cancelled, is reported as a scan failure.
func ScanWithTimeout(ctx context.Context, scanner Scanner, path string, timeout time.Duration) ScanResult {
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if ctx.Err() != nil {
		return scanFailure("scan timed out")
	}

	out := make(chan ScanResult, 1)
	go func() {
		out <- scanner.Scan(ctx, path)
	}()

	select {
	case result := <-out:
		if ctx.Err() != nil {
			return scanFailure("scan timed out")
		}
		return result
	case <-ctx.Done():
		return scanFailure("scan timed out")
	}
}
