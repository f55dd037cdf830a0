// Package verify screens upload content for disguised executable or script
// payloads. Partial checks are best-effort early rejection on whatever bytes
// a single chunk carries; the full check after assembly is authoritative.
package verify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
)

// Verifier runs the authoritative whole-file verification once the upload is
// assembled.
type Verifier interface {
	CheckFull(ctx context.Context, path string) error
}

// PartialVerifiable marks verifiers that can screen an arbitrary byte range
// before the whole file exists. The capability is optional: callers check for
// it and skip partial screening when the verifier does not implement it.
type PartialVerifiable interface {
	CheckPartial(chunk []byte) error
}

// Failure is a verification rejection with a stable code clients can act on.
// Transport or I/O problems are returned as plain errors, not Failures.
type Failure struct {
	Code   string
	Detail string
}

func (f *Failure) Error() string {
	if f.Detail == "" {
		return f.Code
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Detail)
}

// sniffWindow bounds how many bytes the heuristics look at. Signatures sit at
// the head of real executables, and script markers that matter for serving
// appear early.
const sniffWindow = 4096

type signature struct {
	magic []byte
	name  string
}

var executableSignatures = []signature{
	{[]byte{0x7f, 'E', 'L', 'F'}, "ELF executable"},
	{[]byte{'M', 'Z'}, "PE/DOS executable"},
	{[]byte{0xca, 0xfe, 0xba, 0xbe}, "Java class file"},
	{[]byte{0xfe, 0xed, 0xfa, 0xce}, "Mach-O executable"},
	{[]byte{0xfe, 0xed, 0xfa, 0xcf}, "Mach-O executable"},
	{[]byte{0xce, 0xfa, 0xed, 0xfe}, "Mach-O executable"},
	{[]byte{0xcf, 0xfa, 0xed, 0xfe}, "Mach-O executable"},
	{[]byte{'#', '!'}, "shebang script"},
}

var scriptMarkers = [][]byte{
	[]byte("<?php"),
	[]byte("<script"),
	[]byte("<html"),
}

// FileVerifier sniffs content signatures and, when a scanner is configured,
// defers the final verdict on assembled files to it.
type FileVerifier struct {
	scanner *Scanner
}

func NewFileVerifier(scanner *Scanner) *FileVerifier {
	return &FileVerifier{scanner: scanner}
}

// CheckPartial screens one chunk. A chunk is an arbitrary byte range, so only
// the signatures that survive arbitrary splits are meaningful: executable
// magic at the head of the range (any header split across chunks still puts
// the magic at position 0 of chunk 0) and script markers anywhere in the
// window.
func (v *FileVerifier) CheckPartial(chunk []byte) error {
	return sniff(chunk)
}

func (v *FileVerifier) CheckFull(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open assembled file: %w", err)
	}
	defer file.Close()

	head := make([]byte, sniffWindow)
	n, err := file.Read(head)
	if err != nil && err != io.EOF {
		return fmt.Errorf("read assembled file: %w", err)
	}
	if n == 0 {
		return &Failure{Code: "empty-file"}
	}

	if err := sniff(head[:n]); err != nil {
		return err
	}

	if v.scanner == nil {
		return nil
	}

	verdict, err := v.scanner.Scan(ctx, path)
	if err != nil {
		// The scanner client has already retried transient faults. An
		// unreachable scanner fails closed: an unverified file is not
		// promoted.
		return &Failure{Code: "scanner-unavailable", Detail: err.Error()}
	}
	if !verdict.Clean {
		return &Failure{Code: "scanner-rejected", Detail: verdict.Threat}
	}

	return nil
}

func sniff(data []byte) error {
	window := data
	if len(window) > sniffWindow {
		window = window[:sniffWindow]
	}

	for _, sig := range executableSignatures {
		if bytes.HasPrefix(window, sig.magic) {
			return &Failure{Code: "executable-content", Detail: sig.name}
		}
	}

	lowered := bytes.ToLower(window)
	for _, marker := range scriptMarkers {
		if bytes.Contains(lowered, marker) {
			return &Failure{Code: "script-content", Detail: string(marker)}
		}
	}

	return nil
}
