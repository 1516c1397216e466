// Package security implements the security gate: quantum signature
// generation and well-formedness verification, per-cell permission
// derivation from capability templates, and inter-cell connection
// authorization.
package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	qccerrors "github.com/cuemby/qcc-assembler/pkg/errors"
	"github.com/cuemby/qcc-assembler/pkg/log"
	"github.com/cuemby/qcc-assembler/pkg/types"
	"github.com/rs/zerolog"
)

// Level is a configured security posture.
type Level string

const (
	LevelStandard Level = "standard"
	LevelHigh     Level = "high"
	LevelMaximum  Level = "maximum"
)

// Access is a permission grant for one resource class.
type Access string

const (
	AccessNone      Access = "none"
	AccessRead      Access = "read"
	AccessReadWrite Access = "read_write"
	AccessLimited   Access = "limited"
)

// Permissions is the fully resolved permission set for one cell.
type Permissions struct {
	FileSystem      Access
	Network         Access
	UserInteraction Access
	Process         Access
	Memory          Access
}

// lockedTemplate is the fully locked baseline every cell starts from.
var lockedTemplate = Permissions{
	FileSystem:      AccessNone,
	Network:         AccessNone,
	UserInteraction: AccessNone,
	Process:         AccessNone,
	Memory:          AccessLimited,
}

// capabilityOverrides is the fixed per-capability permission table.
var capabilityOverrides = map[string]struct {
	fileSystem      Access
	network         Access
	userInteraction Access
}{
	"text_generation":   {AccessRead, AccessNone, AccessRead},
	"ui_rendering":      {AccessNone, AccessNone, AccessReadWrite},
	"file_system":       {AccessReadWrite, AccessNone, AccessRead},
	"data_analysis":     {AccessRead, AccessNone, AccessRead},
	"media_processing":  {AccessRead, AccessNone, AccessRead},
	"web_search":        {AccessNone, AccessRead, AccessRead},
}

// connectionRules is the same source -> allowed-targets table the intent
// interpreter uses for connection hints (§4.1 step 6); the gate applies it
// as an authorization rule rather than a suggestion.
var connectionRules = map[string][]string{
	"ui_rendering":    {"text_generation", "data_analysis", "media_processing", "file_system"},
	"text_generation": {"data_analysis", "file_system", "web_search"},
	"data_analysis":   {"file_system", "database", "web_search"},
}

const signaturePrefix = "qc"
const minSignatureLength = 64
const signaturePrefixShared = 10
const signatureEntropyBytes = 48

// Gate is the security gate. One Gate serves the whole assembler; it holds
// no per-request state beyond its configured level.
type Gate struct {
	mu     sync.RWMutex
	level  Level
	logger zerolog.Logger
}

// NewGate creates a security gate at the given level.
func NewGate(level Level) *Gate {
	if level == "" {
		level = LevelStandard
	}
	return &Gate{
		level:  level,
		logger: log.WithComponent("security"),
	}
}

// Level returns the gate's currently configured security level.
func (g *Gate) Level() Level {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.level
}

// SetLevel reconfigures the gate's security level.
func (g *Gate) SetLevel(level Level) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.level = level
}

// GenerateSignature produces a fresh, opaque quantum signature: "qc" plus
// base64-encoded random entropy. Every solution gets one; every cell it
// owns gets its own signature sharing the solution's first 10 characters.
func GenerateSignature() (string, error) {
	buf := make([]byte, signatureEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate signature entropy: %w", err)
	}
	return signaturePrefix + base64.StdEncoding.EncodeToString(buf), nil
}

// DeriveCellSignature produces a cell signature bound to a solution
// signature: same 10-character prefix, fresh entropy after that.
func DeriveCellSignature(solutionSignature string) (string, error) {
	sig, err := GenerateSignature()
	if err != nil {
		return "", err
	}
	if len(solutionSignature) < signaturePrefixShared {
		return "", fmt.Errorf("solution signature too short to derive from")
	}
	return solutionSignature[:signaturePrefixShared] + sig[signaturePrefixShared:], nil
}

// wellFormed checks a signature's structural validity: minimum length, the
// "qc" prefix, and a base64-decodable remainder.
func wellFormed(sig string) bool {
	if len(sig) < minSignatureLength {
		return false
	}
	if !strings.HasPrefix(sig, signaturePrefix) {
		return false
	}
	if _, err := base64.StdEncoding.DecodeString(sig[len(signaturePrefix):]); err != nil {
		return false
	}
	return true
}

// VerifySignature checks a solution signature's well-formedness.
func (g *Gate) VerifySignature(signature string) error {
	if !wellFormed(signature) {
		return &qccerrors.SecurityVerificationError{
			Stage: "signature",
			Err:   fmt.Errorf("signature %q is not well-formed", signature),
		}
	}
	return nil
}

// VerifyCell checks a cell's signature for well-formedness and for sharing
// the owning solution's first 10 characters. Called once per acquired
// cell after acquisition completes (§4.2, §4.4 step 6).
func (g *Gate) VerifyCell(cell *types.Cell, solutionSignature string) error {
	if !wellFormed(cell.QuantumSignature) {
		return &qccerrors.SecurityVerificationError{
			CellID: cell.CellID,
			Stage:  "signature",
			Err:    fmt.Errorf("cell signature is not well-formed"),
		}
	}
	if len(solutionSignature) < signaturePrefixShared || len(cell.QuantumSignature) < signaturePrefixShared ||
		cell.QuantumSignature[:signaturePrefixShared] != solutionSignature[:signaturePrefixShared] {
		return &qccerrors.SecurityVerificationError{
			CellID: cell.CellID,
			Stage:  "signature",
			Err:    fmt.Errorf("cell signature does not share solution signature prefix"),
		}
	}
	return nil
}

// DerivePermissions resolves the permission set for a cell of the given
// capability under the gate's current security level.
func (g *Gate) DerivePermissions(capability string) Permissions {
	perms := lockedTemplate

	if override, ok := capabilityOverrides[capability]; ok {
		perms.FileSystem = override.fileSystem
		perms.Network = override.network
		perms.UserInteraction = override.userInteraction
	}

	level := g.Level()
	switch level {
	case LevelHigh:
		if perms.Network == AccessReadWrite {
			perms.Network = AccessRead
		}
	case LevelMaximum:
		perms.Network = AccessNone
		if perms.FileSystem == AccessReadWrite {
			perms.FileSystem = AccessRead
		}
	}

	return perms
}

// AuthorizeConnection decides whether an edge from source to target is
// permitted under the gate's current level. standard permits everything;
// high requires the target capability to be in source's allowed-targets
// list; maximum additionally requires both cells share a provider.
func (g *Gate) AuthorizeConnection(source, target *types.Cell) error {
	level := g.Level()
	if level == LevelStandard {
		return nil
	}

	allowed := connectionRules[source.Capability]
	permitted := false
	for _, t := range allowed {
		if t == target.Capability {
			permitted = true
			break
		}
	}
	if !permitted {
		return &qccerrors.SecurityVerificationError{
			CellID: source.CellID,
			Stage:  "connection",
			Err:    fmt.Errorf("capability %s may not connect to %s at level %s", source.Capability, target.Capability, level),
		}
	}

	if level == LevelMaximum && source.ProviderURL != target.ProviderURL {
		return &qccerrors.SecurityVerificationError{
			CellID: source.CellID,
			Stage:  "connection",
			Err:    fmt.Errorf("cross-provider connection rejected at maximum security level"),
		}
	}

	return nil
}
