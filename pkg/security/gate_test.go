package security

import (
	"testing"

	"github.com/cuemby/qcc-assembler/pkg/errors"
	"github.com/cuemby/qcc-assembler/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSignature_WellFormed(t *testing.T) {
	sig, err := GenerateSignature()
	require.NoError(t, err)
	assert.True(t, wellFormed(sig))
	assert.GreaterOrEqual(t, len(sig), minSignatureLength)
	assert.True(t, len(sig) >= 2 && sig[:2] == signaturePrefix)
}

func TestWellFormed(t *testing.T) {
	tests := []struct {
		name string
		sig  string
		ok   bool
	}{
		{"too short", "qc" + "YQ==", false},
		{"missing prefix", strRepeat("a", 70), false},
		{"bad base64 remainder", "qc" + strRepeat("!", 64), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ok, wellFormed(tt.sig))
		})
	}

	valid, err := GenerateSignature()
	require.NoError(t, err)
	assert.True(t, wellFormed(valid))
}

func strRepeat(s string, n int) string {
	out := make([]byte, 0, n*len(s))
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}

func TestDeriveCellSignature_SharesPrefix(t *testing.T) {
	solutionSig, err := GenerateSignature()
	require.NoError(t, err)

	cellSig, err := DeriveCellSignature(solutionSig)
	require.NoError(t, err)

	assert.True(t, wellFormed(cellSig))
	assert.Equal(t, solutionSig[:signaturePrefixShared], cellSig[:signaturePrefixShared])
}

func TestGate_VerifySignature(t *testing.T) {
	gate := NewGate(LevelStandard)

	valid, err := GenerateSignature()
	require.NoError(t, err)
	assert.NoError(t, gate.VerifySignature(valid))

	err = gate.VerifySignature("too-short")
	require.Error(t, err)
	var secErr *errors.SecurityVerificationError
	assert.ErrorAs(t, err, &secErr)
	assert.Equal(t, "signature", secErr.Stage)
}

func TestGate_VerifyCell(t *testing.T) {
	gate := NewGate(LevelStandard)
	solutionSig, err := GenerateSignature()
	require.NoError(t, err)
	cellSig, err := DeriveCellSignature(solutionSig)
	require.NoError(t, err)

	cell := &types.Cell{CellID: "cell-1", QuantumSignature: cellSig}
	assert.NoError(t, gate.VerifyCell(cell, solutionSig))

	otherSig, err := GenerateSignature()
	require.NoError(t, err)
	mismatched := &types.Cell{CellID: "cell-2", QuantumSignature: otherSig}
	assert.Error(t, gate.VerifyCell(mismatched, solutionSig))
}

func TestGate_DerivePermissions(t *testing.T) {
	tests := []struct {
		name       string
		capability string
		level      Level
		want       Permissions
	}{
		{
			name:       "standard text_generation",
			capability: "text_generation",
			level:      LevelStandard,
			want:       Permissions{FileSystem: AccessRead, Network: AccessNone, UserInteraction: AccessRead, Process: AccessNone, Memory: AccessLimited},
		},
		{
			name:       "unknown capability keeps locked template",
			capability: "unknown_cap",
			level:      LevelStandard,
			want:       lockedTemplate,
		},
		{
			name:       "high leaves read network unchanged",
			capability: "web_search",
			level:      LevelHigh,
			want:       Permissions{FileSystem: AccessNone, Network: AccessRead, UserInteraction: AccessRead, Process: AccessNone, Memory: AccessLimited},
		},
		{
			name:       "maximum locks network and downgrades file_system",
			capability: "file_system",
			level:      LevelMaximum,
			want:       Permissions{FileSystem: AccessRead, Network: AccessNone, UserInteraction: AccessRead, Process: AccessNone, Memory: AccessLimited},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewGate(tt.level)
			assert.Equal(t, tt.want, gate.DerivePermissions(tt.capability))
		})
	}
}

func TestGate_AuthorizeConnection(t *testing.T) {
	textCell := &types.Cell{CellID: "text", Capability: "text_generation", ProviderURL: "http://p1"}
	uiCell := &types.Cell{CellID: "ui", Capability: "ui_rendering", ProviderURL: "http://p1"}
	dataCellOtherProvider := &types.Cell{CellID: "data", Capability: "data_analysis", ProviderURL: "http://p2"}

	t.Run("standard permits everything", func(t *testing.T) {
		gate := NewGate(LevelStandard)
		assert.NoError(t, gate.AuthorizeConnection(textCell, dataCellOtherProvider))
	})

	t.Run("high permits allowed capability pair", func(t *testing.T) {
		gate := NewGate(LevelHigh)
		assert.NoError(t, gate.AuthorizeConnection(uiCell, textCell))
	})

	t.Run("high rejects disallowed capability pair", func(t *testing.T) {
		gate := NewGate(LevelHigh)
		assert.Error(t, gate.AuthorizeConnection(textCell, uiCell))
	})

	t.Run("maximum rejects cross-provider even when capability pair allowed", func(t *testing.T) {
		gate := NewGate(LevelMaximum)
		assert.Error(t, gate.AuthorizeConnection(uiCell, dataCellOtherProvider))
	})

	t.Run("maximum permits same-provider allowed pair", func(t *testing.T) {
		gate := NewGate(LevelMaximum)
		assert.NoError(t, gate.AuthorizeConnection(uiCell, textCell))
	})
}
