package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/detradefund/stack-mon-prime/internal/domain/entity"
)

func validTestSnapshot() *entity.PortfolioSnapshot {
	return &entity.PortfolioSnapshot{
		Address:   "0xc6835323372A4393B90bCc227c58e82D45CE4b7d",
		CreatedAt: time.Now().UTC(),
		NAV:       entity.NAV{USDC: "1234.567890", TotalSupply: "1000000000000000000"},
	}
}

func TestValidateSnapshotAccepts(t *testing.T) {
	require.NoError(t, validateSnapshot(validTestSnapshot()))
}

func TestValidateSnapshotRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*entity.PortfolioSnapshot)
	}{
		{"missing address", func(s *entity.PortfolioSnapshot) { s.Address = "" }},
		{"missing nav", func(s *entity.PortfolioSnapshot) { s.NAV.USDC = "" }},
		{"missing created_at", func(s *entity.PortfolioSnapshot) { s.CreatedAt = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := validTestSnapshot()
			tt.mutate(snap)
			err := validateSnapshot(snap)
			require.Error(t, err)
			assert.ErrorIs(t, err, entity.ErrInvalidSnapshot)
		})
	}
}

func TestValidateSnapshotRejectsNil(t *testing.T) {
	err := validateSnapshot(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrInvalidSnapshot)
}
