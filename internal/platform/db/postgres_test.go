package db

import (
	"testing"

	"github.com/fatflowers/payment-engine/internal/models"
	cfgpkg "github.com/fatflowers/payment-engine/pkg/config"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestNewDB_EmptyDSN(t *testing.T) {
	_, err := NewDB(zap.NewNop().Sugar(), &cfgpkg.Config{})
	require.ErrorIs(t, err, ErrEmptyDSN)
	require.ErrorIs(t, err, gorm.ErrInvalidDB)
}

func TestAutoMigrate_Disabled(t *testing.T) {
	// a nil *gorm.DB would panic if migration ran
	require.NoError(t, AutoMigrate(zap.NewNop().Sugar(), &cfgpkg.Config{}, nil))
}

func TestModels_PaymentsBeforeRefunds(t *testing.T) {
	m := Models()
	require.Len(t, m, 3)
	require.IsType(t, &models.Payment{}, m[0])
	require.IsType(t, &models.Refund{}, m[1])
}

func TestGormConfig_TranslatesErrors(t *testing.T) {
	c := gormConfig(zap.NewNop().Sugar(), &cfgpkg.Config{Env: cfgpkg.EnvProd})
	require.True(t, c.TranslateError)
	require.NotNil(t, c.Logger)
}
