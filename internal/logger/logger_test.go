package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		level zapcore.Level
	}{
		{name: "production", cfg: Config{Service: "api"}, level: zapcore.InfoLevel},
		{name: "debug", cfg: Config{Debug: true, Service: "sweeper"}, level: zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, Initialize(tt.cfg))
			assert.True(t, Default().Core().Enabled(tt.level))
			assert.NotNil(t, Named("arbiter"))
			assert.NotNil(t, FromContext(context.Background()))

			// Helpers must not panic on nil errors
			Error(nil)
			ErrorCtx(context.Background(), errors.New("boom"))
		})
	}
}
