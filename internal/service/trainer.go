// Package service contains the collaborator-facing services used by the
// controllers: the external trainer process and the shared uploads
// directory.
package service

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Trainer invokes the external model training process. The process owns
// the recognition model entirely, the only contract with us is its exit
// status.
type Trainer struct {
	command string
	args    []string
}

func NewTrainer() *Trainer {
	cmd := viper.GetString("trainer.command")
	args := viper.GetStringSlice("trainer.args")

	return &Trainer{command: cmd, args: args}
}

func (t *Trainer) Train(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, t.command, t.args...)

	stderrBuf := &bytes.Buffer{}
	cmd.Stderr = stderrBuf

	zap.L().Debug("Running trainer command", zap.String("cmd", cmd.String()))

	if err := cmd.Run(); err != nil {
		zap.L().Error("Trainer failed", zap.Error(err), zap.String("stderr", stderrBuf.String()))
		return fmt.Errorf("trainer failed, %w", err)
	}

	return nil
}
