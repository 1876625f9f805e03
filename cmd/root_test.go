package cmd

import (
	"errors"
	"fmt"
	"testing"

	"content-history/feature/history"

	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"Success", nil, 0},
		{"FailedGit", fmt.Errorf("%w: dirty", history.ErrFailedGit), exitFailedGit},
		{"FailedIntegrity", fmt.Errorf("%w: dangling", history.ErrFailedIntegrity), exitFailedIntegrity},
		{"Other", errors.New("config"), exitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestRootCmd_Commands(t *testing.T) {
	var names []string
	for _, c := range RootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"init", "log", "rollback", "start", "sync", "undo"})
}
