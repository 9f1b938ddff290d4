package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunRejectsEmptyArgs(t *testing.T) {
	err := run(nil)
	assert.Error(t, err)
}

func TestRunRejectsUnknownSubcommand(t *testing.T) {
	err := run([]string{"frobnicate"})
	assert.Error(t, err)
}

func TestRunSearchRequiresText(t *testing.T) {
	err := run([]string{"search"})
	assert.Error(t, err)
}

func TestRunInstallExplainsMissingStoreConfig(t *testing.T) {
	err := run([]string{"install", "en.example"})
	assert.Error(t, err)
}
