package core

import (
	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
)

// NewID generates a unique identifier for conversations, messages and agents.
func NewID() string { return uuid.NewString() }

// NewExecutionID generates a compact identifier correlating a single tool
// execution across chunks, persisted tool messages and workflow runner logs.
func NewExecutionID() string { return shortuuid.New() }
