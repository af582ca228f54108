// Package services defines shared error markers and context helpers consumed
// by the stage collaborator clients and the cascade orchestrator.
package services
